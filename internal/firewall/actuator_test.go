/**
 * Quarantine Actuator Tests.
 *
 * Exercises exactly one ban call per IP until expiry, and
 * SweepExpired's time-bounded auto-unban.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package firewall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls []string
}

func (f *fakeRunner) Run(cmd string) (string, string, int, error) {
	f.calls = append(f.calls, cmd)
	return "", "", 0, nil
}

func newTestActuator(banTime time.Duration) (*IPTablesActuator, *fakeRunner) {
	r := &fakeRunner{}
	return &IPTablesActuator{
		banned:  make(map[string]banRecord),
		banTime: banTime,
		runner:  r,
	}, r
}

func TestActuatorScenarioS6AtMostOneBan(t *testing.T) {
	a, r := newTestActuator(time.Hour)

	ok, err := a.Ban("1.2.3.4", "rule match: Port Scan Detection")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.Ban("1.2.3.4", "rule match: Port Scan Detection")
	require.NoError(t, err)
	require.False(t, ok)

	require.Len(t, r.calls, 1)
	require.True(t, a.IsBanned("1.2.3.4"))
}

func TestActuatorSweepExpiredUnbansAfterBanTime(t *testing.T) {
	a, r := newTestActuator(10 * time.Millisecond)

	_, err := a.Ban("5.6.7.8", "test")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	unbanned := a.SweepExpired()
	require.Equal(t, []string{"5.6.7.8"}, unbanned)
	require.False(t, a.IsBanned("5.6.7.8"))
	require.Len(t, r.calls, 2) // ban + unban
}

func TestActuatorUnbanUnknownIPIsNoop(t *testing.T) {
	a, _ := newTestActuator(time.Hour)
	ok, err := a.Unban("9.9.9.9")
	require.NoError(t, err)
	require.False(t, ok)
}
