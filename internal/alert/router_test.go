/**
 * Alert Router Tests.
 *
 * Verifies persistence, correlator forwarding, and the ban-on-high-
 * severity-or-high-confidence-anomaly rule.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package alert

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kleaSCM/sentryd/internal/anomaly"
	"github.com/kleaSCM/sentryd/internal/models"
	"github.com/kleaSCM/sentryd/internal/storage"
)

type fakeSink struct {
	saved []*models.Alert
}

func (f *fakeSink) Close() error                                         { return nil }
func (f *fakeSink) Migrate() error                                       { return nil }
func (f *fakeSink) SaveAlert(a *models.Alert) error                      { f.saved = append(f.saved, a); return nil }
func (f *fakeSink) ListAlerts(limit, offset int) ([]*models.Alert, error) { return f.saved, nil }
func (f *fakeSink) SeverityHistogram(since int64) (map[string]int, error) { return nil, nil }
func (f *fakeSink) SaveCorrelationAlert(ca *models.CorrelationAlert) error { return nil }
func (f *fakeSink) ListCorrelationAlerts(limit, offset int) ([]*models.CorrelationAlert, error) {
	return nil, nil
}
func (f *fakeSink) RecordPacketStats(srcIP, dstIP string, bytes int) error { return nil }
func (f *fakeSink) TopTalkers(limit int) ([]storage.TalkerStat, error)     { return nil, nil }

var _ storage.Sink = (*fakeSink)(nil)

type fakeCorrelator struct {
	processed []models.Alert
}

func (f *fakeCorrelator) Process(a models.Alert) { f.processed = append(f.processed, a) }

type fakeActuator struct {
	bans []string
}

func (f *fakeActuator) Ban(ip, reason string) (bool, error) { f.bans = append(f.bans, ip); return true, nil }
func (f *fakeActuator) Unban(ip string) (bool, error)       { return true, nil }
func (f *fakeActuator) IsBanned(ip string) bool             { return false }
func (f *fakeActuator) SweepExpired() []string              { return nil }

func TestRouterBansOnHighSeverityRuleHit(t *testing.T) {
	sink := &fakeSink{}
	corr := &fakeCorrelator{}
	act := &fakeActuator{}
	r := New(sink, zap.NewNop(), corr, act, nil)

	ruleName := "Port Scan Detection"
	alerts := []models.Alert{{Kind: models.AlertKindRule, Severity: models.SeverityHigh, RuleName: &ruleName}}

	r.Route(PacketContext{SrcIP: "1.2.3.4", DstIP: "5.6.7.8"}, alerts, nil)

	require.Len(t, sink.saved, 1)
	require.Equal(t, "1.2.3.4", sink.saved[0].SrcIP)
	require.Len(t, corr.processed, 1)
	require.Equal(t, []string{"1.2.3.4"}, act.bans)
}

func TestRouterBansOnHighConfidenceAnomaly(t *testing.T) {
	sink := &fakeSink{}
	act := &fakeActuator{}
	r := New(sink, zap.NewNop(), nil, act, nil)

	r.Route(PacketContext{SrcIP: "9.9.9.9"}, nil, &anomaly.Verdict{Attack: true, Confidence: 0.95})

	require.Len(t, sink.saved, 1)
	require.Equal(t, models.AlertKindAnomaly, sink.saved[0].Kind)
	require.Equal(t, []string{"9.9.9.9"}, act.bans)
}

func TestRouterDoesNotBanLowSeverityOrLowConfidence(t *testing.T) {
	sink := &fakeSink{}
	act := &fakeActuator{}
	r := New(sink, zap.NewNop(), nil, act, nil)

	ruleName := "Large Packet Detection"
	alerts := []models.Alert{{Kind: models.AlertKindRule, Severity: models.SeverityMedium, RuleName: &ruleName}}
	r.Route(PacketContext{SrcIP: "2.2.2.2"}, alerts, &anomaly.Verdict{Attack: true, Confidence: 0.5})

	require.Empty(t, act.bans)
}

func TestRouterNoopWhenNoAlerts(t *testing.T) {
	sink := &fakeSink{}
	r := New(sink, zap.NewNop(), nil, nil, nil)
	r.Route(PacketContext{SrcIP: "3.3.3.3"}, nil, nil)
	require.Empty(t, sink.saved)
}
