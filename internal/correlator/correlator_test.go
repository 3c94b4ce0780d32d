/**
 * Event Correlator Tests.
 *
 * Exercises a distributed port scan correlation scenario and the
 * reset-on-fire vs. emit-on-every-match toggle.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package correlator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kleaSCM/sentryd/internal/models"
)

func portScanAlert(srcIP string) models.Alert {
	name := "Port Scan Detection"
	return models.Alert{
		Kind:     models.AlertKindRule,
		RuleName: &name,
		Severity: models.SeverityHigh,
		SrcIP:    srcIP,
	}
}

func TestCorrelatorScenarioS3DistributedPortScan(t *testing.T) {
	var got []models.CorrelationAlert
	c := New(false, func(ca models.CorrelationAlert) { got = append(got, ca) })

	for i := 0; i < 3; i++ {
		c.Process(portScanAlert("1.2.3.4"))
	}

	require.Len(t, got, 1)
	require.Equal(t, "Distributed Port Scan", got[0].RuleName)
	require.Equal(t, models.SeverityHigh, got[0].Severity)
	require.Equal(t, "1.2.3.4", got[0].GroupKey)
	require.Len(t, got[0].RelatedAlerts, 3)
}

func TestCorrelatorResetOnFireByDefault(t *testing.T) {
	var fired int
	c := New(false, func(ca models.CorrelationAlert) { fired++ })

	for i := 0; i < 3; i++ {
		c.Process(portScanAlert("1.2.3.4"))
	}
	require.Equal(t, 1, fired)

	// A fourth alert right after firing should not immediately re-fire:
	// the buffer was reset, so only one entry is present.
	c.Process(portScanAlert("1.2.3.4"))
	require.Equal(t, 1, fired)
}

func TestCorrelatorEmitOnEveryMatchNeverResets(t *testing.T) {
	var fired int
	c := New(true, func(ca models.CorrelationAlert) { fired++ })

	for i := 0; i < 4; i++ {
		c.Process(portScanAlert("5.6.7.8"))
	}
	// Fires at entry 3 and again at entry 4 since the buffer is never
	// reset.
	require.Equal(t, 2, fired)
}

func TestCorrelatorSweepEvictsStaleEntries(t *testing.T) {
	c := New(false, nil)
	c.Process(portScanAlert("9.9.9.9"))
	// A high-severity rule alert also matches the DDoS correlation rule's
	// selection, so two buffers exist.
	require.Len(t, c.buffer, 2)

	future := time.Now().Add(MaxWindow + time.Minute)
	c.sweep(future)
	require.Len(t, c.buffer, 0)
}
