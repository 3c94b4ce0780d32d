/**
 * SQLite Sink Tests.
 *
 * Verifies the persistence API (alerts, correlation alerts, traffic
 * stats) against a temporary SQLite database.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package storage

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kleaSCM/sentryd/internal/models"
)

func TestSQLiteSink(t *testing.T) {
	dbPath := "test_sentryd.db"
	defer os.Remove(dbPath)

	sink, err := NewSQLiteSink(dbPath)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Migrate())

	ruleName := "Port Scan Detection"
	dstPort := uint16(22)
	alert := &models.Alert{
		ID:        "alert-1",
		Timestamp: time.Now(),
		Severity:  models.SeverityHigh,
		SrcIP:     "10.0.0.5",
		DstIP:     "10.0.0.1",
		DstPort:   &dstPort,
		Protocol:  models.ProtoTCP,
		Kind:      models.AlertKindRule,
		RuleName:  &ruleName,
	}
	require.NoError(t, sink.SaveAlert(alert))

	alerts, err := sink.ListAlerts(10, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "alert-1", alerts[0].ID)
	require.NotNil(t, alerts[0].DstPort)
	require.Equal(t, uint16(22), *alerts[0].DstPort)
	require.NotNil(t, alerts[0].RuleName)
	require.Equal(t, ruleName, *alerts[0].RuleName)

	hist, err := sink.SeverityHistogram(0)
	require.NoError(t, err)
	require.Equal(t, 1, hist["high"])

	ca := &models.CorrelationAlert{
		ID:            "corr-1",
		RuleName:      "Distributed Port Scan",
		Severity:      models.SeverityHigh,
		GroupKey:      "10.0.0.5",
		FirstEntry:    time.Now().Add(-time.Minute),
		LastEntry:     time.Now(),
		EntriesCount:  3,
		RelatedAlerts: []models.Alert{*alert},
	}
	require.NoError(t, sink.SaveCorrelationAlert(ca))

	cas, err := sink.ListCorrelationAlerts(10, 0)
	require.NoError(t, err)
	require.Len(t, cas, 1)
	require.Equal(t, 3, cas[0].EntriesCount)
	require.Len(t, cas[0].RelatedAlerts, 1)
	require.Equal(t, "alert-1", cas[0].RelatedAlerts[0].ID)

	require.NoError(t, sink.RecordPacketStats("10.0.0.5", "10.0.0.1", 1500))
	require.NoError(t, sink.RecordPacketStats("10.0.0.5", "10.0.0.1", 500))

	talkers, err := sink.TopTalkers(5)
	require.NoError(t, err)
	require.Len(t, talkers, 1)
	require.Equal(t, "10.0.0.5", talkers[0].IP)
	require.Equal(t, int64(2000), talkers[0].BytesTotal)
	require.Equal(t, int64(2), talkers[0].PacketsTotal)
}
