/**
 * Storage Interface.
 *
 * Defines the persistence contract the alert router and control plane
 * depend on, allowing SQLite or another backend to be swapped in behind
 * the same Sink: alerts, correlation alerts, and packet/talker stats.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package storage

import "github.com/kleaSCM/sentryd/internal/models"

// Sink persists detection pipeline output. Implementations must be
// safe for concurrent use by multiple worker goroutines.
type Sink interface {
	Close() error
	Migrate() error

	SaveAlert(alert *models.Alert) error
	ListAlerts(limit, offset int) ([]*models.Alert, error)
	SeverityHistogram(since int64) (map[string]int, error)

	SaveCorrelationAlert(ca *models.CorrelationAlert) error
	ListCorrelationAlerts(limit, offset int) ([]*models.CorrelationAlert, error)

	// RecordPacketStats accumulates lightweight per-source traffic
	// counters for the control plane's top-talker/traffic endpoints,
	// without persisting full packet bodies.
	RecordPacketStats(srcIP, dstIP string, bytes int) error
	TopTalkers(limit int) ([]TalkerStat, error)
}

// TalkerStat is one row of the top-talkers report.
type TalkerStat struct {
	IP           string
	BytesTotal   int64
	PacketsTotal int64
}
