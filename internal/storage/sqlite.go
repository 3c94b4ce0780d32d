/**
 * SQLite Implementation.
 *
 * Implements Sink using SQLite3 via database/sql and
 * github.com/mattn/go-sqlite3, covering alerts, correlation alerts, and
 * per-source-IP traffic stats.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kleaSCM/sentryd/internal/models"
)

// SQLiteSink implements Sink for SQLite3.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (but does not migrate) a SQLite database at
// dbPath.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Close() error { return s.db.Close() }

// Migrate applies the schema, safe to call on every startup.
func (s *SQLiteSink) Migrate() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SaveAlert persists a detection verdict.
func (s *SQLiteSink) SaveAlert(a *models.Alert) error {
	query := `
	INSERT INTO alerts (id, timestamp, severity, src_ip, dst_ip, src_port, dst_port, protocol, kind, rule_name, confidence, packet_seq)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		a.ID, a.Timestamp, a.Severity, a.SrcIP, a.DstIP,
		nullableUint16(a.SrcPort), nullableUint16(a.DstPort),
		a.Protocol, a.Kind, nullableString(a.RuleName), nullableFloat(a.Confidence), a.PacketSeq,
	)
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

// ListAlerts returns alerts newest-first, paginated.
func (s *SQLiteSink) ListAlerts(limit, offset int) ([]*models.Alert, error) {
	query := `
	SELECT id, timestamp, severity, src_ip, dst_ip, src_port, dst_port, protocol, kind, rule_name, confidence, packet_seq
	FROM alerts ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		var a models.Alert
		var srcPort, dstPort sql.NullInt64
		var ruleName sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.Severity, &a.SrcIP, &a.DstIP,
			&srcPort, &dstPort, &a.Protocol, &a.Kind, &ruleName, &confidence, &a.PacketSeq); err != nil {
			return nil, err
		}
		if srcPort.Valid {
			p := uint16(srcPort.Int64)
			a.SrcPort = &p
		}
		if dstPort.Valid {
			p := uint16(dstPort.Int64)
			a.DstPort = &p
		}
		if ruleName.Valid {
			a.RuleName = &ruleName.String
		}
		if confidence.Valid {
			a.Confidence = &confidence.Float64
		}
		alerts = append(alerts, &a)
	}
	return alerts, nil
}

// SeverityHistogram counts alerts by severity since the given unix
// timestamp, backing the control plane's 24h histogram endpoint.
func (s *SQLiteSink) SeverityHistogram(since int64) (map[string]int, error) {
	query := `SELECT severity, COUNT(*) FROM alerts WHERE timestamp >= ? GROUP BY severity`
	// timestamp is stored as text, so compare against a time value
	// rather than a bare integer (which SQLite orders before any text).
	rows, err := s.db.Query(query, time.Unix(since, 0))
	if err != nil {
		return nil, fmt.Errorf("severity histogram: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var sev string
		var count int
		if err := rows.Scan(&sev, &count); err != nil {
			return nil, err
		}
		out[sev] = count
	}
	return out, nil
}

// SaveCorrelationAlert persists a CorrelationAlert, storing its related
// alert IDs as a JSON array.
func (s *SQLiteSink) SaveCorrelationAlert(ca *models.CorrelationAlert) error {
	ids := make([]string, 0, len(ca.RelatedAlerts))
	for _, a := range ca.RelatedAlerts {
		ids = append(ids, a.ID)
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		idsJSON = []byte("[]")
	}

	query := `
	INSERT INTO correlation_alerts (id, rule_name, severity, group_key, first_entry, last_entry, entries_count, related_alert_ids)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(query, ca.ID, ca.RuleName, ca.Severity, ca.GroupKey, ca.FirstEntry, ca.LastEntry, ca.EntriesCount, string(idsJSON))
	if err != nil {
		return fmt.Errorf("save correlation alert: %w", err)
	}
	return nil
}

// ListCorrelationAlerts returns correlation alerts newest-first,
// paginated. RelatedAlerts on the returned structs carries only IDs
// (as synthetic Alert{ID: ...} stubs); callers needing full alert
// bodies must join against ListAlerts.
func (s *SQLiteSink) ListCorrelationAlerts(limit, offset int) ([]*models.CorrelationAlert, error) {
	query := `
	SELECT id, rule_name, severity, group_key, first_entry, last_entry, entries_count, related_alert_ids
	FROM correlation_alerts ORDER BY last_entry DESC LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list correlation alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.CorrelationAlert
	for rows.Next() {
		var ca models.CorrelationAlert
		var idsJSON string
		if err := rows.Scan(&ca.ID, &ca.RuleName, &ca.Severity, &ca.GroupKey, &ca.FirstEntry, &ca.LastEntry, &ca.EntriesCount, &idsJSON); err != nil {
			return nil, err
		}
		var ids []string
		if err := json.Unmarshal([]byte(idsJSON), &ids); err == nil {
			for _, id := range ids {
				ca.RelatedAlerts = append(ca.RelatedAlerts, models.Alert{ID: id})
			}
		}
		out = append(out, &ca)
	}
	return out, nil
}

// RecordPacketStats upserts running byte/packet totals for srcIP,
// feeding the top-talkers report.
func (s *SQLiteSink) RecordPacketStats(srcIP, dstIP string, bytes int) error {
	query := `
	INSERT INTO traffic_stats (ip, bytes_total, packets_total, last_seen)
	VALUES (?, ?, 1, CURRENT_TIMESTAMP)
	ON CONFLICT(ip) DO UPDATE SET
		bytes_total = bytes_total + excluded.bytes_total,
		packets_total = packets_total + 1,
		last_seen = CURRENT_TIMESTAMP;
	`
	_, err := s.db.Exec(query, srcIP, bytes)
	if err != nil {
		return fmt.Errorf("record packet stats: %w", err)
	}
	return nil
}

// TopTalkers returns the highest-byte-volume source IPs.
func (s *SQLiteSink) TopTalkers(limit int) ([]TalkerStat, error) {
	query := `SELECT ip, bytes_total, packets_total FROM traffic_stats ORDER BY bytes_total DESC LIMIT ?`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("top talkers: %w", err)
	}
	defer rows.Close()

	var out []TalkerStat
	for rows.Next() {
		var t TalkerStat
		if err := rows.Scan(&t.IP, &t.BytesTotal, &t.PacketsTotal); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func nullableUint16(p *uint16) interface{} {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullableString(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullableFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
