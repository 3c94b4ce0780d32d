/**
 * Database Schema.
 *
 * DDL for the detection pipeline's persisted state: alerts,
 * correlation alerts, and a per-source-IP traffic counter table backing
 * the control plane's top-talker report, as a single raw-SQL constant.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package storage

// Contains the SQL statements to create the database tables.
const Schema = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    timestamp TIMESTAMP,
    severity TEXT,
    src_ip TEXT,
    dst_ip TEXT,
    src_port INTEGER,
    dst_port INTEGER,
    protocol TEXT,
    kind TEXT,
    rule_name TEXT,
    confidence REAL,
    packet_seq INTEGER
);
CREATE INDEX IF NOT EXISTS idx_alerts_time ON alerts(timestamp);
CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
CREATE INDEX IF NOT EXISTS idx_alerts_src ON alerts(src_ip);

CREATE TABLE IF NOT EXISTS correlation_alerts (
    id TEXT PRIMARY KEY,
    rule_name TEXT,
    severity TEXT,
    group_key TEXT,
    first_entry TIMESTAMP,
    last_entry TIMESTAMP,
    entries_count INTEGER,
    related_alert_ids TEXT -- JSON array of alerts.id
);
CREATE INDEX IF NOT EXISTS idx_correlation_time ON correlation_alerts(last_entry);

CREATE TABLE IF NOT EXISTS traffic_stats (
    ip TEXT PRIMARY KEY,
    bytes_total INTEGER DEFAULT 0,
    packets_total INTEGER DEFAULT 0,
    last_seen TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_traffic_bytes ON traffic_stats(bytes_total);
`
