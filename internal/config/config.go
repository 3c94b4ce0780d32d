/**
 * Configuration Definitions.
 *
 * Defines the runtime configuration for the detection pipeline: capture
 * interface, rules directory, storage backend, firewall actuator
 * transport, queue/session tuning, and the control-plane listen
 * address. Loaded from YAML with a CLI-flag/env overlay.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package config

import "time"

// Config is the fully-resolved runtime configuration for cmd/sentryd.
type Config struct {
	Interface string `mapstructure:"interface" yaml:"interface"`
	RulesDir  string `mapstructure:"rules_dir" yaml:"rules_dir"`
	DBPath    string `mapstructure:"db_path" yaml:"db_path"`

	Queue   QueueConfig   `mapstructure:"queue" yaml:"queue"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	Correlator CorrelatorConfig `mapstructure:"correlator" yaml:"correlator"`
	Anomaly    AnomalyConfig    `mapstructure:"anomaly" yaml:"anomaly"`
	Firewall   FirewallConfig   `mapstructure:"firewall" yaml:"firewall"`
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http"`
	GeoIP      GeoIPConfig      `mapstructure:"geoip" yaml:"geoip"`
}

// GeoIPConfig points at the optional MaxMind GeoLite2 databases used to
// enrich the top-talkers report. Either path left empty disables the
// corresponding lookup without an error.
type GeoIPConfig struct {
	CityDBPath string `mapstructure:"city_db_path" yaml:"city_db_path"`
	ASNDBPath  string `mapstructure:"asn_db_path" yaml:"asn_db_path"`
}

// QueueConfig tunes the ingress queue.
type QueueConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
	Workers  int `mapstructure:"workers" yaml:"workers"`
}

// SessionConfig tunes the session tracker.
type SessionConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	SweepEvery  time.Duration `mapstructure:"sweep_every" yaml:"sweep_every"`
	ShardCount  int           `mapstructure:"shard_count" yaml:"shard_count"`
}

// CorrelatorConfig tunes the event correlator.
type CorrelatorConfig struct {
	// EmitOnEveryMatch toggles an Open Question decision: false
	// (default) resets a group-key's buffer on firing; true never
	// resets, reproducing the Python original's sliding-emission
	// behavior verbatim.
	EmitOnEveryMatch bool `mapstructure:"emit_on_every_match" yaml:"emit_on_every_match"`
}

// AnomalyConfig tunes the baseline anomaly scorer.
type AnomalyConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	MinSamples int64   `mapstructure:"min_samples" yaml:"min_samples"`
	ZThreshold float64 `mapstructure:"z_threshold" yaml:"z_threshold"`
}

// FirewallConfig selects and configures the quarantine actuator transport.
type FirewallConfig struct {
	// Transport is "local" (default, shells out to iptables directly)
	// or "ssh" (runs iptables on a remote host over SSH).
	Transport string        `mapstructure:"transport" yaml:"transport"`
	BanTime   time.Duration `mapstructure:"ban_time" yaml:"ban_time"`
	SSH       SSHConfig     `mapstructure:"ssh" yaml:"ssh"`
}

// SSHConfig carries the remote actuator's connection parameters,
// mirrored from firewall.SSHConfig so this package does not need to
// import internal/firewall.
type SSHConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file"`
}

// HTTPConfig configures the control-plane HTTP admin surface.
type HTTPConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}
