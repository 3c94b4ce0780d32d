/**
 * Configuration Loading.
 *
 * Merges the YAML config file, environment variables, and CLI flags
 * via viper, CLI winning over env winning over file winning over
 * defaults.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Load builds a Config starting from Default(), overlaying configPath
// (if non-empty; a path that cannot be read is an error), then
// environment variables prefixed SENTRYD_, then any flags already set
// on flags.
func Load(configPath string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("sentryd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("interface", d.Interface)
	v.SetDefault("rules_dir", d.RulesDir)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("queue.capacity", d.Queue.Capacity)
	v.SetDefault("queue.workers", d.Queue.Workers)
	v.SetDefault("session.idle_timeout", d.Session.IdleTimeout)
	v.SetDefault("session.sweep_every", d.Session.SweepEvery)
	v.SetDefault("session.shard_count", d.Session.ShardCount)
	v.SetDefault("correlator.emit_on_every_match", d.Correlator.EmitOnEveryMatch)
	v.SetDefault("anomaly.enabled", d.Anomaly.Enabled)
	v.SetDefault("anomaly.min_samples", d.Anomaly.MinSamples)
	v.SetDefault("anomaly.z_threshold", d.Anomaly.ZThreshold)
	v.SetDefault("firewall.transport", d.Firewall.Transport)
	v.SetDefault("firewall.ban_time", d.Firewall.BanTime)
	v.SetDefault("http.listen_addr", d.HTTP.ListenAddr)
	v.SetDefault("geoip.city_db_path", d.GeoIP.CityDBPath)
	v.SetDefault("geoip.asn_db_path", d.GeoIP.ASNDBPath)
}
