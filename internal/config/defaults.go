/**
 * Configuration Defaults.
 *
 * Provides sane default values so sentryd can run out of the box with
 * only an interface name supplied.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package config

import "time"

// Default returns a Config populated with the documented defaults.
func Default() Config {
	return Config{
		Interface: "eth0",
		RulesDir:  "rules",
		DBPath:    "sentryd.db",
		Queue: QueueConfig{
			Capacity: 4096,
			Workers:  4,
		},
		Session: SessionConfig{
			IdleTimeout: 2 * time.Minute,
			SweepEvery:  30 * time.Second,
			ShardCount:  16,
		},
		Correlator: CorrelatorConfig{
			EmitOnEveryMatch: false,
		},
		Anomaly: AnomalyConfig{
			Enabled:    true,
			MinSamples: 30,
			ZThreshold: 4.0,
		},
		Firewall: FirewallConfig{
			Transport: "local",
			BanTime:   300 * time.Second,
		},
		HTTP: HTTPConfig{
			ListenAddr: ":8787",
		},
		GeoIP: GeoIPConfig{
			CityDBPath: "",
			ASNDBPath:  "",
		},
	}
}
