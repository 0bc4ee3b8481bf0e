package config

import "time"

// Config holds runtime settings for the Kith CLI.
//
// Fields:
//   - ServerEndpointAddr: base URL of the backend HTTP API.
//   - DataDir: directory holding the local database file.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - SyncInterval: cadence of unprompted sync cycles.
//   - SyncBatchSize: queue entries processed per push pass.
//   - SyncMaxAttempts: per-record retry cap before a record is parked.
//   - TombstoneGrace: retention of acknowledged tombstones before purge.
type Config struct {
	ServerEndpointAddr  string
	DataDir             string
	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration
	SyncBatchSize       int
	SyncMaxAttempts     int
	TombstoneGrace      time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DataDir = "data"
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 30 * time.Second
	c.SyncBatchSize = 25
	c.SyncMaxAttempts = 5
	c.TombstoneGrace = 24 * time.Hour
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
