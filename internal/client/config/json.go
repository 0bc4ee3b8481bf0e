package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/kith-app/kith/internal/flagx"
	"github.com/kith-app/kith/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "30s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	DataDir             string         `json:"data_dir"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	SyncBatchSize       int            `json:"sync_batch_size"`
	SyncMaxAttempts     int            `json:"sync_max_attempts"`
	TombstoneGrace      timex.Duration `json:"tombstone_grace"`
}

// parseJson overlays Config with values loaded from a JSON file selected via
// the -c or -config flag. Missing file selection means no JSON is loaded.
// Read or unmarshal errors panic; intended usage is defaults -> parseJson ->
// parseFlags, where later stages override earlier ones.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	}
	if jc.SyncInterval.Duration != 0 {
		cfg.SyncInterval = time.Duration(jc.SyncInterval.Duration)
	}
	if jc.SyncBatchSize != 0 {
		cfg.SyncBatchSize = jc.SyncBatchSize
	}
	if jc.SyncMaxAttempts != 0 {
		cfg.SyncMaxAttempts = jc.SyncMaxAttempts
	}
	if jc.TombstoneGrace.Duration != 0 {
		cfg.TombstoneGrace = time.Duration(jc.TombstoneGrace.Duration)
	}
}
