package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerEndpointAddr)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 30*time.Second, c.SyncInterval)
	assert.Equal(t, 25, c.SyncBatchSize)
	assert.Equal(t, 5, c.SyncMaxAttempts)
	assert.Equal(t, 24*time.Hour, c.TombstoneGrace)
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd", "-a", "http://127.0.0.1:9090", "-i", "10", "-s", "60", "-b", "50"}, expectPanic: false,
			expected: &Config{ServerEndpointAddr: "http://127.0.0.1:9090", OnlineCheckInterval: 10 * time.Second, SyncInterval: 60 * time.Second, SyncBatchSize: 50}},
		{name: "Test2 incorrect check interval", args: []string{"cmd", "-a", "http://127.0.0.1:9090", "-i", "abc"}, expectPanic: true, expected: &Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}

func TestParseJson(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "config-*.json")
	require.NoError(t, err)

	_, err = file.WriteString(`{
		"server_endpoint_addr": "http://10.0.0.1:8080",
		"sync_interval": "45s",
		"sync_max_attempts": 7,
		"tombstone_grace": "48h"
	}`)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	os.Args = []string{"cmd", "-c", file.Name()}
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)

	assert.Equal(t, "http://10.0.0.1:8080", cfg.ServerEndpointAddr)
	assert.Equal(t, 45*time.Second, cfg.SyncInterval)
	assert.Equal(t, 7, cfg.SyncMaxAttempts)
	assert.Equal(t, 48*time.Hour, cfg.TombstoneGrace)
	// untouched fields keep their defaults
	assert.Equal(t, 25, cfg.SyncBatchSize)
}
