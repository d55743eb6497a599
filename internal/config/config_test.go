package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOCALDROP_LOG_LEVEL", "")
	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultRelayURL, cfg.RelayURL)
	assert.Equal(t, "sse", cfg.SignalTransport)
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, DefaultHeartbeat, cfg.Server.Heartbeat)
	assert.Equal(t, "reject", cfg.Server.Overflow)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadPriority(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "localdrop.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
relay_url: http://file.example:9000
stun_server: stun:file.example:3478
server:
  heartbeat: 5s
  overflow: drop-oldest
`), 0o644))

	t.Setenv("LOCALDROP_STUN_SERVER", "stun:env.example:3478")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("server", "", "")
	flags.Bool("relay", false, "")
	require.NoError(t, flags.Parse([]string{"--server", "http://flag.example:1234/"}))

	cfg, err := Load(Options{File: file, Flags: flags})
	require.NoError(t, err)

	assert.Equal(t, "http://flag.example:1234", cfg.RelayURL, "flag wins and trailing slash is trimmed")
	assert.Equal(t, "stun:env.example:3478", cfg.STUNServer, "env beats file")
	assert.Equal(t, 5*time.Second, cfg.Server.Heartbeat)
	assert.Equal(t, "drop-oldest", cfg.Server.Overflow)
	assert.False(t, cfg.ForceRelay, "unchanged flag keeps the default")
}

func TestLoadServerLevel(t *testing.T) {
	cfg, err := Load(Options{LogLevel: "info"})
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(Options{File: filepath.Join(t.TempDir(), "none.yaml")})
	assert.Error(t, err)
}

func TestLoadLegacyEnv(t *testing.T) {
	t.Setenv("TURN_SERVER", "turn:legacy.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "turn:legacy.example", cfg.TURNServer)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"ws transport", func(c *Config) { c.SignalTransport = "WS" }, true},
		{"unknown transport", func(c *Config) { c.SignalTransport = "carrier-pigeon" }, false},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }, false},
		{"low equals high", func(c *Config) { c.LowWaterMark = c.HighWaterMark }, false},
		{"bad overflow", func(c *Config) { c.Server.Overflow = "drop-newest" }, false},
		{"bad relay url", func(c *Config) { c.RelayURL = "not a url" }, false},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestURLs(t *testing.T) {
	cfg := Default()
	cfg.RelayURL = "https://drop.example"
	assert.Equal(t, "wss://drop.example/ws", cfg.WebSocketURL())
	assert.Equal(t, "https://drop.example/r/ABC123", cfg.GetRoomLink("ABC123"))

	cfg.TURNServer = "turn:turn.example"
	assert.Len(t, cfg.GetTURNServers(), 3)
	assert.Equal(t, "turns:turn.example:5349?transport=tcp", cfg.GetTURNServers()[2])
}
