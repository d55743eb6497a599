package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultRelayURL        = "http://localhost:8080"
	DefaultSignalTransport = "sse"
	DefaultSTUN            = "stun:stun.l.google.com:19302"

	DefaultChunkSize      = 64 * 1024       // 64 KB
	DefaultHighWaterMark  = 1024 * 1024     // 1 MB - backpressure threshold
	DefaultLowWaterMark   = 256 * 1024      // 256 KB - resume threshold
	DefaultMaxReceiveSize = 2 * 1024 * 1024 * 1024
	DefaultDrainTimeout   = 30 * time.Second // flush bound for slow connections

	DefaultListen        = ":8080"
	DefaultHeartbeat     = 25 * time.Second
	DefaultMaxQueue      = 256
	DefaultOverflow      = "reject"
	DefaultOrphanTTL     = 2 * time.Minute
	DefaultOutboxSize    = 512
	DefaultStoreDir      = "uploads"
	DefaultMaxUploadSize = 100 * 1024 * 1024
)

// Config holds application configuration
type Config struct {
	// RelayURL is the base URL of the signaling relay
	RelayURL string `mapstructure:"relay_url"`

	// SignalTransport selects the relay subscription surface: "sse" or "ws"
	SignalTransport string `mapstructure:"signal_transport"`

	// ICE servers for WebRTC
	STUNServer string `mapstructure:"stun_server"`
	TURNServer string `mapstructure:"turn_server"`
	TURNUser   string `mapstructure:"turn_user"`
	TURNPass   string `mapstructure:"turn_pass"`
	ForceRelay bool   `mapstructure:"force_relay"`

	// Transfer engine tunables
	ChunkSize      int   `mapstructure:"chunk_size"`
	HighWaterMark  int   `mapstructure:"high_water_mark"`
	LowWaterMark   int   `mapstructure:"low_water_mark"`
	MaxReceiveSize int64 `mapstructure:"max_receive_size"`

	// DrainTimeout bounds how long a finished sender waits for its buffer
	// to flush before hanging up
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`

	// Timeout bounds a whole session; zero means no timeout
	Timeout time.Duration `mapstructure:"timeout"`

	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig configures the relay process.
type ServerConfig struct {
	Listen     string        `mapstructure:"listen"`
	Heartbeat  time.Duration `mapstructure:"heartbeat"`
	MaxQueue   int           `mapstructure:"max_queue"`
	Overflow   string        `mapstructure:"overflow"`
	OrphanTTL  time.Duration `mapstructure:"orphan_ttl"`
	OutboxSize int           `mapstructure:"outbox_size"`
}

// StoreConfig configures the upload store served next to the relay.
type StoreConfig struct {
	Dir           string `mapstructure:"dir"`
	Password      string `mapstructure:"password"`
	MaxUploadSize int64  `mapstructure:"max_upload_size"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`
	// Rotate enables lumberjack rotation for file outputs
	Rotate bool `mapstructure:"rotate"`
}

// Options for loading config with CLI flag overrides
type Options struct {
	// File is an explicit config file path; empty means search the usual places
	File string

	// Flags are the command's flags; changed flags win over everything else
	Flags *pflag.FlagSet

	// LogLevel is the level used when nothing else sets one
	LogLevel string
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"server":          "relay_url",
	"transport":       "signal_transport",
	"stun":            "stun_server",
	"turn":            "turn_server",
	"turn-user":       "turn_user",
	"turn-pass":       "turn_pass",
	"relay":           "force_relay",
	"chunk-size":      "chunk_size",
	"timeout":         "timeout",
	"listen":          "server.listen",
	"heartbeat":       "server.heartbeat",
	"max-queue":       "server.max_queue",
	"overflow":        "server.overflow",
	"store-dir":       "store.dir",
	"store-password":  "store.password",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"max-upload-size": "store.max_upload_size",
}

// legacyEnv keeps the plain variable names working next to the LOCALDROP_ ones.
var legacyEnv = map[string]string{
	"relay_url":   "DOMAIN_URL",
	"stun_server": "STUN_SERVER",
	"turn_server": "TURN_SERVER",
	"turn_user":   "TURN_USERNAME",
	"turn_pass":   "TURN_PASSWORD",
	"log.level":   "LOG_LEVEL",
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		RelayURL:        DefaultRelayURL,
		SignalTransport: DefaultSignalTransport,
		STUNServer:      DefaultSTUN,
		ChunkSize:       DefaultChunkSize,
		HighWaterMark:   DefaultHighWaterMark,
		LowWaterMark:    DefaultLowWaterMark,
		MaxReceiveSize:  DefaultMaxReceiveSize,
		DrainTimeout:    DefaultDrainTimeout,
		Server: ServerConfig{
			Listen:     DefaultListen,
			Heartbeat:  DefaultHeartbeat,
			MaxQueue:   DefaultMaxQueue,
			Overflow:   DefaultOverflow,
			OrphanTTL:  DefaultOrphanTTL,
			OutboxSize: DefaultOutboxSize,
		},
		Store: StoreConfig{
			Dir:           DefaultStoreDir,
			MaxUploadSize: DefaultMaxUploadSize,
		},
		Log: LogConfig{
			Level:   "error",
			Format:  "console",
			Outputs: []string{"stderr"},
		},
	}
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables (LOCALDROP_*, then the legacy plain names)
// 3. Config file (localdrop.yaml)
// 4. Defaults - lowest priority
func Load(opts Options) (*Config, error) {
	cfg := Default()
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LOCALDROP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	for key, env := range legacyEnv {
		envKey := "LOCALDROP_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		if err := v.BindEnv(key, envKey, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	path := opts.File
	if path == "" {
		path = os.Getenv("LOCALDROP_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("localdrop")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".localdrop"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("relay_url", cfg.RelayURL)
	v.SetDefault("signal_transport", cfg.SignalTransport)
	v.SetDefault("stun_server", cfg.STUNServer)
	v.SetDefault("turn_server", cfg.TURNServer)
	v.SetDefault("turn_user", cfg.TURNUser)
	v.SetDefault("turn_pass", cfg.TURNPass)
	v.SetDefault("force_relay", cfg.ForceRelay)
	v.SetDefault("chunk_size", cfg.ChunkSize)
	v.SetDefault("high_water_mark", cfg.HighWaterMark)
	v.SetDefault("low_water_mark", cfg.LowWaterMark)
	v.SetDefault("max_receive_size", cfg.MaxReceiveSize)
	v.SetDefault("drain_timeout", cfg.DrainTimeout)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("server.listen", cfg.Server.Listen)
	v.SetDefault("server.heartbeat", cfg.Server.Heartbeat)
	v.SetDefault("server.max_queue", cfg.Server.MaxQueue)
	v.SetDefault("server.overflow", cfg.Server.Overflow)
	v.SetDefault("server.orphan_ttl", cfg.Server.OrphanTTL)
	v.SetDefault("server.outbox_size", cfg.Server.OutboxSize)
	v.SetDefault("store.dir", cfg.Store.Dir)
	v.SetDefault("store.password", cfg.Store.Password)
	v.SetDefault("store.max_upload_size", cfg.Store.MaxUploadSize)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.rotate", cfg.Log.Rotate)
}

// Validate normalises the config and rejects values the engine cannot run with.
func (c *Config) Validate() error {
	c.RelayURL = strings.TrimRight(strings.TrimSpace(c.RelayURL), "/")
	if _, err := url.ParseRequestURI(c.RelayURL); err != nil {
		return fmt.Errorf("invalid relay_url %q: %w", c.RelayURL, err)
	}

	c.SignalTransport = strings.ToLower(strings.TrimSpace(c.SignalTransport))
	switch c.SignalTransport {
	case "sse", "ws":
	default:
		return fmt.Errorf("invalid signal_transport %q (want sse or ws)", c.SignalTransport)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.LowWaterMark < 0 || c.HighWaterMark <= 0 || c.LowWaterMark >= c.HighWaterMark {
		return fmt.Errorf("invalid watermarks: low=%d high=%d (want 0 <= low < high)", c.LowWaterMark, c.HighWaterMark)
	}
	if c.MaxReceiveSize <= 0 {
		return fmt.Errorf("max_receive_size must be positive, got %d", c.MaxReceiveSize)
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}

	c.Server.Overflow = strings.ToLower(strings.TrimSpace(c.Server.Overflow))
	switch c.Server.Overflow {
	case "reject", "drop-oldest":
	default:
		return fmt.Errorf("invalid server.overflow %q (want reject or drop-oldest)", c.Server.Overflow)
	}
	if c.Server.MaxQueue <= 0 {
		c.Server.MaxQueue = DefaultMaxQueue
	}
	if c.Server.Heartbeat <= 0 {
		c.Server.Heartbeat = DefaultHeartbeat
	}
	if c.Server.OutboxSize <= 0 {
		c.Server.OutboxSize = DefaultOutboxSize
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "dev", "development", "info", "warn", "warning", "error", "prod", "production":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	return nil
}

// WebSocketURL returns the relay's websocket endpoint
func (c *Config) WebSocketURL() string {
	u, err := url.Parse(c.RelayURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

// GetRoomLink returns the webapp URL for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	return fmt.Sprintf("%s/r/%s", c.RelayURL, roomID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", strings.TrimPrefix(c.TURNServer, "turn:")),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
