package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. NOTIFYD_WS_HOST
const EnvPrefix = "NOTIFYD"

var logLevels = []string{"debug", "info", "warn", "error"}

// Config application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Session   SessionConfig   `yaml:"session"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// AppConfig application basic configuration
type AppConfig struct {
	Name           string        `yaml:"name"`
	LogLevel       string        `yaml:"logLevel"`       // debug, info, warn, error
	StatusInterval time.Duration `yaml:"statusInterval"` // How often connectivity is polled
}

// WebSocketConfig notification socket configuration
type WebSocketConfig struct {
	Origin               string        `yaml:"origin"` // Console origin, https selects wss
	Host                 string        `yaml:"host"`   // Optional host override
	Path                 string        `yaml:"path"`
	ReconnectInterval    time.Duration `yaml:"reconnectInterval"`
	MaxReconnectAttempts *int          `yaml:"maxReconnectAttempts"` // Unset = 5, 0 never retries
	HandshakeTimeout     time.Duration `yaml:"handshakeTimeout"`
	KeepaliveInterval    time.Duration `yaml:"keepaliveInterval"` // 0 = default, negative disables
	ReadTimeout          time.Duration `yaml:"readTimeout"`
	WriteTimeout         time.Duration `yaml:"writeTimeout"`
}

// SessionConfig persisted login session
type SessionConfig struct {
	File string `yaml:"file"`
}

// ArchiveConfig notification archive (disabled when DSN is empty)
type ArchiveConfig struct {
	DSN           string        `yaml:"dsn"`
	Table         string        `yaml:"table"`
	InsertTimeout time.Duration `yaml:"insertTimeout"`
}

// Enabled reports whether notifications should be archived
func (a ArchiveConfig) Enabled() bool {
	return a.DSN != ""
}

// Load loads configuration from file, then applies environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv(newEnv())
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// applyEnv overrides file values with NOTIFYD_* variables when set
func (c *Config) applyEnv(v *viper.Viper) {
	override := func(key string, dst *string) {
		if s := strings.TrimSpace(v.GetString(key)); s != "" {
			*dst = s
		}
	}

	override("ws_origin", &c.WebSocket.Origin)
	override("ws_host", &c.WebSocket.Host)
	override("ws_path", &c.WebSocket.Path)
	override("session_file", &c.Session.File)
	override("archive_dsn", &c.Archive.DSN)
	override("log_level", &c.App.LogLevel)
}

// setDefaults sets default values
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "notifyd"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	c.App.LogLevel = strings.ToLower(c.App.LogLevel)
	if c.App.StatusInterval == 0 {
		c.App.StatusInterval = 10 * time.Second
	}
	if c.WebSocket.Path == "" {
		c.WebSocket.Path = "/ws/notification"
	}
	if c.WebSocket.ReconnectInterval == 0 {
		c.WebSocket.ReconnectInterval = 3 * time.Second
	}
	if c.WebSocket.MaxReconnectAttempts == nil {
		c.WebSocket.MaxReconnectAttempts = lo.ToPtr(5)
	}
	if c.WebSocket.HandshakeTimeout == 0 {
		c.WebSocket.HandshakeTimeout = 10 * time.Second
	}
	if c.WebSocket.KeepaliveInterval == 0 {
		c.WebSocket.KeepaliveInterval = 30 * time.Second
	}
	if c.WebSocket.ReadTimeout == 0 {
		c.WebSocket.ReadTimeout = 90 * time.Second
	}
	if c.WebSocket.WriteTimeout == 0 {
		c.WebSocket.WriteTimeout = 10 * time.Second
	}
	if c.Archive.Table == "" {
		c.Archive.Table = "notifications"
	}
	if c.Archive.InsertTimeout == 0 {
		c.Archive.InsertTimeout = 5 * time.Second
	}
}

// Validate validates configuration
func (c *Config) Validate() error {
	if c.WebSocket.Origin == "" {
		return fmt.Errorf("websocket.origin is required")
	}
	origin, err := url.Parse(c.WebSocket.Origin)
	if err != nil {
		return fmt.Errorf("websocket.origin is invalid: %w", err)
	}
	if !lo.Contains([]string{"http", "https"}, strings.ToLower(origin.Scheme)) {
		return fmt.Errorf("websocket.origin must be http or https, got %q", origin.Scheme)
	}
	if c.WebSocket.ReconnectInterval < 0 {
		return fmt.Errorf("websocket.reconnectInterval must not be negative")
	}
	if c.WebSocket.MaxReconnectAttempts != nil && *c.WebSocket.MaxReconnectAttempts < 0 {
		return fmt.Errorf("websocket.maxReconnectAttempts must not be negative")
	}
	positive := []struct {
		key string
		d   time.Duration
	}{
		{"app.statusInterval", c.App.StatusInterval},
		{"websocket.handshakeTimeout", c.WebSocket.HandshakeTimeout},
		{"websocket.readTimeout", c.WebSocket.ReadTimeout},
		{"websocket.writeTimeout", c.WebSocket.WriteTimeout},
		{"archive.insertTimeout", c.Archive.InsertTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", p.key, p.d)
		}
	}
	if !lo.Contains(logLevels, c.App.LogLevel) {
		return fmt.Errorf("app.logLevel must be one of %s", strings.Join(logLevels, ", "))
	}
	if c.Archive.Enabled() && !isIdentifier(c.Archive.Table) {
		return fmt.Errorf("archive.table %q is not a valid identifier", c.Archive.Table)
	}
	return nil
}

// ReconnectAttempts returns websocket.maxReconnectAttempts, 5 when unset
func (w WebSocketConfig) ReconnectAttempts() int {
	return lo.FromPtrOr(w.MaxReconnectAttempts, 5)
}

// SlogLevel maps app.logLevel to a slog level
func (a AppConfig) SlogLevel() slog.Level {
	switch a.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// isIdentifier accepts [A-Za-z_][A-Za-z0-9_]* so the table name can be
// interpolated into SQL
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
