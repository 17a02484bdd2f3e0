package config

import (
	"time"

	"github.com/remask/remask/internal/masking"
)

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Masking   MaskingConfig   `yaml:"masking" mapstructure:"masking"`
	Patterns  PatternsConfig  `yaml:"patterns" mapstructure:"patterns"`
	Sessions  SessionsConfig  `yaml:"sessions" mapstructure:"sessions"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Events    EventsConfig    `yaml:"events" mapstructure:"events"`
	Proxy     ProxyConfig     `yaml:"proxy" mapstructure:"proxy"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	// MaxBodyBytes caps request payloads on the text endpoints.
	MaxBodyBytes int64 `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// MaskingConfig selects which detection rules run. Category keys use the
// engine names (cloud-keys, api-tokens, private-keys, passwords, database,
// network, pii, custom).
type MaskingConfig struct {
	Categories map[string]bool `yaml:"categories" mapstructure:"categories"`
	// Include re-enables built-in rules that are off by default, by rule id.
	Include []string `yaml:"include" mapstructure:"include"`
	// Exclude switches off individual built-in rules by id.
	Exclude []string `yaml:"exclude" mapstructure:"exclude"`
	// Whitelist lists literal values that are never treated as secrets.
	Whitelist []string `yaml:"whitelist" mapstructure:"whitelist"`
}

// PatternsConfig controls where custom detection rules come from.
type PatternsConfig struct {
	// Rulepacks are YAML files of custom rules loaded at startup.
	Rulepacks []string `yaml:"rulepacks" mapstructure:"rulepacks"`
	Database  struct {
		Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
		URL             string        `yaml:"url" mapstructure:"url"`
		MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
		MaxIdle         int           `yaml:"max_idle" mapstructure:"max_idle"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	} `yaml:"database" mapstructure:"database"`
}

// SessionsConfig controls server-side restore-map storage.
type SessionsConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL  string        `yaml:"redis_url" mapstructure:"redis_url"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
		Path     string `yaml:"path" mapstructure:"path"`
		MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
		MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
		Compress bool   `yaml:"compress" mapstructure:"compress"`
	} `yaml:"file" mapstructure:"file"`
}

// EventsConfig contains WebSocket event stream configuration
type EventsConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	ReadBufferSize  int           `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Auth            struct {
		Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
		Username string `yaml:"username" mapstructure:"username"`
		Password string `yaml:"password" mapstructure:"password"`
	} `yaml:"auth" mapstructure:"auth"`
	Broadcast struct {
		Masking     bool `yaml:"masking" mapstructure:"masking"`
		Patterns    bool `yaml:"patterns" mapstructure:"patterns"`
		System      bool `yaml:"system" mapstructure:"system"`
		Connections bool `yaml:"connections" mapstructure:"connections"`
	} `yaml:"broadcast" mapstructure:"broadcast"`
}

// ProxyConfig contains the masking reverse proxy configuration. When
// enabled, request bodies are masked before they reach the upstream and
// placeholders in responses are restored on the way back.
type ProxyConfig struct {
	Enabled          bool          `yaml:"enabled" mapstructure:"enabled"`
	Upstream         string        `yaml:"upstream" mapstructure:"upstream"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RestoreResponses bool          `yaml:"restore_responses" mapstructure:"restore_responses"`
	// ScrubHeaders are removed from proxied requests before forwarding.
	ScrubHeaders []string `yaml:"scrub_headers" mapstructure:"scrub_headers"`
}

// RateLimitConfig contains per-client request throttling configuration
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// MetricsConfig contains Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// ToEngineConfig translates the masking section into the engine's per-call
// filter. Custom patterns are merged in by the caller, which owns the
// registry.
func (m MaskingConfig) ToEngineConfig() masking.Config {
	cfg := masking.Config{
		Include:   m.Include,
		Exclude:   m.Exclude,
		Whitelist: m.Whitelist,
	}
	if len(m.Categories) > 0 {
		cfg.Categories = make(map[masking.Category]bool, len(m.Categories))
		for name, enabled := range m.Categories {
			cfg.Categories[masking.Category(name)] = enabled
		}
	}
	return cfg
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8484,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 4 << 20,
		},
		Masking: MaskingConfig{
			Categories: map[string]bool{},
		},
		Sessions: SessionsConfig{
			Enabled:   false,
			RedisURL:  "redis://localhost:6379/0",
			TTL:       time.Hour,
			KeyPrefix: "remask:session:",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Events: EventsConfig{
			Enabled:         true,
			Path:            "/ws",
			MaxConnections:  100,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    54 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxMessageSize:  512,
			AllowedOrigins:  []string{"*"},
		},
		Proxy: ProxyConfig{
			Enabled:          false,
			Timeout:          30 * time.Second,
			RestoreResponses: true,
			ScrubHeaders:     []string{"authorization", "x-api-key", "cookie"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 50,
			Burst:             100,
			CleanupInterval:   5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}

	cfg.Logging.File.Enabled = false
	cfg.Logging.File.Path = "logs/remask.log"
	cfg.Logging.File.MaxSize = 100 // MB
	cfg.Logging.File.MaxAge = 30   // days
	cfg.Logging.File.Compress = true

	cfg.Patterns.Database.Enabled = false
	cfg.Patterns.Database.MaxConnections = 10
	cfg.Patterns.Database.MaxIdle = 5
	cfg.Patterns.Database.ConnMaxLifetime = 30 * time.Minute

	cfg.Events.Broadcast.Masking = true
	cfg.Events.Broadcast.Patterns = true
	cfg.Events.Broadcast.System = true
	cfg.Events.Broadcast.Connections = true

	return cfg
}
