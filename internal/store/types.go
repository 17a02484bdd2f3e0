package store

import "time"

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// Stats summarizes the persisted pattern set.
type Stats struct {
	TotalPatterns   int64 `json:"total_patterns" db:"total_patterns"`
	EnabledPatterns int64 `json:"enabled_patterns" db:"enabled_patterns"`
	TotalUsage      int64 `json:"total_usage" db:"total_usage"`
}
