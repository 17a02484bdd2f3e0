package sessions

import (
	"time"

	"github.com/remask/remask/internal/masking"
)

// Session is one stored restore map. The server hands the caller the ID
// instead of the map itself, so masked text can travel through an untrusted
// pipeline and come back for restoration without the secrets ever leaving
// this process boundary.
type Session struct {
	ID        string             `json:"id"`
	Map       masking.RestoreMap `json:"restore_map"`
	Count     int                `json:"count"`
	CreatedAt time.Time          `json:"created_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Config contains session storage configuration
type Config struct {
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	TTL            time.Duration `yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// Stats reports session store activity and Redis usage.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}
