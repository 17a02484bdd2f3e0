package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/remask/remask/internal/logger"
	"github.com/remask/remask/internal/masking"
)

// ErrNotFound is returned when a session is absent or already expired.
var ErrNotFound = errors.New("session not found")

// SessionStore keeps restore maps in Redis under a TTL. Every entry expires;
// there is no code path that persists a secret indefinitely.
type SessionStore struct {
	client *redis.Client
	config *Config
	logger *logger.Logger
	hits   int64
	misses int64
}

// NewSessionStore connects to Redis and verifies the connection.
func NewSessionStore(config *Config, log *logger.Logger) (*SessionStore, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	if config.MinIdleConns > 0 {
		opts.MinIdleConns = config.MinIdleConns
	}

	client := redis.NewClient(opts)

	store := &SessionStore{
		client: client,
		config: config,
		logger: log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Session store initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Duration("ttl", config.TTL))

	return store, nil
}

// Create stores a restore map under a fresh unguessable ID and returns the
// session. The map expires after the configured TTL.
func (ss *SessionStore) Create(ctx context.Context, restoreMap masking.RestoreMap) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:        newSessionID(),
		Map:       restoreMap,
		Count:     len(restoreMap),
		CreatedAt: now,
		ExpiresAt: now.Add(ss.config.TTL),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := ss.client.Set(ctx, ss.key(session.ID), data, ss.config.TTL).Err(); err != nil {
		ss.logger.Error("Failed to store session", zap.Error(err))
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	ss.logger.Debug("Session created",
		zap.String("session_id", session.ID),
		zap.Int("entries", session.Count))

	return session, nil
}

// Get loads a session by ID. Expired and unknown sessions return ErrNotFound.
func (ss *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := ss.client.Get(ctx, ss.key(id)).Result()
	if err == redis.Nil {
		atomic.AddInt64(&ss.misses, 1)
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		ss.logger.Error("Failed to unmarshal session", zap.Error(err),
			zap.String("session_id", id))
		// Drop the corrupted entry rather than serving it
		ss.client.Del(ctx, ss.key(id))
		return nil, ErrNotFound
	}

	atomic.AddInt64(&ss.hits, 1)
	return &session, nil
}

// Delete removes a session immediately instead of waiting for the TTL.
func (ss *SessionStore) Delete(ctx context.Context, id string) error {
	deleted, err := ss.client.Del(ctx, ss.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping verifies the Redis connection, used by health checks.
func (ss *SessionStore) Ping(ctx context.Context) error {
	return ss.client.Ping(ctx).Err()
}

// Purge removes every stored session.
func (ss *SessionStore) Purge(ctx context.Context) (int, error) {
	pattern := ss.config.KeyPrefix + "*"

	iter := ss.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan session keys: %w", err)
	}

	if len(keys) == 0 {
		return 0, nil
	}

	// Delete keys in batches
	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := ss.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return 0, fmt.Errorf("failed to delete session keys: %w", err)
		}
	}

	ss.logger.Info("Sessions purged", zap.Int("deleted", len(keys)))
	return len(keys), nil
}

// GetStats returns store activity counters and Redis memory usage.
func (ss *SessionStore) GetStats(ctx context.Context) (*Stats, error) {
	info, err := ss.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &Stats{
		Hits:   atomic.LoadInt64(&ss.hits),
		Misses: atomic.LoadInt64(&ss.misses),
	}

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	lines := strings.Split(info, "\r\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "used_memory:") {
			if memStr := strings.TrimPrefix(line, "used_memory:"); memStr != "" {
				if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
					stats.MemoryUsage = mem
				}
			}
		}
	}

	if keys, err := ss.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Close closes the Redis connection
func (ss *SessionStore) Close() error {
	if ss.client != nil {
		return ss.client.Close()
	}
	return nil
}

func (ss *SessionStore) key(id string) string {
	return ss.config.KeyPrefix + id
}

// newSessionID returns 128 bits of hex. Session IDs gate access to stored
// secrets, so they must not be predictable the way request IDs may be.
func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform source is broken
		panic(fmt.Sprintf("sessions: cannot read random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}

// maskRedisURL masks the password portion of a Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
