package server

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/remask/remask/internal/config"
	"github.com/remask/remask/internal/logger"
)

// RateLimiter applies a token bucket per client address so one noisy
// caller cannot starve the rest.
type RateLimiter struct {
	config  *config.RateLimitConfig
	clients map[string]*clientLimiter
	mu      sync.RWMutex
	logger  *logger.Logger
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

// NewRateLimiter creates a rate limiter from the rate_limit config section.
func NewRateLimiter(cfg *config.RateLimitConfig, log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		clients: make(map[string]*clientLimiter),
		logger:  log.WithComponent("ratelimit"),
	}
}

// Allow reports whether a request from the given client may proceed now.
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.Enabled {
		return true
	}
	cl := r.getClient(clientIP)
	cl.mu.Lock()
	cl.lastSeen = time.Now()
	cl.mu.Unlock()
	return cl.limiter.Allow()
}

// getClient gets or creates the bucket for a client address.
func (r *RateLimiter) getClient(clientIP string) *clientLimiter {
	r.mu.RLock()
	cl, exists := r.clients[clientIP]
	r.mu.RUnlock()

	if exists {
		return cl
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock
	if cl, exists := r.clients[clientIP]; exists {
		return cl
	}

	cl = &clientLimiter{
		limiter:  rate.NewLimiter(rate.Limit(r.config.RequestsPerSecond), r.config.Burst),
		lastSeen: time.Now(),
	}
	r.clients[clientIP] = cl
	return cl
}

// CleanupOldClients removes buckets idle for over an hour so the map does
// not grow without bound.
func (r *RateLimiter) CleanupOldClients() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-time.Hour)
	removed := 0
	for ip, cl := range r.clients {
		cl.mu.Lock()
		if cl.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
			removed++
		}
		cl.mu.Unlock()
	}

	if removed > 0 {
		r.logger.Debug("Removed idle rate limit buckets",
			zap.Int("removed", removed),
			zap.Int("remaining", len(r.clients)))
	}
}

// StartCleanupRoutine starts a background sweep of idle buckets.
func (r *RateLimiter) StartCleanupRoutine() {
	interval := r.config.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			r.CleanupOldClients()
		}
	}()
}

// Size returns the number of tracked clients.
func (r *RateLimiter) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
