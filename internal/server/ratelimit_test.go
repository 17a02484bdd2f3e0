package server

import (
	"testing"
	"time"

	"github.com/remask/remask/internal/config"
	"github.com/remask/remask/internal/logger"
)

func testLimiter(cfg *config.RateLimitConfig) *RateLimiter {
	return NewRateLimiter(cfg, logger.Nop())
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := testLimiter(&config.RateLimitConfig{Enabled: false})
	for i := 0; i < 100; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
	if rl.Size() != 0 {
		t.Errorf("disabled limiter tracked %d clients", rl.Size())
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := testLimiter(&config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             3,
	})

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d rejected within burst", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("request beyond burst allowed")
	}
}

func TestRateLimiterClientIsolation(t *testing.T) {
	rl := testLimiter(&config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             1,
	})

	if !rl.Allow("10.0.0.1") {
		t.Fatal("first client rejected")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("first client allowed beyond burst")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("second client throttled by the first client's bucket")
	}
	if rl.Size() != 2 {
		t.Errorf("tracked clients = %d, want 2", rl.Size())
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := testLimiter(&config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 10,
		Burst:             10,
	})

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")

	// Age one bucket past the idle cutoff.
	rl.mu.Lock()
	rl.clients["10.0.0.1"].lastSeen = time.Now().Add(-2 * time.Hour)
	rl.mu.Unlock()

	rl.CleanupOldClients()

	if rl.Size() != 1 {
		t.Fatalf("tracked clients after cleanup = %d, want 1", rl.Size())
	}
	rl.mu.RLock()
	_, stale := rl.clients["10.0.0.1"]
	_, fresh := rl.clients["10.0.0.2"]
	rl.mu.RUnlock()
	if stale || !fresh {
		t.Errorf("stale present = %v, fresh present = %v", stale, fresh)
	}
}
