package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter applies a per-client requests-per-minute cap with a small
// burst. rpm <= 0 disables limiting.
type RateLimiter struct {
	rpm   int
	burst int

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

// NewRateLimiter creates a limiter keyed by client id.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{rpm: rpm, burst: burst, clients: make(map[string]*rate.Limiter)}
}

// Enabled reports whether limiting is active.
func (rl *RateLimiter) Enabled() bool { return rl.rpm > 0 }

// Allow reports whether the client identified by key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.Enabled() {
		return true
	}
	rl.mu.Lock()
	lim, ok := rl.clients[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(rl.rpm)/60.0), rl.burst)
		rl.clients[key] = lim
	}
	rl.mu.Unlock()
	return lim.Allow()
}

// Forget drops the limiter state for a disconnected client.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, key)
}
