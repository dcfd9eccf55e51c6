package registry

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a token bucket that backs off when the registry pushes
// back. Each success raises the rate by a tenth, capped at the configured
// rate. A 429 halves it, down to a quarter of the configured rate.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	ceiling rate.Limit
	floor   rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter creates a limiter starting at perSec requests per second.
func NewAdaptiveLimiter(perSec float64, burst int) *AdaptiveLimiter {
	if burst < 1 {
		burst = 1
	}
	r := rate.Limit(perSec)
	if perSec <= 0 {
		r = rate.Inf
	}
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(r, burst),
		ceiling: r,
		floor:   r / 4,
		current: r,
	}
}

// Wait blocks until a request may be sent or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess recovers toward the configured rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == rate.Inf || a.current >= a.ceiling {
		return
	}
	next := a.current * 1.1
	if next > a.ceiling {
		next = a.ceiling
	}
	a.current = next
	a.limiter.SetLimit(next)
}

// OnRateLimit halves the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == rate.Inf {
		return
	}
	next := a.current * 0.5
	if next < a.floor {
		next = a.floor
	}
	a.current = next
	a.limiter.SetLimit(next)
	zap.L().Warn("registry: rate limited, slowing down",
		zap.String("component", "registry"),
		zap.Float64("requests_per_sec", float64(next)),
	)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
