package resilience

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RateLimiter is a token-bucket limiter used to throttle steal attempts
// against a single peer, so a busy peer under heavy contention doesn't
// also get hammered by every idle executor's reserve loop at once.
type RateLimiter struct {
	mu sync.Mutex

	rate     float64 // tokens per second
	burst    float64
	tokens   float64
	lastFill time.Time

	allowed  metric.Int64Counter
	rejected metric.Int64Counter
}

// NewRateLimiter builds a limiter refilling at rate tokens/sec up to burst.
func NewRateLimiter(meter metric.Meter, rate float64, burst float64) *RateLimiter {
	allowed, _ := meter.Int64Counter("dagcore_resilience_ratelimit_allowed_total")
	rejected, _ := meter.Int64Counter("dagcore_resilience_ratelimit_rejected_total")
	return &RateLimiter{
		rate:     rate,
		burst:    burst,
		tokens:   burst,
		lastFill: time.Now(),
		allowed:  allowed,
		rejected: rejected,
	}
}

// Allow reports whether a single token is available, consuming it if so.
func (r *RateLimiter) Allow() bool {
	return r.AllowN(1)
}

// AllowN reports whether n tokens are available, consuming them if so.
func (r *RateLimiter) AllowN(n float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	if r.tokens >= n {
		r.tokens -= n
		r.allowed.Add(context.Background(), 1)
		return true
	}
	r.rejected.Add(context.Background(), 1)
	return false
}

// ReserveAfter returns the duration a caller must wait before n tokens
// would be available, without consuming them.
func (r *RateLimiter) ReserveAfter(n float64) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	if r.tokens >= n {
		return 0
	}
	deficit := n - r.tokens
	return time.Duration(deficit / r.rate * float64(time.Second))
}

func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastFill).Seconds()
	r.lastFill = now
	r.tokens += elapsed * r.rate
	if r.tokens > r.burst {
		r.tokens = r.burst
	}
}
