// Package resilience provides generic retry, circuit-breaking and rate
// limiting, wired into internal/peer's NATS transport so a flaky peer
// degrades gracefully instead of stalling an executor.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Retry executes fn with exponential backoff and full jitter, capped at
// attempts tries.
func Retry[T any](ctx context.Context, meter metric.Meter, attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		return zero, nil
	}
	attemptCounter, _ := meter.Int64Counter("dagcore_resilience_retry_attempts_total")
	successCounter, _ := meter.Int64Counter("dagcore_resilience_retry_success_total")
	failCounter, _ := meter.Int64Counter("dagcore_resilience_retry_fail_total")

	cur := delay
	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := fn()
		attemptCounter.Add(ctx, 1)
		if err == nil {
			successCounter.Add(ctx, 1)
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		if cur > 60*time.Second {
			cur = 60 * time.Second
		}
		sleep := time.Duration(rand.Int63n(int64(cur) + 1))
		select {
		case <-ctx.Done():
			failCounter.Add(ctx, 1)
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
		cur *= 2
	}
	failCounter.Add(ctx, 1)
	return zero, lastErr
}
