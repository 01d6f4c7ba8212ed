package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	noopmetric "go.opentelemetry.io/otel/metric/noop"
)

func testMeter() noopmetric.MeterProvider { return noopmetric.MeterProvider{} }

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	meter := testMeter().Meter("test")
	calls := 0
	v, err := Retry(context.Background(), meter, 3, time.Millisecond, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if v != 7 {
		t.Fatalf("Retry result = %d, want 7", v)
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
}

func TestRetryExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	meter := testMeter().Meter("test")
	calls := 0
	wantErr := errors.New("always fails")
	_, err := Retry(context.Background(), meter, 2, time.Millisecond, func() (int, error) {
		calls++
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if calls != 2 {
		t.Fatalf("fn called %d times, want 2 (attempts exhausted)", calls)
	}
}

func TestRetryStopsOnContextCancellation(t *testing.T) {
	meter := testMeter().Meter("test")
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, meter, 5, 50*time.Millisecond, func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1 (cancelled during backoff)", calls)
	}
}
