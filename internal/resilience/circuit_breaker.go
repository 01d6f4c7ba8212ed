package resilience

import (
	"context"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// CircuitBreaker is an adaptive circuit breaker that opens based on
// failure rate over a rolling window and supports half-open probes. One
// instance guards steal/len calls to a single peer, so a peer stuck
// repeatedly returning ErrPeerUnavailable stops being retried on every
// reserve/steal cycle and is instead skipped until it probes healthy.
type CircuitBreaker struct {
	mu sync.Mutex

	minSamples        int
	failureRateOpen   float64
	halfOpenAfter     time.Duration
	maxHalfOpenProbes int
	minAdaptiveOpen   float64
	maxAdaptiveOpen   float64
	lastEval          time.Time
	evalInterval      time.Duration
	dynamicThreshold  float64

	openedAt       time.Time
	state          breakerState
	window         *slidingWindow
	halfOpenProbes int

	opened metric.Int64Counter
	closed metric.Int64Counter
}

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// NewCircuitBreaker constructs an adaptive breaker over a rolling window.
func NewCircuitBreaker(meter metric.Meter, windowSize time.Duration, buckets, minSamples int, failureRateOpen float64, halfOpenAfter time.Duration, maxHalfOpenProbes int) *CircuitBreaker {
	if buckets <= 0 {
		buckets = 1
	}
	opened, _ := meter.Int64Counter("dagcore_resilience_circuit_open_total")
	closed, _ := meter.Int64Counter("dagcore_resilience_circuit_closed_total")
	return &CircuitBreaker{
		minSamples:        minSamples,
		failureRateOpen:   math.Min(math.Max(failureRateOpen, 0), 1),
		halfOpenAfter:     halfOpenAfter,
		maxHalfOpenProbes: maxHalfOpenProbes,
		state:             stateClosed,
		window:            newSlidingWindow(windowSize, buckets),
		minAdaptiveOpen:   math.Min(math.Max(failureRateOpen*0.5, 0.05), failureRateOpen),
		maxAdaptiveOpen:   math.Min(0.95, math.Max(failureRateOpen*1.5, failureRateOpen)),
		evalInterval:      5 * time.Second,
		dynamicThreshold:  failureRateOpen,
		opened:            opened,
		closed:            closed,
	}
}

// Allow returns whether a call is permitted right now.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateOpen:
		if time.Since(c.openedAt) >= c.halfOpenAfter {
			c.state = stateHalfOpen
			c.halfOpenProbes = 0
		} else {
			return false
		}
	case stateHalfOpen:
		if c.halfOpenProbes >= c.maxHalfOpenProbes {
			return false
		}
		c.halfOpenProbes++
	}
	return true
}

// RecordResult records a success or failure outcome.
func (c *CircuitBreaker) RecordResult(ctx context.Context, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window.add(success)

	if time.Since(c.lastEval) >= c.evalInterval {
		total, failures := c.window.stats()
		if total > 0 {
			fr := float64(failures) / float64(total)
			if fr > c.failureRateOpen {
				c.dynamicThreshold = math.Max(c.minAdaptiveOpen, c.dynamicThreshold*0.7)
			} else {
				c.dynamicThreshold = math.Min(c.maxAdaptiveOpen, c.dynamicThreshold*1.05)
			}
		}
		c.lastEval = time.Now()
	}

	switch c.state {
	case stateClosed:
		total, failures := c.window.stats()
		if total >= c.minSamples && float64(failures)/float64(total) >= c.dynamicThreshold {
			c.transitionToOpen(ctx)
		}
	case stateHalfOpen:
		if !success {
			c.transitionToOpen(ctx)
		} else if c.halfOpenProbes >= c.maxHalfOpenProbes {
			c.transitionToClosed(ctx)
		}
	case stateOpen:
		// Allow handles the timing transition.
	}
}

func (c *CircuitBreaker) transitionToOpen(ctx context.Context) {
	c.state = stateOpen
	c.openedAt = time.Now()
	c.opened.Add(ctx, 1)
}

func (c *CircuitBreaker) transitionToClosed(ctx context.Context) {
	c.state = stateClosed
	c.openedAt = time.Time{}
	c.window.reset()
	c.closed.Add(ctx, 1)
}

type slidingWindow struct {
	buckets  int
	interval time.Duration
	data     []bucket
}

type bucket struct {
	slot          int64 // interval number the counts belong to
	success, fail int
}

func newSlidingWindow(size time.Duration, buckets int) *slidingWindow {
	return &slidingWindow{
		buckets:  buckets,
		interval: size / time.Duration(buckets),
		data:     make([]bucket, buckets),
	}
}

func (w *slidingWindow) index(now time.Time) int {
	return int(now.UnixNano()/w.interval.Nanoseconds()) % w.buckets
}

func (w *slidingWindow) add(success bool) {
	now := time.Now()
	idx := w.index(now)
	slot := now.UnixNano() / w.interval.Nanoseconds()
	if w.data[idx].slot != slot {
		w.data[idx] = bucket{slot: slot}
	}
	if success {
		w.data[idx].success++
	} else {
		w.data[idx].fail++
	}
}

func (w *slidingWindow) stats() (total, failures int) {
	oldest := time.Now().UnixNano()/w.interval.Nanoseconds() - int64(w.buckets) + 1
	for _, b := range w.data {
		if b.slot < oldest {
			continue
		}
		total += b.success + b.fail
		failures += b.fail
	}
	return
}

func (w *slidingWindow) reset() {
	for i := range w.data {
		w.data[i] = bucket{}
	}
}
