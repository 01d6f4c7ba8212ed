package peer

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskmesh/dagcore/internal/dag"
	"github.com/taskmesh/dagcore/internal/natsctx"
	"github.com/taskmesh/dagcore/internal/resilience"
	"github.com/taskmesh/dagcore/internal/schederr"
)

const (
	subjectSteal = "steal"
	subjectLen   = "len"
	subjectPing  = "ping"

	replyFound   = "1"
	replyNotSet  = "0"
	requestDelay = 10 * time.Millisecond

	requestRetryAttempts = 3
	requestRetryDelay    = 15 * time.Millisecond
)

// NATSTransport reaches one peer's shared deque over NATS request-reply
// (steal, len) and publish (ping) subjects scoped under peerName, matching
// the subject layout the Server on the other end subscribes to. Both
// round-trip calls are gated by a circuit breaker (Steal also by a rate
// limiter), retry transient request errors a few times, and record the
// outcome against the breaker, so a slow or dead peer degrades to
// ErrPeerUnavailable instead of stalling the caller's reserve/steal loop.
type NATSTransport struct {
	nc       *nats.Conn
	peerName string
	timeout  time.Duration

	breaker *resilience.CircuitBreaker
	limiter *resilience.RateLimiter
	meter   metric.Meter
}

// NewNATSTransport builds a transport addressing peerName's subjects.
func NewNATSTransport(nc *nats.Conn, peerName string, timeout time.Duration, breaker *resilience.CircuitBreaker, limiter *resilience.RateLimiter, meter metric.Meter) *NATSTransport {
	return &NATSTransport{nc: nc, peerName: peerName, timeout: timeout, breaker: breaker, limiter: limiter, meter: meter}
}

func (t *NATSTransport) subject(name string) string {
	return fmt.Sprintf("dagcore.peer.%s.%s", t.peerName, name)
}

func (t *NATSTransport) Steal(ctx context.Context) (dag.TaskID, bool, error) {
	var zero dag.TaskID
	if !t.breaker.Allow() || !t.limiter.Allow() {
		return zero, false, schederr.ErrPeerUnavailable
	}
	msg, err := resilience.Retry(ctx, t.meter, requestRetryAttempts, requestRetryDelay, func() (*nats.Msg, error) {
		return natsctx.Request(ctx, t.nc, t.subject(subjectSteal), nil, t.timeout)
	})
	t.breaker.RecordResult(ctx, err == nil)
	if err != nil {
		return zero, false, fmt.Errorf("steal from %s: %w", t.peerName, schederr.ErrPeerUnavailable)
	}
	if len(msg.Data) == 0 || msg.Data[0] == replyNotSet[0] {
		return zero, false, nil
	}
	id, decodeErr := decodeTaskID(msg.Data[1:])
	if decodeErr != nil {
		return zero, false, fmt.Errorf("steal from %s: %w", t.peerName, decodeErr)
	}
	return id, true, nil
}

func (t *NATSTransport) Len(ctx context.Context) (int, error) {
	if !t.breaker.Allow() {
		return 0, schederr.ErrPeerUnavailable
	}
	msg, err := resilience.Retry(ctx, t.meter, requestRetryAttempts, requestRetryDelay, func() (*nats.Msg, error) {
		return natsctx.Request(ctx, t.nc, t.subject(subjectLen), nil, t.timeout)
	})
	t.breaker.RecordResult(ctx, err == nil)
	if err != nil {
		return 0, fmt.Errorf("len from %s: %w", t.peerName, schederr.ErrPeerUnavailable)
	}
	var n int
	if _, scanErr := fmt.Sscanf(string(msg.Data), "%d", &n); scanErr != nil {
		return 0, fmt.Errorf("len from %s: malformed reply: %w", t.peerName, scanErr)
	}
	return n, nil
}

// Ping is fire-and-forget: a lost ping only costs the peer some idle
// latency before its next reserve-loop sweep, never correctness, so
// failures here are not retried or run through the breaker.
func (t *NATSTransport) Ping(ctx context.Context) error {
	return natsctx.Publish(ctx, t.nc, t.subject(subjectPing), nil)
}

func decodeTaskID(data []byte) (dag.TaskID, error) {
	var id dag.TaskID
	if len(data) != hex.EncodedLen(len(id)) {
		return id, fmt.Errorf("malformed task id reply: %d bytes", len(data))
	}
	if _, err := hex.Decode(id[:], data); err != nil {
		return id, fmt.Errorf("malformed task id reply: %w", err)
	}
	return id, nil
}

func encodeTaskID(id dag.TaskID) []byte {
	out := make([]byte, hex.EncodedLen(len(id)))
	hex.Encode(out, id[:])
	return out
}
