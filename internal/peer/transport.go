// Package peer implements read-handles onto other executors' shareable
// deques and the advisory pinger channel used to wake idle peers. Two
// transports share one interface: an in-process transport for
// single-binary/dev/test deployments, and a NATS-backed transport for
// genuine multi-process clusters.
package peer

import (
	"context"

	"github.com/taskmesh/dagcore/internal/dag"
)

// Transport is a read-handle onto one peer's shared deque plus its
// pinger channel. All methods may block: acquiring a peer's shared-deque
// lock, or an in-flight request, are the core's only cross-process
// suspension points besides the user's thunk function.
type Transport interface {
	// Steal attempts to pop the front of the peer's shared deque. found
	// is false on an empty deque (maps to NoTask). A transport-level
	// failure (dead connection, unknown peer) returns
	// schederr.ErrPeerUnavailable, which callers degrade to NoTask for
	// that peer and continue with others.
	Steal(ctx context.Context) (task dag.TaskID, found bool, err error)

	// Len reports the peer's current shared-deque occupancy.
	Len(ctx context.Context) (int, error)

	// Ping wakes the peer if it is idle. Loss of a ping must never
	// compromise correctness, only latency; implementations should not
	// return an error a caller would treat as fatal.
	Ping(ctx context.Context) error
}

// Handle names a peer alongside the transport used to reach it. Handles
// do not own the peer's state; they are read-only views.
type Handle struct {
	Name      string
	Transport Transport
}

// Steal is a convenience forward to Handle.Transport.Steal.
func (h *Handle) Steal(ctx context.Context) (dag.TaskID, bool, error) {
	return h.Transport.Steal(ctx)
}

// Ping is a convenience forward to Handle.Transport.Ping.
func (h *Handle) Ping(ctx context.Context) error {
	return h.Transport.Ping(ctx)
}
