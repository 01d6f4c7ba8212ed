package peer

import (
	"context"

	"github.com/taskmesh/dagcore/internal/dag"
	"github.com/taskmesh/dagcore/internal/queue"
)

// LocalTransport reaches a peer's shared deque directly, for executors
// colocated in one process (the single-binary dev mode and the test
// harness in internal/scheduler). It never returns ErrPeerUnavailable:
// a colocated peer whose deque still exists is, by construction,
// reachable.
type LocalTransport struct {
	shared *queue.Shared
	wake   chan struct{}
}

// NewLocalTransport wraps shared and wake (the peer's own pinger inbox;
// nil is accepted and makes Ping a no-op).
func NewLocalTransport(shared *queue.Shared, wake chan struct{}) *LocalTransport {
	return &LocalTransport{shared: shared, wake: wake}
}

func (t *LocalTransport) Steal(ctx context.Context) (dag.TaskID, bool, error) {
	task, ok := t.shared.PopFront()
	return task, ok, nil
}

func (t *LocalTransport) Len(ctx context.Context) (int, error) {
	return t.shared.Len(), nil
}

func (t *LocalTransport) Ping(ctx context.Context) error {
	if t.wake == nil {
		return nil
	}
	select {
	case t.wake <- struct{}{}:
	default:
		// peer already has a pending wake signal; advisory, so dropping
		// this one is fine.
	}
	return nil
}
