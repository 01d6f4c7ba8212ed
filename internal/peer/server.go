package peer

import (
	"context"
	"fmt"

	nats "github.com/nats-io/nats.go"

	"github.com/taskmesh/dagcore/internal/natsctx"
	"github.com/taskmesh/dagcore/internal/queue"
)

// Server exposes one executor's shared deque and pinger inbox over NATS,
// the server-side counterpart to NATSTransport. Every executor in a
// cluster runs exactly one Server, named after itself, so peers can steal
// from it.
type Server struct {
	nc   *nats.Conn
	name string

	shared *queue.Shared
	wake   chan struct{}

	subs []*nats.Subscription
}

// NewServer wires shared and wake (see LocalTransport's wake parameter)
// up to name's NATS subjects.
func NewServer(nc *nats.Conn, name string, shared *queue.Shared, wake chan struct{}) *Server {
	return &Server{nc: nc, name: name, shared: shared, wake: wake}
}

func (s *Server) subject(leaf string) string {
	return fmt.Sprintf("dagcore.peer.%s.%s", s.name, leaf)
}

// Start subscribes to this executor's steal, len and ping subjects. Call
// Stop to unsubscribe during shutdown.
func (s *Server) Start() error {
	stealSub, err := natsctx.SubscribeRequest(s.nc, s.subject(subjectSteal), s.handleSteal)
	if err != nil {
		return fmt.Errorf("subscribe steal: %w", err)
	}
	lenSub, err := natsctx.SubscribeRequest(s.nc, s.subject(subjectLen), s.handleLen)
	if err != nil {
		return fmt.Errorf("subscribe len: %w", err)
	}
	pingSub, err := natsctx.Subscribe(s.nc, s.subject(subjectPing), s.handlePing)
	if err != nil {
		return fmt.Errorf("subscribe ping: %w", err)
	}
	s.subs = []*nats.Subscription{stealSub, lenSub, pingSub}
	return nil
}

// Stop unsubscribes from all of this server's subjects.
func (s *Server) Stop() error {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleSteal(ctx context.Context, m *nats.Msg) ([]byte, error) {
	task, ok := s.shared.PopFront()
	if !ok {
		return []byte(replyNotSet), nil
	}
	return append([]byte(replyFound), encodeTaskID(task)...), nil
}

func (s *Server) handleLen(ctx context.Context, m *nats.Msg) ([]byte, error) {
	return []byte(fmt.Sprintf("%d", s.shared.Len())), nil
}

func (s *Server) handlePing(ctx context.Context, m *nats.Msg) {
	if s.wake == nil {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
