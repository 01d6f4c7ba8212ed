package scheduler

import (
	"context"
	"errors"

	"github.com/taskmesh/dagcore/internal/dag"
	"github.com/taskmesh/dagcore/internal/peer"
	"github.com/taskmesh/dagcore/internal/schederr"
)

// Steal pops from peer's shared deque, skipping tasks already stolen by
// this executor, until a fresh task is found or the deque drains. A
// transport-level failure degrades to schederr.ErrPeerUnavailable rather
// than aborting the caller's loop over other peers.
func (s *Scheduler) Steal(ctx context.Context, h *peer.Handle) (dag.TaskID, error) {
	for {
		task, found, err := h.Steal(ctx)
		if err != nil {
			return dag.TaskID{}, err
		}
		if !found {
			s.metrics.stealMisses.Add(ctx, 1)
			return dag.TaskID{}, schederr.ErrNoTask
		}
		if _, already := s.stolen[task]; already {
			continue
		}
		s.stolen[task] = struct{}{}
		s.metrics.steals.Add(ctx, 1)
		return task, nil
	}
}

// StealAny tries every known peer in map iteration order and returns the
// first task found. A peer returning ErrPeerUnavailable is skipped, not
// fatal.
func (s *Scheduler) StealAny(ctx context.Context) (dag.TaskID, string, error) {
	for name, h := range s.peers {
		task, err := s.Steal(ctx, h)
		switch {
		case err == nil:
			return task, name, nil
		case errors.Is(err, schederr.ErrNoTask), errors.Is(err, schederr.ErrPeerUnavailable):
			continue
		default:
			return dag.TaskID{}, "", err
		}
	}
	return dag.TaskID{}, "", schederr.ErrNoTask
}
