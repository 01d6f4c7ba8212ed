package scheduler

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskmesh/dagcore/internal/dag"
)

// Keep is the unified entry point for inserting work into the scheduler.
// It returns true if task already has a published result (already done:
// not enqueued, not expanded). depth is the number of expansion levels
// remaining; callers outside the scheduler should pass 1.
func (s *Scheduler) Keep(ctx context.Context, task dag.TaskID, depth int, isReserved bool) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.keep", trace.WithAttributes(
		attribute.Bool("reserved", isReserved),
		attribute.Int("depth", depth),
	))
	defer span.End()

	done, err := s.meta.HasResult(ctx, task)
	if err != nil {
		return false, err
	}
	if done {
		return true, nil
	}

	s.metrics.keeps.Add(ctx, 1)
	if isReserved {
		s.reserved.Enqueue(task)
	} else {
		s.shared.Push(task)
		if s.cfg.Role == RoleExecutor {
			s.pingPeers(ctx)
		}
	}

	depth--
	if depth < 0 {
		return false, nil
	}
	in, known := s.registry[task]
	if !known || in.Kind != dag.KindThunk || in.Thunk == nil {
		return false, nil
	}
	if _, already := s.expanded[task]; already {
		return false, nil
	}

	reservedForSelf := false
	for _, input := range in.Thunk.Inputs {
		if input.Kind != dag.KindThunk || input.Thunk == nil {
			continue
		}
		s.register(input.Thunk.ID, input)

		isThisReserved := false
		if isReserved && s.dependents.Count(input.Thunk.ID) < 2 {
			isThisReserved = !reservedForSelf || !s.ShouldShare()
		}
		if _, err := s.Keep(ctx, input.Thunk.ID, depth, isThisReserved); err != nil {
			return false, err
		}
		reservedForSelf = reservedForSelf || isThisReserved
	}
	s.expanded[task] = struct{}{}
	return false, nil
}

// pingPeers notifies every known peer that new shared work is available.
// Loss of any individual ping is tolerated; errors are not propagated to
// the caller.
func (s *Scheduler) pingPeers(ctx context.Context) {
	for _, h := range s.peers {
		_ = h.Ping(ctx)
	}
}
