package scheduler

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskmesh/dagcore/internal/dag"
	"github.com/taskmesh/dagcore/internal/schederr"
)

// Exec runs task, which must already be runnable, and places its result.
// It is idempotent: a task with a published result returns nil without
// re-invoking the user function.
func (s *Scheduler) Exec(ctx context.Context, task dag.TaskID) error {
	ctx, span := s.tracer.Start(ctx, "scheduler.exec", trace.WithAttributes(
		attribute.String("task", fmt.Sprintf("%x", task[:8])),
	))
	defer span.End()

	if done, err := s.meta.HasResult(ctx, task); err != nil {
		return err
	} else if done {
		return nil
	}

	in, known := s.registry[task]
	if !known {
		return fmt.Errorf("exec %x: %w", task, schederr.ErrMetaMissing)
	}

	value, cleanups, err := s.invoke(ctx, in)
	if err != nil {
		return err
	}

	if in.Kind == dag.KindThunk && !in.Thunk.GetResult {
		cache := in.Thunk.Cache
		if in.Thunk.Persist {
			cache = true
		}
		chunk, boxErr := s.pool.ToChunk(value, in.Thunk.Persist, cache)
		if boxErr != nil {
			return fmt.Errorf("box result %x: %w", task, boxErr)
		}
		value = chunk
	}

	if err := s.placeResult(ctx, task, value); err != nil {
		return err
	}

	for _, c := range cleanups {
		if err := s.releaseInputChunk(ctx, c); err != nil {
			return err
		}
	}

	s.metrics.execs.Add(ctx, 1)
	return nil
}

// invoke resolves task's argument vector (for a Thunk) or invokes a bare
// Function, returning the raw result and the set of input chunks that
// became eligible for refcount cleanup.
func (s *Scheduler) invoke(ctx context.Context, in dag.Input) (any, []inputCleanup, error) {
	switch in.Kind {
	case dag.KindThunk:
		t := in.Thunk
		args := make([]any, len(t.Inputs))
		var cleanups []inputCleanup
		for i, input := range t.Inputs {
			if input.Kind != dag.KindThunk {
				v, err := s.resolveInput(ctx, input, t.Meta)
				if err != nil {
					return nil, nil, err
				}
				args[i] = v
				continue
			}

			// Fetch the raw stored value before collection so a boxed
			// Chunk is still visible here for cleanup bookkeeping; the
			// collected form below is what the thunk's F actually sees.
			raw, err := s.meta.GetResult(ctx, input.Thunk.ID)
			if err != nil {
				return nil, nil, err
			}
			if chunk, ok := raw.(*dag.Chunk); ok && !t.Meta && !chunk.Persist {
				cleanups = append(cleanups, inputCleanup{
					inputID:    input.Thunk.ID,
					handle:     chunk.Handle,
					dependents: s.dependents.Count(input.Thunk.ID),
				})
			}
			v, err := s.maybeCollect(ctx, raw, t.Meta)
			if err != nil {
				return nil, nil, err
			}
			args[i] = v
		}
		result, err := t.F(args)
		if err != nil {
			return nil, nil, fmt.Errorf("thunk %x: %w: %v", t.ID, schederr.ErrUserThunkFailure, err)
		}
		return result, cleanups, nil

	case dag.KindFunction:
		result, err := in.Function(nil)
		if err != nil {
			return nil, nil, fmt.Errorf("function: %w: %v", schederr.ErrUserThunkFailure, err)
		}
		return result, nil, nil

	case dag.KindChunk:
		return in.Chunk, nil, nil

	default: // KindLiteral
		return in.Literal, nil, nil
	}
}

// resolveInput materializes one Thunk input into an argument value.
// Thunk-kind inputs resolve through the metadata store; a Chunk result is
// collected into a concrete value unless the consuming thunk is meta, in
// which case it is passed through untouched.
func (s *Scheduler) resolveInput(ctx context.Context, input dag.Input, consumerMeta bool) (any, error) {
	switch input.Kind {
	case dag.KindThunk:
		v, err := s.meta.GetResult(ctx, input.Thunk.ID)
		if err != nil {
			return nil, err
		}
		return s.maybeCollect(ctx, v, consumerMeta)
	case dag.KindChunk:
		return s.maybeCollect(ctx, input.Chunk, consumerMeta)
	case dag.KindFunction:
		return input.Function(nil)
	default: // KindLiteral
		return input.Literal, nil
	}
}

func (s *Scheduler) maybeCollect(ctx context.Context, v any, consumerMeta bool) (any, error) {
	chunk, ok := v.(*dag.Chunk)
	if !ok || consumerMeta {
		return v, nil
	}
	return s.pool.Collect(ctx, chunk)
}

// placeResult publishes value for task: cluster-wide via export_result if
// task crossed a steal boundary (the producing executor wasn't the one
// that originally placed it), local-only via set_result otherwise.
func (s *Scheduler) placeResult(ctx context.Context, task dag.TaskID, value any) error {
	_, wasStolen := s.stolen[task]
	if !wasStolen {
		return s.meta.SetResult(ctx, task, value)
	}

	if chunk, ok := value.(*dag.Chunk); ok {
		migrated, err := s.pool.ChunkToDisk(ctx, chunk)
		if err != nil {
			return fmt.Errorf("migrate result %x: %w", task, err)
		}
		value = migrated
	}
	refcount := s.dependents.Count(task)
	return s.meta.ExportResult(ctx, task, value, refcount)
}

type inputCleanup struct {
	inputID    dag.TaskID
	handle     string
	dependents int
}

// releaseInputChunk implements reference-counted cleanup: a
// single-dependent input's chunk is deleted immediately after
// consumption; a multi-dependent input's refcount is decremented and
// deleted only on reaching zero.
func (s *Scheduler) releaseInputChunk(ctx context.Context, c inputCleanup) error {
	if c.dependents <= 1 {
		return s.deleteChunk(ctx, c.handle)
	}
	remaining, err := s.meta.DecrResultRefcount(ctx, c.inputID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	return s.deleteChunk(ctx, c.handle)
}

func (s *Scheduler) deleteChunk(ctx context.Context, handle string) error {
	s.metrics.chunkDeletes.Add(ctx, 1)
	return s.pool.PoolDelete(handle)
}
