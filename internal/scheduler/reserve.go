package scheduler

import (
	"context"

	"github.com/taskmesh/dagcore/internal/dag"
	"github.com/taskmesh/dagcore/internal/schederr"
)

// Reserve scans reserved tail to head and returns, in strict priority: the
// first task not yet expanded, else the first runnable task, else the
// tail task regardless, else schederr.ErrNoTask.
func (s *Scheduler) Reserve(ctx context.Context) (dag.TaskID, error) {
	var (
		unexpanded   dag.TaskID
		haveUnexp    bool
		runnableTask dag.TaskID
		haveRunnable bool
		tail         dag.TaskID
		haveTail     bool
		scanErr      error
	)

	s.reserved.ReverseEach(func(task dag.TaskID) bool {
		if !haveTail {
			tail, haveTail = task, true
		}
		if !haveUnexp {
			if _, expanded := s.expanded[task]; !expanded {
				unexpanded, haveUnexp = task, true
			}
		}
		if !haveRunnable {
			ok, err := s.runnable(ctx, task)
			if err != nil {
				scanErr = err
				return false
			}
			if ok {
				runnableTask, haveRunnable = task, true
			}
		}
		return !(haveUnexp && haveRunnable)
	})
	if scanErr != nil {
		return dag.TaskID{}, scanErr
	}

	s.metrics.reserves.Add(ctx, 1)
	switch {
	case haveUnexp:
		return unexpanded, nil
	case haveRunnable:
		return runnableTask, nil
	case haveTail:
		return tail, nil
	default:
		return dag.TaskID{}, schederr.ErrNoTask
	}
}

// runnable reports whether task has a cached result, is not a Thunk, or
// has every Thunk input's result already available.
func (s *Scheduler) runnable(ctx context.Context, task dag.TaskID) (bool, error) {
	if ok, err := s.meta.HasResult(ctx, task); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}

	in, known := s.registry[task]
	if !known || in.Kind != dag.KindThunk || in.Thunk == nil {
		return true, nil
	}

	for _, input := range in.Thunk.Inputs {
		if input.Kind != dag.KindThunk || input.Thunk == nil {
			continue
		}
		ok, err := s.meta.HasResult(ctx, input.Thunk.ID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
