package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/taskmesh/dagcore/internal/dag"
	"github.com/taskmesh/dagcore/internal/schederr"
)

func TestReserveOnEmptyReturnsNoTask(t *testing.T) {
	s := testScheduler(t, 10)
	_, err := s.Reserve(context.Background())
	if !errors.Is(err, schederr.ErrNoTask) {
		t.Fatalf("Reserve on empty reserved = %v, want ErrNoTask", err)
	}
}

func TestReservePrefersUnexpandedOverRunnable(t *testing.T) {
	s := testScheduler(t, 10)
	runnableTask := mkThunk(1) // no inputs: runnable once expanded-or-not
	unexpanded := mkThunk(2, dag.ThunkInput(mkThunk(3)))
	s.register(runnableTask.ID, dag.ThunkInput(runnableTask))
	s.register(unexpanded.ID, dag.ThunkInput(unexpanded))
	s.reserved.Enqueue(runnableTask.ID)
	s.reserved.Enqueue(unexpanded.ID)
	s.expanded[runnableTask.ID] = struct{}{}
	// unexpanded is left out of s.expanded on purpose.

	got, err := s.Reserve(context.Background())
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got != unexpanded.ID {
		t.Fatalf("Reserve = %x, want the unexpanded task to win priority", got)
	}
}

func TestReserveFallsBackToTailWhenNothingRunnable(t *testing.T) {
	s := testScheduler(t, 10)
	blocked := mkThunk(1, dag.ThunkInput(mkThunk(2))) // input never gets a result
	s.register(blocked.ID, dag.ThunkInput(blocked))
	s.reserved.Enqueue(blocked.ID)
	s.expanded[blocked.ID] = struct{}{} // already expanded, still not runnable

	got, err := s.Reserve(context.Background())
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got != blocked.ID {
		t.Fatalf("Reserve = %x, want the tail task returned to force progress", got)
	}
}
