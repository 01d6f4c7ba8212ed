package scheduler

import (
	"context"
	"testing"

	noopmetric "go.opentelemetry.io/otel/metric/noop"

	"github.com/taskmesh/dagcore/internal/dag"
)

func testScheduler(t *testing.T, helpThreshold int) *Scheduler {
	t.Helper()
	meter := noopmetric.MeterProvider{}.Meter("test")
	cfg := DefaultConfig("executor0", RoleExecutor)
	cfg.HelpThreshold = helpThreshold
	s, err := New(cfg, newMemStore(), newMemPool(), nil, meter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func mkThunk(b byte, inputs ...dag.Input) *dag.Thunk {
	th := &dag.Thunk{Inputs: inputs, GetResult: true}
	th.ID[0] = b
	th.F = func(args []any) (any, error) { return nil, nil }
	return th
}

// TestKeepPlacementTruthTable exercises the reservation-placement rule's
// boundary cases: parent reserved x dependents<2 x reservedForSelf x
// should_share.
func TestKeepPlacementTruthTable(t *testing.T) {
	t.Run("sole-consumer child always reserved when parent reserved and it is the first child", func(t *testing.T) {
		s := testScheduler(t, 1000) // should_share stays true throughout
		c1 := mkThunk(1)
		root := mkThunk(2, dag.ThunkInput(c1))
		if err := s.Init(context.Background(), root); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if _, err := s.Keep(context.Background(), root.ID, 1, true); err != nil {
			t.Fatalf("Keep: %v", err)
		}
		if !s.reserved.Contains(c1.ID) {
			t.Fatalf("first sole-consumer child under a reserved parent must be reserved (guarantees self isn't starved)")
		}
	})

	t.Run("second sole-consumer child goes shared once reservedForSelf and should_share both hold", func(t *testing.T) {
		s := testScheduler(t, 1000) // large threshold: should_share stays true
		c1, c2 := mkThunk(1), mkThunk(2)
		root := mkThunk(3, dag.ThunkInput(c1), dag.ThunkInput(c2))
		if err := s.Init(context.Background(), root); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if _, err := s.Keep(context.Background(), root.ID, 1, true); err != nil {
			t.Fatalf("Keep: %v", err)
		}
		if !s.reserved.Contains(c1.ID) {
			t.Fatalf("first child must be reserved")
		}
		if !s.shared.Contains(c2.ID) {
			t.Fatalf("second child should be shared once reservedForSelf=true and should_share=true")
		}
	})

	t.Run("second sole-consumer child also reserved when shared deque is already full enough", func(t *testing.T) {
		s := testScheduler(t, 0) // threshold 0: should_share is always false
		c1, c2 := mkThunk(1), mkThunk(2)
		root := mkThunk(3, dag.ThunkInput(c1), dag.ThunkInput(c2))
		if err := s.Init(context.Background(), root); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if _, err := s.Keep(context.Background(), root.ID, 1, true); err != nil {
			t.Fatalf("Keep: %v", err)
		}
		if !s.reserved.Contains(c1.ID) || !s.reserved.Contains(c2.ID) {
			t.Fatalf("both children must be reserved when should_share is false (avoid starving self)")
		}
	})

	t.Run("multi-dependent child is always shared regardless of parent placement", func(t *testing.T) {
		s := testScheduler(t, 1000)
		shared := mkThunk(1)
		consumerA := mkThunk(2, dag.ThunkInput(shared))
		consumerB := mkThunk(3, dag.ThunkInput(shared))
		root := mkThunk(4, dag.ThunkInput(consumerA), dag.ThunkInput(consumerB))
		if err := s.Init(context.Background(), root); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if _, err := s.Keep(context.Background(), root.ID, 2, true); err != nil {
			t.Fatalf("Keep: %v", err)
		}
		if !s.shared.Contains(shared.ID) {
			t.Fatalf("a thunk with 2 dependents must be shared, never reserved, to let peers pick it up")
		}
		if s.reserved.Contains(shared.ID) {
			t.Fatalf("multi-dependent child must not also be reserved")
		}
	})

	t.Run("children of a shared parent are always shared", func(t *testing.T) {
		s := testScheduler(t, 1000)
		c1 := mkThunk(1)
		root := mkThunk(2, dag.ThunkInput(c1))
		if err := s.Init(context.Background(), root); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if _, err := s.Keep(context.Background(), root.ID, 1, false); err != nil {
			t.Fatalf("Keep: %v", err)
		}
		if !s.shared.Contains(c1.ID) {
			t.Fatalf("child of a shared (non-reserved) parent must itself be shared")
		}
	})
}

func TestKeepIsNoOpOnceResultExists(t *testing.T) {
	s := testScheduler(t, 1000)
	root := mkThunk(1)
	if err := s.Init(context.Background(), root); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.meta.SetResult(context.Background(), root.ID, 42); err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	done, err := s.Keep(context.Background(), root.ID, 1, true)
	if err != nil {
		t.Fatalf("Keep: %v", err)
	}
	if !done {
		t.Fatalf("Keep must report true (already done) once a result is published")
	}
	if s.reserved.Contains(root.ID) {
		t.Fatalf("an already-done task must not be enqueued")
	}
}
