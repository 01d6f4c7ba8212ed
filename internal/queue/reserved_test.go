package queue

import (
	"testing"

	"github.com/taskmesh/dagcore/internal/dag"
)

func id(b byte) dag.TaskID {
	var t dag.TaskID
	t[0] = b
	return t
}

func TestReservedEnqueueMovesToTail(t *testing.T) {
	r := NewReserved()
	r.Enqueue(id(1))
	r.Enqueue(id(2))
	r.Enqueue(id(3))
	r.Enqueue(id(1)) // re-enqueue moves to tail

	if got, _ := r.Tail(); got != id(1) {
		t.Fatalf("tail = %v, want id(1)", got)
	}
	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3 (no duplicate accumulation)", r.Len())
	}
}

func TestReservedDequeueRemovesLastOccurrence(t *testing.T) {
	r := NewReserved()
	r.Enqueue(id(1))
	r.Enqueue(id(2))
	r.Dequeue(id(1))

	if r.Contains(id(1)) {
		t.Fatalf("id(1) should have been removed")
	}
	if got, _ := r.Tail(); got != id(2) {
		t.Fatalf("tail = %v, want id(2)", got)
	}
}

func TestReservedReverseEachTailToHead(t *testing.T) {
	r := NewReserved()
	r.Enqueue(id(1))
	r.Enqueue(id(2))
	r.Enqueue(id(3))

	var seen []dag.TaskID
	r.ReverseEach(func(task dag.TaskID) bool {
		seen = append(seen, task)
		return true
	})
	want := []dag.TaskID{id(3), id(2), id(1)}
	if len(seen) != len(want) {
		t.Fatalf("saw %d tasks, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestReservedResetClearsState(t *testing.T) {
	r := NewReserved()
	r.Enqueue(id(1))
	r.Reset()
	if r.Len() != 0 || r.Contains(id(1)) {
		t.Fatalf("reset did not clear reserved state")
	}
}
