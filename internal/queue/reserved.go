// Package queue implements the scheduler's dual task queues: the private
// reserved sequence and the lock-protected, bounded shared deque.
package queue

import "github.com/taskmesh/dagcore/internal/dag"

// Reserved is a per-executor private work list. It is not safe for
// concurrent use; the scheduler that owns it is single-threaded.
type Reserved struct {
	order []dag.TaskID
	index map[dag.TaskID]int
}

// NewReserved returns an empty reserved sequence.
func NewReserved() *Reserved {
	return &Reserved{index: make(map[dag.TaskID]int)}
}

// Enqueue appends task to the tail, or moves it to the tail if already
// present. Duplicates never accumulate.
func (r *Reserved) Enqueue(task dag.TaskID) {
	if i, ok := r.index[task]; ok {
		if i == len(r.order)-1 {
			return
		}
		r.order = append(r.order[:i], r.order[i+1:]...)
		r.reindexFrom(i)
	}
	r.index[task] = len(r.order)
	r.order = append(r.order, task)
}

// Dequeue removes the last occurrence of task, if present.
func (r *Reserved) Dequeue(task dag.TaskID) {
	i, ok := r.index[task]
	if !ok {
		return
	}
	r.order = append(r.order[:i], r.order[i+1:]...)
	delete(r.index, task)
	r.reindexFrom(i)
}

func (r *Reserved) reindexFrom(i int) {
	for ; i < len(r.order); i++ {
		r.index[r.order[i]] = i
	}
}

// Len returns the number of tasks currently reserved.
func (r *Reserved) Len() int { return len(r.order) }

// Contains reports whether task is present.
func (r *Reserved) Contains(task dag.TaskID) bool {
	_, ok := r.index[task]
	return ok
}

// Tail returns the most recently kept task, if any.
func (r *Reserved) Tail() (dag.TaskID, bool) {
	if len(r.order) == 0 {
		return dag.TaskID{}, false
	}
	return r.order[len(r.order)-1], true
}

// ReverseEach calls fn for each task from tail to head, stopping early if
// fn returns false.
func (r *Reserved) ReverseEach(fn func(dag.TaskID) bool) {
	for i := len(r.order) - 1; i >= 0; i-- {
		if !fn(r.order[i]) {
			return
		}
	}
}

// Reset clears the sequence for a fresh run.
func (r *Reserved) Reset() {
	r.order = r.order[:0]
	r.index = make(map[dag.TaskID]int)
}
