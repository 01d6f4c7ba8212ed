package queue

import (
	"sync"

	"github.com/taskmesh/dagcore/internal/dag"
)

// Shared is a bounded deque of TaskIDs a single executor offers to peers.
// It is implemented as a circular buffer guarded by its own mutex: every
// length/membership check that gates a control decision must observe the
// lock, because those decisions depend on absence (duplicate rejection,
// empty detection) and no atomic-snapshot shortcut is safe here.
type Shared struct {
	mu       sync.Mutex
	buf      []dag.TaskID
	present  map[dag.TaskID]struct{}
	head     int // index of the oldest element
	size     int // number of live elements
	capacity int
	pushed   uint64 // monotonic count of successful pushes, for nshared
}

// NewShared returns an empty shared deque with the given fixed capacity.
func NewShared(capacity int) *Shared {
	if capacity <= 0 {
		capacity = 1
	}
	return &Shared{
		buf:      make([]dag.TaskID, capacity),
		present:  make(map[dag.TaskID]struct{}, capacity),
		capacity: capacity,
	}
}

// Push offers task for stealing. Duplicates are silently skipped. A push
// against a full deque is dropped (the caller should have checked
// ShouldShare first; this is the safety net, not the primary gate).
// Reports whether the task was newly added.
func (s *Shared) Push(task dag.TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.present[task]; dup {
		return false
	}
	if s.size >= s.capacity {
		return false
	}
	tail := (s.head + s.size) % s.capacity
	s.buf[tail] = task
	s.present[task] = struct{}{}
	s.size++
	s.pushed++
	return true
}

// PopFront removes and returns the oldest offered task, if any.
func (s *Shared) PopFront() (dag.TaskID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size == 0 {
		return dag.TaskID{}, false
	}
	task := s.buf[s.head]
	delete(s.present, task)
	s.head = (s.head + 1) % s.capacity
	s.size--
	return task, true
}

// Contains reports whether task is currently offered, taken under the
// lock like every other membership check on this deque.
func (s *Shared) Contains(task dag.TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.present[task]
	return ok
}

// Len returns the current occupancy, taken under the lock.
func (s *Shared) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Pushed returns the cumulative number of successful pushes this run.
func (s *Shared) Pushed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushed
}

// ShouldShare reports whether len(shared) < threshold, evaluated under
// the lock as a single atomic decision point.
func (s *Shared) ShouldShare(threshold int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size < threshold
}

// Reset clears the deque for a fresh run without releasing its capacity.
func (s *Shared) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head, s.size, s.pushed = 0, 0, 0
	s.present = make(map[dag.TaskID]struct{}, s.capacity)
}
