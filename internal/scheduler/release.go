package scheduler

import "github.com/taskmesh/dagcore/internal/dag"

// Release finalizes a reservation after exec. A complete task is removed
// from reserved; an incomplete (suspended) task is left in place. The
// current design never suspends a task mid-exec, so the re-offer-for-
// stealing path for a suspended task has no implementation to wire it to
// yet.
func (s *Scheduler) Release(task dag.TaskID, complete bool) {
	if complete {
		s.reserved.Dequeue(task)
	}
}
