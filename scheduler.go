package fibre

// scheduler is spec.md §3's per-worker record: the coroutine currently
// occupying the worker (if any) plus the worker's local run queue. current
// is detached from local for the duration of Running — the first of the
// two disciplines spec.md §3 allows ("current... is not in any queue").
type scheduler struct {
	current *Coroutine
	local   *runQueue
}

func newScheduler() *scheduler {
	return &scheduler{local: newRunQueue()}
}

// pickNext implements spec.md §4.4. It scans the local queue from the
// front for at most the queue's current size positions, pruning Done
// coroutines and rotating non-runnable ones out of the way, and returns
// the first Runnable coroutine found, detached from the queue. It returns
// nil if no runnable coroutine exists after a full scan — invariant 6
// ("pick_next visits each queue element at most once per call") holds
// because the scan bound is snapshotted before any rotate can re-present
// an already-visited node.
func (s *scheduler) pickNext() *Coroutine {
	q := s.local
	q.mu.Lock()
	defer q.mu.Unlock()

	for scanned, bound := 0, q.size; scanned < bound; scanned++ {
		co := q.frontLocked()
		if co == nil {
			return nil
		}
		switch co.State() {
		case StateRunnable:
			q.popFrontLocked()
			s.current = co
			return co
		case StateDone:
			dead := q.popFrontLocked()
			_ = dead.destroy()
		default: // Running, Syscall, Waiting
			q.rotateLocked()
		}
	}
	return nil
}
