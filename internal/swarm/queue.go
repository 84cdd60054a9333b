package swarm

import (
	"errors"
	"fmt"
	"sync"
)

// ErrStateCorruption indicates the execution queue's set-partition
// invariant was violated. It should be impossible while the
// coordinator is the sole mutator; observing it aborts the run.
var ErrStateCorruption = errors.New("execution queue state corruption")

// ExecutionQueue partitions the graph's identifier space into three
// disjoint sets: pending (not resolved), completed, and failed. A task
// is in exactly one set at any instant, and tasks only move forward
// (pending to completed or pending to failed), never back.
//
// The queue is exclusively mutated by the coordinator. Mutations and
// snapshot reads happen under one mutex so observers always see a
// fully-applied prior state, never a partial write.
type ExecutionQueue struct {
	mu sync.RWMutex
	// order preserves the graph's hint order for stable snapshots.
	order     []string
	pending   map[string]bool
	completed map[string]bool
	failed    map[string]bool
}

// QueueSnapshot is a consistent, fully-applied copy of the queue's
// three sets, in hint order.
type QueueSnapshot struct {
	Pending   []string
	Completed []string
	Failed    []string
}

// NewExecutionQueue creates a queue with every task pending.
func NewExecutionQueue(taskIDs []string) *ExecutionQueue {
	q := &ExecutionQueue{
		order:     append([]string(nil), taskIDs...),
		pending:   make(map[string]bool, len(taskIDs)),
		completed: make(map[string]bool),
		failed:    make(map[string]bool),
	}
	for _, id := range taskIDs {
		q.pending[id] = true
	}
	return q
}

// Complete moves a task from pending to completed.
func (q *ExecutionQueue) Complete(taskID string) error {
	return q.resolve(taskID, q.completed)
}

// Fail moves a task from pending to failed.
func (q *ExecutionQueue) Fail(taskID string) error {
	return q.resolve(taskID, q.failed)
}

// resolve moves taskID out of pending into dst, enforcing the
// forward-only, exactly-once transition discipline.
func (q *ExecutionQueue) resolve(taskID string, dst map[string]bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.pending[taskID] {
		return fmt.Errorf("%w: task %s is not pending", ErrStateCorruption, taskID)
	}
	delete(q.pending, taskID)
	dst[taskID] = true
	return nil
}

// PendingCount returns the number of unresolved tasks.
func (q *ExecutionQueue) PendingCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending)
}

// Counts returns the sizes of the three sets.
func (q *ExecutionQueue) Counts() (pending, completed, failed int) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending), len(q.completed), len(q.failed)
}

// Total returns the size of the identifier space.
func (q *ExecutionQueue) Total() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.order)
}

// Snapshot returns a consistent copy of all three sets in hint order.
func (q *ExecutionQueue) Snapshot() QueueSnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var snap QueueSnapshot
	for _, id := range q.order {
		switch {
		case q.pending[id]:
			snap.Pending = append(snap.Pending, id)
		case q.completed[id]:
			snap.Completed = append(snap.Completed, id)
		case q.failed[id]:
			snap.Failed = append(snap.Failed, id)
		}
	}
	return snap
}

// Verify checks the set-partition invariant: every identifier is in
// exactly one set and the union covers the full identifier space.
func (q *ExecutionQueue) Verify() error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.pending)+len(q.completed)+len(q.failed) != len(q.order) {
		return fmt.Errorf("%w: set cardinalities do not cover the identifier space", ErrStateCorruption)
	}
	for _, id := range q.order {
		n := 0
		if q.pending[id] {
			n++
		}
		if q.completed[id] {
			n++
		}
		if q.failed[id] {
			n++
		}
		if n != 1 {
			return fmt.Errorf("%w: task %s appears in %d sets", ErrStateCorruption, id, n)
		}
	}
	return nil
}
