package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skein-dev/skein/pkg/models"
)

// ActiveJob describes one in-flight dispatch: the worker handle plus
// the cancel function for the worker's private context.
type ActiveJob struct {
	// Worker is the worker executing the task.
	Worker models.Worker
	// Cancel aborts the worker's task body.
	Cancel context.CancelFunc
}

// ActiveJobRegistry is the set of currently dispatched tasks, keyed by
// task identifier. An entry exists only between dispatch and harvest,
// and only the coordinator adds or removes entries.
type ActiveJobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*ActiveJob
}

// NewActiveJobRegistry creates an empty registry.
func NewActiveJobRegistry() *ActiveJobRegistry {
	return &ActiveJobRegistry{jobs: make(map[string]*ActiveJob)}
}

// Add records an in-flight job. Adding a task that is already active
// is a state-corruption violation: it would mean a duplicate dispatch.
func (r *ActiveJobRegistry) Add(taskID string, job *ActiveJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[taskID]; exists {
		return fmt.Errorf("%w: task %s dispatched twice", ErrStateCorruption, taskID)
	}
	r.jobs[taskID] = job
	return nil
}

// Remove deletes and returns the job for a harvested task.
func (r *ActiveJobRegistry) Remove(taskID string) (*ActiveJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[taskID]
	if ok {
		delete(r.jobs, taskID)
	}
	return job, ok
}

// Has reports whether the task is currently dispatched.
func (r *ActiveJobRegistry) Has(taskID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.jobs[taskID]
	return ok
}

// Count returns the number of in-flight jobs.
func (r *ActiveJobRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Workers returns a copy of the in-flight worker handles.
func (r *ActiveJobRegistry) Workers() []models.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workers := make([]models.Worker, 0, len(r.jobs))
	for _, job := range r.jobs {
		workers = append(workers, job.Worker)
	}
	return workers
}

// CancelAll aborts every in-flight worker. Entries stay registered so
// the coordinator can still harvest the results the workers produce on
// their way out.
func (r *ActiveJobRegistry) CancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, job := range r.jobs {
		job.Cancel()
	}
}

// ResultRegistry is the side channel workers deliver their JobResult
// through. A slot is written exactly once by a worker and consumed
// exactly once by the coordinator, and it survives independently of
// the worker's lifetime.
type ResultRegistry struct {
	mu      sync.Mutex
	results map[string]*models.JobResult
}

// NewResultRegistry creates an empty result registry.
func NewResultRegistry() *ResultRegistry {
	return &ResultRegistry{results: make(map[string]*models.JobResult)}
}

// Store records a worker's result. Storing a second result for the
// same task violates the exactly-once contract.
func (r *ResultRegistry) Store(res *models.JobResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.results[res.TaskID]; exists {
		return fmt.Errorf("%w: duplicate result for task %s", ErrStateCorruption, res.TaskID)
	}
	r.results[res.TaskID] = res
	return nil
}

// Take consumes the result for a task, removing the slot.
func (r *ResultRegistry) Take(taskID string) (*models.JobResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.results[taskID]
	if ok {
		delete(r.results, taskID)
	}
	return res, ok
}

// Pending returns the number of stored, unconsumed results.
func (r *ResultRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

// newJobResult builds a result record for a finished task body.
func newJobResult(taskID, workerID string, success bool, errMsg string, started time.Time, outputs []string) *models.JobResult {
	now := time.Now()
	return &models.JobResult{
		TaskID:     taskID,
		WorkerID:   workerID,
		Success:    success,
		Error:      errMsg,
		Duration:   now.Sub(started),
		Outputs:    outputs,
		FinishedAt: now,
	}
}
