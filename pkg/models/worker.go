package models

import "time"

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

const (
	// WorkerStatusRunning indicates the worker is executing its task body.
	WorkerStatusRunning WorkerStatus = "running"
	// WorkerStatusDone indicates the worker finished and reported a result.
	WorkerStatusDone WorkerStatus = "done"
	// WorkerStatusFailed indicates the worker finished with a failure.
	WorkerStatusFailed WorkerStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerStatusRunning, WorkerStatusDone, WorkerStatusFailed:
		return true
	default:
		return false
	}
}

// Worker represents an isolated execution context running one task body
// to completion. Workers communicate outcomes only through a JobResult;
// they never mutate coordinator state directly.
type Worker struct {
	// ID is the unique identifier for this worker.
	ID string `json:"id"`
	// TaskID is the ID of the task this worker is executing.
	TaskID string `json:"task_id"`
	// Role is the executor role the worker was bound to.
	Role string `json:"role"`
	// Status is the current state of the worker.
	Status WorkerStatus `json:"status"`
	// Workspace is the worker's private working directory.
	Workspace string `json:"workspace,omitempty"`
	// StartedAt is when the worker began executing.
	StartedAt time.Time `json:"started_at"`
}
