package models

import "time"

// JobResult is the terminal record produced by a worker when its task
// body finishes. It is created exactly once per worker and consumed
// exactly once by the coordinator during harvesting.
type JobResult struct {
	// TaskID is the ID of the task the worker executed.
	TaskID string `json:"task_id"`
	// WorkerID is the ID of the worker that produced this result.
	WorkerID string `json:"worker_id"`
	// Success indicates whether the task body completed successfully.
	Success bool `json:"success"`
	// Error contains the failure message if Success is false.
	Error string `json:"error,omitempty"`
	// Duration is how long the task body ran.
	Duration time.Duration `json:"duration"`
	// Outputs carries the task's declared output artifact names through
	// to the run summary, untouched by the coordinator.
	Outputs []string `json:"outputs,omitempty"`
	// FinishedAt is when the worker produced this result.
	FinishedAt time.Time `json:"finished_at"`
}
