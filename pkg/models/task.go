package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not been dispatched yet.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusDispatched indicates a worker is executing the task.
	TaskStatusDispatched TaskStatus = "dispatched"
	// TaskStatusBlocked indicates the task can never run because a
	// dependency failed.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusDone indicates the task completed successfully.
	TaskStatusDone TaskStatus = "done"
	// TaskStatusFailed indicates the task terminated with an error.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusDispatched, TaskStatusBlocked,
		TaskStatusDone, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a terminal state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}

// Task represents a unit of work in the swarm.
//
// Title, Description, Inputs and Outputs are opaque to the coordinator;
// they are passed through to the task body unchanged.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id" yaml:"id"`
	// Role selects which task body implementation runs this task.
	Role string `json:"role" yaml:"role"`
	// Title is the short description of the task.
	Title string `json:"title" yaml:"title"`
	// Description provides detailed instructions for the task body.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// Inputs lists input artifact names consumed by the task body.
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	// Outputs lists output artifact names the task body must produce.
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	// Command is an optional shell command for command-role bodies.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status" yaml:"-"`
	// AssignedTo is the ID of the worker executing this task.
	AssignedTo string `json:"assigned_to,omitempty" yaml:"-"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty" yaml:"-"`
	// BlockedReason explains why a blocked task cannot proceed.
	BlockedReason string `json:"blocked_reason,omitempty" yaml:"-"`
	// StartedAt is when the task was dispatched, if it was.
	StartedAt *time.Time `json:"started_at,omitempty" yaml:"-"`
	// CompletedAt is when the task reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"-"`
}
