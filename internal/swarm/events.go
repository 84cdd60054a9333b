package swarm

import "time"

// EventType represents the type of swarm event.
type EventType string

const (
	// EventTaskQueued indicates a task became ready and was selected
	// for dispatch.
	EventTaskQueued EventType = "task_queued"
	// EventTaskStarted indicates a worker began executing a task.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task terminated with an error.
	EventTaskFailed EventType = "task_failed"
	// EventTaskBlocked indicates a task can never run because an
	// upstream dependency failed.
	EventTaskBlocked EventType = "task_blocked"
	// EventDeadlock indicates pending tasks remain that can never
	// become ready.
	EventDeadlock EventType = "deadlock"
	// EventRunDone indicates the run terminated.
	EventRunDone EventType = "run_done"
)

// Event is emitted by the coordinator as the run progresses. Events
// feed presentation layers; the coordinator never blocks on them.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// TaskTitle is the title of the related task, if applicable.
	TaskTitle string
	// WorkerID is the ID of the related worker, if applicable.
	WorkerID string
	// Message provides additional context about the event.
	Message string
	// Err contains error details for failure events.
	Err error
	// Duration is the task's execution time, for completion events.
	Duration time.Duration
	// WorkersRunning is the number of active workers after this event.
	WorkersRunning int
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
