package models

import "time"

// RunOutcome classifies how a run ended.
type RunOutcome string

const (
	// RunOutcomeSuccess indicates every task completed successfully.
	RunOutcomeSuccess RunOutcome = "success"
	// RunOutcomePartial indicates some tasks failed and their dependents
	// were left permanently blocked, but the graph was otherwise drained.
	RunOutcomePartial RunOutcome = "partial"
	// RunOutcomeDeadlock indicates pending tasks remained that can never
	// become ready (a dependency cycle or an unresolvable reference).
	RunOutcomeDeadlock RunOutcome = "deadlock"
	// RunOutcomeCancelled indicates the run was interrupted externally.
	RunOutcomeCancelled RunOutcome = "cancelled"
)

// StuckReason explains why a task never left pending.
type StuckReason string

const (
	// StuckDependencyFailed means an upstream dependency failed, so the
	// task could never become ready. This is an expected operational
	// outcome, not a malformed graph.
	StuckDependencyFailed StuckReason = "dependency_failed"
	// StuckUnreachable means the task sits on a dependency cycle or
	// references a dependency that does not exist. This indicates a
	// malformed graph and is fatal for the run.
	StuckUnreachable StuckReason = "unreachable"
	// StuckInterrupted means the run was cancelled before the task
	// could be dispatched.
	StuckInterrupted StuckReason = "interrupted"
)

// StuckTask describes a task that never left pending and why.
type StuckTask struct {
	// TaskID is the stuck task's identifier.
	TaskID string `json:"task_id"`
	// Reason classifies why the task never became ready.
	Reason StuckReason `json:"reason"`
	// Detail names the dependency responsible, when known.
	Detail string `json:"detail,omitempty"`
}

// RunSummary is the final accounting exposed when a run terminates.
type RunSummary struct {
	// RunID is the unique identifier of the run.
	RunID string `json:"run_id"`
	// Outcome classifies how the run ended.
	Outcome RunOutcome `json:"outcome"`
	// Total is the number of tasks in the graph.
	Total int `json:"total"`
	// Completed is the number of tasks that succeeded.
	Completed int `json:"completed"`
	// Failed is the number of tasks that terminated with an error.
	Failed int `json:"failed"`
	// Stuck lists tasks that never left pending, with classification.
	Stuck []StuckTask `json:"stuck,omitempty"`
	// Duration is the wall-clock time of the run.
	Duration time.Duration `json:"duration"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`
}

// Drained returns true if no task remained pending when the run ended.
func (s *RunSummary) Drained() bool {
	return len(s.Stuck) == 0
}
