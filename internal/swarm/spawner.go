package swarm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/skein-dev/skein/internal/body"
	"github.com/skein-dev/skein/pkg/models"
)

// Spawner launches one worker per dispatched task. Each worker runs in
// its own goroutine with a private workspace and panic isolation: a
// crashing task body becomes a failed JobResult, never a crashed
// coordinator.
type Spawner struct {
	bodies        *body.Registry
	workspaceRoot string
	results       *ResultRegistry
}

// NewSpawner creates a Spawner delivering results into the given
// registry.
func NewSpawner(bodies *body.Registry, workspaceRoot string, results *ResultRegistry) *Spawner {
	return &Spawner{
		bodies:        bodies,
		workspaceRoot: workspaceRoot,
		results:       results,
	}
}

// Spawn starts a worker for the task and returns its handle and cancel
// function immediately. When the task body finishes, the worker stores
// exactly one JobResult in the result registry and then signals the
// task ID on completionCh. completionCh must have capacity for every
// task in the run so the send never blocks, even after cancellation.
func (s *Spawner) Spawn(ctx context.Context, task *models.Task, completionCh chan<- string, done func()) (models.Worker, context.CancelFunc) {
	workerCtx, cancel := context.WithCancel(ctx)

	worker := models.Worker{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		Role:      task.Role,
		Status:    models.WorkerStatusRunning,
		Workspace: filepath.Join(s.workspaceRoot, task.ID),
		StartedAt: time.Now(),
	}

	go func() {
		defer done()

		res := s.execute(workerCtx, worker, task)
		if err := s.results.Store(res); err != nil {
			// Impossible unless a task was double-dispatched; surface
			// loudly in the debug log rather than drop the record.
			debugLog("[spawner] store result for task %s: %v", task.ID, err)
			return
		}
		completionCh <- task.ID
	}()

	return worker, cancel
}

// execute runs the task body and converts whatever happens, including
// a panic, into a JobResult.
func (s *Spawner) execute(ctx context.Context, worker models.Worker, task *models.Task) (res *models.JobResult) {
	defer func() {
		if r := recover(); r != nil {
			debugLog("[spawner] PANIC in task %s body: %v", task.ID, r)
			res = newJobResult(task.ID, worker.ID, false,
				fmt.Sprintf("task body panicked: %v", r), worker.StartedAt, nil)
		}
	}()

	if err := os.MkdirAll(worker.Workspace, 0755); err != nil {
		return newJobResult(task.ID, worker.ID, false,
			fmt.Sprintf("create workspace: %v", err), worker.StartedAt, nil)
	}

	b, err := s.bodies.Lookup(task.Role)
	if err != nil {
		return newJobResult(task.ID, worker.ID, false, err.Error(), worker.StartedAt, nil)
	}

	debugLog("[spawner] worker %s executing task %s (role=%s)", worker.ID, task.ID, task.Role)

	outcome, err := b.Run(ctx, body.Invocation{
		TaskID:      task.ID,
		Role:        task.Role,
		Title:       task.Title,
		Description: task.Description,
		Command:     task.Command,
		Inputs:      task.Inputs,
		Outputs:     task.Outputs,
		Workspace:   worker.Workspace,
	})
	if err != nil {
		return newJobResult(task.ID, worker.ID, false, err.Error(), worker.StartedAt, nil)
	}
	return newJobResult(task.ID, worker.ID, true, "", worker.StartedAt, outcome.Outputs)
}
