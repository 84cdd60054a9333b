package swarm

import (
	"context"
	"fmt"
	"time"

	"github.com/skein-dev/skein/pkg/models"
)

// Run drives the task graph until it drains, stalls, or the context is
// cancelled. It is the run's single mutation site: every queue and
// registry transition happens on this goroutine, so observers only ever
// see fully-applied states.
//
// Run always returns a summary. The error is non-nil for deadlock,
// cancellation, and state corruption; a run that merely had task
// failures returns a partial summary with a nil error.
func (c *Coordinator) Run(ctx context.Context) (*models.RunSummary, error) {
	started := time.Now()
	defer c.closeEvents()

	debugLog("[run %s] starting: %d tasks, limit %d", c.runID, c.graph.Size(), c.scheduler.Limit())

	if c.store != nil {
		if err := c.store.CreateRun(c.runID, c.planName, c.graph.Size(), started); err != nil {
			debugLog("[run %s] store: create run: %v", c.runID, err)
		}
	}

	// Sized for every task in the run so a worker's completion signal
	// never blocks, even when the loop has stopped receiving.
	completionCh := make(chan string, c.graph.Size())

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if err := c.drainCompletions(completionCh); err != nil {
			return c.abort(started, err)
		}

		if c.queue.PendingCount() == 0 && c.active.Count() == 0 {
			return c.finishDrained(started)
		}

		dispatched, err := c.dispatch(ctx, completionCh)
		if err != nil {
			if ctx.Err() != nil {
				return c.cancelAndDrain(ctx, started, completionCh)
			}
			return c.abort(started, err)
		}

		// Stall check: nothing running, nothing dispatchable, work left.
		if dispatched == 0 && c.active.Count() == 0 && c.queue.PendingCount() > 0 {
			return c.finishStalled(started)
		}

		select {
		case <-ctx.Done():
			return c.cancelAndDrain(ctx, started, completionCh)
		case taskID := <-completionCh:
			if err := c.harvest(taskID); err != nil {
				return c.abort(started, err)
			}
		case <-ticker.C:
		}
	}
}

// drainCompletions harvests every completion signal already delivered,
// without blocking.
func (c *Coordinator) drainCompletions(completionCh <-chan string) error {
	for {
		select {
		case taskID := <-completionCh:
			if err := c.harvest(taskID); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// harvest consumes the result for a finished task and applies its
// terminal transition: graph marking, queue resolution, and, on
// failure, blocking every transitive dependent.
func (c *Coordinator) harvest(taskID string) error {
	res, ok := c.results.Take(taskID)
	if !ok {
		return fmt.Errorf("%w: completion signal for task %s without a result", ErrStateCorruption, taskID)
	}
	job, ok := c.active.Remove(taskID)
	if !ok {
		return fmt.Errorf("%w: completion signal for task %s that is not active", ErrStateCorruption, taskID)
	}
	job.Cancel()

	task := c.graph.Task(taskID)
	now := time.Now()
	task.CompletedAt = &now

	if c.store != nil {
		if err := c.store.RecordResult(c.runID, res); err != nil {
			debugLog("[run %s] store: record result for %s: %v", c.runID, taskID, err)
		}
	}

	if res.Success {
		task.Status = models.TaskStatusDone
		c.graph.MarkComplete(taskID)
		if err := c.queue.Complete(taskID); err != nil {
			return err
		}
		debugLog("[run %s] task %s completed in %s", c.runID, taskID, res.Duration.Round(time.Millisecond))
		c.emit(Event{
			Type:      EventTaskCompleted,
			TaskID:    taskID,
			TaskTitle: task.Title,
			WorkerID:  res.WorkerID,
			Duration:  res.Duration,
		})
		return nil
	}

	task.Status = models.TaskStatusFailed
	task.Error = res.Error
	c.graph.MarkFailed(taskID)
	if err := c.queue.Fail(taskID); err != nil {
		return err
	}
	debugLog("[run %s] task %s FAILED: %s", c.runID, taskID, res.Error)
	c.emit(Event{
		Type:      EventTaskFailed,
		TaskID:    taskID,
		TaskTitle: task.Title,
		WorkerID:  res.WorkerID,
		Duration:  res.Duration,
		Err:       fmt.Errorf("%s", res.Error),
	})

	c.blockDependents(taskID)
	return nil
}

// blockDependents marks every transitive dependent of a failed task as
// permanently blocked. The dependents stay in the queue's pending set;
// the stall classification reports them at the end of the run.
func (c *Coordinator) blockDependents(failedID string) {
	for _, depID := range c.graph.Dependents(failedID) {
		task := c.graph.Task(depID)
		if task == nil || task.Status != models.TaskStatusPending {
			continue
		}
		task.Status = models.TaskStatusBlocked
		task.BlockedReason = "dependency failed: " + failedID
		debugLog("[run %s] task %s blocked: dependency %s failed", c.runID, depID, failedID)
		c.emit(Event{
			Type:    EventTaskBlocked,
			TaskID:  depID,
			Message: task.BlockedReason,
		})
	}
}

// dispatch spawns workers for as many ready tasks as the concurrency
// limit allows, in hint order, staggering spawns when configured. It
// returns the number of workers started.
func (c *Coordinator) dispatch(ctx context.Context, completionCh chan<- string) (int, error) {
	tasks := c.scheduler.Schedule()
	for i, task := range tasks {
		if i > 0 && c.spawnStagger > 0 {
			select {
			case <-ctx.Done():
				return i, ctx.Err()
			case <-time.After(c.spawnStagger):
			}
		}

		c.emit(Event{Type: EventTaskQueued, TaskID: task.ID, TaskTitle: task.Title})

		c.wg.Add(1)
		worker, cancel := c.spawner.Spawn(ctx, task, completionCh, c.wg.Done)
		if err := c.active.Add(task.ID, &ActiveJob{Worker: worker, Cancel: cancel}); err != nil {
			cancel()
			return i, err
		}

		now := time.Now()
		task.Status = models.TaskStatusDispatched
		task.AssignedTo = worker.ID
		task.StartedAt = &now

		debugLog("[run %s] dispatched task %s to worker %s (%d/%d slots)",
			c.runID, task.ID, worker.ID, c.active.Count(), c.scheduler.Limit())
		c.emit(Event{
			Type:      EventTaskStarted,
			TaskID:    task.ID,
			TaskTitle: task.Title,
			WorkerID:  worker.ID,
		})
	}
	return len(tasks), nil
}

// finishDrained builds the summary for a run whose queue fully drained:
// success if nothing failed, partial otherwise.
func (c *Coordinator) finishDrained(started time.Time) (*models.RunSummary, error) {
	if err := c.queue.Verify(); err != nil {
		return c.abort(started, err)
	}
	summary := c.summarize(started, nil)
	if summary.Failed > 0 {
		summary.Outcome = models.RunOutcomePartial
	} else {
		summary.Outcome = models.RunOutcomeSuccess
	}
	return c.finish(summary, nil)
}

// finishStalled classifies the pending remainder of a stalled run.
// Tasks stuck behind failed dependencies make the run partial; tasks
// that are unreachable (cycle or unknown dependency) make it a
// deadlock.
func (c *Coordinator) finishStalled(started time.Time) (*models.RunSummary, error) {
	stuck := c.graph.Classify()
	summary := c.summarize(started, stuck)

	var unreachable []string
	for _, st := range stuck {
		if st.Reason == models.StuckUnreachable {
			unreachable = append(unreachable, st.TaskID)
		}
	}

	if len(unreachable) > 0 {
		summary.Outcome = models.RunOutcomeDeadlock
		debugLog("[run %s] DEADLOCK: unreachable tasks %v", c.runID, unreachable)
		c.emit(Event{
			Type:    EventDeadlock,
			Message: fmt.Sprintf("unreachable tasks: %v", unreachable),
		})
		return c.finish(summary, fmt.Errorf("%w: %v", ErrDeadlock, unreachable))
	}

	summary.Outcome = models.RunOutcomePartial
	return c.finish(summary, nil)
}

// cancelAndDrain handles external cancellation: stop dispatching,
// cancel every in-flight worker, wait for their results, harvest them,
// and classify whatever never got dispatched as interrupted.
func (c *Coordinator) cancelAndDrain(ctx context.Context, started time.Time, completionCh <-chan string) (*models.RunSummary, error) {
	debugLog("[run %s] cancellation requested, stopping %d workers", c.runID, c.active.Count())
	c.active.CancelAll()
	c.wg.Wait()

	// Every worker has stored its result and signalled; harvest them
	// all so the queue reflects what actually finished before the cut.
	if err := c.drainCompletions(completionCh); err != nil {
		return c.abort(started, err)
	}

	var stuck []models.StuckTask
	for _, id := range c.queue.Snapshot().Pending {
		stuck = append(stuck, models.StuckTask{TaskID: id, Reason: models.StuckInterrupted})
	}

	summary := c.summarize(started, stuck)
	summary.Outcome = models.RunOutcomeCancelled
	return c.finish(summary, ctx.Err())
}

// abort ends the run after an internal invariant violation. The
// returned error is authoritative; the summary's counts reflect the
// last trustworthy state.
func (c *Coordinator) abort(started time.Time, err error) (*models.RunSummary, error) {
	debugLog("[run %s] ABORT: %v", c.runID, err)
	c.active.CancelAll()
	c.wg.Wait()
	summary := c.summarize(started, nil)
	summary.Outcome = models.RunOutcomeCancelled
	return c.finish(summary, err)
}

// summarize snapshots the queue counts into a RunSummary.
func (c *Coordinator) summarize(started time.Time, stuck []models.StuckTask) *models.RunSummary {
	_, completed, failed := c.queue.Counts()
	return &models.RunSummary{
		RunID:     c.runID,
		Total:     c.queue.Total(),
		Completed: completed,
		Failed:    failed,
		Stuck:     stuck,
		Duration:  time.Since(started),
		StartedAt: started,
	}
}

// finish persists and announces the terminal summary.
func (c *Coordinator) finish(summary *models.RunSummary, err error) (*models.RunSummary, error) {
	if c.store != nil {
		if serr := c.store.FinishRun(c.runID, summary); serr != nil {
			debugLog("[run %s] store: finish run: %v", c.runID, serr)
		}
	}
	debugLog("[run %s] done: outcome=%s completed=%d failed=%d stuck=%d in %s",
		c.runID, summary.Outcome, summary.Completed, summary.Failed, len(summary.Stuck),
		summary.Duration.Round(time.Millisecond))
	c.emit(Event{
		Type:    EventRunDone,
		Message: string(summary.Outcome),
	})
	return summary, err
}
