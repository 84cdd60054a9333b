package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skein-dev/skein/internal/body"
	"github.com/skein-dev/skein/internal/plan"
	"github.com/skein-dev/skein/pkg/models"
)

// stubBody runs an arbitrary function as a task body.
type stubBody struct {
	fn func(ctx context.Context, inv body.Invocation) (body.Outcome, error)
}

func (b *stubBody) Run(ctx context.Context, inv body.Invocation) (body.Outcome, error) {
	return b.fn(ctx, inv)
}

func testPlan(name string, tasks ...*models.Task) *plan.Plan {
	for _, task := range tasks {
		if task.Role == "" {
			task.Role = "stub"
		}
		task.Status = models.TaskStatusPending
	}
	return &plan.Plan{Version: 1, Name: name, Tasks: tasks}
}

func testRegistry(t *testing.T, fn func(ctx context.Context, inv body.Invocation) (body.Outcome, error)) *body.Registry {
	t.Helper()
	reg := body.NewRegistry()
	reg.Register("stub", &stubBody{fn: fn})
	return reg
}

func newTestCoordinator(t *testing.T, p *plan.Plan, reg *body.Registry, limit int) *Coordinator {
	t.Helper()
	c, err := New(p, reg,
		WithLimit(limit),
		WithPollInterval(5*time.Millisecond),
		WithWorkspaceRoot(t.TempDir()),
		WithEventBuffer(256),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestRunLinearChain(t *testing.T) {
	var mu sync.Mutex
	var order []string
	reg := testRegistry(t, func(ctx context.Context, inv body.Invocation) (body.Outcome, error) {
		mu.Lock()
		order = append(order, inv.TaskID)
		mu.Unlock()
		return body.Outcome{}, nil
	})

	p := testPlan("chain",
		&models.Task{ID: "a", Title: "A"},
		&models.Task{ID: "b", Title: "B", DependsOn: []string{"a"}},
		&models.Task{ID: "c", Title: "C", DependsOn: []string{"b"}},
	)

	c := newTestCoordinator(t, p, reg, 3)
	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Outcome != models.RunOutcomeSuccess {
		t.Errorf("outcome = %s, want success", summary.Outcome)
	}
	if summary.Completed != 3 || summary.Failed != 0 {
		t.Errorf("completed=%d failed=%d, want 3/0", summary.Completed, summary.Failed)
	}
	if !summary.Drained() {
		t.Errorf("expected fully drained run, stuck = %v", summary.Stuck)
	}

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("execution order = %v, want %v", order, want)
	}
	for i, id := range want {
		if order[i] != id {
			t.Errorf("execution order = %v, want %v", order, want)
			break
		}
	}
}

func TestRunConcurrencyBound(t *testing.T) {
	var current, peak atomic.Int32
	reg := testRegistry(t, func(ctx context.Context, inv body.Invocation) (body.Outcome, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return body.Outcome{}, nil
	})

	p := testPlan("fanout",
		&models.Task{ID: "a"},
		&models.Task{ID: "b", DependsOn: []string{"a"}},
		&models.Task{ID: "c", DependsOn: []string{"a"}},
		&models.Task{ID: "d", DependsOn: []string{"a"}},
	)

	c := newTestCoordinator(t, p, reg, 2)
	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Outcome != models.RunOutcomeSuccess {
		t.Errorf("outcome = %s, want success", summary.Outcome)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, exceeds limit 2", got)
	}
}

func TestRunFailedDependencyBlocksDependents(t *testing.T) {
	var invoked sync.Map
	reg := testRegistry(t, func(ctx context.Context, inv body.Invocation) (body.Outcome, error) {
		invoked.Store(inv.TaskID, true)
		if inv.TaskID == "a" {
			return body.Outcome{}, errors.New("compilation failed")
		}
		return body.Outcome{}, nil
	})

	p := testPlan("failure",
		&models.Task{ID: "a"},
		&models.Task{ID: "b", DependsOn: []string{"a"}},
		&models.Task{ID: "c", DependsOn: []string{"b"}},
		&models.Task{ID: "d"},
	)

	c := newTestCoordinator(t, p, reg, 4)
	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error for an ordinary task failure: %v", err)
	}

	if summary.Outcome != models.RunOutcomePartial {
		t.Errorf("outcome = %s, want partial", summary.Outcome)
	}
	if summary.Completed != 1 || summary.Failed != 1 {
		t.Errorf("completed=%d failed=%d, want 1/1", summary.Completed, summary.Failed)
	}

	for _, id := range []string{"b", "c"} {
		if _, ok := invoked.Load(id); ok {
			t.Errorf("task %s was dispatched despite its failed dependency", id)
		}
	}

	stuck := make(map[string]models.StuckTask)
	for _, st := range summary.Stuck {
		stuck[st.TaskID] = st
	}
	for _, id := range []string{"b", "c"} {
		st, ok := stuck[id]
		if !ok {
			t.Errorf("task %s missing from stuck report", id)
			continue
		}
		if st.Reason != models.StuckDependencyFailed {
			t.Errorf("task %s stuck reason = %s, want dependency_failed", id, st.Reason)
		}
		if st.Detail != "a" {
			t.Errorf("task %s stuck detail = %q, want root failed task a", id, st.Detail)
		}
	}

	if task := c.graph.Task("b"); task.Status != models.TaskStatusBlocked {
		t.Errorf("task b status = %s, want blocked", task.Status)
	}
}

func TestRunDeadlockOnCycle(t *testing.T) {
	reg := testRegistry(t, func(ctx context.Context, inv body.Invocation) (body.Outcome, error) {
		return body.Outcome{}, nil
	})

	p := testPlan("cycle",
		&models.Task{ID: "a", DependsOn: []string{"b"}},
		&models.Task{ID: "b", DependsOn: []string{"a"}},
		&models.Task{ID: "c"},
	)

	c := newTestCoordinator(t, p, reg, 2)
	summary, err := c.Run(context.Background())
	if !errors.Is(err, ErrDeadlock) {
		t.Fatalf("Run error = %v, want ErrDeadlock", err)
	}

	if summary.Outcome != models.RunOutcomeDeadlock {
		t.Errorf("outcome = %s, want deadlock", summary.Outcome)
	}
	if summary.Completed != 1 {
		t.Errorf("completed = %d, want 1 (the task off the cycle)", summary.Completed)
	}
	for _, st := range summary.Stuck {
		if st.Reason != models.StuckUnreachable {
			t.Errorf("task %s stuck reason = %s, want unreachable", st.TaskID, st.Reason)
		}
	}
	if len(summary.Stuck) != 2 {
		t.Errorf("stuck count = %d, want 2", len(summary.Stuck))
	}
}

func TestRunDeadlockOnUnknownDependency(t *testing.T) {
	reg := testRegistry(t, func(ctx context.Context, inv body.Invocation) (body.Outcome, error) {
		return body.Outcome{}, nil
	})

	p := testPlan("dangling",
		&models.Task{ID: "a", DependsOn: []string{"ghost"}},
	)

	c := newTestCoordinator(t, p, reg, 1)
	summary, err := c.Run(context.Background())
	if !errors.Is(err, ErrDeadlock) {
		t.Fatalf("Run error = %v, want ErrDeadlock", err)
	}
	if summary.Outcome != models.RunOutcomeDeadlock {
		t.Errorf("outcome = %s, want deadlock", summary.Outcome)
	}
}

func TestRunDispatchesExactlyOnce(t *testing.T) {
	var counts sync.Map
	reg := testRegistry(t, func(ctx context.Context, inv body.Invocation) (body.Outcome, error) {
		n, _ := counts.LoadOrStore(inv.TaskID, new(atomic.Int32))
		n.(*atomic.Int32).Add(1)
		time.Sleep(5 * time.Millisecond)
		return body.Outcome{}, nil
	})

	p := testPlan("diamond",
		&models.Task{ID: "a"},
		&models.Task{ID: "b", DependsOn: []string{"a"}},
		&models.Task{ID: "c", DependsOn: []string{"a"}},
		&models.Task{ID: "d", DependsOn: []string{"b", "c"}},
	)

	c := newTestCoordinator(t, p, reg, 2)
	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Outcome != models.RunOutcomeSuccess {
		t.Errorf("outcome = %s, want success", summary.Outcome)
	}

	for _, id := range []string{"a", "b", "c", "d"} {
		n, ok := counts.Load(id)
		if !ok {
			t.Errorf("task %s never executed", id)
			continue
		}
		if got := n.(*atomic.Int32).Load(); got != 1 {
			t.Errorf("task %s executed %d times, want exactly once", id, got)
		}
	}
}

func TestRunCancellation(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	reg := testRegistry(t, func(ctx context.Context, inv body.Invocation) (body.Outcome, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return body.Outcome{}, ctx.Err()
	})

	p := testPlan("interrupt",
		&models.Task{ID: "a"},
		&models.Task{ID: "b", DependsOn: []string{"a"}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	c := newTestCoordinator(t, p, reg, 1)

	type result struct {
		summary *models.RunSummary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		summary, err := c.Run(ctx)
		done <- result{summary, err}
	}()

	<-started
	cancel()

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", res.err)
	}
	if res.summary.Outcome != models.RunOutcomeCancelled {
		t.Errorf("outcome = %s, want cancelled", res.summary.Outcome)
	}

	// Task a was in flight and failed with the cancellation error; task
	// b was never dispatched and is reported interrupted.
	if res.summary.Failed != 1 {
		t.Errorf("failed = %d, want 1 (the in-flight task)", res.summary.Failed)
	}
	foundB := false
	for _, st := range res.summary.Stuck {
		if st.TaskID == "b" {
			foundB = true
			if st.Reason != models.StuckInterrupted {
				t.Errorf("task b stuck reason = %s, want interrupted", st.Reason)
			}
		}
	}
	if !foundB {
		t.Errorf("task b missing from stuck report: %v", res.summary.Stuck)
	}
}

func TestRunPanicIsolation(t *testing.T) {
	reg := testRegistry(t, func(ctx context.Context, inv body.Invocation) (body.Outcome, error) {
		if inv.TaskID == "boom" {
			panic("task body exploded")
		}
		return body.Outcome{}, nil
	})

	p := testPlan("panic",
		&models.Task{ID: "boom"},
		&models.Task{ID: "ok"},
	)

	c := newTestCoordinator(t, p, reg, 2)
	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Outcome != models.RunOutcomePartial {
		t.Errorf("outcome = %s, want partial", summary.Outcome)
	}
	if summary.Completed != 1 || summary.Failed != 1 {
		t.Errorf("completed=%d failed=%d, want 1/1", summary.Completed, summary.Failed)
	}
	if task := c.graph.Task("boom"); task.Error == "" {
		t.Error("panicking task has no recorded error")
	}
}

func TestRunEmitsEvents(t *testing.T) {
	reg := testRegistry(t, func(ctx context.Context, inv body.Invocation) (body.Outcome, error) {
		return body.Outcome{}, nil
	})

	p := testPlan("events", &models.Task{ID: "a", Title: "only task"})
	c := newTestCoordinator(t, p, reg, 1)

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	seen := make(map[EventType]int)
	for ev := range c.Events() {
		seen[ev.Type]++
	}
	for _, typ := range []EventType{EventTaskQueued, EventTaskStarted, EventTaskCompleted, EventRunDone} {
		if seen[typ] == 0 {
			t.Errorf("no %s event emitted", typ)
		}
	}
	if c.DroppedEventCount() != 0 {
		t.Errorf("dropped %d events with an oversized buffer", c.DroppedEventCount())
	}
}

func TestRunRejectsInvalidLimit(t *testing.T) {
	reg := testRegistry(t, func(ctx context.Context, inv body.Invocation) (body.Outcome, error) {
		return body.Outcome{}, nil
	})
	p := testPlan("bad", &models.Task{ID: "a"})

	if _, err := New(p, reg, WithLimit(0)); err == nil {
		t.Error("New accepted a zero concurrency limit")
	}
}

func TestSnapshotDuringRun(t *testing.T) {
	release := make(chan struct{})
	reg := testRegistry(t, func(ctx context.Context, inv body.Invocation) (body.Outcome, error) {
		<-release
		return body.Outcome{}, nil
	})

	p := testPlan("snapshot",
		&models.Task{ID: "a"},
		&models.Task{ID: "b", DependsOn: []string{"a"}},
	)
	c := newTestCoordinator(t, p, reg, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Run(context.Background())
	}()

	// Wait for task a to be dispatched, then observe a consistent view.
	deadline := time.After(5 * time.Second)
	for {
		queue, workers := c.Snapshot()
		if len(workers) == 1 {
			if workers[0].TaskID != "a" {
				t.Errorf("in-flight task = %s, want a", workers[0].TaskID)
			}
			if len(queue.Pending) != 2 {
				t.Errorf("pending = %v, want both tasks before first harvest", queue.Pending)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("task a never dispatched")
		case <-time.After(time.Millisecond):
		}
	}

	close(release)
	<-done

	queue, workers := c.Snapshot()
	if len(workers) != 0 {
		t.Errorf("workers still registered after run: %v", workers)
	}
	if len(queue.Completed) != 2 || len(queue.Pending) != 0 {
		t.Errorf("final snapshot = %+v, want both tasks completed", queue)
	}
}

func TestQueueTransitions(t *testing.T) {
	q := NewExecutionQueue([]string{"a", "b", "c"})

	if err := q.Complete("a"); err != nil {
		t.Fatalf("Complete(a): %v", err)
	}
	if err := q.Fail("b"); err != nil {
		t.Fatalf("Fail(b): %v", err)
	}

	// Resolved tasks cannot transition again, in either direction.
	if err := q.Complete("a"); !errors.Is(err, ErrStateCorruption) {
		t.Errorf("second Complete(a) = %v, want ErrStateCorruption", err)
	}
	if err := q.Complete("b"); !errors.Is(err, ErrStateCorruption) {
		t.Errorf("Complete on failed task = %v, want ErrStateCorruption", err)
	}
	if err := q.Fail("nope"); !errors.Is(err, ErrStateCorruption) {
		t.Errorf("Fail on unknown task = %v, want ErrStateCorruption", err)
	}

	pending, completed, failed := q.Counts()
	if pending != 1 || completed != 1 || failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", pending, completed, failed)
	}
	if err := q.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}

	snap := q.Snapshot()
	if len(snap.Pending) != 1 || snap.Pending[0] != "c" {
		t.Errorf("snapshot pending = %v, want [c]", snap.Pending)
	}
}

func TestActiveJobRegistryRejectsDuplicateDispatch(t *testing.T) {
	r := NewActiveJobRegistry()
	job := &ActiveJob{Cancel: func() {}}

	if err := r.Add("a", job); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add("a", job); !errors.Is(err, ErrStateCorruption) {
		t.Errorf("duplicate Add = %v, want ErrStateCorruption", err)
	}
	if _, ok := r.Remove("a"); !ok {
		t.Error("Remove(a) found nothing")
	}
	if r.Count() != 0 {
		t.Errorf("count = %d after removal, want 0", r.Count())
	}
}

func TestResultRegistryExactlyOnce(t *testing.T) {
	r := NewResultRegistry()
	res := &models.JobResult{TaskID: "a", Success: true}

	if err := r.Store(res); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := r.Store(res); !errors.Is(err, ErrStateCorruption) {
		t.Errorf("duplicate Store = %v, want ErrStateCorruption", err)
	}

	got, ok := r.Take("a")
	if !ok || got.TaskID != "a" {
		t.Fatalf("Take(a) = %+v, %v", got, ok)
	}
	if _, ok := r.Take("a"); ok {
		t.Error("second Take(a) returned a result; slots must be consume-once")
	}
}

func TestSchedulerRespectsLimitAndOrder(t *testing.T) {
	p := testPlan("sched",
		&models.Task{ID: "a"},
		&models.Task{ID: "b"},
		&models.Task{ID: "c"},
	)
	g, err := p.Graph()
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}

	active := NewActiveJobRegistry()
	s := NewScheduler(g, active, 2)

	tasks := s.Schedule()
	if len(tasks) != 2 || tasks[0].ID != "a" || tasks[1].ID != "b" {
		ids := make([]string, len(tasks))
		for i, task := range tasks {
			ids[i] = task.ID
		}
		t.Fatalf("Schedule = %v, want [a b] (hint order, capped at limit)", ids)
	}

	for _, task := range tasks {
		if err := active.Add(task.ID, &ActiveJob{Cancel: func() {}}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if got := s.Schedule(); got != nil {
		t.Errorf("Schedule with full slots = %v, want nil", got)
	}

	if _, ok := active.Remove("a"); !ok {
		t.Fatal("Remove(a) found nothing")
	}
	g.MarkComplete("a")

	tasks = s.Schedule()
	if len(tasks) != 1 || tasks[0].ID != "c" {
		t.Errorf("Schedule after harvest selected %v, want [c]", tasks)
	}
}

// Guards against regressions in the stagger path: dispatch must notice
// cancellation between staggered spawns instead of sleeping through it.
func TestDispatchStaggerHonoursCancellation(t *testing.T) {
	reg := testRegistry(t, func(ctx context.Context, inv body.Invocation) (body.Outcome, error) {
		<-ctx.Done()
		return body.Outcome{}, ctx.Err()
	})

	var tasks []*models.Task
	for i := 0; i < 4; i++ {
		tasks = append(tasks, &models.Task{ID: fmt.Sprintf("t%d", i)})
	}
	p := testPlan("stagger", tasks...)

	c, err := New(p, reg,
		WithLimit(4),
		WithPollInterval(5*time.Millisecond),
		WithSpawnStagger(time.Hour),
		WithWorkspaceRoot(t.TempDir()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run slept through cancellation during spawn stagger")
	}
}
