package swarm

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/skein-dev/skein/internal/body"
	"github.com/skein-dev/skein/internal/graph"
	"github.com/skein-dev/skein/internal/plan"
	"github.com/skein-dev/skein/pkg/models"
)

// ErrDeadlock indicates pending tasks remain that can never become
// ready: the graph has a dependency cycle or references a task that
// does not exist.
var ErrDeadlock = errors.New("deadlock: pending tasks can never become ready")

// RunStore persists run progress. The coordinator treats persistence
// as best-effort; store failures are logged, never fatal to the run.
type RunStore interface {
	CreateRun(runID, planName string, totalTasks int, startedAt time.Time) error
	RecordResult(runID string, res *models.JobResult) error
	FinishRun(runID string, summary *models.RunSummary) error
}

// Coordinator drives a task graph to completion. It exclusively owns
// the execution queue and active job registry; workers communicate
// with it only through the result registry side channel.
type Coordinator struct {
	runID     string
	planName  string
	graph     *graph.DependencyGraph
	queue     *ExecutionQueue
	active    *ActiveJobRegistry
	results   *ResultRegistry
	scheduler *Scheduler
	spawner   *Spawner

	pollInterval time.Duration
	spawnStagger time.Duration

	store  RunStore
	logger *DebugLogger

	events    chan Event
	dropped   atomic.Uint64
	closeOnce sync.Once

	// wg tracks in-flight workers so cancellation can wait for their
	// results before the final harvest.
	wg sync.WaitGroup
}

// coordinatorOptions holds all optional configuration.
type coordinatorOptions struct {
	limit         int
	pollInterval  time.Duration
	spawnStagger  time.Duration
	workspaceRoot string
	eventBuffer   int
	store         RunStore
	logger        *DebugLogger
}

// Option configures a Coordinator. Use With* functions to create Options.
type Option func(*coordinatorOptions)

// WithLimit sets the concurrency limit (maximum simultaneous workers).
func WithLimit(n int) Option {
	return func(o *coordinatorOptions) { o.limit = n }
}

// WithPollInterval sets the scheduler loop's polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(o *coordinatorOptions) { o.pollInterval = d }
}

// WithSpawnStagger sets the delay between parallel worker spawns.
func WithSpawnStagger(d time.Duration) Option {
	return func(o *coordinatorOptions) { o.spawnStagger = d }
}

// WithWorkspaceRoot sets the directory for per-task worker workspaces.
func WithWorkspaceRoot(root string) Option {
	return func(o *coordinatorOptions) { o.workspaceRoot = root }
}

// WithStore sets the run persistence store.
func WithStore(s RunStore) Option {
	return func(o *coordinatorOptions) { o.store = s }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *coordinatorOptions) { o.logger = l }
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(o *coordinatorOptions) { o.eventBuffer = n }
}

// New creates a Coordinator for the given plan. Bodies supplies the
// task body for each executor role appearing in the plan.
func New(p *plan.Plan, bodies *body.Registry, opts ...Option) (*Coordinator, error) {
	o := &coordinatorOptions{
		limit:         4,
		pollInterval:  250 * time.Millisecond,
		workspaceRoot: ".skein/workspaces",
		eventBuffer:   100,
		logger:        NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.limit < 1 {
		return nil, errors.New("concurrency limit must be a positive integer")
	}

	g, err := p.Graph()
	if err != nil {
		return nil, err
	}

	setPackageLogger(o.logger)

	active := NewActiveJobRegistry()
	results := NewResultRegistry()

	c := &Coordinator{
		runID:        uuid.New().String()[:8],
		planName:     p.Name,
		graph:        g,
		queue:        NewExecutionQueue(g.Order()),
		active:       active,
		results:      results,
		scheduler:    NewScheduler(g, active, o.limit),
		spawner:      NewSpawner(bodies, o.workspaceRoot, results),
		pollInterval: o.pollInterval,
		spawnStagger: o.spawnStagger,
		store:        o.store,
		logger:       o.logger,
		events:       make(chan Event, o.eventBuffer),
	}
	return c, nil
}

// RunID returns the unique identifier of this run.
func (c *Coordinator) RunID() string {
	return c.runID
}

// Events returns the channel of run events. It is closed when Run
// returns.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// DroppedEventCount returns the number of events dropped because the
// event channel was full.
func (c *Coordinator) DroppedEventCount() uint64 {
	return c.dropped.Load()
}

// Snapshot exposes a read-only view of the run for external monitors:
// the queue's three sets plus the in-flight worker handles.
func (c *Coordinator) Snapshot() (QueueSnapshot, []models.Worker) {
	return c.queue.Snapshot(), c.active.Workers()
}

// emit sends an event without ever blocking the scheduler loop.
func (c *Coordinator) emit(event Event) {
	event.Timestamp = time.Now()
	event.WorkersRunning = c.active.Count()
	select {
	case c.events <- event:
	default:
		c.dropped.Add(1)
	}
}

// closeEvents closes the event channel exactly once.
func (c *Coordinator) closeEvents() {
	c.closeOnce.Do(func() { close(c.events) })
}
