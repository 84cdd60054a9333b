package swarm

import (
	"github.com/skein-dev/skein/internal/graph"
	"github.com/skein-dev/skein/pkg/models"
)

// Scheduler selects which ready tasks to dispatch each cycle. It
// respects the concurrency limit and excludes tasks that are already
// in flight. Selection order is the plan's hint order, as surfaced by
// the graph; readiness itself is defined purely by completed
// dependencies.
type Scheduler struct {
	graph  *graph.DependencyGraph
	active *ActiveJobRegistry
	limit  int
}

// NewScheduler creates a Scheduler over the given graph and registry.
func NewScheduler(g *graph.DependencyGraph, active *ActiveJobRegistry, limit int) *Scheduler {
	return &Scheduler{graph: g, active: active, limit: limit}
}

// Limit returns the configured concurrency bound.
func (s *Scheduler) Limit() int {
	return s.limit
}

// Schedule returns up to (limit - active) ready tasks in hint order.
// A nil result means nothing is dispatchable right now.
func (s *Scheduler) Schedule() []*models.Task {
	available := s.limit - s.active.Count()
	if available <= 0 {
		debugLog("[scheduler] no available slots: limit=%d active=%d", s.limit, s.active.Count())
		return nil
	}

	readyIDs := s.graph.Ready()
	if len(readyIDs) == 0 {
		return nil
	}

	var selected []*models.Task
	for _, id := range readyIDs {
		if s.active.Has(id) {
			continue
		}
		task := s.graph.Task(id)
		if task == nil {
			continue
		}
		selected = append(selected, task)
		if len(selected) == available {
			break
		}
	}

	debugLog("[scheduler] selected %d of %d ready tasks (available slots: %d)",
		len(selected), len(readyIDs), available)
	return selected
}
