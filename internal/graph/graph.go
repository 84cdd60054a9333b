// Package graph provides the dependency graph that drives task scheduling.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/skein-dev/skein/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed graph of task dependencies plus the
// completion/failure marks the coordinator records as workers finish.
//
// Construction is lenient: cycles and references to unknown tasks are
// accepted by Build and surface at run time as tasks that never become
// ready. Validate performs the strict checks for plan linting.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to the IDs of tasks it depends on.
	edges map[string][]string
	// order is the plan's linear hint order. It seeds Ready's stable
	// selection order; the true execution order is derived from edges.
	order []string
	// completed tracks tasks that finished successfully.
	completed map[string]bool
	// failed tracks tasks that terminated with an error.
	failed map[string]bool
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		failed:    make(map[string]bool),
	}
}

// Build registers the tasks in the given order. The slice order becomes
// the hint order used to break ties among simultaneously ready tasks.
// Duplicate IDs are rejected; unknown dependencies and cycles are not.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range tasks {
		if task.ID == "" {
			return errors.New("task with empty ID")
		}
		if _, exists := g.nodes[task.ID]; exists {
			return fmt.Errorf("duplicate task ID %q", task.ID)
		}
		g.nodes[task.ID] = task
		g.edges[task.ID] = append([]string(nil), task.DependsOn...)
		g.order = append(g.order, task.ID)
	}
	return nil
}

// Validate performs the strict structural checks: every dependency must
// reference a known task and the graph must be acyclic.
func (g *DependencyGraph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, deps := range g.edges {
		for _, depID := range deps {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on unknown task %s", id, depID)
			}
		}
	}
	if cycle := g.findCycleLocked(); len(cycle) > 0 {
		return fmt.Errorf("%w: %v", ErrCycleDetected, cycle)
	}
	return nil
}

// findCycleLocked runs DFS with coloring and returns the IDs that sit
// on or lead into a cycle, or nil. Caller must hold g.mu.
func (g *DependencyGraph) findCycleLocked() []string {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			if _, exists := g.nodes[depID]; !exists {
				continue
			}
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			var cyclic []string
			for _, cid := range g.order {
				if colors[cid] == 1 {
					cyclic = append(cyclic, cid)
				}
			}
			return cyclic
		}
	}
	return nil
}

// TopologicalSort returns task IDs with every dependency ahead of its
// dependents. Returns ErrCycleDetected if the graph has a cycle.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if cycle := g.findCycleLocked(); len(cycle) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrCycleDetected, cycle)
	}

	visited := make(map[string]bool, len(g.nodes))
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			if _, exists := g.nodes[depID]; exists {
				visit(depID)
			}
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// Ready returns the IDs of pending tasks whose full dependency set is
// completed, in hint order. A failed dependency keeps its dependents
// out of the result permanently.
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if g.completed[id] || g.failed[id] {
			continue
		}
		if g.depsSatisfiedLocked(id) {
			ready = append(ready, id)
		}
	}
	return ready
}

func (g *DependencyGraph) depsSatisfiedLocked(id string) bool {
	for _, depID := range g.edges[id] {
		if !g.completed[depID] {
			return false
		}
	}
	return true
}

// MarkComplete records that a task finished successfully, which may
// unblock its dependents on the next Ready call.
func (g *DependencyGraph) MarkComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[taskID] = true
}

// MarkFailed records that a task terminated with an error. Dependents
// of a failed task never become ready.
func (g *DependencyGraph) MarkFailed(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed[taskID] = true
}

// Task returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) Task(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Order returns the hint order the graph was built with.
func (g *DependencyGraph) Order() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Dependencies returns the IDs the given task depends on.
func (g *DependencyGraph) Dependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[taskID]...)
}

// Dependents returns the IDs of tasks that depend on the given task,
// directly or transitively, in hint order.
func (g *DependencyGraph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	reached := map[string]bool{taskID: true}
	var result []string
	// Fixed-point walk; plans are small enough that repeated passes
	// over the order slice beat maintaining a reverse index.
	for changed := true; changed; {
		changed = false
		for _, id := range g.order {
			if reached[id] {
				continue
			}
			for _, depID := range g.edges[id] {
				if reached[depID] {
					reached[id] = true
					result = append(result, id)
					changed = true
					break
				}
			}
		}
	}
	return result
}

// CompletedIDs returns the IDs of tasks marked complete, in hint order.
func (g *DependencyGraph) CompletedIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for _, id := range g.order {
		if g.completed[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// FailedIDs returns the IDs of tasks marked failed, in hint order.
func (g *DependencyGraph) FailedIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for _, id := range g.order {
		if g.failed[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// Pending returns the IDs of tasks in no terminal state, in hint order.
func (g *DependencyGraph) Pending() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for _, id := range g.order {
		if !g.completed[id] && !g.failed[id] {
			ids = append(ids, id)
		}
	}
	return ids
}
