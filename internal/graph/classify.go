package graph

import (
	"github.com/skein-dev/skein/pkg/models"
)

type stuckResult struct {
	reason models.StuckReason
	detail string
}

// Classify explains why each non-terminal task can never become ready.
// It separates the expected operational case (an upstream dependency
// failed) from the malformed-graph case (a dependency cycle or a
// reference to a task that does not exist).
//
// It is meant to be called when the coordinator observes a stall: no
// task active, none ready, pending tasks remaining.
func (g *DependencyGraph) Classify() []models.StuckTask {
	g.mu.RLock()
	defer g.mu.RUnlock()

	memo := make(map[string]stuckResult, len(g.nodes))
	visiting := make(map[string]bool, len(g.nodes))

	var stuck []models.StuckTask
	for _, id := range g.order {
		if g.completed[id] || g.failed[id] {
			continue
		}
		res := g.classifyLocked(id, memo, visiting)
		if res.reason == "" {
			// Deps are satisfiable; the task is merely waiting. Not
			// expected at a genuine stall, but never misreport it.
			continue
		}
		stuck = append(stuck, models.StuckTask{
			TaskID: id,
			Reason: res.reason,
			Detail: res.detail,
		})
	}
	return stuck
}

// classifyLocked walks the unmet dependency chain of id. Caller must
// hold g.mu.
func (g *DependencyGraph) classifyLocked(id string, memo map[string]stuckResult, visiting map[string]bool) stuckResult {
	if res, ok := memo[id]; ok {
		return res
	}
	visiting[id] = true
	defer delete(visiting, id)

	var res stuckResult
	for _, depID := range g.edges[id] {
		if g.completed[depID] {
			continue
		}
		if g.failed[depID] {
			res = stuckResult{reason: models.StuckDependencyFailed, detail: depID}
			break
		}
		if _, exists := g.nodes[depID]; !exists {
			res = stuckResult{reason: models.StuckUnreachable, detail: "unknown dependency " + depID}
			break
		}
		if visiting[depID] {
			res = stuckResult{reason: models.StuckUnreachable, detail: "dependency cycle via " + depID}
			break
		}
		if sub := g.classifyLocked(depID, memo, visiting); sub.reason != "" {
			// The upstream explanation propagates down the chain.
			res = sub
			break
		}
	}

	memo[id] = res
	return res
}
