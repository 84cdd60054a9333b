// Package plan loads task graphs from YAML plan files.
//
// A plan is the read-only input boundary of the coordinator: a linear
// ordering of tasks, each with an executor role, dependency list, and
// opaque artifact names. The listing order is the hint order used to
// break ties among simultaneously ready tasks.
package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skein-dev/skein/internal/graph"
	"github.com/skein-dev/skein/pkg/models"
)

// Plan is the full, immutable description of a run's task graph.
type Plan struct {
	// Version is the plan file format version.
	Version int `yaml:"version"`
	// Name identifies the plan in logs and persisted state.
	Name string `yaml:"name"`
	// Tasks lists the tasks in hint order.
	Tasks []*models.Task `yaml:"tasks"`
}

// Load reads and parses a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a plan from YAML bytes and applies the structural
// checks that do not depend on the dependency graph.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	if len(p.Tasks) == 0 {
		return nil, fmt.Errorf("plan contains no tasks")
	}

	seen := make(map[string]bool, len(p.Tasks))
	for i, task := range p.Tasks {
		if task.ID == "" {
			return nil, fmt.Errorf("task %d has no id", i)
		}
		if seen[task.ID] {
			return nil, fmt.Errorf("duplicate task id %q", task.ID)
		}
		seen[task.ID] = true
		if task.Role == "" {
			return nil, fmt.Errorf("task %s has no role", task.ID)
		}
		task.Status = models.TaskStatusPending
	}
	return &p, nil
}

// Graph builds the dependency graph for this plan. The build is
// lenient; call Check for the strict structural validation.
func (p *Plan) Graph() (*graph.DependencyGraph, error) {
	g := graph.New()
	if err := g.Build(p.Tasks); err != nil {
		return nil, err
	}
	return g, nil
}

// Check runs the strict structural validation used by plan linting:
// every dependency must exist and the graph must be acyclic. Runs
// proceed without it; a malformed graph then surfaces as deadlock.
func (p *Plan) Check() error {
	g, err := p.Graph()
	if err != nil {
		return err
	}
	return g.Validate()
}

// TaskIDs returns the task identifiers in hint order.
func (p *Plan) TaskIDs() []string {
	ids := make([]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
