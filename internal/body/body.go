// Package body defines the task body contract and the built-in body
// implementations.
//
// A task body is the domain logic a worker executes. The coordinator is
// oblivious to what a body does; it only consumes the success/failure
// outcome and duration the worker reports.
package body

import (
	"context"
	"fmt"
	"sync"
)

// Invocation carries everything a body receives for one task. All
// fields except Workspace come straight from the plan, unmodified.
type Invocation struct {
	// TaskID is the task's unique identifier.
	TaskID string
	// Role is the executor role the body was selected by.
	Role string
	// Title is the task's short description.
	Title string
	// Description is the task's detailed instructions.
	Description string
	// Command is the task's declared shell command, if any.
	Command string
	// Inputs lists the declared input artifact names.
	Inputs []string
	// Outputs lists the declared output artifact names.
	Outputs []string
	// Workspace is the worker's private working directory.
	Workspace string
}

// Outcome is what a body hands back to its worker.
type Outcome struct {
	// Output is the captured output of the body, if any.
	Output string
	// Outputs lists the artifact names the body produced.
	Outputs []string
}

// Body runs one task to completion. Implementations must terminate
// (success or error) and honor ctx cancellation.
type Body interface {
	Run(ctx context.Context, inv Invocation) (Outcome, error)
}

// Registry maps executor roles to body implementations.
type Registry struct {
	mu     sync.RWMutex
	bodies map[string]Body
}

// NewRegistry creates an empty body registry.
func NewRegistry() *Registry {
	return &Registry{bodies: make(map[string]Body)}
}

// Register binds a role to a body implementation, replacing any
// previous binding.
func (r *Registry) Register(role string, b Body) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies[role] = b
}

// Lookup returns the body bound to a role.
func (r *Registry) Lookup(role string) (Body, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bodies[role]
	if !ok {
		return nil, fmt.Errorf("no task body registered for role %q", role)
	}
	return b, nil
}

// Roles returns the registered role names.
func (r *Registry) Roles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles := make([]string, 0, len(r.bodies))
	for role := range r.bodies {
		roles = append(roles, role)
	}
	return roles
}
