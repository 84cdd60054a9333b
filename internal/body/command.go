package body

import (
	"context"
	"fmt"
	"strings"

	iexec "github.com/skein-dev/skein/internal/exec"
)

// CommandBody runs the task's declared shell command inside the
// worker's workspace.
type CommandBody struct {
	runner iexec.CommandRunner
}

// NewCommandBody creates a CommandBody using the given runner.
func NewCommandBody(runner iexec.CommandRunner) *CommandBody {
	return &CommandBody{runner: runner}
}

// Run executes the task's command with SKEIN_TASK_ID exported and the
// workspace as working directory.
func (b *CommandBody) Run(ctx context.Context, inv Invocation) (Outcome, error) {
	if strings.TrimSpace(inv.Command) == "" {
		return Outcome{}, fmt.Errorf("task %s has no command", inv.TaskID)
	}

	env := []string{"SKEIN_TASK_ID=" + inv.TaskID}
	out, err := b.runner.RunShell(ctx, inv.Workspace, env, inv.Command)
	if err != nil {
		return Outcome{Output: string(out)}, fmt.Errorf("command failed: %w", err)
	}
	return Outcome{Output: string(out), Outputs: inv.Outputs}, nil
}

var _ Body = (*CommandBody)(nil)
