package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/skein-dev/skein/internal/plan"
)

var checkCmd = &cobra.Command{
	Use:   "check <plan.yaml>",
	Short: "Validate a plan without running it",
	Long: `Parse a plan and verify it is well-formed: unique task IDs, no
dependencies on missing tasks, and no dependency cycles.

The run command itself tolerates a malformed graph (it terminates with
a deadlock report instead of hanging); check catches those mistakes
before any worker is spawned.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	p, err := plan.Load(args[0])
	if err != nil {
		return err
	}

	if err := p.Check(); err != nil {
		return fmt.Errorf("plan %s: %w", args[0], err)
	}

	color.Green("✓ plan %q is valid: %d tasks", p.Name, len(p.Tasks))
	return nil
}
