package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "skein",
	Short: "Dependency-aware parallel task runner",
	Long: `Skein executes a plan of interdependent tasks with a bounded swarm
of parallel workers.

A plan is a YAML file describing tasks, their executor roles, and the
dependencies between them. Skein dispatches every task whose
dependencies have completed, up to the concurrency limit, and keeps
going until the plan drains or nothing can make progress. Failed tasks
block their dependents; cycles and dangling references are reported as
a deadlock instead of hanging.

Typical usage:
  skein init            # scaffold .skein and an example plan
  skein check plan.yaml # validate a plan without running it
  skein run plan.yaml   # execute the plan
  skein status          # inspect recorded runs
  skein stop            # signal the active run to stop`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(versionCmd)
}
