package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/skein-dev/skein/internal/state"
)

var statusRunID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recorded runs",
	Long: `Display the recorded run history for this project.

With no flags, shows the most recent run in detail plus a short list
of earlier runs. Use --run to inspect a specific run.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusRunID, "run", "", "Show a specific run by ID")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	if _, err := os.Stat(state.ProjectDBPath(cwd)); os.IsNotExist(err) {
		fmt.Println("No recorded runs. Run 'skein run <plan>' to start.")
		return nil
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state database: %w", err)
	}

	var run *state.Run
	if statusRunID != "" {
		run, err = db.GetRun(statusRunID)
	} else {
		run, err = db.LatestRun()
	}
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Println("No recorded runs. Run 'skein run <plan>' to start.")
		return nil
	}

	if err := displayRun(db, run); err != nil {
		return err
	}

	if statusRunID == "" {
		return displayRecentRuns(db, run.ID)
	}
	return nil
}

func displayRun(db *state.DB, run *state.Run) error {
	fmt.Printf("Run %s  plan=%s  started %s\n",
		run.ID, run.PlanName, run.StartedAt.Format("2006-01-02 15:04:05"))

	switch run.Outcome {
	case "success":
		color.Green("  outcome: success (%d/%d in %s)", run.Completed, run.TotalTasks, run.Duration.Round(time.Millisecond))
	case "running":
		color.Cyan("  outcome: still running")
	case "deadlock":
		color.Red("  outcome: deadlock (%d/%d completed)", run.Completed, run.TotalTasks)
	default:
		color.Yellow("  outcome: %s (%d completed, %d failed of %d)",
			run.Outcome, run.Completed, run.Failed, run.TotalTasks)
	}

	records, err := db.ListResults(run.ID)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.Success {
			fmt.Printf("    ✓ %-20s %s\n", rec.TaskID, rec.Duration.Round(time.Millisecond))
		} else {
			color.Red("    ✗ %-20s %s", rec.TaskID, rec.Error)
		}
	}

	stuck, err := db.ListStuck(run.ID)
	if err != nil {
		return err
	}
	for _, st := range stuck {
		if st.Detail != "" {
			color.Yellow("    ⊘ %-20s %s (%s)", st.TaskID, st.Reason, st.Detail)
		} else {
			color.Yellow("    ⊘ %-20s %s", st.TaskID, st.Reason)
		}
	}
	return nil
}

func displayRecentRuns(db *state.DB, currentID string) error {
	runs, err := db.ListRuns(10)
	if err != nil {
		return err
	}
	if len(runs) <= 1 {
		return nil
	}

	fmt.Println("\nEarlier runs:")
	for _, r := range runs {
		if r.ID == currentID {
			continue
		}
		fmt.Printf("  %s  %-10s %-9s %d/%d  %s\n",
			r.StartedAt.Format("2006-01-02 15:04"), r.PlanName, r.Outcome,
			r.Completed, r.TotalTasks, r.ID)
	}
	return nil
}
