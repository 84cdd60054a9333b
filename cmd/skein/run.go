package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/skein-dev/skein/internal/body"
	"github.com/skein-dev/skein/internal/config"
	"github.com/skein-dev/skein/internal/control"
	iexec "github.com/skein-dev/skein/internal/exec"
	"github.com/skein-dev/skein/internal/plan"
	"github.com/skein-dev/skein/internal/state"
	"github.com/skein-dev/skein/internal/swarm"
	"github.com/skein-dev/skein/internal/tui"
	"github.com/skein-dev/skein/pkg/models"
)

var (
	runLimit    int
	runHeadless bool
	runNoStore  bool
	runRoot     string
)

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Execute a task plan with parallel workers",
	Long: `Execute every task in the plan, respecting dependencies and the
concurrency limit.

Tasks whose dependencies have all completed are dispatched in plan
order, up to the limit. A failed task permanently blocks its
dependents; the run still finishes whatever else can proceed and
reports the blocked remainder. A plan whose pending tasks can never
become ready (a dependency cycle or a reference to a missing task)
terminates with a deadlock error instead of hanging.

Progress is shown in a live dashboard unless --headless is given.
Run history is recorded in .skein/state.db for 'skein status'.

Exit is non-zero for deadlock and cancellation; a run with ordinary
task failures exits zero and reports a partial outcome.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "Concurrency limit (overrides config)")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run without the dashboard")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "Skip recording the run in .skein/state.db")
	runCmd.Flags().StringVar(&runRoot, "workspace-root", "", "Workspace root directory (overrides config)")
}

func runPlan(cmd *cobra.Command, args []string) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("PANIC in run: %v", r)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if runLimit > 0 {
		cfg.Swarm.Limit = runLimit
	}
	if runRoot != "" {
		cfg.Workspace.Root = runRoot
	}

	p, err := plan.Load(args[0])
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	logger := swarm.NopLogger()
	if os.Getenv("SKEIN_DEBUG") != "" {
		logger, err = swarm.NewDebugLogger(filepath.Join(cwd, ".skein", "debug.log"))
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer logger.Close()
	}

	bodies, err := defaultBodies(cfg)
	if err != nil {
		return err
	}

	opts := []swarm.Option{
		swarm.WithLimit(cfg.Swarm.Limit),
		swarm.WithPollInterval(cfg.Swarm.PollInterval),
		swarm.WithSpawnStagger(cfg.Swarm.SpawnStagger),
		swarm.WithWorkspaceRoot(cfg.Workspace.Root),
		swarm.WithLogger(logger),
	}

	if !runNoStore {
		db, err := state.OpenProject(cwd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: run history disabled: %v\n", err)
		} else {
			defer db.Close()
			if err := db.Migrate(); err != nil {
				return fmt.Errorf("migrate state database: %w", err)
			}
			opts = append(opts, swarm.WithStore(db))
		}
	}

	coord, err := swarm.New(p, bodies, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// File-based stop signal, so 'skein stop' works from another shell.
	watcher, err := control.NewSignalWatcher(cwd)
	if err == nil {
		defer watcher.Close()
		watcher.Clear()
		ctx, cancel = watcher.Bind(ctx, cfg.Swarm.PollInterval)
		defer cancel()
	}

	var summary *models.RunSummary
	var runErr error
	if runHeadless {
		summary, runErr = runHeadlessMode(ctx, coord)
	} else {
		summary, runErr = runWithDashboard(ctx, coord, p, cfg.TUI.RefreshRate)
	}

	printSummary(summary)
	if runErr != nil {
		return runErr
	}
	return nil
}

// defaultBodies wires the built-in executor roles.
func defaultBodies(cfg *config.Config) (*body.Registry, error) {
	reg := body.NewRegistry()
	reg.Register("command", body.NewCommandBody(iexec.NewRunner()))
	reg.Register("template", body.NewTemplateBody())

	// The generate role needs credentials; leave it unregistered when
	// none are available so plans without it still run.
	gen, err := body.NewGenerateBody(cfg.Generation)
	if err == nil {
		reg.Register("generate", gen)
	}
	return reg, nil
}

func runHeadlessMode(ctx context.Context, coord *swarm.Coordinator) (*models.RunSummary, error) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range coord.Events() {
			printEvent(ev)
		}
	}()

	summary, err := coord.Run(ctx)
	<-done
	return summary, err
}

func runWithDashboard(ctx context.Context, coord *swarm.Coordinator, p *plan.Plan, refresh time.Duration) (*models.RunSummary, error) {
	program, _ := tui.NewProgram(p.Name, coord.RunID(), p.Tasks, refresh)

	go tui.ForwardEvents(program, coord.Events())

	type runResult struct {
		summary *models.RunSummary
		err     error
	}
	resultCh := make(chan runResult, 1)
	go func() {
		summary, err := coord.Run(ctx)
		resultCh <- runResult{summary, err}
		program.Send(tui.RunDoneMsg{Summary: summary, Err: err})
	}()

	if _, err := program.Run(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	res := <-resultCh
	return res.summary, res.err
}

func printEvent(ev swarm.Event) {
	stamp := ev.Timestamp.Format("15:04:05")
	switch ev.Type {
	case swarm.EventTaskStarted:
		fmt.Printf("%s started   %s (worker %s)\n", stamp, ev.TaskID, shortID(ev.WorkerID))
	case swarm.EventTaskCompleted:
		color.Green("%s completed %s (%s)", stamp, ev.TaskID, ev.Duration.Round(time.Millisecond))
	case swarm.EventTaskFailed:
		color.Red("%s failed    %s: %v", stamp, ev.TaskID, ev.Err)
	case swarm.EventTaskBlocked:
		color.Yellow("%s blocked   %s: %s", stamp, ev.TaskID, ev.Message)
	case swarm.EventDeadlock:
		color.Red("%s %s", stamp, ev.Message)
	}
}

func printSummary(summary *models.RunSummary) {
	if summary == nil {
		return
	}

	fmt.Println()
	switch summary.Outcome {
	case models.RunOutcomeSuccess:
		color.Green("✓ run %s: all %d tasks completed in %s",
			summary.RunID, summary.Total, summary.Duration.Round(time.Millisecond))
	case models.RunOutcomePartial:
		color.Yellow("⚠ run %s: %d/%d completed, %d failed, %d blocked (%s)",
			summary.RunID, summary.Completed, summary.Total, summary.Failed,
			len(summary.Stuck), summary.Duration.Round(time.Millisecond))
	case models.RunOutcomeDeadlock:
		color.Red("✗ run %s: deadlock after %d/%d tasks",
			summary.RunID, summary.Completed, summary.Total)
	case models.RunOutcomeCancelled:
		color.Yellow("⚠ run %s: cancelled, %d/%d completed",
			summary.RunID, summary.Completed, summary.Total)
	}

	for _, st := range summary.Stuck {
		if st.Detail != "" {
			fmt.Printf("  %s: %s (%s)\n", st.TaskID, st.Reason, st.Detail)
		} else {
			fmt.Printf("  %s: %s\n", st.TaskID, st.Reason)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
