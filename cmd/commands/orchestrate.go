package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/triad-sh/triad/internal/config"
	"github.com/triad-sh/triad/internal/orchestrator"
	"github.com/triad-sh/triad/internal/scheduler"
)

// NewOrchestrateCommand returns the orchestrate subcommand.
func NewOrchestrateCommand() *cli.Command {
	manifestFlag := &cli.StringFlag{
		Name:  "manifest",
		Usage: "Path to the orchestration manifest",
	}
	budgetFlag := &cli.FloatFlag{
		Name:  "budget",
		Usage: "Total budget in dollars for the run",
	}

	return &cli.Command{
		Name:  "orchestrate",
		Usage: "Drive a full coordination run end to end",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Initialize the orchestration state document",
				Flags:  []cli.Flag{budgetFlag},
				Action: runOrchestrateInit,
			},
			{
				Name:   "setup",
				Usage:  "Generate tasks from the manifest",
				Flags:  []cli.Flag{manifestFlag, budgetFlag},
				Action: runOrchestrateSetup,
			},
			{
				Name:  "execute",
				Usage: "Run every claimable task through the runner pool",
				Flags: []cli.Flag{
					budgetFlag,
					&cli.BoolFlag{Name: "dry-run", Usage: "Walk the tasks without calling the delegate"},
				},
				Action: runOrchestrateExecute,
			},
			{
				Name:   "converge",
				Usage:  "Run the convergence phase and write the master output",
				Flags:  []cli.Flag{manifestFlag, budgetFlag},
				Action: runOrchestrateConverge,
			},
			{
				Name:  "full",
				Usage: "Init, setup, execute, and converge in one run",
				Flags: []cli.Flag{
					manifestFlag,
					budgetFlag,
					&cli.BoolFlag{Name: "dry-run", Usage: "Walk the tasks without calling the delegate"},
				},
				Action: runOrchestrateFull,
			},
			{
				Name:   "monitor",
				Usage:  "Print run progress periodically until interrupted",
				Action: runOrchestrateMonitor,
			},
			{
				Name:   "status",
				Usage:  "Show the current orchestration state",
				Action: runOrchestrateStatus,
			},
		},
		DefaultCommand: "status",
	}
}

func newOrchestrator(cmd *cli.Command, rt *runtime) *orchestrator.Orchestrator {
	budget := rt.cfg.Orchestrator.TotalBudget
	if cmd.IsSet("budget") {
		budget = cmd.Float("budget")
	}
	if budget <= 0 {
		budget = 100
	}
	return orchestrator.New(rt.store, rt.coord.Queue, rt.pool, rt.engine, rt.factory, rt.bus, budget)
}

func loadManifest(cmd *cli.Command, rt *runtime) (orchestrator.Manifest, error) {
	path := rt.cfg.Orchestrator.ManifestPath
	if cmd.IsSet("manifest") {
		path = cmd.String("manifest")
	}
	if path == "" {
		path = filepath.Join(config.TriadPath(), "manifest.yaml")
	}

	manifest, err := orchestrator.LoadManifest(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("No manifest at %s, using the default plan.\n", path)
			return orchestrator.DefaultManifest(), nil
		}
		return orchestrator.Manifest{}, fmt.Errorf("load manifest: %w", err)
	}
	if rt.cfg.Orchestrator.TaskMultiplier > 1 && manifest.Multiplier <= 1 {
		manifest.Multiplier = rt.cfg.Orchestrator.TaskMultiplier
	}
	return manifest, nil
}

func runOrchestrateInit(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	state, err := newOrchestrator(cmd, rt).Init()
	if err != nil {
		return fmt.Errorf("init orchestration: %w", err)
	}

	fmt.Printf("Orchestration initialized (phase %s, budget $%.2f).\n",
		state.Phase, state.Metrics.TotalBudget)
	return nil
}

func runOrchestrateSetup(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	manifest, err := loadManifest(cmd, rt)
	if err != nil {
		return err
	}

	n, err := newOrchestrator(cmd, rt).Setup(manifest)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	fmt.Printf("Generated %d task(s) from manifest %q.\n", n, manifest.Project)
	return nil
}

func runOrchestrateExecute(ctx context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := newOrchestrator(cmd, rt).Execute(ctx, cmd.Bool("dry-run"))
	printPhaseResult("Execution", result)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	return nil
}

func runOrchestrateConverge(ctx context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	manifest, err := loadManifest(cmd, rt)
	if err != nil {
		return err
	}

	result, err := newOrchestrator(cmd, rt).Converge(ctx, manifest)
	printPhaseResult("Convergence", result)
	if err != nil {
		return fmt.Errorf("converge: %w", err)
	}

	fmt.Printf("Master output: %s\n", filepath.Join(rt.store.Dir(), orchestrator.MasterOutputFile))
	return nil
}

func runOrchestrateFull(ctx context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	manifest, err := loadManifest(cmd, rt)
	if err != nil {
		return err
	}

	state, err := newOrchestrator(cmd, rt).Run(ctx, manifest, cmd.Bool("dry-run"))
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	fmt.Printf("Run complete: %d/%d tasks, %d convergence(s), $%.2f used of $%.2f.\n",
		state.Metrics.TasksCompleted, state.Metrics.TasksGenerated,
		state.Metrics.ConvergencesCompleted,
		state.Metrics.BudgetUsed, state.Metrics.TotalBudget)
	return nil
}

func runOrchestrateMonitor(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	orch := newOrchestrator(cmd, rt)

	sched := scheduler.New(rt.bus, time.Second)
	sched.Add(scheduler.Job{
		Name:  "monitor",
		Every: 10 * time.Second,
		Run: func(context.Context) error {
			state, err := orch.State()
			if err != nil {
				return err
			}
			fmt.Printf("[%s] phase=%s tasks=%d/%d budget=$%.2f/$%.2f\n",
				time.Now().Format("15:04:05"),
				state.Phase,
				state.Metrics.TasksCompleted, state.Metrics.TasksGenerated,
				state.Metrics.BudgetUsed, state.Metrics.TotalBudget)
			return nil
		},
	})
	sched.Start(ctx)
	defer sched.Stop()

	<-ctx.Done()
	return nil
}

func runOrchestrateStatus(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	state, err := newOrchestrator(cmd, rt).State()
	if err != nil {
		return fmt.Errorf("orchestration state: %w", err)
	}
	if state.Phase == "" {
		fmt.Println("No orchestration run found. Start one with: triad orchestrate init")
		return nil
	}

	fmt.Printf("Phase:        %s\n", state.Phase)
	fmt.Printf("Initialized:  %s\n", state.Initialized.Format("2006-01-02 15:04:05"))
	fmt.Printf("Last updated: %s\n", state.LastUpdated.Format("2006-01-02 15:04:05"))
	fmt.Printf("Tasks:        %d generated, %d completed, %d failed\n",
		state.Metrics.TasksGenerated, state.Metrics.TasksCompleted, state.Metrics.TasksFailed)
	fmt.Printf("Convergences: %d completed, %d failed\n",
		state.Metrics.ConvergencesCompleted, state.Metrics.ConvergencesFailed)
	fmt.Printf("Budget:       $%.2f used of $%.2f\n",
		state.Metrics.BudgetUsed, state.Metrics.TotalBudget)
	return nil
}

func printPhaseResult(phase string, result orchestrator.PhaseResult) {
	fmt.Printf("%s: %d succeeded, %d failed ($%.4f).\n",
		phase, result.Succeeded, result.Failed, result.TotalCost)
	for key, msg := range result.Errors {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", key, msg)
	}
}
