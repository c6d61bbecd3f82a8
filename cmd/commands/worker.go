package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	"github.com/triad-sh/triad/internal/coord"
	"github.com/triad-sh/triad/internal/liveness"
	"github.com/triad-sh/triad/internal/worker"
)

// NewWorkerCommand returns the worker subcommand.
func NewWorkerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run a polling worker against the shared queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "id",
				Usage: "Worker id (default: triad-<hostname>)",
			},
			&cli.StringFlag{
				Name:  "role",
				Usage: "coordinator | synthesizer | worker",
			},
			&cli.IntFlag{
				Name:  "max-tasks",
				Usage: "Stop after completing this many tasks (0 = unbounded)",
			},
		},
		Action: runWorker,
	}
}

func runWorker(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := worker.Config{
		ID:             rt.cfg.Worker.ID,
		Role:           coord.Role(rt.cfg.Worker.Role),
		PollInterval:   rt.cfg.Worker.PollInterval.Duration(),
		MaxTasks:       rt.cfg.Worker.MaxTasks,
		ReassignOnExit: rt.cfg.Worker.ReassignOnExit,
	}
	if cmd.IsSet("id") {
		cfg.ID = cmd.String("id")
	}
	if cmd.IsSet("role") {
		cfg.Role = coord.Role(cmd.String("role"))
	}
	if cmd.IsSet("max-tasks") {
		cfg.MaxTasks = int(cmd.Int("max-tasks"))
	}
	if cfg.ID == "" {
		host, _ := os.Hostname()
		cfg.ID = "triad-" + host
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Background heartbeats keep this worker visible while it polls.
	hb := liveness.NewWriter(rt.coord.Tracker, cfg.ID, 0)
	hb.Start()
	defer hb.Stop()

	w := worker.New(cfg, rt.coord.Queue, rt.coord.Mailbox, rt.coord.Tracker, rt.pool, rt.factory)

	fmt.Printf("Worker %s (%s) polling %s\n", cfg.ID, cfg.Role, rt.store.Dir())
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	fmt.Printf("Worker %s done: %d task(s) completed.\n", cfg.ID, w.Completed())
	return nil
}
