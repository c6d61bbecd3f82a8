package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/triad-sh/triad/internal/gateway"
	"github.com/triad-sh/triad/internal/scheduler"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Triad gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
			&cli.BoolFlag{
				Name:  "auto-converge",
				Usage: "Periodically create cluster convergences when outputs accumulate",
			},
		},
		Action: runServe,
	}
}

func runServe(_ context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	// CLI flags override config
	if cmd.IsSet("host") {
		rt.cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		rt.cfg.Gateway.Port = int(cmd.Int("port"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cmd.Bool("auto-converge") {
		sched := scheduler.New(rt.bus, time.Second)
		sched.Add(scheduler.Job{
			Name:  "auto-converge",
			Every: 30 * time.Second,
			Run: func(ctx context.Context) error {
				res, err := rt.engine.AutoConverge(false)
				if err != nil {
					return err
				}
				if len(res.Created) > 0 {
					slog.Info("auto-converge created convergences", "clusters", res.Created)
				}
				return nil
			},
		})
		sched.Start(ctx)
		defer sched.Stop()
	}

	server := gateway.NewServer(rt.coord, rt.bus, rt.cfg.Gateway.Host, rt.cfg.Gateway.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
