package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	wsclient "github.com/triad-sh/triad/clients/ws"
	"github.com/triad-sh/triad/internal/config"
	"github.com/triad-sh/triad/internal/events"
	wsprotocol "github.com/triad-sh/triad/internal/gateway/ws"
)

// NewEventsCommand returns the events subcommand.
func NewEventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Stream coordination events from a running gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Gateway host",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Gateway port",
			},
			&cli.IntFlag{
				Name:  "history",
				Usage: "Number of recent events to print before following",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "follow",
				Usage: "Keep the connection open and print events as they happen",
				Value: true,
			},
		},
		Action: runEvents,
	}
}

func runEvents(_ context.Context, cmd *cli.Command) error {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		cfg = &config.Config{}
		cfg.Gateway.Host = "127.0.0.1"
		cfg.Gateway.Port = 18430
	}
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = int(cmd.Int("port"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	url := fmt.Sprintf("ws://%s:%d/ws", cfg.Gateway.Host, cfg.Gateway.Port)
	client, err := wsclient.Dial(ctx, url)
	if err != nil {
		return err
	}
	defer client.Close()

	if limit := int(cmd.Int("history")); limit > 0 {
		if err := client.RequestHistory(limit); err != nil {
			return err
		}
	}

	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch frame.Type {
		case wsprotocol.FrameTypeResponse:
			if frame.OK != nil && !*frame.OK {
				fmt.Fprintf(os.Stderr, "gateway error: %s\n", frame.Error)
				continue
			}
			var history []events.Event
			if err := json.Unmarshal(frame.Payload, &history); err != nil {
				slog.Debug("unexpected history payload", "error", err)
				continue
			}
			for _, e := range history {
				printEvent(e.Type, e.WorkerID, e.Payload)
			}
			if !cmd.Bool("follow") {
				return nil
			}
		case wsprotocol.FrameTypeEvent:
			var payload map[string]any
			if len(frame.Payload) > 0 {
				json.Unmarshal(frame.Payload, &payload)
			}
			printEvent(events.EventType(frame.Event), frame.WorkerID, payload)
		}
	}
}

func printEvent(typ events.EventType, workerID string, payload map[string]any) {
	if workerID == "" {
		workerID = "-"
	}
	line := fmt.Sprintf("%-24s %-16s", typ, workerID)
	if len(payload) > 0 {
		data, _ := json.Marshal(payload)
		line += " " + string(data)
	}
	fmt.Println(line)
}
