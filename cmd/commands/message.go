package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// NewMessageCommand returns the message subcommand.
func NewMessageCommand() *cli.Command {
	return &cli.Command{
		Name:  "message",
		Usage: "Send and receive worker messages",
		Commands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "Send a message to a worker",
				ArgsUsage: "<to> <body>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Usage: "Sender worker id", Value: "cli"},
				},
				Action: runMessageSend,
			},
			{
				Name:      "broadcast",
				Usage:     "Send a message to every worker",
				ArgsUsage: "<body>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Usage: "Sender worker id", Value: "cli"},
				},
				Action: runMessageBroadcast,
			},
			{
				Name:      "receive",
				Usage:     "Fetch unread messages for a worker and mark them read",
				ArgsUsage: "<worker_id>",
				Action:    runMessageReceive,
			},
			{
				Name:      "wake",
				Usage:     "Send a wake signal to a worker",
				ArgsUsage: "<worker_id> [reason]",
				Action:    runMessageWake,
			},
		},
	}
}

func runMessageSend(_ context.Context, cmd *cli.Command) error {
	to := cmd.Args().Get(0)
	body := cmd.Args().Get(1)
	if to == "" || body == "" {
		return fmt.Errorf("usage: triad message send <to> <body>")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	msg, err := rt.coord.Mailbox.Send(to, body, cmd.String("from"))
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	fmt.Printf("Message %s sent to %s.\n", msg.ID, msg.To)
	return nil
}

func runMessageBroadcast(_ context.Context, cmd *cli.Command) error {
	body := cmd.Args().First()
	if body == "" {
		return fmt.Errorf("usage: triad message broadcast <body>")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	msg, err := rt.coord.Mailbox.SendBroadcast(body, cmd.String("from"))
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}

	fmt.Printf("Broadcast %s sent.\n", msg.ID)
	return nil
}

func runMessageReceive(_ context.Context, cmd *cli.Command) error {
	workerID := cmd.Args().First()
	if workerID == "" {
		return fmt.Errorf("usage: triad message receive <worker_id>")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	msgs, err := rt.coord.Mailbox.Receive(workerID)
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}

	if len(msgs) == 0 {
		fmt.Println("No unread messages.")
		return nil
	}
	for _, m := range msgs {
		fmt.Printf("[%s] %s -> %s: %s\n", m.Timestamp.Format("15:04:05"), m.From, m.To, m.Body)
	}
	return nil
}

func runMessageWake(_ context.Context, cmd *cli.Command) error {
	workerID := cmd.Args().First()
	if workerID == "" {
		return fmt.Errorf("usage: triad message wake <worker_id> [reason]")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	msg, err := rt.coord.Mailbox.Wake(workerID, cmd.Args().Get(1), "cli")
	if err != nil {
		return fmt.Errorf("wake: %w", err)
	}

	fmt.Printf("Wake signal sent to %s: %s\n", msg.To, msg.Body)
	return nil
}
