package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the coordination system status",
		Action: func(_ context.Context, cmd *cli.Command) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			st, err := rt.coord.Status()
			if err != nil {
				return fmt.Errorf("read status: %w", err)
			}

			fmt.Printf("Status:    %s\n", st.Status)
			fmt.Printf("Store:     %s\n", st.StorePath)
			fmt.Printf("Host:      %s\n", st.Host)
			fmt.Printf("Messages:  %d total, %d unread\n", st.Messages.Total, st.Messages.Unread)
			fmt.Printf("Tasks:     %d total (%d pending, %d active, %d completed)\n",
				st.Tasks.Total, st.Tasks.Pending, st.Tasks.Active, st.Tasks.Completed)
			fmt.Printf("Outputs:   %d\n", st.Outputs)

			if len(st.ActiveWorkers) == 0 {
				fmt.Println("Workers:   none active")
				return nil
			}
			fmt.Printf("Workers:   %d active\n", len(st.ActiveWorkers))
			for _, w := range st.ActiveWorkers {
				fmt.Printf("  %s (%s, last seen %s ago)\n",
					w.ID, w.Host, time.Since(w.LastSeen).Truncate(time.Second))
			}
			return nil
		},
	}
}
