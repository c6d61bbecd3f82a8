package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/triad-sh/triad/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "triad",
		Usage: "Multi-worker task coordination and hierarchical convergence",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Shared document store directory",
				Value: StoreDir(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewInitCommand(),
			NewServeCommand(),
			NewMCPServeCommand(),
			NewStatusCommand(),
			NewTaskCommand(),
			NewMessageCommand(),
			NewEventsCommand(),
			NewAccountsCommand(),
			NewConvergeCommand(),
			NewOrchestrateCommand(),
			NewWorkerCommand(),
		},
	}
}
