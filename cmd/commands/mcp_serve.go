package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	triadmcp "github.com/triad-sh/triad/internal/mcp"
)

// NewMCPServeCommand returns the mcp-serve subcommand.
func NewMCPServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "mcp-serve",
		Usage:  "Expose the coordination tools as an MCP server (stdio)",
		Action: runMCPServe,
	}
}

func runMCPServe(_ context.Context, cmd *cli.Command) error {
	// Log to stderr, stdout carries the MCP stdio transport.
	level := slog.LevelWarn
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	slog.Debug("starting MCP server", "store", rt.store.Dir())

	server := triadmcp.NewServer(rt.coord)
	return server.Run(context.Background(), &mcpsdk.StdioTransport{})
}
