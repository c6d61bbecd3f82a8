package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/triad-sh/triad/internal/config"
	"github.com/triad-sh/triad/internal/orchestrator"
)

// NewInitCommand returns the onboarding subcommand.
func NewInitCommand() *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Initialize the Triad home directory (~/.triad)",
		Action: runInit,
	}
}

func runInit(_ context.Context, cmd *cli.Command) error {
	root := config.TriadPath()
	created := false

	// Ensure directories exist.
	dirs := []string{
		root,
		StoreDir(),
		filepath.Join(root, "logs"),
	}
	for _, d := range dirs {
		if _, err := os.Stat(d); err != nil {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", d, err)
			}
			fmt.Printf("  Created %s\n", d)
			created = true
		}
	}

	// Write default config if missing.
	configPath := config.ConfigPath()
	if _, err := os.Stat(configPath); err != nil {
		if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("  Created %s\n", configPath)
		created = true
	}

	// Write default .env if missing.
	dotenvPath := config.DotenvPath()
	if _, err := os.Stat(dotenvPath); err != nil {
		if err := os.WriteFile(dotenvPath, []byte(defaultDotenv), 0o600); err != nil {
			return fmt.Errorf("write .env: %w", err)
		}
		fmt.Printf("  Created %s\n", dotenvPath)
		created = true
	}

	// Write a starter orchestration manifest if missing.
	manifestPath := filepath.Join(root, "manifest.yaml")
	if _, err := os.Stat(manifestPath); err != nil {
		if err := orchestrator.DefaultManifest().Save(manifestPath); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		fmt.Printf("  Created %s\n", manifestPath)
		created = true
	}

	if !created {
		fmt.Printf("Already initialized, %s is complete. Nothing to do.\n", root)
		return nil
	}

	fmt.Printf("\nTriad is ready. Shared store: %s\n", StoreDir())
	fmt.Println("Point --store (or a synced folder) at the same path on every machine that should coordinate.")
	return nil
}

const defaultConfig = `{
	// Triad Configuration

	"gateway": {
		"host": "127.0.0.1",
		"port": 18430
	},

	"models": {
		"default": "anthropic",
		"providers": {
			"anthropic": {
				"driver": "anthropic",
				"model": "claude-sonnet-4-6",
				"auth": {
					"env_var": "ANTHROPIC_API_KEY"
				},
				"max_tokens": 8192
			}
		}
	},

	"events": {
		"buffer_size": 1024
	},

	"worker": {
		// "id": "worker-name",
		"role": "worker",
		"poll_interval": "10s",
		"reassign_on_exit": true
	},

	"converge": {
		"fan_in": 3,
		"default_strategy": "comprehensive"
	},

	"orchestrator": {
		"total_budget": 100,
		"task_multiplier": 1
	}
}
`

const defaultDotenv = `# Triad environment variables
# This file is loaded automatically. Existing env vars are never overridden.

# ANTHROPIC_API_KEY=sk-ant-...
`
