package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/triad-sh/triad/internal/accounts"
	"github.com/triad-sh/triad/internal/config"
	"github.com/triad-sh/triad/internal/converge"
	"github.com/triad-sh/triad/internal/coordinator"
	"github.com/triad-sh/triad/internal/events"
	"github.com/triad-sh/triad/internal/models"
	"github.com/triad-sh/triad/internal/store"
)

// runtime bundles everything a subcommand needs: the config, the shared
// document store, and the coordination components built over it.
type runtime struct {
	cfg     *config.Config
	store   *store.Store
	bus     *events.Bus
	coord   *coordinator.Coordinator
	pool    *accounts.Pool
	factory *models.Factory
	engine  *converge.Engine
}

// newRuntime loads the config and wires the coordination stack. Missing
// config falls back to defaults so read-only commands work on a fresh host.
func newRuntime(cmd *cli.Command) (*runtime, error) {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Debug("config not found, using defaults", "path", configPath, "error", err)
		cfg = &config.Config{}
		cfg.Gateway.Host = "127.0.0.1"
		cfg.Gateway.Port = 18430
		cfg.Events.BufferSize = 1024
	}

	storeDir := cmd.String("store")
	if storeDir == "" {
		storeDir = StoreDir()
	}

	s := store.New(storeDir)
	bus := events.NewBus(max(cfg.Events.BufferSize, 64))
	factory := models.NewFactory(cfg.Models)

	var engineOpts []converge.Option
	if cfg.Converge.FanIn > 0 {
		engineOpts = append(engineOpts, converge.WithFanIn(cfg.Converge.FanIn))
	}
	if cfg.Converge.DefaultStrategy != "" {
		engineOpts = append(engineOpts, converge.WithDefaultStrategy(converge.Strategy(cfg.Converge.DefaultStrategy)))
	}

	c := coordinator.New(s, bus)
	return &runtime{
		cfg:     cfg,
		store:   s,
		bus:     bus,
		coord:   c,
		pool:    accounts.NewPool(s, bus),
		factory: factory,
		engine:  converge.NewEngine(s, c.Queue, factory, bus, engineOpts...),
	}, nil
}

// Close releases the runtime resources.
func (rt *runtime) Close() {
	rt.bus.Close()
}

// StoreDir is the default location of the shared document store. Pointing
// it at a synchronized folder is what lets workers on different machines
// coordinate.
func StoreDir() string {
	return filepath.Join(config.TriadPath(), "shared")
}
