package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/dynagrid/internal/ctxlog"
	"github.com/vk/dynagrid/internal/engine"
	"github.com/vk/dynagrid/internal/expand"
	"github.com/vk/dynagrid/internal/gridfile"
	"github.com/zclconf/go-cty/cty"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	grid   *gridfile.Grid
	engine *engine.Engine
	config *Config
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and a
// populated engine. A failure to load or register the grid is a fatal
// startup error and panics; the entrypoint recovers it into a clean exit.
func NewApp(outW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	grid, err := gridfile.Load(ctx, cfg.GridPath)
	if err != nil {
		panic(fmt.Errorf("failed to load grid: %w", err))
	}
	logger.Debug("Grid loaded.", "values", len(grid.Values), "nodes", len(grid.Nodes))

	policy := engine.FailAggregate
	if cfg.MissingMembers == "skip" {
		policy = engine.SkipMissing
	}
	eng := engine.New(engine.Options{
		Workers:        cfg.WorkerCount,
		MissingMembers: policy,
	})

	for name, v := range grid.Values {
		if err := eng.SetValue(name, v); err != nil {
			panic(fmt.Errorf("failed to register value %q: %w", name, err))
		}
	}
	for _, n := range grid.Nodes {
		if err := eng.AddNode(n.Declaration(), exprBuild(n)); err != nil {
			panic(fmt.Errorf("failed to register node %q: %w", n.Name, err))
		}
	}
	logger.Debug("Engine populated from grid.")

	return &App{
		outW:   outW,
		logger: logger,
		grid:   grid,
		engine: eng,
		config: cfg,
	}
}

// Engine returns the application's engine. This is primarily for testing.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// exprBuild adapts a node block's expr into the engine's build function.
func exprBuild(n *gridfile.Node) engine.BuildFunc {
	return func(ctx context.Context, su expand.Subunit) (cty.Value, error) {
		return n.Evaluate(su.Slices)
	}
}
