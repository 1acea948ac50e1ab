package app

import (
	"context"
	"fmt"

	"github.com/vk/dynagrid/internal/ctxlog"
	"github.com/vk/dynagrid/internal/engine"
	"github.com/vk/dynagrid/internal/nodeid"
)

// Run executes one expansion run and prints any requested results.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if len(a.grid.Nodes) == 0 {
		a.logger.Warn("No nodes declared in grid, execution not required.")
		return nil
	}

	a.logger.Info("🚀 Starting expansion run...", "nodes", len(a.grid.Nodes), "cap", a.config.Cap)
	report, err := a.engine.Run(ctx, engine.RunOptions{Cap: a.config.Cap})
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	failures := 0
	for _, s := range report.Nodes {
		a.logger.Info("Node reconciled.",
			"node", s.Node,
			"reused", s.Reused,
			"to_build", s.ToBuild,
			"retained_unbuilt", s.RetainedUnbuilt,
			"failures", len(s.Failures))
		failures += len(s.Failures)
	}
	if failures > 0 {
		a.logger.Warn("Run finished with isolated sub-unit failures.", "count", failures)
	} else {
		a.logger.Info("🏁 Run finished.")
	}

	return a.show()
}

// show prints the results requested via the Show addresses, one per line.
func (a *App) show() error {
	for _, raw := range a.config.Show {
		addr, err := nodeid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid show address %q: %w", raw, err)
		}

		var indices []int
		if addr.HasIndex() {
			indices = []int{addr.Index}
		}
		results, err := a.engine.Results(addr.Node, indices...)
		if err != nil {
			return fmt.Errorf("show %q: %w", raw, err)
		}

		if addr.HasIndex() {
			fmt.Fprintf(a.outW, "%s = %s\n", addr.String(), results[0].GoString())
			continue
		}
		for i, v := range results {
			fmt.Fprintf(a.outW, "%s = %s\n", nodeid.Sub(addr.Node, i).String(), v.GoString())
		}
	}
	return nil
}
