package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/orderflow/internal/config"
	"github.com/aretw0/orderflow/pkg/adapters/loam"
	"github.com/aretw0/orderflow/pkg/rules"
	"github.com/aretw0/orderflow/pkg/stagegraph"
)

// settleDelay lets editors finish writing before the graph is reloaded.
const settleDelay = 100 * time.Millisecond

// Validate loads the configured graph and checks the rule table against it.
// It returns the graph so callers can report on it.
func Validate(ctx context.Context, cfg config.Config) (*stagegraph.Graph, error) {
	g, err := LoadGraph(ctx, cfg)
	if err != nil {
		return nil, err
	}
	table, err := LoadRuleTable(cfg)
	if err != nil {
		return g, err
	}
	if _, err := rules.New(g, table); err != nil {
		return g, fmt.Errorf("rules: %w", err)
	}
	return g, nil
}

// ReportValidation prints the outcome of Validate.
func ReportValidation(w io.Writer, g *stagegraph.Graph, err error) {
	if err != nil {
		printSystemMessage(w, "Validation failed: %v", err)
		return
	}
	printSystemMessage(w, "Graph is valid: %d stages, entry '%s'.", len(g.IDs()), g.Entry())
	for _, id := range g.Unreachable() {
		printSystemMessage(w, "Warning: stage '%s' is unreachable from entry.", id)
	}
}

// WatchStages revalidates the Loam stage repository on every change until ctx
// is cancelled.
func WatchStages(ctx context.Context, cfg config.Config, w io.Writer, logger *slog.Logger) error {
	if cfg.StagesDir == "" {
		return fmt.Errorf("--watch needs a Loam stage directory (stages_dir)")
	}
	src, err := loam.Open(cfg.StagesDir)
	if err != nil {
		return err
	}

	g, err := Validate(ctx, cfg)
	ReportValidation(w, g, err)

	changes, err := src.Watch(ctx)
	if err != nil {
		return err
	}
	logger.Info("Starting Watcher", "path", cfg.StagesDir)
	printSystemMessage(w, "Waiting for changes...")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id, ok := <-changes:
			if !ok {
				return nil
			}
			logger.Info("Change detected, revalidating", "stage", id)
			printSystemMessage(w, "Change detected in '%s'.", id)
			time.Sleep(settleDelay)
			drain(changes)

			g, err := Validate(ctx, cfg)
			ReportValidation(w, g, err)
		}
	}
}

// drain discards events queued while a save burst settles.
func drain(ch <-chan string) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
