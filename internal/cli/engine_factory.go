package cli

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aretw0/orderflow"
	"github.com/aretw0/orderflow/internal/config"
	"github.com/aretw0/orderflow/pkg/adapters/loam"
	"github.com/aretw0/orderflow/pkg/adapters/memory"
	"github.com/aretw0/orderflow/pkg/adapters/redis"
	"github.com/aretw0/orderflow/pkg/adapters/scripted"
	"github.com/aretw0/orderflow/pkg/rules"
	"github.com/aretw0/orderflow/pkg/stagegraph"
)

// Runtime bundles an engine with the resources the CLI must release.
type Runtime struct {
	Engine  *orderflow.Engine
	Catalog *memory.Catalog

	closers []func() error
}

// Close releases external connections.
func (r *Runtime) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LoadGraph resolves the stage graph the configuration points at: a YAML
// declaration, a Loam repository or the built-in graph, with the entry
// override applied.
func LoadGraph(ctx context.Context, cfg config.Config) (*stagegraph.Graph, error) {
	var (
		g   *stagegraph.Graph
		err error
	)
	switch {
	case cfg.StagesFile != "":
		g, err = stagegraph.LoadFile(cfg.StagesFile)
	case cfg.StagesDir != "":
		var src *loam.Source
		src, err = loam.Open(cfg.StagesDir)
		if err == nil {
			g, err = src.Load(ctx)
		}
	default:
		g, err = stagegraph.Default()
	}
	if err != nil {
		return nil, err
	}

	if cfg.EntryStage != "" && cfg.EntryStage != g.Entry() {
		return stagegraph.New(cfg.EntryStage, g.Stages()...)
	}
	return g, nil
}

// BuildEngine creates an engine with standard CLI conventions.
func BuildEngine(ctx context.Context, cfg config.Config, logger *slog.Logger, extra ...orderflow.Option) (*Runtime, error) {
	g, err := LoadGraph(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error loading stages: %w", err)
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	table, err := LoadRuleTable(cfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Catalog: catalog}
	opts := []orderflow.Option{
		orderflow.WithRuleTable(table),
		orderflow.WithGraph(g),
		orderflow.WithCatalog(catalog),
		orderflow.WithKnowledge(catalog),
		orderflow.WithLogger(logger),
		orderflow.WithBackendTimeout(cfg.Backend.Timeout),
		orderflow.WithMaxInputSize(cfg.MaxInputSize),
	}

	if cfg.Backend.Script != "" {
		script, err := scripted.LoadScript(cfg.Backend.Script)
		if err != nil {
			return nil, fmt.Errorf("error loading backend script: %w", err)
		}
		opts = append(opts, orderflow.WithBackend(scripted.NewFromScript(script)))
		logger.Info("Scripted backend enabled", "path", cfg.Backend.Script, "entries", len(script.Entries))
	}

	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("error connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		rt.closers = append(rt.closers, client.Close)
		opts = append(opts, orderflow.WithLocker(redis.NewLocker(client, cfg.Redis.Prefix), cfg.Redis.LockTTL))
		logger.Info("Distributed locking enabled", "addr", cfg.Redis.Addr)
	}

	eng, err := orderflow.New(append(opts, extra...)...)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	rt.Engine = eng
	return rt, nil
}

// LoadRuleTable reads the configured rule table or the built-in one.
func LoadRuleTable(cfg config.Config) (rules.Table, error) {
	if cfg.RulesFile == "" {
		return rules.DefaultTable()
	}
	t, err := rules.LoadTable(cfg.RulesFile)
	if err != nil {
		return rules.Table{}, fmt.Errorf("error loading rules: %w", err)
	}
	return t, nil
}

func loadCatalog(cfg config.Config) (*memory.Catalog, error) {
	if cfg.CatalogFile == "" {
		return memory.DefaultCatalog()
	}
	c, err := memory.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("error loading catalog: %w", err)
	}
	return c, nil
}
