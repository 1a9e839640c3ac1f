package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/michaelpento.lv/miniswap/config"
	"github.com/michaelpento.lv/miniswap/events"
	"github.com/michaelpento.lv/miniswap/indexer"
	"github.com/michaelpento.lv/miniswap/simulator"
	"github.com/michaelpento.lv/miniswap/store"
	"github.com/michaelpento.lv/miniswap/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const indexPruneInterval = time.Minute

// runtime is a deployment with every event consumer attached to its bus
type runtime struct {
	cfg      *config.Config
	env      *simulator.Env
	sim      *simulator.Simulator
	registry *prometheus.Registry
	metrics  *metrics.AMMMetrics
	indexer  *indexer.EventIndexer
	journal  *store.Journal
	logger   *zap.Logger
}

func newRuntime(cfg *config.Config, logger *zap.Logger) (*runtime, error) {
	env, err := simulator.NewEnv(cfg, time.Now())
	if err != nil {
		return nil, err
	}

	idx, err := indexer.NewEventIndexer(&indexer.IndexConfig{
		MaxSize:       cfg.Indexer.CacheSize,
		PruneInterval: indexPruneInterval,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}

	journal, err := openJournal(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	registry := metrics.NewRegistry()
	amm := metrics.NewAMMMetrics(registry, cfg.Metrics.Namespace)

	env.Bus.Subscribe(events.LogHandler(logger))
	env.Bus.Subscribe(amm.Handle)
	env.Bus.Subscribe(idx.Index)
	env.Bus.Subscribe(journal.Handler(logger))

	return &runtime{
		cfg:      cfg,
		env:      env,
		sim:      simulator.NewSimulator(env, &cfg.Simulator, logger).WithObserver(amm),
		registry: registry,
		metrics:  amm,
		indexer:  idx,
		journal:  journal,
		logger:   logger,
	}, nil
}

// openJournal opens the journal at path, or an in-memory one when path is
// empty. Sequence numbers restart with every run, so an existing journal must
// be empty.
func openJournal(path string) (*store.Journal, error) {
	if path == "" {
		return store.OpenMemory()
	}

	journal, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if head := journal.Head(); head > 0 {
		journal.Close()
		return nil, fmt.Errorf("journal %s already holds events up to %d", path, head)
	}
	return journal, nil
}

// run loads the scenario at path and executes it
func (r *runtime) run(ctx context.Context, path string) (*simulator.Report, error) {
	sc, err := simulator.LoadScenario(path)
	if err != nil {
		return nil, err
	}

	report, err := r.sim.Run(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to run scenario: %w", err)
	}

	r.logger.Info("Scenario complete",
		zap.String("scenario", report.Scenario),
		zap.Int("steps", len(report.Steps)),
		zap.Int("failed", report.Failed()),
		zap.Uint64("events", report.Events),
		zap.Int("indexed", r.indexer.Len()),
		zap.Uint64("journaled", r.journal.Head()))

	return report, nil
}

func (r *runtime) Close() error {
	return r.journal.Close()
}
