// Package app wires the SmartQuery engine's services together.
package app

import (
	"github.com/AryanB1/SmartQuery/internal/config"
	"github.com/AryanB1/SmartQuery/internal/index"
	"github.com/AryanB1/SmartQuery/internal/ingest"
	"github.com/AryanB1/SmartQuery/internal/observability"
	"github.com/AryanB1/SmartQuery/internal/query"
	"github.com/AryanB1/SmartQuery/internal/storage"
)

// App owns the assembled engine: store, metrics, index manager, ingest and
// query services.
type App struct {
	Config  *config.Config
	Store   *storage.ColumnStore
	Metrics *observability.Metrics
	Indexes *index.Manager
	Ingest  *ingest.Service
	Query   *query.Service
}

// New builds the engine from a validated configuration. The ingest flusher,
// adaptive tick loop, and builder pool start immediately.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := storage.NewColumnStore()
	metrics := observability.NewMetrics()

	indexes := index.NewManager(index.Config{
		MemoryBudgetMB: cfg.Index.MemoryBudgetMB,
		MaxNewPerTick:  cfg.Index.MaxNewPerTick,
		StaleDrop:      cfg.Index.StaleDrop(),
		AdaptiveTick:   cfg.Index.AdaptiveTick(),
		BuildWorkers:   cfg.Index.BuildWorkers,
	}, metrics)

	ingestSvc := ingest.NewService(store, indexes, metrics, ingest.Config{
		BatchSize:     cfg.Ingest.BatchSize,
		FlushInterval: cfg.Ingest.FlushInterval(),
	})

	querySvc := query.NewService(store, indexes, metrics, query.Config{
		PlanCacheSize: cfg.Query.PlanCacheSize,
	})

	return &App{
		Config:  cfg,
		Store:   store,
		Metrics: metrics,
		Indexes: indexes,
		Ingest:  ingestSvc,
		Query:   querySvc,
	}, nil
}

// Shutdown stops the ingest scheduler (with a final flush) and then the
// index manager.
func (a *App) Shutdown() {
	a.Ingest.Stop()
	a.Indexes.Shutdown()
}
