package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bizvista/review-engine/api"
	"github.com/bizvista/review-engine/config"
	"github.com/bizvista/review-engine/llm"
	"github.com/bizvista/review-engine/narrative"
	"github.com/bizvista/review-engine/refresh"
	"github.com/bizvista/review-engine/store/sqlite"
)

// app is the wired service graph shared by every command.
type app struct {
	cfg         config.Config
	logger      *slog.Logger
	store       *sqlite.Store
	narratives  *narrative.Service
	coordinator *refresh.Coordinator
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newApp opens the store and wires generation, caching and refresh.
func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := sqlite.New(cfg.Server.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gen, err := llm.New(cfg.LLM.Config)
	if err != nil {
		store.Close()
		return nil, err
	}
	gen = llm.Wrap(gen, llm.Retry(cfg.LLM.Retries, cfg.LLM.Backoff, logger))

	cache, err := narrative.NewLRUCache(cfg.Narrative.CacheSize, narrative.StoreCache{Store: store})
	if err != nil {
		store.Close()
		return nil, err
	}

	narratives := narrative.NewService(gen,
		narrative.WithCache(cache),
		narrative.WithOptions(cfg.NarrativeOptions()),
		narrative.WithLogger(logger),
	)
	coordinator := refresh.NewCoordinator(store, narratives,
		refresh.WithMinReviews(cfg.Refresh.MinReviews),
		refresh.WithTimeout(cfg.Refresh.Timeout),
		refresh.WithLogger(logger),
	)

	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		narratives:  narratives,
		coordinator: coordinator,
	}, nil
}

func (a *app) handler() *api.Handler {
	h := api.NewHandler(a.store, a.coordinator, a.narratives)
	h.QueryTimeout = a.cfg.Narrative.QueryTimeout
	h.Logger = a.logger
	return h
}

func (a *app) scheduler() (*api.RefreshScheduler, error) {
	periods, err := a.cfg.SchedulerPeriods()
	if err != nil {
		return nil, err
	}
	rs := api.NewRefreshScheduler(a.store, a.coordinator)
	rs.Enabled = a.cfg.Scheduler.Enabled
	rs.CheckInterval = a.cfg.Scheduler.Interval
	rs.Periods = periods
	rs.Logger = a.logger
	return rs, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
