/*
scheduler.go - Background refresh scheduler

PURPOSE:
  Periodically re-analyzes every business for the configured periods so the
  dashboard's stored scores, trends and insights stay current without a
  manual refresh.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Refreshes every (business, period) pair through the RefreshCoordinator
  - A pair whose refresh is already running is skipped, not queued
  - Insufficient-data outcomes are expected and only counted

CONFIGURATION:
  - CheckInterval: How often to run (default: 6 hours)
  - Periods: Which periods to refresh (default: all)
  - Enabled: Whether scheduler is active (default: false)

USAGE:
  scheduler := NewRefreshScheduler(store, coordinator)
  scheduler.Enabled = true
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRefresh endpoint (manual refresh)
  - refresh/coordinator.go: Coordinator.Refresh
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bizvista/review-engine/refresh"
	"github.com/bizvista/review-engine/review"
)

// DefaultCheckInterval is how often the scheduler runs when enabled.
const DefaultCheckInterval = 6 * time.Hour

// RefreshScheduler handles automated periodic refreshes.
type RefreshScheduler struct {
	Store         review.Store
	Coordinator   *refresh.Coordinator
	Periods       []review.Period
	CheckInterval time.Duration
	Enabled       bool
	Logger        *slog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu  sync.Mutex
	lastRun time.Time
}

// NewRefreshScheduler creates a new, disabled scheduler.
func NewRefreshScheduler(store review.Store, coord *refresh.Coordinator) *RefreshScheduler {
	return &RefreshScheduler{
		Store:         store,
		Coordinator:   coord,
		Periods:       review.Periods,
		CheckInterval: DefaultCheckInterval,
		Logger:        slog.Default(),
		stop:          make(chan struct{}),
	}
}

// RunStats counts the outcomes of one scheduler pass.
type RunStats struct {
	Refreshed    int
	Skipped      int
	Insufficient int
	Failed       int
}

// Start begins the scheduler.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("[Scheduler] Disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	rs.Logger.Info("[Scheduler] Started", "interval", rs.CheckInterval, "periods", rs.Periods)
}

// Stop stops the scheduler and waits for a pass in progress to finish.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Logger.Info("[Scheduler] Stopped")
	}
}

func (rs *RefreshScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// RunNow refreshes every business for every configured period.
func (rs *RefreshScheduler) RunNow(ctx context.Context) RunStats {
	var stats RunStats

	rs.lastMu.Lock()
	rs.lastRun = time.Now()
	rs.lastMu.Unlock()

	businesses, err := rs.Store.ListBusinesses(ctx)
	if err != nil {
		rs.Logger.Error("[Scheduler] Error listing businesses", "error", err)
		return stats
	}

	for _, b := range businesses {
		for _, period := range rs.Periods {
			out := rs.Coordinator.Refresh(ctx, b.ID, period)
			switch out.Status {
			case refresh.StatusSucceeded:
				stats.Refreshed++
			case refresh.StatusInProgress:
				stats.Skipped++
			case refresh.StatusInsufficientData:
				stats.Insufficient++
			default:
				stats.Failed++
				rs.Logger.Warn("[Scheduler] Refresh failed",
					"business", b.ID, "period", period, "error", out.Reason())
			}
		}
	}

	rs.Logger.Info("[Scheduler] Completed",
		"refreshed", stats.Refreshed, "skipped", stats.Skipped,
		"insufficient", stats.Insufficient, "failed", stats.Failed,
		"next_run", rs.NextRunTime())
	return stats
}

// NextRunTime returns when the next scheduled pass will occur, counted from
// the start of the last pass. It is zero before the first pass.
func (rs *RefreshScheduler) NextRunTime() time.Time {
	rs.lastMu.Lock()
	defer rs.lastMu.Unlock()
	if rs.lastRun.IsZero() {
		return time.Time{}
	}
	return rs.lastRun.Add(rs.CheckInterval)
}
