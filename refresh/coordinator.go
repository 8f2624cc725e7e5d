/*
coordinator.go - Serialized, all-or-nothing re-analysis of one business

PURPOSE:
  Re-runs classification, scoring and aggregation over a business's reviews
  for one period, regenerates the periodic insight narrative and persists
  everything in a single transaction.

KEY CONCEPTS:
  Key:            (business, period). At most one refresh per key runs at a
                  time; a second caller gets StatusInProgress immediately.
  Minimum sample: fewer than MinReviews reviews in the window ends the run
                  with StatusInsufficientData and no writes.
  Scoped writes:  only trend rows for the months the window covers are
                  deleted and rewritten. Every (month, theme) pair is written,
                  zero-count rows included.
  Narrative:      generation problems never fail a refresh; the narrative
                  service falls back to a rule-based document.

FLOW:
  TryLock -> window -> gate -> analyze -> report -> validate -> narrative
          -> WithTx{ delete trends, insert trends, upsert theme scores,
                     save insight, cache generated narrative }
          -> release

SEE ALSO:
  - review/aggregator.go: Summarize, NewReport, TrendRows
  - narrative/service.go: the generation protocol
*/
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bizvista/review-engine/narrative"
	"github.com/bizvista/review-engine/review"
)

const (
	// DefaultMinReviews is the minimum sample size of a refresh.
	DefaultMinReviews = 25

	// DefaultTimeout bounds narrative generation during a refresh.
	DefaultTimeout = 2500 * time.Millisecond

	// keywordLimit bounds the mined keywords handed to the prompt builder.
	keywordLimit = 10
)

// Coordinator runs refreshes.
type Coordinator struct {
	store      review.TxStore
	narratives *narrative.Service
	themes     *review.ThemeTable
	locks      *KeyedLocker[Key]
	timeout    time.Duration
	minReviews int
	now        func() time.Time
	observer   Observer
	logger     *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithThemes sets the theme table used for classification.
func WithThemes(t *review.ThemeTable) Option { return func(c *Coordinator) { c.themes = t } }

// WithTimeout bounds narrative generation.
func WithTimeout(d time.Duration) Option { return func(c *Coordinator) { c.timeout = d } }

// WithMinReviews sets the minimum sample size.
func WithMinReviews(n int) Option { return func(c *Coordinator) { c.minReviews = n } }

// WithClock sets the time source used for windows and timestamps.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// WithObserver reports state transitions.
func WithObserver(o Observer) Option { return func(c *Coordinator) { c.observer = o } }

func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.logger = l } }

// NewCoordinator creates a Coordinator. A nil narrative service resolves
// every narrative with the fallback.
func NewCoordinator(store review.TxStore, narratives *narrative.Service, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      store,
		narratives: narratives,
		themes:     review.DefaultThemes(),
		locks:      NewKeyedLocker[Key](),
		timeout:    DefaultTimeout,
		minReviews: DefaultMinReviews,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	if c.narratives == nil {
		c.narratives = narrative.NewService(nil, narrative.WithLogger(c.logger))
	}
	return c
}

// Locks exposes the per-key locker.
func (c *Coordinator) Locks() *KeyedLocker[Key] { return c.locks }

// Narratives returns the narrative service insights are resolved with.
func (c *Coordinator) Narratives() *narrative.Service { return c.narratives }

// Themes returns the theme table the coordinator classifies with.
func (c *Coordinator) Themes() *review.ThemeTable { return c.themes }

// =============================================================================
// REFRESH
// =============================================================================

// Refresh re-analyzes biz over period. It never panics and never returns
// with the key still locked.
func (c *Coordinator) Refresh(ctx context.Context, biz review.BusinessID, period review.Period) (out Outcome) {
	key := Key{BusinessID: biz, Period: period}
	out = Outcome{BusinessID: biz, Period: period, RunID: uuid.NewString(), Required: c.minReviews, FinalState: StateIdle}
	log := c.logger.With("run", out.RunID, "business", biz, "period", period)

	release, ok := c.locks.TryLock(key)
	if !ok {
		log.Info("[Refresh] already in progress, skipping")
		out.Status = StatusInProgress
		return out
	}

	state := StateIdle
	move := func(to State) {
		if c.observer != nil {
			c.observer(key, state, to)
		}
		state = to
		if to != StateIdle {
			out.FinalState = to
		}
	}
	move(StateLocked)

	defer func() {
		release()
		move(StateIdle)
	}()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("refresh panicked: %v", r)
			log.Error("[Refresh] panic recovered", "error", err)
			out = c.failed(out, err)
			move(StateRolledBack)
		}
	}()

	log.Info("[Refresh] started")
	move(StateAggregating)

	job, err := c.aggregate(ctx, biz, period)
	if err != nil {
		log.Warn("[Refresh] aggregation failed", "error", err)
		move(StateRolledBack)
		return c.failed(out, err)
	}
	out.Matched = job.report.Current.ReviewCount
	if out.Matched < c.minReviews {
		log.Info("[Refresh] insufficient data", "matched", out.Matched, "required", c.minReviews)
		out.Status = StatusInsufficientData
		return out
	}
	if err := job.report.Validate(); err != nil {
		log.Warn("[Refresh] invalid aggregate", "error", err)
		move(StateRolledBack)
		return c.failed(out, err)
	}

	result, err := c.narratives.Resolve(ctx, job.narrativeRequest(c.timeout))
	if err != nil {
		move(StateRolledBack)
		return c.failed(out, err)
	}

	move(StatePersisting)
	now := c.now()
	if err := c.persist(ctx, job, result, now); err != nil {
		log.Error("[Refresh] rolled back", "error", err)
		move(StateRolledBack)
		return c.failed(out, err)
	}
	if result.Source == narrative.SourceGenerated {
		c.narratives.Remember(result)
	}
	move(StateCommitted)

	cur := job.report.Current
	out.Status = StatusSucceeded
	out.ProcessedReviews = cur.ReviewCount
	out.AvgSentiment = review.Round3(cur.AvgSentiment)
	out.AvgStars = review.Round2(cur.AvgStars)
	out.SentimentScore = cur.SentimentScore()
	out.Source = result.Source
	out.UpdatedAt = now
	log.Info("[Refresh] committed",
		"reviews", cur.ReviewCount,
		"sentiment", out.SentimentScore,
		"source", result.Source,
		"cached", result.Cached)
	return out
}

func (c *Coordinator) failed(out Outcome, err error) Outcome {
	out.Status = StatusFailed
	out.Err = err
	return out
}

// =============================================================================
// AGGREGATION
// =============================================================================

// run is everything computed before the transaction opens.
type run struct {
	business review.Business
	period   review.Period
	window   review.Window
	months   []string
	report   review.Report
	trends   []review.MonthlyTrend
	keywords []review.KeywordStat
}

func (c *Coordinator) aggregate(ctx context.Context, biz review.BusinessID, period review.Period) (*run, error) {
	window, err := period.Window(c.now())
	if err != nil {
		return nil, err
	}
	business, err := c.store.GetBusiness(ctx, biz)
	if err != nil {
		return nil, err
	}

	// Trend rows cover whole months, so read from the first day of the
	// window's first month.
	monthStart := time.Date(window.Start.Year(), window.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	records, err := c.store.ReviewsInRange(ctx, biz, monthStart, window.End)
	if err != nil {
		return nil, &review.PersistenceError{Op: "read reviews", Err: err}
	}
	analyzed := review.Analyze(records, c.themes)

	var inWindow []review.Analyzed
	for _, a := range analyzed {
		if window.Contains(a.Record.Date) {
			inWindow = append(inWindow, a)
		}
	}
	current := review.Summarize(biz, window, inWindow, c.themes)

	prior, hasPrior, err := review.PriorAggregate(ctx, c.store, biz, window, c.themes)
	if err != nil {
		return nil, &review.PersistenceError{Op: "read prior window", Err: err}
	}

	months := window.MonthKeys()
	return &run{
		business: business,
		period:   period,
		window:   window,
		months:   months,
		report:   review.NewReport(current, prior, !hasPrior, c.themes),
		trends:   review.TrendRows(biz, months, analyzed, c.themes),
		keywords: review.MineKeywords(inWindow, keywordLimit),
	}, nil
}

func (r *run) insightInput() narrative.InsightInput {
	return narrative.InsightInput{
		BusinessID:   r.business.ID,
		BusinessName: r.business.Name,
		Period:       r.period,
		Report:       r.report,
		Keywords:     r.keywords,
	}
}

func (r *run) narrativeRequest(timeout time.Duration) narrative.Request {
	in := r.insightInput()
	return narrative.Request{
		Schema:   narrative.InsightSchema,
		CacheKey: in.CacheKey(),
		Prompt:   in.Prompt(),
		Facts:    in.Facts(),
		Timeout:  timeout,
	}
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func (c *Coordinator) persist(ctx context.Context, r *run, result narrative.Result, now time.Time) error {
	doc, err := json.Marshal(result.Document)
	if err != nil {
		return fmt.Errorf("encode narrative: %w", err)
	}

	return c.store.WithTx(ctx, func(tx review.Store) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("refresh panicked during persistence: %v", p)
			}
		}()
		biz := r.business.ID

		if _, err := tx.DeleteTrends(ctx, biz, r.months); err != nil {
			return &review.PersistenceError{Op: "delete trends", Err: err}
		}
		if err := tx.InsertTrends(ctx, r.trends); err != nil {
			return &review.PersistenceError{Op: "insert trends", Err: err}
		}

		for _, t := range r.report.Current.Themes {
			if t.Count == 0 {
				continue
			}
			score := review.Round3(t.AvgSentiment)
			old, found, err := tx.GetThemeScore(ctx, biz, t.Theme)
			if err != nil {
				return &review.PersistenceError{Op: "read theme score", Err: err}
			}
			delta := 0.0
			if found {
				delta = review.Round3(score - old.Score)
			}
			ts := review.ThemeScore{BusinessID: biz, Theme: t.Theme, Score: score, Delta: delta, UpdatedAt: now}
			if err := tx.UpsertThemeScore(ctx, ts); err != nil {
				return &review.PersistenceError{Op: "upsert theme score", Err: err}
			}
		}

		cur := r.report.Current
		insight := review.Insight{
			BusinessID:   biz,
			Period:       r.period,
			Kind:         string(result.Kind),
			Document:     doc,
			Source:       string(result.Source),
			CacheKey:     result.CacheKey,
			ReviewCount:  cur.ReviewCount,
			AvgSentiment: review.Round3(cur.AvgSentiment),
			AvgStars:     review.Round2(cur.AvgStars),
			UpdatedAt:    now,
		}
		if err := tx.SaveInsight(ctx, insight); err != nil {
			return &review.PersistenceError{Op: "save insight", Err: err}
		}

		if result.Source == narrative.SourceGenerated && !result.Cached {
			entry, err := result.CacheEntry()
			if err != nil {
				return fmt.Errorf("encode narrative cache entry: %w", err)
			}
			if err := tx.SaveNarrative(ctx, entry); err != nil {
				return &review.PersistenceError{Op: "cache narrative", Err: err}
			}
		}
		return nil
	})
}
