package refresh_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizvista/review-engine/llm"
	"github.com/bizvista/review-engine/narrative"
	"github.com/bizvista/review-engine/refresh"
	"github.com/bizvista/review-engine/review"
	"github.com/bizvista/review-engine/review/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	today = time.Date(2024, 6, 30, 15, 0, 0, 0, time.UTC)
	quiet = slog.New(slog.NewTextHandler(io.Discard, nil))
)

const biz = review.BusinessID("B1")

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(f float64) *float64 { return &f }

func newStore(t *testing.T) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveBusiness(context.Background(), review.Business{ID: biz, Name: "Alpha Diner", City: "Austin"}))
	return mem
}

// seedJune stores n reviews in June 2024, alternating between a tasty dish
// (compound 0.8) and a rude waiter (compound -0.5).
func seedJune(t *testing.T, s review.Store, n int) {
	t.Helper()
	var records []review.Record
	for i := 0; i < n; i++ {
		r := review.Record{
			ID:         fmt.Sprintf("r%03d", i),
			BusinessID: biz,
			Date:       date(2024, 6, 1+i%28),
		}
		if i%2 == 0 {
			r.Text, r.Stars, r.Compound = "tasty dish", 5, ptr(0.8)
		} else {
			r.Text, r.Stars, r.Compound = "the waiter was rude", 2, ptr(-0.5)
		}
		records = append(records, r)
	}
	require.NoError(t, s.SaveReviews(context.Background(), records))
}

func newCoordinator(s review.TxStore, opts ...refresh.Option) *refresh.Coordinator {
	opts = append([]refresh.Option{
		refresh.WithClock(func() time.Time { return today }),
		refresh.WithLogger(quiet),
	}, opts...)
	return refresh.NewCoordinator(s, narrative.NewService(nil, narrative.WithLogger(quiet)), opts...)
}

func trendsByMonth(t *testing.T, s review.Store) map[string][]review.MonthlyTrend {
	t.Helper()
	rows, err := s.Trends(context.Background(), biz)
	require.NoError(t, err)
	out := map[string][]review.MonthlyTrend{}
	for _, r := range rows {
		out[r.Month] = append(out[r.Month], r)
	}
	return out
}

// failingStore fails the insight write inside the transaction.
type failingStore struct {
	*store.Memory
}

func (f failingStore) WithTx(ctx context.Context, fn func(review.Store) error) error {
	return f.Memory.WithTx(ctx, func(tx review.Store) error {
		return fn(failingTx{tx})
	})
}

type failingTx struct {
	review.Store
}

func (failingTx) SaveInsight(context.Context, review.Insight) error {
	return errors.New("disk full")
}

// =============================================================================
// END TO END
// =============================================================================

func TestRefresh_Succeeds_WithFallbackNarrative(t *testing.T) {
	// GIVEN: 40 June reviews and a stored service score of 0.1
	// WHEN: Refreshing 30d with generation unavailable
	// THEN: Theme scores reflect the new averages, service has a nonzero
	//       delta, trends and the insight are stored, source is fallback

	ctx := context.Background()
	mem := newStore(t)
	seedJune(t, mem, 40)
	require.NoError(t, mem.UpsertThemeScore(ctx, review.ThemeScore{BusinessID: biz, Theme: "service", Score: 0.1}))

	out := newCoordinator(mem).Refresh(ctx, biz, review.Period30d)

	require.True(t, out.Success(), out.Reason())
	assert.Equal(t, 40, out.ProcessedReviews)
	assert.Equal(t, narrative.SourceFallback, out.Source)
	assert.Equal(t, review.Round3((20*0.8-20*0.5)/40), out.AvgSentiment)
	assert.Equal(t, 3.5, out.AvgStars)
	assert.Equal(t, refresh.StateCommitted, out.FinalState)
	assert.Equal(t, today, out.UpdatedAt)

	service, ok, err := mem.GetThemeScore(ctx, biz, "service")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, -0.5, service.Score)
	assert.Equal(t, -0.6, service.Delta)
	assert.NotZero(t, service.Delta)

	food, ok, err := mem.GetThemeScore(ctx, biz, "food_quality")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.8, food.Score)
	assert.Equal(t, 0.0, food.Delta, "first insert has zero delta")

	_, ok, err = mem.GetThemeScore(ctx, biz, "ambiance")
	require.NoError(t, err)
	assert.False(t, ok, "themes without data are not written")

	june := trendsByMonth(t, mem)["2024-06"]
	assert.Len(t, june, review.DefaultThemes().Len(), "one row per theme, zero counts included")

	insight, ok, err := mem.LatestInsight(ctx, biz, review.Period30d)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fallback", insight.Source)
	assert.Equal(t, 40, insight.ReviewCount)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(insight.Document, &doc))
	_, err = narrative.Validate(narrative.InsightSchema, string(insight.Document))
	assert.NoError(t, err)

	_, cached, err := mem.LookupNarrative(ctx, insight.CacheKey)
	require.NoError(t, err)
	assert.False(t, cached, "fallbacks are never cached")
}

func TestRefresh_GeneratedNarrativeIsCached(t *testing.T) {
	ctx := context.Background()
	mem := newStore(t)
	seedJune(t, mem, 30)

	list := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("point number %d", i)
		}
		return out
	}
	body, err := json.Marshal(map[string]any{"love": list(5), "improve": list(5), "recommendations": list(3)})
	require.NoError(t, err)

	var calls int
	gen := llm.Func(func(context.Context, llm.Request) (string, error) {
		calls++
		return string(body), nil
	})
	cache, err := narrative.NewLRUCache(8, narrative.StoreCache{Store: mem})
	require.NoError(t, err)
	svc := narrative.NewService(gen, narrative.WithCache(cache), narrative.WithLogger(quiet))
	c := refresh.NewCoordinator(mem, svc, refresh.WithClock(func() time.Time { return today }), refresh.WithLogger(quiet))

	out := c.Refresh(ctx, biz, review.Period30d)
	require.True(t, out.Success(), out.Reason())
	assert.Equal(t, narrative.SourceGenerated, out.Source)

	insight, ok, err := mem.LatestInsight(ctx, biz, review.Period30d)
	require.NoError(t, err)
	require.True(t, ok)
	_, cached, err := mem.LookupNarrative(ctx, insight.CacheKey)
	require.NoError(t, err)
	assert.True(t, cached)

	// Same data, same key: the second refresh does not call the generator.
	out = c.Refresh(ctx, biz, review.Period30d)
	require.True(t, out.Success(), out.Reason())
	assert.Equal(t, 1, calls)
}

// =============================================================================
// GATE AND CONTENTION
// =============================================================================

func TestRefresh_InsufficientData_NoWrites(t *testing.T) {
	ctx := context.Background()
	mem := newStore(t)
	seedJune(t, mem, 24)

	out := newCoordinator(mem).Refresh(ctx, biz, review.Period30d)

	assert.Equal(t, refresh.StatusInsufficientData, out.Status)
	assert.False(t, out.Success())
	assert.Equal(t, 24, out.Matched)
	assert.Equal(t, "insufficient data (24 < 25)", out.Reason())

	scores, err := mem.ThemeScores(ctx, biz)
	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.Empty(t, trendsByMonth(t, mem))
	_, ok, err := mem.LatestInsight(ctx, biz, review.Period30d)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRefresh_HeldLock_ReportsInProgress(t *testing.T) {
	// GIVEN: Another refresh holds the (B1, 30d) lock
	// WHEN: Refreshing the same key
	// THEN: The contention outcome is returned and nothing is written

	ctx := context.Background()
	mem := newStore(t)
	seedJune(t, mem, 30)
	c := newCoordinator(mem)

	release, ok := c.Locks().TryLock(refresh.Key{BusinessID: biz, Period: review.Period30d})
	require.True(t, ok)

	out := c.Refresh(ctx, biz, review.Period30d)
	assert.Equal(t, refresh.StatusInProgress, out.Status)
	assert.Equal(t, "refresh already in progress", out.Reason())
	assert.Empty(t, trendsByMonth(t, mem))

	// A different period is not blocked.
	other := c.Refresh(ctx, biz, review.Period90d)
	assert.True(t, other.Success(), other.Reason())

	release()
	out = c.Refresh(ctx, biz, review.Period30d)
	assert.True(t, out.Success(), out.Reason())
}

func TestRefresh_ConcurrentSameKey(t *testing.T) {
	ctx := context.Background()
	mem := newStore(t)
	seedJune(t, mem, 30)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	gen := llm.Func(func(ctx context.Context, _ llm.Request) (string, error) {
		once.Do(func() { close(entered) })
		select {
		case <-unblock:
		case <-ctx.Done():
		}
		return "", &llm.PermanentError{Err: llm.ErrUnavailable}
	})
	svc := narrative.NewService(gen, narrative.WithLogger(quiet))
	c := refresh.NewCoordinator(mem, svc,
		refresh.WithClock(func() time.Time { return today }),
		refresh.WithLogger(quiet),
		refresh.WithTimeout(5*time.Second))

	first := make(chan refresh.Outcome, 1)
	go func() { first <- c.Refresh(ctx, biz, review.Period30d) }()
	<-entered

	second := c.Refresh(ctx, biz, review.Period30d)
	assert.Equal(t, refresh.StatusInProgress, second.Status)

	close(unblock)
	out := <-first
	assert.True(t, out.Success(), out.Reason())
	assert.False(t, c.Locks().Held(refresh.Key{BusinessID: biz, Period: review.Period30d}))
}

// =============================================================================
// SCOPED PERSISTENCE
// =============================================================================

func TestRefresh_30d_LeavesEarlierMonthsUntouched(t *testing.T) {
	// GIVEN: Stored trend rows for 2024-05 and 2024-06, plus May reviews
	// WHEN: Refreshing 30d on 2024-06-30 (window covers June only)
	// THEN: May rows are unchanged; June rows are rewritten

	ctx := context.Background()
	mem := newStore(t)
	seedJune(t, mem, 30)
	require.NoError(t, mem.SaveReviews(ctx, []review.Record{
		{ID: "may1", BusinessID: biz, Date: date(2024, 5, 15), Stars: 1, Text: "rude waiter", Compound: ptr(-0.9)},
	}))
	may := review.MonthlyTrend{BusinessID: biz, Month: "2024-05", Theme: "service", AvgSentiment: 0.42, ReviewCount: 99}
	staleJune := review.MonthlyTrend{BusinessID: biz, Month: "2024-06", Theme: "service", AvgSentiment: 0.99, ReviewCount: 99}
	require.NoError(t, mem.InsertTrends(ctx, []review.MonthlyTrend{may, staleJune}))

	out := newCoordinator(mem).Refresh(ctx, biz, review.Period30d)
	require.True(t, out.Success(), out.Reason())

	rows := trendsByMonth(t, mem)
	assert.Equal(t, []review.MonthlyTrend{may}, rows["2024-05"])
	require.Len(t, rows["2024-06"], review.DefaultThemes().Len())
	for _, r := range rows["2024-06"] {
		if r.Theme == "service" {
			assert.Equal(t, 15, r.ReviewCount)
			assert.Equal(t, -0.5, r.AvgSentiment)
		}
	}
}

// =============================================================================
// FAILURES AND ROLLBACK
// =============================================================================

func TestRefresh_NaNAggregate_FailsWithoutWrites(t *testing.T) {
	ctx := context.Background()
	mem := newStore(t)
	seedJune(t, mem, 25)
	require.NoError(t, mem.SaveReviews(ctx, []review.Record{
		{ID: "r000", BusinessID: biz, Date: date(2024, 6, 1), Stars: 3, Text: "tasty dish", Compound: ptr(math.NaN())},
	}))

	out := newCoordinator(mem).Refresh(ctx, biz, review.Period30d)

	assert.Equal(t, refresh.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, review.ErrComputation)
	assert.Contains(t, out.Reason(), "NaN values in computed metrics")
	assert.Equal(t, refresh.StateRolledBack, out.FinalState)

	scores, err := mem.ThemeScores(ctx, biz)
	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.Empty(t, trendsByMonth(t, mem))
}

func TestRefresh_PersistenceFailure_RollsBackEverything(t *testing.T) {
	ctx := context.Background()
	mem := newStore(t)
	seedJune(t, mem, 30)
	stale := review.MonthlyTrend{BusinessID: biz, Month: "2024-06", Theme: "service", AvgSentiment: 0.99, ReviewCount: 99}
	require.NoError(t, mem.InsertTrends(ctx, []review.MonthlyTrend{stale}))

	c := newCoordinator(failingStore{mem})
	out := c.Refresh(ctx, biz, review.Period30d)

	assert.Equal(t, refresh.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, review.ErrPersistence)
	assert.Contains(t, out.Reason(), "disk full")
	assert.False(t, c.Locks().Held(refresh.Key{BusinessID: biz, Period: review.Period30d}))

	assert.Equal(t, []review.MonthlyTrend{stale}, trendsByMonth(t, mem)["2024-06"])
	scores, err := mem.ThemeScores(ctx, biz)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestRefresh_UnknownBusinessAndBadPeriod(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(newStore(t))

	out := c.Refresh(ctx, "nope", review.Period30d)
	assert.Equal(t, refresh.StatusFailed, out.Status)
	assert.True(t, review.IsNotFound(out.Err))

	out = c.Refresh(ctx, biz, review.Period("7d"))
	assert.Equal(t, refresh.StatusFailed, out.Status)
	assert.True(t, review.IsClientError(out.Err))
	assert.False(t, c.Locks().Held(refresh.Key{BusinessID: biz, Period: "7d"}))
}

func TestRefresh_ReportsTransitions(t *testing.T) {
	mem := newStore(t)
	seedJune(t, mem, 30)

	var seen []refresh.State
	c := newCoordinator(mem, refresh.WithObserver(func(_ refresh.Key, _, to refresh.State) {
		seen = append(seen, to)
	}))

	out := c.Refresh(context.Background(), biz, review.Period30d)
	require.True(t, out.Success(), out.Reason())

	assert.Equal(t, []refresh.State{
		refresh.StateLocked,
		refresh.StateAggregating,
		refresh.StatePersisting,
		refresh.StateCommitted,
		refresh.StateIdle,
	}, seen)
}

func TestOutcome_Payload(t *testing.T) {
	ok := refresh.Outcome{Status: refresh.StatusSucceeded, BusinessID: biz, Period: review.Period30d, ProcessedReviews: 40, UpdatedAt: today}
	p := ok.Payload()
	assert.Equal(t, true, p["success"])
	assert.Equal(t, 40, p["processed_reviews"])
	assert.Equal(t, "2024-06-30T15:00:00Z", p["updated_at"])

	busy := refresh.Outcome{Status: refresh.StatusInProgress}
	assert.Equal(t, map[string]any{"success": false, "error": "refresh already in progress"}, busy.Payload())
}
