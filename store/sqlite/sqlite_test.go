package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizvista/review-engine/review"
	"github.com/bizvista/review-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.SaveBusiness(context.Background(), review.Business{
		ID: "B1", Name: "Alpha Diner", City: "Austin", Category: "Diner", ReviewCount: 3, Stars: 4.5,
	}))
	return s
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBusinesses(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	b, err := s.GetBusiness(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, "Alpha Diner", b.Name)
	assert.Equal(t, 4.5, b.Stars)

	_, err = s.GetBusiness(ctx, "nope")
	assert.True(t, review.IsNotFound(err))

	list, err := s.ListBusinesses(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReviews_RangeIsInclusiveAndOrdered(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	c := 0.4
	require.NoError(t, s.SaveReviews(ctx, []review.Record{
		{ID: "r3", BusinessID: "B1", Date: date(2024, 6, 30), Stars: 5, Text: "great"},
		{ID: "r1", BusinessID: "B1", Date: date(2024, 5, 31), Stars: 3, Text: "ok"},
		{ID: "r2", BusinessID: "B1", Date: date(2024, 6, 1), Stars: 4, Text: "good", Compound: &c},
	}))

	got, err := s.ReviewsInRange(ctx, "B1", date(2024, 6, 1), date(2024, 6, 30))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r2", got[0].ID)
	assert.Equal(t, "r3", got[1].ID)
	require.NotNil(t, got[0].Compound)
	assert.Equal(t, 0.4, *got[0].Compound)
	assert.Nil(t, got[1].Compound)

	earliest, err := s.EarliestReviewDate(ctx, "B1")
	require.NoError(t, err)
	require.NotNil(t, earliest)
	assert.Equal(t, date(2024, 5, 31), *earliest)

	none, err := s.EarliestReviewDate(ctx, "B2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestReviews_UnknownBusinessRejected(t *testing.T) {
	s := newStore(t)
	err := s.SaveReviews(context.Background(), []review.Record{
		{ID: "x", BusinessID: "ghost", Date: date(2024, 6, 1), Stars: 1, Text: "?"},
	})
	assert.True(t, review.IsNotFound(err))
}

func TestThemeScores_Upsert(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	at := date(2024, 6, 30)

	_, ok, err := s.GetThemeScore(ctx, "B1", "service")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.UpsertThemeScore(ctx, review.ThemeScore{BusinessID: "B1", Theme: "service", Score: 0.2, UpdatedAt: at}))
	require.NoError(t, s.UpsertThemeScore(ctx, review.ThemeScore{BusinessID: "B1", Theme: "service", Score: 0.5, Delta: 0.3, UpdatedAt: at}))

	ts, ok, err := s.GetThemeScore(ctx, "B1", "service")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.5, ts.Score)
	assert.Equal(t, 0.3, ts.Delta)
	assert.Equal(t, at, ts.UpdatedAt)

	all, err := s.ThemeScores(ctx, "B1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTrends_ScopedDelete(t *testing.T) {
	// GIVEN: Trend rows for May and June
	// WHEN: Deleting June only
	// THEN: May rows remain

	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.InsertTrends(ctx, []review.MonthlyTrend{
		{BusinessID: "B1", Month: "2024-05", Theme: "service", AvgSentiment: 0.1, ReviewCount: 3},
		{BusinessID: "B1", Month: "2024-06", Theme: "service", AvgSentiment: 0.2, ReviewCount: 4},
		{BusinessID: "B1", Month: "2024-06", Theme: "ambiance", AvgSentiment: 0, ReviewCount: 0},
	}))

	n, err := s.DeleteTrends(ctx, "B1", []string{"2024-06"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.DeleteTrends(ctx, "B1", nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	rows, err := s.Trends(ctx, "B1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-05", rows[0].Month)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx review.Store) error {
		require.NoError(t, tx.InsertTrends(ctx, []review.MonthlyTrend{
			{BusinessID: "B1", Month: "2024-06", Theme: "service", AvgSentiment: 0.2, ReviewCount: 4},
		}))
		require.NoError(t, tx.UpsertThemeScore(ctx, review.ThemeScore{BusinessID: "B1", Theme: "service", Score: 0.2}))

		// Reads inside the transaction see its writes.
		rows, err := tx.Trends(ctx, "B1")
		require.NoError(t, err)
		assert.Len(t, rows, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rows, err := s.Trends(ctx, "B1")
	require.NoError(t, err)
	assert.Empty(t, rows)
	_, ok, err := s.GetThemeScore(ctx, "B1", "service")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsightsAndNarrativeCache(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	at := date(2024, 6, 30)

	in := review.Insight{
		BusinessID: "B1", Period: review.Period30d, Kind: "insight",
		Document: []byte(`{"love":[]}`), Source: "fallback", CacheKey: "k",
		ReviewCount: 40, AvgSentiment: 0.15, AvgStars: 3.5, UpdatedAt: at,
	}
	require.NoError(t, s.SaveInsight(ctx, in))
	in.Source = "generated"
	require.NoError(t, s.SaveInsight(ctx, in))

	got, ok, err := s.LatestInsight(ctx, "B1", review.Period30d)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, got)

	_, ok, err = s.LatestInsight(ctx, "B1", review.Period90d)
	require.NoError(t, err)
	assert.False(t, ok)

	first := review.CachedNarrative{Key: "abc", Kind: "comparison", Document: []byte(`{"a":1}`), CreatedAt: at}
	require.NoError(t, s.SaveNarrative(ctx, first))
	require.NoError(t, s.SaveNarrative(ctx, review.CachedNarrative{Key: "abc", Kind: "comparison", Document: []byte(`{"a":2}`), CreatedAt: at}))

	n, ok, err := s.LookupNarrative(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, n)

	_, ok, err = s.LookupNarrative(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
