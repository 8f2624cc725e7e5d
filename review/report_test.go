package review_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizvista/review-engine/review"
	"github.com/bizvista/review-engine/review/store"
)

func TestLiveReport_ComparesWithPriorWindow(t *testing.T) {
	// GIVEN: An April review, two May reviews and three June reviews
	// WHEN: Building the 30d report on 2024-06-30
	// THEN: The prior window (May) is counted and deltas compare against it

	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveBusiness(ctx, review.Business{ID: "B1"}))
	require.NoError(t, mem.SaveReviews(ctx, []review.Record{
		rec("a1", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), 3, "ok", 0),
		rec("m1", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), 2, "rude waiter", -0.5),
		rec("m2", time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), 2, "rude waiter", -0.5),
		rec("j1", time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), 5, "friendly waiter", 0.5),
		rec("j2", time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC), 5, "friendly waiter", 0.5),
		rec("j3", time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC), 5, "friendly waiter", 0.5),
	}))

	window, err := review.Period30d.Window(time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	report, analyzed, err := review.LiveReport(ctx, mem, "B1", window, review.DefaultThemes())
	require.NoError(t, err)

	assert.Len(t, analyzed, 3)
	assert.False(t, report.PriorEmpty)
	assert.Equal(t, 3, report.Current.ReviewCount)
	assert.Equal(t, 2, report.Prior.ReviewCount)
	assert.Equal(t, 1, report.Deltas.Reviews)
	assert.Equal(t, 75-25, report.Deltas.Sentiment)
	assert.Equal(t, 3.0, report.Deltas.Stars)
}

func TestPriorAggregate_NoReviews(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	window, err := review.Period30d.Window(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	agg, ok, err := review.PriorAggregate(ctx, mem, "B1", window, review.DefaultThemes())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, agg.ReviewCount)
}
