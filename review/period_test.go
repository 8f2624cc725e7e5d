package review_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizvista/review-engine/review"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParsePeriod(t *testing.T) {
	for _, s := range []string{"30d", "90d", "ytd"} {
		p, err := review.ParsePeriod(s)
		require.NoError(t, err)
		assert.Equal(t, review.Period(s), p)
	}

	_, err := review.ParsePeriod("7d")
	assert.ErrorIs(t, err, review.ErrInvalidPeriod)
	assert.True(t, review.IsClientError(err))
}

func TestPeriodWindow(t *testing.T) {
	today := time.Date(2024, time.June, 30, 15, 4, 5, 0, time.UTC)

	w30, err := review.Period30d.Window(today)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.June, 1), w30.Start)
	assert.Equal(t, date(2024, time.June, 30), w30.End)
	assert.Equal(t, 30, w30.Days())
	assert.Equal(t, []string{"2024-06"}, w30.MonthKeys())

	w90, err := review.Period90d.Window(today)
	require.NoError(t, err)
	assert.Equal(t, 90, w90.Days())
	assert.Equal(t, []string{"2024-04", "2024-05", "2024-06"}, w90.MonthKeys())

	ytd, err := review.PeriodYTD.Window(today)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.January, 1), ytd.Start)
	assert.Len(t, ytd.MonthKeys(), 6)
}

func TestWindowPrevious_EqualLengthAndAdjacent(t *testing.T) {
	w := review.Window{Start: date(2024, time.June, 1), End: date(2024, time.June, 30)}
	prev := w.Previous()

	assert.Equal(t, date(2024, time.May, 2), prev.Start)
	assert.Equal(t, date(2024, time.May, 31), prev.End)
	assert.Equal(t, w.Days(), prev.Days())
}

func TestWindowBuckets_ShortWindowUsesSevenDayBuckets(t *testing.T) {
	// GIVEN: A 30-day window
	// THEN: Buckets are 7 days anchored at the start, the last one truncated

	w := review.Window{Start: date(2024, time.June, 1), End: date(2024, time.June, 30)}
	buckets := w.Buckets()

	require.Len(t, buckets, 5)
	assert.Equal(t, "2024-06-01", buckets[0].Key)
	assert.Equal(t, date(2024, time.June, 7), buckets[0].End)
	assert.Equal(t, "2024-06-29", buckets[4].Key)
	assert.Equal(t, date(2024, time.June, 30), buckets[4].End)
}

func TestWindowBuckets_LongWindowUsesCalendarMonths(t *testing.T) {
	w := review.Window{Start: date(2024, time.January, 15), End: date(2024, time.June, 10)}
	buckets := w.Buckets()

	require.Len(t, buckets, 6)
	assert.Equal(t, "2024-01", buckets[0].Key)
	assert.Equal(t, date(2024, time.January, 15), buckets[0].Start)
	assert.Equal(t, date(2024, time.January, 31), buckets[0].End)
	assert.Equal(t, "2024-02", buckets[1].Key)
	assert.Equal(t, date(2024, time.February, 29), buckets[1].End)
	assert.Equal(t, date(2024, time.June, 10), buckets[5].End)
}

func TestWindowBuckets_NinetyDayBoundary(t *testing.T) {
	w90 := review.Window{Start: date(2024, time.April, 2), End: date(2024, time.June, 30)}
	w91 := review.Window{Start: date(2024, time.April, 1), End: date(2024, time.June, 30)}

	assert.Len(t, w90.Buckets(), 13)
	assert.Equal(t, "2024-04-02", w90.Buckets()[0].Key)
	assert.Len(t, w91.Buckets(), 3)
}
