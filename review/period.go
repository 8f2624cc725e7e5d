package review

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Named relative date window used for aggregation and refresh scope
// =============================================================================

// Period is a named relative window token.
type Period string

const (
	Period30d Period = "30d"
	Period90d Period = "90d"
	PeriodYTD Period = "ytd"
)

// Periods lists every accepted token.
var Periods = []Period{Period30d, Period90d, PeriodYTD}

// ParsePeriod validates a period token.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case Period30d, Period90d, PeriodYTD:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

// Window resolves the period against today (date portion only, UTC).
//   - 30d: the 30 days ending today, [today-29, today]
//   - 90d: the 90 days ending today, [today-89, today]
//   - ytd: [Jan 1, today]
func (p Period) Window(today time.Time) (Window, error) {
	end := Day(today)
	switch p {
	case Period30d:
		return Window{Start: end.AddDate(0, 0, -29), End: end}, nil
	case Period90d:
		return Window{Start: end.AddDate(0, 0, -89), End: end}, nil
	case PeriodYTD:
		return Window{Start: time.Date(end.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), End: end}, nil
	}
	return Window{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, string(p))
}

// =============================================================================
// WINDOW - Inclusive [Start, End] date range
// =============================================================================

// Window is an inclusive date range. Both ends are UTC midnight.
type Window struct {
	Start time.Time
	End   time.Time
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Contains returns true if t falls on a day within [Start, End].
func (w Window) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

// Days returns the number of days in the window, both ends included.
func (w Window) Days() int {
	if w.End.Before(w.Start) {
		return 0
	}
	return daysBetween(w.Start, w.End) + 1
}

// Previous returns the window of equal length ending the day before Start.
func (w Window) Previous() Window {
	end := w.Start.AddDate(0, 0, -1)
	return Window{Start: end.AddDate(0, 0, -(w.Days() - 1)), End: end}
}

// MonthKeys enumerates the YYYY-MM keys the window touches, in order.
func (w Window) MonthKeys() []string {
	var keys []string
	cur := time.Date(w.Start.Year(), w.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(w.End) {
		keys = append(keys, MonthKey(cur))
		cur = cur.AddDate(0, 1, 0)
	}
	return keys
}

func (w Window) String() string {
	return "[" + w.Start.Format(DateLayout) + ", " + w.End.Format(DateLayout) + "]"
}

func daysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}

// =============================================================================
// BUCKETS - Display granularity for point-in-time trend reads
// =============================================================================

// WeeklyBucketMaxDays is the longest window split into 7-day buckets.
// Longer windows are split into calendar months.
const WeeklyBucketMaxDays = 90

// Bucket is one sub-range of a window.
type Bucket struct {
	Key   string
	Start time.Time
	End   time.Time
}

// Buckets splits the window. Windows of at most WeeklyBucketMaxDays days use
// 7-day buckets anchored at Start and keyed by their first day (YYYY-MM-DD);
// the last bucket may be shorter. Longer windows use calendar months keyed
// YYYY-MM, clipped to the window.
func (w Window) Buckets() []Bucket {
	if w.Days() == 0 {
		return nil
	}
	var out []Bucket
	if w.Days() <= WeeklyBucketMaxDays {
		for s := w.Start; !s.After(w.End); s = s.AddDate(0, 0, 7) {
			e := s.AddDate(0, 0, 6)
			if e.After(w.End) {
				e = w.End
			}
			out = append(out, Bucket{Key: s.Format(DateLayout), Start: s, End: e})
		}
		return out
	}
	for s := w.Start; !s.After(w.End); {
		next := time.Date(s.Year(), s.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		e := next.AddDate(0, 0, -1)
		if e.After(w.End) {
			e = w.End
		}
		out = append(out, Bucket{Key: MonthKey(s), Start: s, End: e})
		s = next
	}
	return out
}

// BucketIndex returns the index of the bucket containing t, or -1.
func BucketIndex(buckets []Bucket, t time.Time) int {
	d := Day(t)
	for i, b := range buckets {
		if !d.Before(b.Start) && !d.After(b.End) {
			return i
		}
	}
	return -1
}
