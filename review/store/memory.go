// Package store provides in-memory review.Store implementations.
package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bizvista/review-engine/review"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type themeKey struct {
	BusinessID review.BusinessID
	Theme      review.ThemeName
}

type trendKey struct {
	BusinessID review.BusinessID
	Month      string
	Theme      review.ThemeName
}

type insightKey struct {
	BusinessID review.BusinessID
	Period     review.Period
}

// state holds the data. Methods on state assume the caller holds the lock.
type state struct {
	businesses map[review.BusinessID]review.Business
	reviews    map[review.BusinessID][]review.Record
	themes     map[themeKey]review.ThemeScore
	trends     map[trendKey]review.MonthlyTrend
	insights   map[insightKey]review.Insight
	narratives map[string]review.CachedNarrative
}

func newState() *state {
	return &state{
		businesses: make(map[review.BusinessID]review.Business),
		reviews:    make(map[review.BusinessID][]review.Record),
		themes:     make(map[themeKey]review.ThemeScore),
		trends:     make(map[trendKey]review.MonthlyTrend),
		insights:   make(map[insightKey]review.Insight),
		narratives: make(map[string]review.CachedNarrative),
	}
}

func (s *state) clone() *state {
	c := &state{
		businesses: maps.Clone(s.businesses),
		reviews:    make(map[review.BusinessID][]review.Record, len(s.reviews)),
		themes:     maps.Clone(s.themes),
		trends:     maps.Clone(s.trends),
		insights:   maps.Clone(s.insights),
		narratives: maps.Clone(s.narratives),
	}
	for k, v := range s.reviews {
		c.reviews[k] = slices.Clone(v)
	}
	return c
}

var (
	_ review.TxStore = (*Memory)(nil)
	_ review.Store   = (*view)(nil)
)

// Memory is a review.TxStore backed by maps.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

func NewMemory() *Memory {
	return &Memory{s: newState()}
}

// WithTx executes fn against a snapshot-protected view.
// On error the snapshot is restored.
func (m *Memory) WithTx(ctx context.Context, fn func(review.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(&view{s: m.s}); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

// read runs fn under the read lock.
func read[T any](m *Memory, fn func(v *view) (T, error)) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&view{s: m.s})
}

func (m *Memory) write(fn func(v *view) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{s: m.s})
}

func (m *Memory) ReviewsInRange(ctx context.Context, biz review.BusinessID, from, to time.Time) ([]review.Record, error) {
	return read(m, func(v *view) ([]review.Record, error) { return v.ReviewsInRange(ctx, biz, from, to) })
}

func (m *Memory) EarliestReviewDate(ctx context.Context, biz review.BusinessID) (*time.Time, error) {
	return read(m, func(v *view) (*time.Time, error) { return v.EarliestReviewDate(ctx, biz) })
}

func (m *Memory) LookupNarrative(ctx context.Context, key string) (review.CachedNarrative, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{s: m.s}).LookupNarrative(ctx, key)
}

func (m *Memory) SaveNarrative(ctx context.Context, n review.CachedNarrative) error {
	return m.write(func(v *view) error { return v.SaveNarrative(ctx, n) })
}

func (m *Memory) SaveBusiness(ctx context.Context, b review.Business) error {
	return m.write(func(v *view) error { return v.SaveBusiness(ctx, b) })
}

func (m *Memory) GetBusiness(ctx context.Context, id review.BusinessID) (review.Business, error) {
	return read(m, func(v *view) (review.Business, error) { return v.GetBusiness(ctx, id) })
}

func (m *Memory) ListBusinesses(ctx context.Context) ([]review.Business, error) {
	return read(m, func(v *view) ([]review.Business, error) { return v.ListBusinesses(ctx) })
}

func (m *Memory) SaveReviews(ctx context.Context, records []review.Record) error {
	return m.write(func(v *view) error { return v.SaveReviews(ctx, records) })
}

func (m *Memory) ThemeScores(ctx context.Context, biz review.BusinessID) ([]review.ThemeScore, error) {
	return read(m, func(v *view) ([]review.ThemeScore, error) { return v.ThemeScores(ctx, biz) })
}

func (m *Memory) GetThemeScore(ctx context.Context, biz review.BusinessID, theme review.ThemeName) (review.ThemeScore, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{s: m.s}).GetThemeScore(ctx, biz, theme)
}

func (m *Memory) UpsertThemeScore(ctx context.Context, ts review.ThemeScore) error {
	return m.write(func(v *view) error { return v.UpsertThemeScore(ctx, ts) })
}

func (m *Memory) Trends(ctx context.Context, biz review.BusinessID) ([]review.MonthlyTrend, error) {
	return read(m, func(v *view) ([]review.MonthlyTrend, error) { return v.Trends(ctx, biz) })
}

func (m *Memory) DeleteTrends(ctx context.Context, biz review.BusinessID, months []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{s: m.s}).DeleteTrends(ctx, biz, months)
}

func (m *Memory) InsertTrends(ctx context.Context, rows []review.MonthlyTrend) error {
	return m.write(func(v *view) error { return v.InsertTrends(ctx, rows) })
}

func (m *Memory) SaveInsight(ctx context.Context, in review.Insight) error {
	return m.write(func(v *view) error { return v.SaveInsight(ctx, in) })
}

func (m *Memory) LatestInsight(ctx context.Context, biz review.BusinessID, period review.Period) (review.Insight, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{s: m.s}).LatestInsight(ctx, biz, period)
}

// =============================================================================
// VIEW - Unlocked access used directly inside WithTx
// =============================================================================

type view struct {
	s *state
}

func (v *view) ReviewsInRange(_ context.Context, biz review.BusinessID, from, to time.Time) ([]review.Record, error) {
	w := review.Window{Start: review.Day(from), End: review.Day(to)}
	var out []review.Record
	for _, r := range v.s.reviews[biz] {
		if w.Contains(r.Date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (v *view) EarliestReviewDate(_ context.Context, biz review.BusinessID) (*time.Time, error) {
	rs := v.s.reviews[biz]
	if len(rs) == 0 {
		return nil, nil
	}
	d := review.Day(rs[0].Date)
	return &d, nil
}

func (v *view) LookupNarrative(_ context.Context, key string) (review.CachedNarrative, bool, error) {
	n, ok := v.s.narratives[key]
	return n, ok, nil
}

// SaveNarrative keeps the first document written under a key.
func (v *view) SaveNarrative(_ context.Context, n review.CachedNarrative) error {
	if _, ok := v.s.narratives[n.Key]; !ok {
		v.s.narratives[n.Key] = n
	}
	return nil
}

func (v *view) SaveBusiness(_ context.Context, b review.Business) error {
	v.s.businesses[b.ID] = b
	return nil
}

func (v *view) GetBusiness(_ context.Context, id review.BusinessID) (review.Business, error) {
	b, ok := v.s.businesses[id]
	if !ok {
		return review.Business{}, review.ErrBusinessNotFound
	}
	return b, nil
}

func (v *view) ListBusinesses(_ context.Context) ([]review.Business, error) {
	out := slices.Collect(maps.Values(v.s.businesses))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveReviews inserts or replaces records by ID, keeping each business's
// reviews ordered by date. Nothing is written if any record references an
// unknown business.
func (v *view) SaveReviews(_ context.Context, records []review.Record) error {
	for _, r := range records {
		if _, ok := v.s.businesses[r.BusinessID]; !ok {
			return fmt.Errorf("review %s: %w: %s", r.ID, review.ErrBusinessNotFound, r.BusinessID)
		}
	}
	touched := make(map[review.BusinessID]bool)
	for _, r := range records {
		rs := v.s.reviews[r.BusinessID]
		idx := slices.IndexFunc(rs, func(x review.Record) bool { return x.ID == r.ID })
		if idx >= 0 {
			rs[idx] = r
		} else {
			rs = append(rs, r)
		}
		v.s.reviews[r.BusinessID] = rs
		touched[r.BusinessID] = true
	}
	for biz := range touched {
		rs := v.s.reviews[biz]
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Date.Before(rs[j].Date) })
	}
	return nil
}

func (v *view) ThemeScores(_ context.Context, biz review.BusinessID) ([]review.ThemeScore, error) {
	var out []review.ThemeScore
	for k, ts := range v.s.themes {
		if k.BusinessID == biz {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Theme < out[j].Theme })
	return out, nil
}

func (v *view) GetThemeScore(_ context.Context, biz review.BusinessID, theme review.ThemeName) (review.ThemeScore, bool, error) {
	ts, ok := v.s.themes[themeKey{biz, theme}]
	return ts, ok, nil
}

func (v *view) UpsertThemeScore(_ context.Context, ts review.ThemeScore) error {
	v.s.themes[themeKey{ts.BusinessID, ts.Theme}] = ts
	return nil
}

func (v *view) Trends(_ context.Context, biz review.BusinessID) ([]review.MonthlyTrend, error) {
	var out []review.MonthlyTrend
	for k, t := range v.s.trends {
		if k.BusinessID == biz {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Theme < out[j].Theme
	})
	return out, nil
}

func (v *view) DeleteTrends(_ context.Context, biz review.BusinessID, months []string) (int, error) {
	n := 0
	for k := range v.s.trends {
		if k.BusinessID == biz && slices.Contains(months, k.Month) {
			delete(v.s.trends, k)
			n++
		}
	}
	return n, nil
}

func (v *view) InsertTrends(_ context.Context, rows []review.MonthlyTrend) error {
	for _, r := range rows {
		v.s.trends[trendKey{r.BusinessID, r.Month, r.Theme}] = r
	}
	return nil
}

func (v *view) SaveInsight(_ context.Context, in review.Insight) error {
	v.s.insights[insightKey{in.BusinessID, in.Period}] = in
	return nil
}

func (v *view) LatestInsight(_ context.Context, biz review.BusinessID, period review.Period) (review.Insight, bool, error) {
	in, ok := v.s.insights[insightKey{biz, period}]
	return in, ok, nil
}
