/*
store.go - Persistence boundary consumed by the engine

PURPOSE:
  Defines the interface between the analysis/refresh logic and the database.
  Reviews are read-only. Aggregate rows (ThemeScore, MonthlyTrend), insights
  and the narrative cache are written by the refresh coordinator.

KEY INTERFACES:
  ReviewSource:   Reviews by business + inclusive date range
  NarrativeCache: Content-addressed narrative documents
  Store:          Everything a refresh or a read endpoint touches
  TxStore:        Store + WithTx for all-or-nothing refresh writes

SCOPED DELETES:
  DeleteTrends only removes rows whose month is in the given set. There is
  deliberately no method that clears every trend row of a business.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - review/store/memory.go: In-memory for tests and dev

SEE ALSO:
  - refresh/coordinator.go: The only writer of aggregate rows
*/
package review

import (
	"context"
	"encoding/json"
	"time"
)

// =============================================================================
// ROWS THAT ONLY EXIST IN THE STORE
// =============================================================================

// Insight is the latest narrative and KPIs stored for (business, period).
type Insight struct {
	BusinessID   BusinessID
	Period       Period
	Kind         string
	Document     json.RawMessage
	Source       string
	CacheKey     string
	ReviewCount  int
	AvgSentiment float64
	AvgStars     float64
	UpdatedAt    time.Time
}

// CachedNarrative is a narrative document addressed by its cache key.
type CachedNarrative struct {
	Key       string
	Kind      string
	Document  json.RawMessage
	CreatedAt time.Time
}

// =============================================================================
// INTERFACES
// =============================================================================

// ReviewSource reads reviews.
type ReviewSource interface {
	// ReviewsInRange returns reviews with from <= date <= to, ordered by date.
	ReviewsInRange(ctx context.Context, biz BusinessID, from, to time.Time) ([]Record, error)

	// EarliestReviewDate returns nil when the business has no reviews.
	EarliestReviewDate(ctx context.Context, biz BusinessID) (*time.Time, error)
}

// NarrativeCache is a persistent content-addressed narrative store.
type NarrativeCache interface {
	LookupNarrative(ctx context.Context, key string) (CachedNarrative, bool, error)
	SaveNarrative(ctx context.Context, n CachedNarrative) error
}

// Store is the full persistence surface.
type Store interface {
	ReviewSource
	NarrativeCache

	SaveBusiness(ctx context.Context, b Business) error
	GetBusiness(ctx context.Context, id BusinessID) (Business, error)
	ListBusinesses(ctx context.Context) ([]Business, error)
	SaveReviews(ctx context.Context, records []Record) error

	ThemeScores(ctx context.Context, biz BusinessID) ([]ThemeScore, error)
	GetThemeScore(ctx context.Context, biz BusinessID, theme ThemeName) (ThemeScore, bool, error)
	UpsertThemeScore(ctx context.Context, s ThemeScore) error

	Trends(ctx context.Context, biz BusinessID) ([]MonthlyTrend, error)
	DeleteTrends(ctx context.Context, biz BusinessID, months []string) (int, error)
	InsertTrends(ctx context.Context, rows []MonthlyTrend) error

	SaveInsight(ctx context.Context, in Insight) error
	LatestInsight(ctx context.Context, biz BusinessID, period Period) (Insight, bool, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
