/*
Package review provides the analysis core of the review engine.

PURPOSE:
  This package contains the domain types and pure algorithms used to turn
  raw customer review text into theme membership, sentiment scores and
  period aggregates. Everything here is deterministic: given the same
  reviews and the same theme table, the same aggregates come out.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: An immutable review as read from the store
  - ThemeScore: Latest aggregate sentiment per (business, theme)
  - MonthlyTrend: Per (business, month, theme) rollup row
  - Business: The reviewed business

DATA FLOW:
  Record -> CleanText -> Classify + Score -> Analyzed -> Aggregator -> Report

SEE ALSO:
  - themes.go: The fixed theme table
  - classifier.go: Theme membership (exact + fuzzy)
  - sentiment.go: Lexicon-based compound scoring
  - aggregator.go: Period aggregation and deltas
  - store.go: Persistence boundary consumed by the engine
*/
package review

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

// BusinessID identifies a reviewed business.
type BusinessID string

// ThemeName is the machine name of a theme (e.g. "food_quality").
type ThemeName string

// =============================================================================
// RECORDS - Owned by the external store, read-only for the engine
// =============================================================================

// Record is a single customer review.
type Record struct {
	ID         string
	BusinessID BusinessID
	Date       time.Time
	Stars      int
	Text       string

	// Compound is the precomputed sentiment compound score, if any.
	// nil means the engine scores the text itself.
	Compound *float64
}

// Business is a reviewed business.
type Business struct {
	ID          BusinessID
	Name        string
	City        string
	Category    string
	ReviewCount int
	Stars       float64
}

// =============================================================================
// AGGREGATE ROWS - Written by the refresh coordinator
// =============================================================================

// ThemeScore is the latest aggregate sentiment for a theme.
// Unique on (BusinessID, Theme). Score is the mean compound score of the
// reviews tagged with the theme; Delta is Score minus the previous Score.
type ThemeScore struct {
	BusinessID BusinessID
	Theme      ThemeName
	Score      float64
	Delta      float64
	UpdatedAt  time.Time
}

// MonthlyTrend is a per-month, per-theme rollup. Unique on
// (BusinessID, Month, Theme). Month is formatted YYYY-MM.
type MonthlyTrend struct {
	BusinessID   BusinessID
	Month        string
	Theme        ThemeName
	AvgSentiment float64
	ReviewCount  int
}

// MonthKeyLayout formats a date as a MonthlyTrend month key.
const MonthKeyLayout = "2006-01"

// DateLayout formats a review date.
const DateLayout = "2006-01-02"

// MonthKey returns the YYYY-MM key for t.
func MonthKey(t time.Time) string { return t.Format(MonthKeyLayout) }
