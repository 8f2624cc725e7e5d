/*
Package sqlite provides a SQLite-backed implementation of review.TxStore.

PURPOSE:
  Persists businesses, reviews, the aggregate rows written by a refresh
  (theme scores, monthly trends, insights) and the content-addressed
  narrative cache.

INTERFACES IMPLEMENTED:
  review.Store:   Reads and writes used by the API and the coordinator
  review.TxStore: WithTx for all-or-nothing refresh writes

KEY TABLES:
  businesses:      Reviewed businesses
  reviews:         Read-only input; one row per customer review
  theme_scores:    Latest score per (business, theme)
  monthly_trends:  Per (business, month, theme) rollups
  insights:        Latest narrative + KPIs per (business, period)
  narrative_cache: Generated narratives keyed by content fingerprint

INDEXES:
  - idx_reviews_business_date: Window queries (hot path)
  - Primary keys on the aggregate tables make upserts and scoped
    deletes index lookups

SCOPED DELETES:
  monthly_trends rows are only ever deleted for an explicit list of month
  keys of one business. There is no statement that clears the table.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single open connection, so
  ":memory:" databases are shared by every call. WithTx holds the write
  lock for the whole transaction.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and foreign keys on.

USAGE:
  store, err := sqlite.New("./data/bizvista.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - review/store.go: Interface definitions
  - review/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bizvista/review-engine/review"
)

var (
	_ review.TxStore = (*Store)(nil)
	_ review.Store   = (*txStore)(nil)
)

// Store implements review.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  queries
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: queries{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS businesses (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		city TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		review_count INTEGER NOT NULL DEFAULT 0,
		stars REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		business_id TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		stars INTEGER NOT NULL,
		text TEXT NOT NULL,
		compound REAL
	);

	-- Window queries (hot path)
	CREATE INDEX IF NOT EXISTS idx_reviews_business_date
		ON reviews(business_id, date);

	CREATE TABLE IF NOT EXISTS theme_scores (
		business_id TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
		theme TEXT NOT NULL,
		score REAL NOT NULL,
		delta REAL NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (business_id, theme)
	);

	CREATE TABLE IF NOT EXISTS monthly_trends (
		business_id TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
		month TEXT NOT NULL,
		theme TEXT NOT NULL,
		avg_sentiment REAL NOT NULL,
		review_count INTEGER NOT NULL,
		PRIMARY KEY (business_id, month, theme)
	);

	CREATE TABLE IF NOT EXISTS insights (
		business_id TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
		period TEXT NOT NULL,
		kind TEXT NOT NULL,
		document TEXT NOT NULL,
		source TEXT NOT NULL,
		cache_key TEXT NOT NULL DEFAULT '',
		review_count INTEGER NOT NULL,
		avg_sentiment REAL NOT NULL,
		avg_stars REAL NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (business_id, period)
	);

	CREATE TABLE IF NOT EXISTS narrative_cache (
		cache_key TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		document TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (review.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store review.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{queries{db: sqlTx}}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every query on the open transaction, so reads inside WithTx
// see the transaction's own writes.
type txStore struct {
	queries
}

// =============================================================================
// LOCKED ACCESS - Store methods take the lock and delegate to queries
// =============================================================================

func (s *Store) ReviewsInRange(ctx context.Context, biz review.BusinessID, from, to time.Time) ([]review.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ReviewsInRange(ctx, biz, from, to)
}

func (s *Store) EarliestReviewDate(ctx context.Context, biz review.BusinessID) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.EarliestReviewDate(ctx, biz)
}

func (s *Store) LookupNarrative(ctx context.Context, key string) (review.CachedNarrative, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.LookupNarrative(ctx, key)
}

func (s *Store) SaveNarrative(ctx context.Context, n review.CachedNarrative) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveNarrative(ctx, n)
}

func (s *Store) SaveBusiness(ctx context.Context, b review.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveBusiness(ctx, b)
}

func (s *Store) GetBusiness(ctx context.Context, id review.BusinessID) (review.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetBusiness(ctx, id)
}

func (s *Store) ListBusinesses(ctx context.Context) ([]review.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListBusinesses(ctx)
}

// SaveReviews upserts reviews in one transaction.
func (s *Store) SaveReviews(ctx context.Context, records []review.Record) error {
	return s.WithTx(ctx, func(tx review.Store) error {
		return tx.SaveReviews(ctx, records)
	})
}

func (s *Store) ThemeScores(ctx context.Context, biz review.BusinessID) ([]review.ThemeScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ThemeScores(ctx, biz)
}

func (s *Store) GetThemeScore(ctx context.Context, biz review.BusinessID, theme review.ThemeName) (review.ThemeScore, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetThemeScore(ctx, biz, theme)
}

func (s *Store) UpsertThemeScore(ctx context.Context, ts review.ThemeScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UpsertThemeScore(ctx, ts)
}

func (s *Store) Trends(ctx context.Context, biz review.BusinessID) ([]review.MonthlyTrend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.Trends(ctx, biz)
}

func (s *Store) DeleteTrends(ctx context.Context, biz review.BusinessID, months []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeleteTrends(ctx, biz, months)
}

func (s *Store) InsertTrends(ctx context.Context, rows []review.MonthlyTrend) error {
	return s.WithTx(ctx, func(tx review.Store) error {
		return tx.InsertTrends(ctx, rows)
	})
}

func (s *Store) SaveInsight(ctx context.Context, in review.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveInsight(ctx, in)
}

func (s *Store) LatestInsight(ctx context.Context, biz review.BusinessID, period review.Period) (review.Insight, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.LatestInsight(ctx, biz, period)
}

// =============================================================================
// QUERIES - Shared by Store and txStore
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// --- Reviews ---

func (q queries) ReviewsInRange(ctx context.Context, biz review.BusinessID, from, to time.Time) ([]review.Record, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, business_id, date, stars, text, compound
		FROM reviews
		WHERE business_id = ? AND date BETWEEN ? AND ?
		ORDER BY date, id
	`, biz, from.Format(review.DateLayout), to.Format(review.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var records []review.Record
	for rows.Next() {
		var r review.Record
		var date string
		var compound sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.BusinessID, &date, &r.Stars, &r.Text, &compound); err != nil {
			return nil, err
		}
		r.Date, err = time.Parse(review.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("review %s has invalid date %q: %w", r.ID, date, err)
		}
		if compound.Valid {
			c := compound.Float64
			r.Compound = &c
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (q queries) EarliestReviewDate(ctx context.Context, biz review.BusinessID) (*time.Time, error) {
	var date sql.NullString
	err := q.db.QueryRowContext(ctx,
		"SELECT MIN(date) FROM reviews WHERE business_id = ?", biz,
	).Scan(&date)
	if err != nil {
		return nil, err
	}
	if !date.Valid {
		return nil, nil
	}
	t, err := time.Parse(review.DateLayout, date.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (q queries) SaveReviews(ctx context.Context, records []review.Record) error {
	query := `
		INSERT INTO reviews (id, business_id, date, stars, text, compound)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			business_id = excluded.business_id,
			date = excluded.date,
			stars = excluded.stars,
			text = excluded.text,
			compound = excluded.compound
	`
	for _, r := range records {
		var compound sql.NullFloat64
		if r.Compound != nil {
			compound = sql.NullFloat64{Float64: *r.Compound, Valid: true}
		}
		if _, err := q.db.ExecContext(ctx, query,
			r.ID, r.BusinessID, r.Date.Format(review.DateLayout), r.Stars, r.Text, compound,
		); err != nil {
			if isForeignKeyError(err) {
				return fmt.Errorf("review %s: %w: %s", r.ID, review.ErrBusinessNotFound, r.BusinessID)
			}
			return fmt.Errorf("failed to save review %s: %w", r.ID, err)
		}
	}
	return nil
}

// --- Businesses ---

func (q queries) SaveBusiness(ctx context.Context, b review.Business) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO businesses (id, name, city, category, review_count, stars, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			city = excluded.city,
			category = excluded.category,
			review_count = excluded.review_count,
			stars = excluded.stars
	`, b.ID, b.Name, b.City, b.Category, b.ReviewCount, b.Stars, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (q queries) GetBusiness(ctx context.Context, id review.BusinessID) (review.Business, error) {
	var b review.Business
	err := q.db.QueryRowContext(ctx,
		"SELECT id, name, city, category, review_count, stars FROM businesses WHERE id = ?", id,
	).Scan(&b.ID, &b.Name, &b.City, &b.Category, &b.ReviewCount, &b.Stars)
	if errors.Is(err, sql.ErrNoRows) {
		return review.Business{}, fmt.Errorf("%w: %s", review.ErrBusinessNotFound, id)
	}
	return b, err
}

func (q queries) ListBusinesses(ctx context.Context) ([]review.Business, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, name, city, category, review_count, stars FROM businesses ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []review.Business
	for rows.Next() {
		var b review.Business
		if err := rows.Scan(&b.ID, &b.Name, &b.City, &b.Category, &b.ReviewCount, &b.Stars); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- Theme scores ---

func (q queries) ThemeScores(ctx context.Context, biz review.BusinessID) ([]review.ThemeScore, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT business_id, theme, score, delta, updated_at
		FROM theme_scores WHERE business_id = ? ORDER BY theme
	`, biz)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []review.ThemeScore
	for rows.Next() {
		ts, err := scanThemeScore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (q queries) GetThemeScore(ctx context.Context, biz review.BusinessID, theme review.ThemeName) (review.ThemeScore, bool, error) {
	ts, err := scanThemeScore(q.db.QueryRowContext(ctx, `
		SELECT business_id, theme, score, delta, updated_at
		FROM theme_scores WHERE business_id = ? AND theme = ?
	`, biz, theme))
	if errors.Is(err, sql.ErrNoRows) {
		return review.ThemeScore{}, false, nil
	}
	if err != nil {
		return review.ThemeScore{}, false, err
	}
	return ts, true, nil
}

func (q queries) UpsertThemeScore(ctx context.Context, ts review.ThemeScore) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO theme_scores (business_id, theme, score, delta, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(business_id, theme) DO UPDATE SET
			score = excluded.score,
			delta = excluded.delta,
			updated_at = excluded.updated_at
	`, ts.BusinessID, ts.Theme, ts.Score, ts.Delta, ts.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanThemeScore(row scanner) (review.ThemeScore, error) {
	var ts review.ThemeScore
	var updatedAt string
	if err := row.Scan(&ts.BusinessID, &ts.Theme, &ts.Score, &ts.Delta, &updatedAt); err != nil {
		return review.ThemeScore{}, err
	}
	ts.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return ts, nil
}

// --- Monthly trends ---

func (q queries) Trends(ctx context.Context, biz review.BusinessID) ([]review.MonthlyTrend, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT business_id, month, theme, avg_sentiment, review_count
		FROM monthly_trends WHERE business_id = ? ORDER BY month, theme
	`, biz)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []review.MonthlyTrend
	for rows.Next() {
		var t review.MonthlyTrend
		if err := rows.Scan(&t.BusinessID, &t.Month, &t.Theme, &t.AvgSentiment, &t.ReviewCount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTrends removes the rows of biz whose month is in months. An empty
// month list deletes nothing.
func (q queries) DeleteTrends(ctx context.Context, biz review.BusinessID, months []string) (int, error) {
	if len(months) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(months)+1)
	args = append(args, biz)
	for _, m := range months {
		args = append(args, m)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(months)), ",")

	res, err := q.db.ExecContext(ctx,
		"DELETE FROM monthly_trends WHERE business_id = ? AND month IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (q queries) InsertTrends(ctx context.Context, rows []review.MonthlyTrend) error {
	query := `
		INSERT INTO monthly_trends (business_id, month, theme, avg_sentiment, review_count)
		VALUES (?, ?, ?, ?, ?)
	`
	for _, t := range rows {
		if _, err := q.db.ExecContext(ctx, query,
			t.BusinessID, t.Month, t.Theme, t.AvgSentiment, t.ReviewCount,
		); err != nil {
			return fmt.Errorf("failed to insert trend %s/%s/%s: %w", t.BusinessID, t.Month, t.Theme, err)
		}
	}
	return nil
}

// --- Insights ---

func (q queries) SaveInsight(ctx context.Context, in review.Insight) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO insights
		(business_id, period, kind, document, source, cache_key,
		 review_count, avg_sentiment, avg_stars, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(business_id, period) DO UPDATE SET
			kind = excluded.kind,
			document = excluded.document,
			source = excluded.source,
			cache_key = excluded.cache_key,
			review_count = excluded.review_count,
			avg_sentiment = excluded.avg_sentiment,
			avg_stars = excluded.avg_stars,
			updated_at = excluded.updated_at
	`,
		in.BusinessID, in.Period, in.Kind, string(in.Document), in.Source, in.CacheKey,
		in.ReviewCount, in.AvgSentiment, in.AvgStars, in.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (q queries) LatestInsight(ctx context.Context, biz review.BusinessID, period review.Period) (review.Insight, bool, error) {
	var in review.Insight
	var doc, updatedAt string
	err := q.db.QueryRowContext(ctx, `
		SELECT business_id, period, kind, document, source, cache_key,
		       review_count, avg_sentiment, avg_stars, updated_at
		FROM insights WHERE business_id = ? AND period = ?
	`, biz, period).Scan(
		&in.BusinessID, &in.Period, &in.Kind, &doc, &in.Source, &in.CacheKey,
		&in.ReviewCount, &in.AvgSentiment, &in.AvgStars, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return review.Insight{}, false, nil
	}
	if err != nil {
		return review.Insight{}, false, err
	}
	in.Document = []byte(doc)
	in.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return in, true, nil
}

// --- Narrative cache ---

func (q queries) LookupNarrative(ctx context.Context, key string) (review.CachedNarrative, bool, error) {
	var n review.CachedNarrative
	var doc, createdAt string
	err := q.db.QueryRowContext(ctx,
		"SELECT cache_key, kind, document, created_at FROM narrative_cache WHERE cache_key = ?", key,
	).Scan(&n.Key, &n.Kind, &doc, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return review.CachedNarrative{}, false, nil
	}
	if err != nil {
		return review.CachedNarrative{}, false, err
	}
	n.Document = []byte(doc)
	n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return n, true, nil
}

// SaveNarrative writes an entry once. A key that already exists keeps its
// first document.
func (q queries) SaveNarrative(ctx context.Context, n review.CachedNarrative) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO narrative_cache (cache_key, kind, document, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO NOTHING
	`, n.Key, n.Kind, string(n.Document), n.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// Helper functions

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
