/*
dataset.go - Review dataset import and demo data

PURPOSE:
  Loads businesses and reviews into the store, either from the JSON file the
  extraction step produces or from a generated demo dataset. Reviews that
  arrive without a precomputed compound score are scored on import so later
  refreshes read a stable number.

FILE FORMAT:
  {
    "businesses": [{"business_id": "B1", "name": "...", "city": "...",
                    "categories": "...", "review_count": 120, "stars": 4.5}],
    "reviews":    [{"review_id": "r1", "business_id": "B1",
                    "date": "2024-06-01", "stars": 5, "text": "...",
                    "compound": 0.62}]
  }
  review_id and compound are optional.

USAGE VIA API:
  POST /api/import      body: dataset JSON
  POST /api/demo/load   generated dataset ending today

USAGE VIA CLI:
  server import reviews.json

SEE ALSO:
  - cmd/server/main.go: import command
  - review/sentiment.go: Score
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bizvista/review-engine/review"
)

// =============================================================================
// DATASET FORMAT
// =============================================================================

// Dataset is an importable set of businesses and their reviews.
type Dataset struct {
	Businesses []BusinessEntry `json:"businesses"`
	Reviews    []ReviewEntry   `json:"reviews"`
}

// BusinessEntry is one business of a dataset.
type BusinessEntry struct {
	ID          string  `json:"business_id"`
	Name        string  `json:"name"`
	City        string  `json:"city"`
	Category    string  `json:"categories"`
	ReviewCount int     `json:"review_count"`
	Stars       float64 `json:"stars"`
}

// ReviewEntry is one review of a dataset.
type ReviewEntry struct {
	ID         string   `json:"review_id,omitempty"`
	BusinessID string   `json:"business_id"`
	Date       string   `json:"date"`
	Stars      int      `json:"stars"`
	Text       string   `json:"text"`
	Compound   *float64 `json:"compound,omitempty"`
}

// ErrInvalidDataset is returned for a malformed dataset entry.
var ErrInvalidDataset = errors.New("invalid dataset")

// ImportStats reports what an import wrote.
type ImportStats struct {
	Businesses int `json:"businesses"`
	Reviews    int `json:"reviews"`
	Scored     int `json:"scored"`
}

// LoadDataset decodes a dataset.
func LoadDataset(r io.Reader) (Dataset, error) {
	var ds Dataset
	if err := decodeJSON(r, &ds); err != nil {
		return Dataset{}, fmt.Errorf("decode dataset: %w", err)
	}
	return ds, nil
}

// Records converts the reviews to store records, scoring those without a
// compound. It returns how many were scored.
func (ds Dataset) Records() ([]review.Record, int, error) {
	records := make([]review.Record, 0, len(ds.Reviews))
	scored := 0
	for i, e := range ds.Reviews {
		if e.BusinessID == "" {
			return nil, 0, fmt.Errorf("%w: review %d: missing business_id", ErrInvalidDataset, i)
		}
		date, err := parseReviewDate(e.Date)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: review %d: %v", ErrInvalidDataset, i, err)
		}
		if e.Stars < 1 || e.Stars > 5 {
			return nil, 0, fmt.Errorf("%w: review %d: stars %d out of range 1-5", ErrInvalidDataset, i, e.Stars)
		}

		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		compound := e.Compound
		if compound != nil && (*compound < -1 || *compound > 1) {
			return nil, 0, fmt.Errorf("%w: review %d: compound %v out of range [-1, 1]", ErrInvalidDataset, i, *compound)
		}
		if compound == nil {
			c := review.Score(review.CleanText(e.Text)).Compound
			compound = &c
			scored++
		}
		records = append(records, review.Record{
			ID:         id,
			BusinessID: review.BusinessID(e.BusinessID),
			Date:       date,
			Stars:      e.Stars,
			Text:       e.Text,
			Compound:   compound,
		})
	}
	return records, scored, nil
}

// parseReviewDate accepts a date or a full timestamp and keeps the day.
func parseReviewDate(s string) (time.Time, error) {
	for _, layout := range []string{review.DateLayout, "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return review.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// Import writes the dataset's businesses, then its reviews.
func (ds Dataset) Import(ctx context.Context, store review.Store) (ImportStats, error) {
	records, scored, err := ds.Records()
	if err != nil {
		return ImportStats{}, err
	}

	for _, b := range ds.Businesses {
		if b.ID == "" {
			return ImportStats{}, fmt.Errorf("%w: business %q: missing business_id", ErrInvalidDataset, b.Name)
		}
		if err := store.SaveBusiness(ctx, review.Business{
			ID:          review.BusinessID(b.ID),
			Name:        b.Name,
			City:        b.City,
			Category:    b.Category,
			ReviewCount: b.ReviewCount,
			Stars:       b.Stars,
		}); err != nil {
			return ImportStats{}, fmt.Errorf("save business %s: %w", b.ID, err)
		}
	}
	if err := store.SaveReviews(ctx, records); err != nil {
		return ImportStats{}, fmt.Errorf("save reviews: %w", err)
	}

	return ImportStats{Businesses: len(ds.Businesses), Reviews: len(records), Scored: scored}, nil
}

// =============================================================================
// DEMO DATA
// =============================================================================

type demoBusiness struct {
	entry    BusinessEntry
	positive float64 // share of favorable reviews
	phrases  []string
}

var demoBusinesses = []demoBusiness{
	{
		entry:    BusinessEntry{ID: "demo-trattoria", Name: "Luigi's Trattoria", City: "Philadelphia", Category: "Italian, Restaurants", Stars: 4.5},
		positive: 0.8,
		phrases:  []string{"the pasta was delicious and fresh", "cozy atmosphere and lovely music", "generous portions for the price"},
	},
	{
		entry:    BusinessEntry{ID: "demo-diner", Name: "Route 9 Diner", City: "Philadelphia", Category: "Diners, Breakfast", Stars: 3.5},
		positive: 0.55,
		phrases:  []string{"friendly waitress and quick service", "burger was greasy but tasty", "cheap and filling breakfast"},
	},
	{
		entry:    BusinessEntry{ID: "demo-bistro", Name: "Harbor Bistro", City: "Philadelphia", Category: "Seafood, Restaurants", Stars: 3.0},
		positive: 0.35,
		phrases:  []string{"the fish was fresh", "nice view of the harbor", "clean tables and bright room"},
	},
}

var demoComplaints = []string{
	"we waited forever for a table and the waiter was rude",
	"the food was cold and bland",
	"overpriced for such a small portion",
	"the bathroom was dirty",
	"staff ignored us most of the night",
}

// DemoDataset generates a deterministic dataset of reviews spread over the
// days ending today.
func DemoDataset(today time.Time, days, perBusiness int) Dataset {
	rng := rand.New(rand.NewSource(42))
	end := review.Day(today)

	var ds Dataset
	for _, b := range demoBusinesses {
		entry := b.entry
		entry.ReviewCount = perBusiness
		ds.Businesses = append(ds.Businesses, entry)

		for i := 0; i < perBusiness; i++ {
			date := end.AddDate(0, 0, -rng.Intn(days))
			var text string
			var stars int
			if rng.Float64() < b.positive {
				text = b.phrases[rng.Intn(len(b.phrases))]
				stars = 4 + rng.Intn(2)
			} else {
				text = demoComplaints[rng.Intn(len(demoComplaints))]
				stars = 1 + rng.Intn(2)
			}
			ds.Reviews = append(ds.Reviews, ReviewEntry{
				ID:         fmt.Sprintf("%s-%04d", entry.ID, i),
				BusinessID: entry.ID,
				Date:       date.Format(review.DateLayout),
				Stars:      stars,
				Text:       text,
			})
		}
	}
	return ds
}

// =============================================================================
// HANDLERS
// =============================================================================

// ImportDataset imports a dataset posted as the request body.
func (h *Handler) ImportDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := LoadDataset(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dataset", err)
		return
	}
	h.writeImport(w, r.Context(), ds)
}

// LoadDemo imports the generated demo dataset ending today.
func (h *Handler) LoadDemo(w http.ResponseWriter, r *http.Request) {
	h.writeImport(w, r.Context(), DemoDataset(h.Now(), 365, 150))
}

func (h *Handler) writeImport(w http.ResponseWriter, ctx context.Context, ds Dataset) {
	stats, err := ds.Import(ctx, h.Store)
	if err != nil {
		switch {
		case review.IsNotFound(err):
			writeError(w, http.StatusBadRequest, "review references unknown business", err)
		case errors.Is(err, ErrInvalidDataset):
			writeError(w, http.StatusBadRequest, "invalid dataset", err)
		default:
			writeError(w, http.StatusInternalServerError, "import failed", err)
		}
		return
	}
	h.Logger.Info("[Import] Dataset imported",
		"businesses", stats.Businesses, "reviews", stats.Reviews, "scored", stats.Scored)
	writeJSON(w, http.StatusOK, stats)
}
