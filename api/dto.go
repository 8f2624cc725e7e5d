/*
dto.go - Data Transfer Objects for API responses

PURPOSE:
  Defines the JSON structures returned to the dashboard. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Response: Complex response wrappers

TYPES:
  Business:  BusinessDTO
  Scores:    ThemeScoreDTO, OverviewResponse, InsightDTO
  Trends:    TrendPointDTO
  KPIs:      KPIResponse, DeltasDTO, SparkPointDTO, ThemeImpactDTO, KeywordDTO
  Compare:   CompareResponse, CompareRowDTO

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/bizvista/review-engine/review"
)

// =============================================================================
// BUSINESSES
// =============================================================================

// BusinessDTO represents a business in API responses.
type BusinessDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	City        string  `json:"city"`
	Category    string  `json:"category"`
	ReviewCount int     `json:"review_count"`
	Stars       float64 `json:"stars"`
}

func toBusinessDTO(b review.Business) BusinessDTO {
	return BusinessDTO{
		ID:          string(b.ID),
		Name:        b.Name,
		City:        b.City,
		Category:    b.Category,
		ReviewCount: b.ReviewCount,
		Stars:       b.Stars,
	}
}

// =============================================================================
// THEME SCORES AND INSIGHTS
// =============================================================================

// ThemeScoreDTO is a stored theme score with its display label and
// 0-100 scaled score.
type ThemeScoreDTO struct {
	Theme       string    `json:"theme"`
	Label       string    `json:"label"`
	Score       float64   `json:"score"`
	ScaledScore int       `json:"scaled_score"`
	Delta       float64   `json:"delta"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toThemeScoreDTO(ts review.ThemeScore) ThemeScoreDTO {
	return ThemeScoreDTO{
		Theme:       string(ts.Theme),
		Label:       review.ThemeLabel(ts.Theme),
		Score:       ts.Score,
		ScaledScore: review.ScaledScore(ts.Score),
		Delta:       ts.Delta,
		UpdatedAt:   ts.UpdatedAt,
	}
}

// InsightDTO is the latest stored narrative for a period.
type InsightDTO struct {
	Period       string          `json:"period"`
	Narrative    json.RawMessage `json:"narrative"`
	Source       string          `json:"source"`
	ReviewCount  int             `json:"review_count"`
	AvgSentiment float64         `json:"avg_sentiment"`
	AvgStars     float64         `json:"avg_stars"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toInsightDTO(in review.Insight) *InsightDTO {
	return &InsightDTO{
		Period:       string(in.Period),
		Narrative:    in.Document,
		Source:       in.Source,
		ReviewCount:  in.ReviewCount,
		AvgSentiment: in.AvgSentiment,
		AvgStars:     in.AvgStars,
		UpdatedAt:    in.UpdatedAt,
	}
}

// OverviewResponse is a business with its stored aggregates.
type OverviewResponse struct {
	Business      BusinessDTO     `json:"business"`
	Themes        []ThemeScoreDTO `json:"themes"`
	Insight       *InsightDTO     `json:"insight,omitempty"`
	LastRefreshed *time.Time      `json:"last_refreshed,omitempty"`
}

// =============================================================================
// TRENDS
// =============================================================================

// TrendPointDTO is one month of a trend series.
type TrendPointDTO struct {
	Month          string  `json:"month"`
	AvgSentiment   float64 `json:"avg_sentiment"`
	SentimentScore int     `json:"sentiment_score"`
	ReviewCount    int     `json:"review_count"`
}

// =============================================================================
// KPIS
// =============================================================================

// DeltasDTO compares the current window against the prior one.
type DeltasDTO struct {
	Reviews   int     `json:"reviews"`
	Sentiment int     `json:"sentiment"`
	Stars     float64 `json:"stars"`
}

// SparkPointDTO is one bucket of the KPI sparkline.
type SparkPointDTO struct {
	Key            string `json:"key"`
	SentimentScore int    `json:"sentiment_score"`
	ReviewCount    int    `json:"review_count"`
}

// ThemeImpactDTO is a theme's current score and change.
type ThemeImpactDTO struct {
	Theme       string `json:"theme"`
	Label       string `json:"label"`
	Score       int    `json:"score"`
	Delta       int    `json:"delta"`
	ReviewCount int    `json:"review_count"`
}

// KeywordDTO is a frequently mentioned term.
type KeywordDTO struct {
	Term           string `json:"term"`
	Mentions       int    `json:"mentions"`
	SentimentScore int    `json:"sentiment_score"`
}

// KPIResponse is the live report for a business and period.
type KPIResponse struct {
	BusinessID     string           `json:"business_id"`
	Period         string           `json:"period"`
	From           string           `json:"from"`
	To             string           `json:"to"`
	TotalReviews   int              `json:"total_reviews"`
	SentimentScore int              `json:"sentiment_score"`
	AvgStars       float64          `json:"avg_stars"`
	Deltas         DeltasDTO        `json:"deltas"`
	Sparkline      []SparkPointDTO  `json:"sparkline"`
	TopThemes      []ThemeImpactDTO `json:"top_themes"`
	Keywords       []KeywordDTO     `json:"keywords"`
}

// =============================================================================
// COMPARE
// =============================================================================

// CompareRowDTO is one business in the comparison matrix.
type CompareRowDTO struct {
	Business BusinessDTO        `json:"business"`
	Scores   map[string]float64 `json:"scores"`
}

// CompareResponse is the theme score matrix of 2-3 businesses.
type CompareResponse struct {
	Themes     []string        `json:"themes"`
	Businesses []CompareRowDTO `json:"businesses"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
