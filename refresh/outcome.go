package refresh

import (
	"fmt"
	"time"

	"github.com/bizvista/review-engine/narrative"
	"github.com/bizvista/review-engine/review"
)

// =============================================================================
// STATUS - Terminal result variants
// =============================================================================

// Status is the kind of outcome a refresh ended with. Only StatusFailed
// carries an error; contention and insufficient data are expected states.
type Status string

const (
	StatusSucceeded        Status = "succeeded"
	StatusInProgress       Status = "in_progress"
	StatusInsufficientData Status = "insufficient_data"
	StatusFailed           Status = "failed"
)

// =============================================================================
// STATE - Per-key state machine
// =============================================================================

// State is a step of the refresh state machine:
//
//	IDLE -> LOCKED -> AGGREGATING -> PERSISTING -> COMMITTED -> IDLE
//	                       |              |
//	                       +--------------+--> ROLLED_BACK -> IDLE
type State string

const (
	StateIdle        State = "IDLE"
	StateLocked      State = "LOCKED"
	StateAggregating State = "AGGREGATING"
	StatePersisting  State = "PERSISTING"
	StateCommitted   State = "COMMITTED"
	StateRolledBack  State = "ROLLED_BACK"
)

// Observer receives every state transition of every refresh.
type Observer func(key Key, from, to State)

// =============================================================================
// OUTCOME
// =============================================================================

// Outcome is what a refresh reports to its caller.
type Outcome struct {
	Status     Status
	BusinessID review.BusinessID
	Period     review.Period
	RunID      string

	// Matched is the number of reviews in the window. Required is the
	// minimum sample size the gate compared it against.
	Matched  int
	Required int

	ProcessedReviews int
	AvgSentiment     float64
	AvgStars         float64
	SentimentScore   int
	Source           narrative.Source
	UpdatedAt        time.Time

	// FinalState is the last state before the lock was released.
	FinalState State

	Err error
}

// Success reports whether the refresh committed.
func (o Outcome) Success() bool { return o.Status == StatusSucceeded }

// Reason explains a non-successful outcome. Empty on success.
func (o Outcome) Reason() string {
	switch o.Status {
	case StatusInProgress:
		return "refresh already in progress"
	case StatusInsufficientData:
		return fmt.Sprintf("insufficient data (%d < %d)", o.Matched, o.Required)
	case StatusFailed:
		if o.Err != nil {
			return o.Err.Error()
		}
		return "refresh failed"
	}
	return ""
}

// Payload is the outcome in the shape returned by the refresh endpoint.
func (o Outcome) Payload() map[string]any {
	if !o.Success() {
		return map[string]any{"success": false, "error": o.Reason()}
	}
	return map[string]any{
		"success":           true,
		"business_id":       o.BusinessID,
		"period":            o.Period,
		"processed_reviews": o.ProcessedReviews,
		"avg_sentiment":     o.AvgSentiment,
		"avg_stars":         o.AvgStars,
		"sentiment_score":   o.SentimentScore,
		"source":            o.Source,
		"updated_at":        o.UpdatedAt.Format(time.RFC3339),
	}
}
