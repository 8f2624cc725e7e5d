package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bizvista/review-engine/narrative"
	"github.com/bizvista/review-engine/refresh"
	"github.com/bizvista/review-engine/review"
)

const (
	// DefaultQueryTimeout bounds narrative generation for interactive queries.
	DefaultQueryTimeout = 60 * time.Second

	// MinCompare and MaxCompare bound the ids of a comparison.
	MinCompare = 2
	MaxCompare = 3

	keywordLimit = 10
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        review.Store
	Coordinator  *refresh.Coordinator
	Narratives   *narrative.Service
	Themes       *review.ThemeTable
	QueryTimeout time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// NewHandler creates a new handler. The coordinator's theme table is shared
// so that live reports and refreshes classify identically.
func NewHandler(store review.Store, coord *refresh.Coordinator, narratives *narrative.Service) *Handler {
	return &Handler{
		Store:        store,
		Coordinator:  coord,
		Narratives:   narratives,
		Themes:       coord.Themes(),
		QueryTimeout: DefaultQueryTimeout,
		Now:          func() time.Time { return time.Now().UTC() },
		Logger:       slog.Default(),
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports that the service is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "bizvista-review-engine"})
}

// =============================================================================
// BUSINESS HANDLERS
// =============================================================================

// ListBusinesses returns all businesses.
func (h *Handler) ListBusinesses(w http.ResponseWriter, r *http.Request) {
	businesses, err := h.Store.ListBusinesses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list businesses", err)
		return
	}

	dtos := make([]BusinessDTO, 0, len(businesses))
	for _, b := range businesses {
		dtos = append(dtos, toBusinessDTO(b))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetOverview returns stored theme scores and the latest insight for a period.
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := review.BusinessID(chi.URLParam(r, "id"))

	period, err := periodParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period", err)
		return
	}
	business, err := h.Store.GetBusiness(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	scores, err := h.Store.ThemeScores(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load theme scores", err)
		return
	}

	resp := OverviewResponse{Business: toBusinessDTO(business), Themes: make([]ThemeScoreDTO, 0, len(scores))}
	for _, ts := range scores {
		resp.Themes = append(resp.Themes, toThemeScoreDTO(ts))
	}

	insight, ok, err := h.Store.LatestInsight(ctx, id, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load insight", err)
		return
	}
	if ok {
		resp.Insight = toInsightDTO(insight)
		at := insight.UpdatedAt
		resp.LastRefreshed = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTrends returns the monthly sentiment series of a business. With
// ?theme= the series is that theme's; otherwise months are rolled up across
// themes weighted by mention count.
func (h *Handler) GetTrends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := review.BusinessID(chi.URLParam(r, "id"))

	theme := review.ThemeName(r.URL.Query().Get("theme"))
	if theme != "" && !h.Themes.Has(theme) {
		writeError(w, http.StatusBadRequest, "unknown theme", fmt.Errorf("%w: %s", review.ErrUnknownTheme, theme))
		return
	}
	if _, err := h.Store.GetBusiness(ctx, id); err != nil {
		writeDomainError(w, err)
		return
	}
	rows, err := h.Store.Trends(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load trends", err)
		return
	}
	writeJSON(w, http.StatusOK, rollupTrends(rows, theme))
}

// rollupTrends merges rows per month. Rows must be ordered by month.
func rollupTrends(rows []review.MonthlyTrend, theme review.ThemeName) []TrendPointDTO {
	out := make([]TrendPointDTO, 0)
	var sum float64
	flush := func() {
		last := &out[len(out)-1]
		if last.ReviewCount > 0 {
			last.AvgSentiment = review.Round3(sum / float64(last.ReviewCount))
		}
		last.SentimentScore = review.ScaledScore(last.AvgSentiment)
	}
	for _, row := range rows {
		if theme != "" && row.Theme != theme {
			continue
		}
		if len(out) == 0 || out[len(out)-1].Month != row.Month {
			if len(out) > 0 {
				flush()
			}
			out = append(out, TrendPointDTO{Month: row.Month})
			sum = 0
		}
		out[len(out)-1].ReviewCount += row.ReviewCount
		sum += row.AvgSentiment * float64(row.ReviewCount)
	}
	if len(out) > 0 {
		flush()
	}
	return out
}

// GetKPIs computes the live report for a business and period.
func (h *Handler) GetKPIs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := review.BusinessID(chi.URLParam(r, "id"))

	period, err := periodParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period", err)
		return
	}
	if _, err := h.Store.GetBusiness(ctx, id); err != nil {
		writeDomainError(w, err)
		return
	}
	window, err := period.Window(h.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period", err)
		return
	}

	report, analyzed, err := review.LiveReport(ctx, h.Store, id, window, h.Themes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load reviews", err)
		return
	}
	if err := report.Validate(); err != nil {
		writeError(w, http.StatusInternalServerError, "invalid aggregate", err)
		return
	}

	cur := report.Current
	resp := KPIResponse{
		BusinessID:     string(id),
		Period:         string(period),
		From:           window.Start.Format(review.DateLayout),
		To:             window.End.Format(review.DateLayout),
		TotalReviews:   cur.ReviewCount,
		SentimentScore: cur.SentimentScore(),
		AvgStars:       review.Round2(cur.AvgStars),
		Deltas: DeltasDTO{
			Reviews:   report.Deltas.Reviews,
			Sentiment: report.Deltas.Sentiment,
			Stars:     report.Deltas.Stars,
		},
		Sparkline: make([]SparkPointDTO, 0, len(cur.Buckets)),
		TopThemes: make([]ThemeImpactDTO, 0, narrative.TopThemes),
		Keywords:  make([]KeywordDTO, 0),
	}
	for _, b := range cur.Buckets {
		resp.Sparkline = append(resp.Sparkline, SparkPointDTO{
			Key:            b.Key,
			SentimentScore: review.ScaledScore(b.AvgSentiment),
			ReviewCount:    b.ReviewCount,
		})
	}
	for _, t := range report.TopImpacts(narrative.TopThemes) {
		resp.TopThemes = append(resp.TopThemes, ThemeImpactDTO{
			Theme:       string(t.Theme),
			Label:       review.ThemeLabel(t.Theme),
			Score:       t.Score,
			Delta:       t.Delta,
			ReviewCount: t.Count,
		})
	}
	for _, k := range review.MineKeywords(analyzed, keywordLimit) {
		resp.Keywords = append(resp.Keywords, KeywordDTO{
			Term:           k.Term,
			Mentions:       k.Count,
			SentimentScore: review.ScaledScore(k.AvgSentiment),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// COMPARISON HANDLERS
// =============================================================================

// Compare returns the stored theme score matrix of 2-3 businesses.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	contenders, businesses, ok := h.loadContenders(w, r)
	if !ok {
		return
	}

	resp := CompareResponse{Themes: make([]string, 0, h.Themes.Len())}
	for _, name := range h.Themes.Names() {
		resp.Themes = append(resp.Themes, string(name))
	}
	for i, c := range contenders {
		row := CompareRowDTO{Business: toBusinessDTO(businesses[i]), Scores: make(map[string]float64, len(c.Scores))}
		for _, ts := range c.Scores {
			row.Scores[string(ts.Theme)] = ts.Score
		}
		resp.Businesses = append(resp.Businesses, row)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CompareNarrative returns the comparison narrative of 2-3 businesses,
// generated or served from cache.
func (h *Handler) CompareNarrative(w http.ResponseWriter, r *http.Request) {
	contenders, _, ok := h.loadContenders(w, r)
	if !ok {
		return
	}

	in := narrative.ComparisonInput{Contenders: contenders}
	result, err := h.Narratives.Generate(r.Context(), narrative.Request{
		Schema:   narrative.ComparisonSchema,
		CacheKey: in.CacheKey(),
		Prompt:   in.Prompt(),
		Facts:    in.Facts(),
		Timeout:  h.QueryTimeout,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build narrative", err)
		return
	}

	payload := result.Payload()
	ids := make([]string, 0, len(contenders))
	for _, c := range contenders {
		ids = append(ids, string(c.ID))
	}
	payload["ids"] = ids
	writeJSON(w, http.StatusOK, payload)
}

// loadContenders parses ?ids= and loads each business with its theme
// scores. It writes the error response itself and returns ok=false on
// failure.
func (h *Handler) loadContenders(w http.ResponseWriter, r *http.Request) ([]narrative.Contender, []review.Business, bool) {
	ctx := r.Context()
	ids, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ids", err)
		return nil, nil, false
	}

	contenders := make([]narrative.Contender, 0, len(ids))
	businesses := make([]review.Business, 0, len(ids))
	for _, id := range ids {
		b, err := h.Store.GetBusiness(ctx, id)
		if err != nil {
			writeDomainError(w, err)
			return nil, nil, false
		}
		scores, err := h.Store.ThemeScores(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load theme scores", err)
			return nil, nil, false
		}
		contenders = append(contenders, narrative.Contender{ID: b.ID, Name: b.Name, Scores: scores})
		businesses = append(businesses, b)
	}
	return contenders, businesses, true
}

func parseIDs(raw string) ([]review.BusinessID, error) {
	seen := make(map[string]bool)
	var ids []review.BusinessID
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, review.BusinessID(id))
	}
	if len(ids) < MinCompare || len(ids) > MaxCompare {
		return nil, fmt.Errorf("need %d to %d distinct business ids, got %d", MinCompare, MaxCompare, len(ids))
	}
	return ids, nil
}

// =============================================================================
// REFRESH
// =============================================================================

// TriggerRefresh re-analyzes one business for ?period= (default 30d).
//
//	200 committed
//	400 invalid period
//	404 unknown business
//	409 a refresh for the same business and period is running
//	422 fewer reviews in the window than the minimum sample
//	500 any other failure (rolled back)
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	id := review.BusinessID(chi.URLParam(r, "id"))
	period, err := periodParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}

	out := h.Coordinator.Refresh(r.Context(), id, period)
	writeJSON(w, refreshStatus(out), out.Payload())
}

func refreshStatus(out refresh.Outcome) int {
	switch out.Status {
	case refresh.StatusSucceeded:
		return http.StatusOK
	case refresh.StatusInProgress:
		return http.StatusConflict
	case refresh.StatusInsufficientData:
		return http.StatusUnprocessableEntity
	}
	switch {
	case review.IsNotFound(out.Err):
		return http.StatusNotFound
	case review.IsClientError(out.Err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// =============================================================================
// HELPERS
// =============================================================================

func periodParam(r *http.Request) (review.Period, error) {
	raw := r.URL.Query().Get("period")
	if raw == "" {
		return review.Period30d, nil
	}
	return review.ParsePeriod(raw)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps review errors to a status code.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case review.IsNotFound(err):
		writeError(w, http.StatusNotFound, "business not found", err)
	case review.IsClientError(err):
		writeError(w, http.StatusBadRequest, "invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return err
	}
	return nil
}
