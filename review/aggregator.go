package review

import (
	"math"
	"sort"
	"time"
)

// =============================================================================
// ANALYSIS - Classifier + scorer applied to records
// =============================================================================

// Analyzed is a record with its theme flags and sentiment.
type Analyzed struct {
	Record    Record
	Sentiment Sentiment
	Themes    ThemeFlags
}

// Analyze cleans, classifies and scores each record. A precomputed compound
// score on the record takes precedence over scoring the text.
func Analyze(records []Record, table *ThemeTable) []Analyzed {
	out := make([]Analyzed, len(records))
	for i, r := range records {
		cleaned := CleanText(r.Text)
		var s Sentiment
		if r.Compound != nil {
			s = Sentiment{Compound: *r.Compound, Label: LabelFor(*r.Compound)}
		} else {
			s = Score(cleaned)
		}
		out[i] = Analyzed{Record: r, Sentiment: s, Themes: Classify(cleaned, table)}
	}
	return out
}

// =============================================================================
// AGGREGATES
// =============================================================================

// ThemeStat is the sentiment of the reviews tagged with one theme.
type ThemeStat struct {
	Theme        ThemeName
	AvgSentiment float64
	Count        int
}

// BucketStat is the aggregate of one bucket of a window.
type BucketStat struct {
	Key          string
	Start        time.Time
	End          time.Time
	ReviewCount  int
	AvgSentiment float64
	AvgStars     float64
	Themes       []ThemeStat // only themes with Count > 0
}

// Aggregate is the rollup of one business over one window.
// An aggregate with no reviews is all-zero.
type Aggregate struct {
	BusinessID   BusinessID
	Window       Window
	ReviewCount  int
	AvgSentiment float64
	AvgStars     float64
	Themes       []ThemeStat  // every theme, table order
	Buckets      []BucketStat // only non-empty buckets
}

// SentimentScore is the 0-100 scaled average sentiment.
func (a Aggregate) SentimentScore() int {
	return ScaledScore(a.AvgSentiment)
}

// Theme returns the stat for name.
func (a Aggregate) Theme(name ThemeName) (ThemeStat, bool) {
	for _, t := range a.Themes {
		if t.Theme == name {
			return t, true
		}
	}
	return ThemeStat{}, false
}

type acc struct {
	n         int
	sentiment float64
	stars     float64
	themeSum  []float64
	themeN    []int
}

func newAcc(themes int) *acc {
	return &acc{themeSum: make([]float64, themes), themeN: make([]int, themes)}
}

func (a *acc) add(r Analyzed) {
	a.n++
	a.sentiment += r.Sentiment.Compound
	a.stars += float64(r.Record.Stars)
	for i, hit := range r.Themes {
		if hit && i < len(a.themeSum) {
			a.themeSum[i] += r.Sentiment.Compound
			a.themeN[i]++
		}
	}
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (a *acc) themes(table *ThemeTable, sparse bool) []ThemeStat {
	out := make([]ThemeStat, 0, table.Len())
	for i, name := range table.Names() {
		if sparse && a.themeN[i] == 0 {
			continue
		}
		out = append(out, ThemeStat{Theme: name, AvgSentiment: mean(a.themeSum[i], a.themeN[i]), Count: a.themeN[i]})
	}
	return out
}

// Summarize aggregates the analyzed reviews that fall inside window.
func Summarize(biz BusinessID, window Window, analyzed []Analyzed, table *ThemeTable) Aggregate {
	total := newAcc(table.Len())
	buckets := window.Buckets()
	perBucket := make([]*acc, len(buckets))

	for _, r := range analyzed {
		if !window.Contains(r.Record.Date) {
			continue
		}
		total.add(r)
		if i := BucketIndex(buckets, r.Record.Date); i >= 0 {
			if perBucket[i] == nil {
				perBucket[i] = newAcc(table.Len())
			}
			perBucket[i].add(r)
		}
	}

	agg := Aggregate{
		BusinessID:   biz,
		Window:       window,
		ReviewCount:  total.n,
		AvgSentiment: mean(total.sentiment, total.n),
		AvgStars:     mean(total.stars, total.n),
		Themes:       total.themes(table, false),
	}
	for i, b := range buckets {
		a := perBucket[i]
		if a == nil {
			continue
		}
		agg.Buckets = append(agg.Buckets, BucketStat{
			Key:          b.Key,
			Start:        b.Start,
			End:          b.End,
			ReviewCount:  a.n,
			AvgSentiment: mean(a.sentiment, a.n),
			AvgStars:     mean(a.stars, a.n),
			Themes:       a.themes(table, true),
		})
	}
	return agg
}

// =============================================================================
// REPORT - Current vs prior window
// =============================================================================

// Deltas compares current against prior. Sentiment is on the 0-100 scale.
type Deltas struct {
	Reviews   int
	Sentiment int
	Stars     float64
}

// ThemeImpact is a theme's scaled score and its change vs the prior window.
type ThemeImpact struct {
	Theme        ThemeName
	AvgSentiment float64
	Count        int
	Score        int
	Delta        int
}

// Report is a current aggregate paired with its prior comparable window.
type Report struct {
	Current Aggregate
	Prior   Aggregate

	// PriorEmpty is true when the prior window predates the first review.
	PriorEmpty bool

	Deltas  Deltas
	Impacts []ThemeImpact // table order
}

// PriorWindow returns the prior comparable window and whether it should be
// queried. It should not when it starts before the earliest review on record,
// or when there is no review at all.
func PriorWindow(current Window, earliest *time.Time) (Window, bool) {
	prior := current.Previous()
	if earliest == nil || prior.Start.Before(Day(*earliest)) {
		return prior, false
	}
	return prior, true
}

// NewReport computes deltas between two aggregates. The prior aggregate is
// replaced by an all-zero one when priorEmpty is set.
func NewReport(current, prior Aggregate, priorEmpty bool, table *ThemeTable) Report {
	if priorEmpty {
		prior = Aggregate{BusinessID: current.BusinessID, Window: prior.Window, Themes: newAcc(table.Len()).themes(table, false)}
	}
	r := Report{
		Current:    current,
		Prior:      prior,
		PriorEmpty: priorEmpty,
		Deltas: Deltas{
			Reviews:   current.ReviewCount - prior.ReviewCount,
			Sentiment: current.SentimentScore() - prior.SentimentScore(),
			Stars:     Round2(current.AvgStars - prior.AvgStars),
		},
	}
	for _, t := range current.Themes {
		p, _ := prior.Theme(t.Theme)
		score := ScaledScore(t.AvgSentiment)
		r.Impacts = append(r.Impacts, ThemeImpact{
			Theme:        t.Theme,
			AvgSentiment: t.AvgSentiment,
			Count:        t.Count,
			Score:        score,
			Delta:        score - ScaledScore(p.AvgSentiment),
		})
	}
	return r
}

// TopImpacts returns up to n themes with data, ordered by |Delta| desc,
// then mention count desc.
func (r Report) TopImpacts(n int) []ThemeImpact {
	var out []ThemeImpact
	for _, t := range r.Impacts {
		if t.Count > 0 {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := abs(out[i].Delta), abs(out[j].Delta)
		if di != dj {
			return di > dj
		}
		return out[i].Count > out[j].Count
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Validate rejects a report containing a non-finite average.
func (r Report) Validate() error {
	check := func(field string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ComputationError{Field: field, Value: v}
		}
		return nil
	}
	if err := check("avg_sentiment", r.Current.AvgSentiment); err != nil {
		return err
	}
	if err := check("avg_stars", r.Current.AvgStars); err != nil {
		return err
	}
	for _, t := range r.Current.Themes {
		if err := check("theme."+string(t.Theme), t.AvgSentiment); err != nil {
			return err
		}
	}
	if err := check("prior.avg_sentiment", r.Prior.AvgSentiment); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// TREND ROWS - Dense month x theme rows written by a refresh
// =============================================================================

// TrendRows returns one MonthlyTrend per (month, theme) for every month key,
// including rows with zero matching reviews.
func TrendRows(biz BusinessID, months []string, analyzed []Analyzed, table *ThemeTable) []MonthlyTrend {
	byMonth := make(map[string]*acc, len(months))
	for _, m := range months {
		byMonth[m] = newAcc(table.Len())
	}
	for _, r := range analyzed {
		if a, ok := byMonth[MonthKey(r.Record.Date)]; ok {
			a.add(r)
		}
	}
	rows := make([]MonthlyTrend, 0, len(months)*table.Len())
	for _, m := range months {
		for _, t := range byMonth[m].themes(table, false) {
			rows = append(rows, MonthlyTrend{
				BusinessID:   biz,
				Month:        m,
				Theme:        t.Theme,
				AvgSentiment: t.AvgSentiment,
				ReviewCount:  t.Count,
			})
		}
	}
	return rows
}
