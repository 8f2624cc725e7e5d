package narrative

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bizvista/review-engine/review"
)

// Contender is one business in a comparison, with its latest theme scores.
type Contender struct {
	ID     review.BusinessID
	Name   string
	Scores []review.ThemeScore
}

// ComparisonInput is what a comparison narrative is generated from.
type ComparisonInput struct {
	Contenders []Contender
}

// Leaders returns, per theme scored by any contender, the best-scoring
// business and its margin over the runner-up (0 when unopposed). Ties go to
// the contender listed first. Ordered by theme name.
func (in ComparisonInput) Leaders() []Leader {
	type entry struct {
		c     Contender
		score float64
		delta float64
	}
	byTheme := make(map[review.ThemeName][]entry)
	for _, c := range in.Contenders {
		for _, s := range c.Scores {
			byTheme[s.Theme] = append(byTheme[s.Theme], entry{c: c, score: s.Score, delta: s.Delta})
		}
	}
	themes := make([]review.ThemeName, 0, len(byTheme))
	for t := range byTheme {
		themes = append(themes, t)
	}
	sort.Slice(themes, func(i, j int) bool { return themes[i] < themes[j] })

	out := make([]Leader, 0, len(themes))
	for _, t := range themes {
		es := byTheme[t]
		sort.SliceStable(es, func(i, j int) bool { return es[i].score > es[j].score })
		margin, impact := 0.0, 0.0
		if len(es) > 1 {
			margin = es[0].score - es[1].score
		}
		for _, e := range es {
			impact = math.Max(impact, math.Abs(e.delta))
		}
		out = append(out, Leader{
			ThemeKey:   string(t),
			Theme:      review.ThemeLabel(t),
			LeaderID:   string(es[0].c.ID),
			LeaderName: es[0].c.Name,
			Score:      es[0].score,
			Margin:     margin,
			Impact:     impact,
		})
	}
	return out
}

// TopLeaders returns at most n leaders ordered by impact desc, then margin
// desc, then theme name.
func (in ComparisonInput) TopLeaders(n int) []Leader {
	leaders := in.Leaders()
	sort.SliceStable(leaders, func(i, j int) bool {
		a, b := leaders[i], leaders[j]
		if a.Impact != b.Impact {
			return a.Impact > b.Impact
		}
		if a.Margin != b.Margin {
			return a.Margin > b.Margin
		}
		return a.ThemeKey < b.ThemeKey
	})
	if len(leaders) > n {
		leaders = leaders[:n]
	}
	return leaders
}

// OverallLeader is the contender with the highest mean theme score.
func (in ComparisonInput) OverallLeader() (Contender, bool) {
	best, bestMean, found := Contender{}, 0.0, false
	for _, c := range in.Contenders {
		mean := 0.0
		if len(c.Scores) > 0 {
			for _, s := range c.Scores {
				mean += s.Score
			}
			mean /= float64(len(c.Scores))
		}
		if !found || mean > bestMean {
			best, bestMean, found = c, mean, true
		}
	}
	return best, found
}

func (in ComparisonInput) ids() []string {
	ids := make([]string, len(in.Contenders))
	for i, c := range in.Contenders {
		ids[i] = string(c.ID)
	}
	return ids
}

// Winners maps theme name to the leading business id.
func (in ComparisonInput) Winners() map[string]string {
	w := make(map[string]string)
	for _, l := range in.Leaders() {
		w[l.ThemeKey] = l.LeaderID
	}
	return w
}

// CacheKey fingerprints the sorted ids and the theme-winner mapping.
func (in ComparisonInput) CacheKey() string {
	return CacheKey(ComparisonSalt, in.ids(), LatestScope, in.Winners())
}

// Facts returns fallback facts: the highest-impact leaders, overall leader and one signal per
// (business, theme) score.
func (in ComparisonInput) Facts() Facts {
	f := Facts{Leaders: in.TopLeaders(TopThemes)}
	if c, ok := in.OverallLeader(); ok {
		f.OverallLeader = c.Name
	}
	var sum float64
	var n int
	for _, c := range in.Contenders {
		for _, s := range c.Scores {
			f.Signals = append(f.Signals, Signal{
				Name:         fmt.Sprintf("%s %s", c.Name, review.ThemeLabel(s.Theme)),
				AvgSentiment: s.Score,
				Count:        1,
			})
			sum += s.Score
			n++
		}
	}
	if n > 0 {
		f.SentimentScore = review.ScaledScore(sum / float64(n))
	} else {
		f.SentimentScore = review.ScaledScore(0)
	}
	names := make([]string, len(in.Contenders))
	for i, c := range in.Contenders {
		names[i] = c.Name
	}
	f.Subject = strings.Join(names, " vs ")
	return f
}

// Prompt lists each contender's theme scores and the per-theme leaders.
func (in ComparisonInput) Prompt() string {
	s := ComparisonSchema
	var b strings.Builder
	b.WriteString("Compare these restaurants:\n")
	for _, c := range in.Contenders {
		fmt.Fprintf(&b, "\n%s:\n", c.Name)
		for _, sc := range c.Scores {
			fmt.Fprintf(&b, "  %s: %.2f (%+.2f)\n", review.ThemeLabel(sc.Theme), sc.Score, sc.Delta)
		}
	}
	b.WriteString("\nLeaders per theme:\n")
	for _, l := range in.TopLeaders(TopThemes) {
		fmt.Fprintf(&b, "  %s: %s (margin: %.2f)\n", l.Theme, l.LeaderName, l.Margin)
	}
	b.WriteString("\nGenerate a 60-90 word summary, up to 5 theme leader lines, 2 risks, and 3 opportunities.\n")
	b.WriteString("Return EXACTLY this JSON schema:\n")
	b.WriteString(s.Template())
	fmt.Fprintf(&b, "\nMax %d words total.", s.WordBudget)
	return b.String()
}
