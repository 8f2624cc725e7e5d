package narrative

import (
	"fmt"
	"strings"

	"github.com/bizvista/review-engine/review"
)

const (
	// TopThemes bounds how many themes a prompt embeds.
	TopThemes = 5
	// TopKeywords bounds how many keywords a prompt embeds.
	TopKeywords = 3
)

// =============================================================================
// INSIGHT INPUT
// =============================================================================

// InsightInput is what a periodic insight is generated from.
type InsightInput struct {
	BusinessID   review.BusinessID
	BusinessName string
	Period       review.Period
	Report       review.Report
	Keywords     []review.KeywordStat
}

// Facts returns the fallback facts: every theme with data plus the top keywords.
func (in InsightInput) Facts() Facts {
	f := Facts{Subject: in.BusinessName, SentimentScore: in.Report.Current.SentimentScore()}
	for _, t := range in.Report.Impacts {
		if t.Count == 0 {
			continue
		}
		f.Signals = append(f.Signals, Signal{
			Name:         review.ThemeLabel(t.Theme),
			AvgSentiment: t.AvgSentiment,
			Count:        t.Count,
			Delta:        t.Delta,
		})
	}
	for _, k := range topKeywords(in.Keywords) {
		f.Signals = append(f.Signals, Signal{Name: k.Term, AvgSentiment: k.AvgSentiment, Count: k.Count})
	}
	return f
}

// CacheKey fingerprints the business, period and the aggregate values the
// prompt is built from.
func (in InsightInput) CacheKey() string {
	themes := make(map[string]any)
	for _, t := range in.Report.Impacts {
		if t.Count == 0 {
			continue
		}
		themes[string(t.Theme)] = map[string]any{
			"score": review.Round3(t.AvgSentiment),
			"count": t.Count,
			"delta": t.Delta,
		}
	}
	var keywords []any
	for _, k := range topKeywords(in.Keywords) {
		keywords = append(keywords, map[string]any{"term": k.Term, "count": k.Count})
	}
	content := map[string]any{
		"themes":   themes,
		"keywords": keywords,
		"reviews":  in.Report.Current.ReviewCount,
	}
	return CacheKey(InsightSalt, []string{string(in.BusinessID)}, string(in.Period), content)
}

// Prompt embeds the KPIs, the top themes by impact and the top keywords.
func (in InsightInput) Prompt() string {
	s := InsightSchema
	cur := in.Report.Current

	var b strings.Builder
	b.WriteString("You are BizVista AI. Generate restaurant insights in JSON format only.\n\n")
	b.WriteString("Return EXACTLY:\n")
	b.WriteString(s.Template())
	fmt.Fprintf(&b, "\nMax %d words total. Reference themes/keywords/deltas.\n\n", s.WordBudget)

	b.WriteString("Data:\n")
	fmt.Fprintf(&b, "business: %s\n", in.BusinessName)
	fmt.Fprintf(&b, "period: %s (%s)\n", in.Period, cur.Window)
	fmt.Fprintf(&b, "reviews: %d (%s vs prior period)\n", cur.ReviewCount, signed(in.Report.Deltas.Reviews))
	fmt.Fprintf(&b, "sentiment score: %d/100 (%s)\n", cur.SentimentScore(), signed(in.Report.Deltas.Sentiment))
	fmt.Fprintf(&b, "avg stars: %.2f (%+.2f)\n", cur.AvgStars, in.Report.Deltas.Stars)

	if top := in.Report.TopImpacts(TopThemes); len(top) > 0 {
		b.WriteString("themes:\n")
		for _, t := range top {
			fmt.Fprintf(&b, "- %s: score %d (%s), %d mentions\n", review.ThemeLabel(t.Theme), t.Score, signed(t.Delta), t.Count)
		}
	}
	if kws := topKeywords(in.Keywords); len(kws) > 0 {
		b.WriteString("keywords:\n")
		for _, k := range kws {
			fmt.Fprintf(&b, "- %s: %d mentions, sentiment %.2f\n", k.Term, k.Count, k.AvgSentiment)
		}
	}
	b.WriteString("\nGenerate insights:")
	return b.String()
}

func topKeywords(kws []review.KeywordStat) []review.KeywordStat {
	if len(kws) > TopKeywords {
		return kws[:TopKeywords]
	}
	return kws
}

func signed(v int) string {
	return fmt.Sprintf("%+d", v)
}

// =============================================================================
// REPAIR
// =============================================================================

// RepairPrompt echoes invalid output and restates the exact schema.
func RepairPrompt(s *Schema, lastOutput string, failure error) string {
	var b strings.Builder
	b.WriteString("Output was invalid. Return ONLY valid JSON for the same schema. No prose.\n")
	if failure != nil {
		fmt.Fprintf(&b, "Problem: %v\n", failure)
	}
	b.WriteString("Here is your last output:\n")
	b.WriteString("<<<" + lastOutput + ">>>\n\n")
	b.WriteString("Return EXACTLY this JSON schema:\n")
	b.WriteString(s.Template())
	fmt.Fprintf(&b, "\nMax %d words total.", s.WordBudget)
	return b.String()
}
