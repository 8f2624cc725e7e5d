package narrative

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// FACTS - What the fallback (and the prompts) know about an aggregate
// =============================================================================

// Signal is a theme or keyword with its mean sentiment and mention count.
type Signal struct {
	Name         string
	AvgSentiment float64
	Count        int
	Delta        int // scaled-score change vs the prior window
}

// Leader is the business ahead on one theme.
type Leader struct {
	ThemeKey   string // theme name, e.g. "food_quality"
	Theme      string // display label
	LeaderID   string
	LeaderName string
	Score      float64
	Margin     float64
	Impact     float64 // largest absolute delta among the contenders
}

// Facts is the deterministic input to the fallback.
type Facts struct {
	Subject        string
	Signals        []Signal
	SentimentScore int
	Leaders        []Leader
	OverallLeader  string
}

const signalThreshold = 0.1

func (f Facts) positives() []Signal {
	return rank(f.Signals, func(s Signal) bool { return s.AvgSentiment > signalThreshold })
}

func (f Facts) negatives() []Signal {
	return rank(f.Signals, func(s Signal) bool { return s.AvgSentiment < -signalThreshold })
}

// rank filters signals and orders them by mention count desc, then name.
func rank(signals []Signal, keep func(Signal) bool) []Signal {
	var out []Signal
	for _, s := range signals {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// =============================================================================
// FALLBACK - Rule-based narrative, valid by construction
// =============================================================================

// Fallback derives a document for s from facts alone. Derived items are
// padded with the field's generic items (skipping duplicates) and truncated
// to the field's maximum; the result is trimmed to the word budget.
func Fallback(s *Schema, f Facts) Document {
	doc := make(Document, len(s.Fields))
	for _, field := range s.Fields {
		items := derive(field.Role, f)
		if !field.List {
			text := ""
			if len(items) > 0 {
				text = items[0]
			} else if len(field.Padding) > 0 {
				text = field.Padding[0]
			}
			doc[field.Key] = text
			continue
		}
		doc[field.Key] = pad(items, field)
	}
	fitBudget(doc, s)
	return doc
}

func derive(role Role, f Facts) []string {
	switch role {
	case RoleSummary:
		if f.OverallLeader == "" {
			return nil
		}
		return []string{fmt.Sprintf("%s leads overall in customer satisfaction.", f.OverallLeader)}
	case RoleLeaders:
		out := make([]string, 0, len(f.Leaders))
		for _, l := range f.Leaders {
			margin := "closely"
			if l.Margin > signalThreshold {
				margin = fmt.Sprintf("by %.2f", l.Margin)
			}
			out = append(out, fmt.Sprintf("%s: %s leads %s", l.Theme, l.LeaderName, margin))
		}
		return out
	case RolePositive:
		var out []string
		for _, s := range f.positives() {
			out = append(out, fmt.Sprintf("%s rated positively (%.2f) across %d mentions.", s.Name, s.AvgSentiment, s.Count))
		}
		return out
	case RoleNegative:
		var out []string
		for _, s := range f.negatives() {
			out = append(out, fmt.Sprintf("%s needs attention (%.2f) across %d mentions.", s.Name, s.AvgSentiment, s.Count))
		}
		return out
	case RoleRecommend:
		return recommendations(f)
	}
	return nil
}

// recommendations: strongest positive, strongest negative, then a closing
// statement chosen by the sentiment band.
func recommendations(f Facts) []string {
	var out []string
	if best, ok := strongest(f.positives(), func(a, b Signal) bool { return a.AvgSentiment > b.AvgSentiment }); ok {
		out = append(out, fmt.Sprintf("Keep building on %s, the strongest positive signal.", best.Name))
	}
	if worst, ok := strongest(f.negatives(), func(a, b Signal) bool { return a.AvgSentiment < b.AvgSentiment }); ok {
		out = append(out, fmt.Sprintf("Prioritize fixing %s, the strongest negative signal.", worst.Name))
	}
	switch {
	case f.SentimentScore >= 65:
		out = append(out, "Sentiment is strong; protect what guests already love.")
	case f.SentimentScore >= 45:
		out = append(out, "Sentiment is mixed; follow up on recurring complaints.")
	default:
		out = append(out, "Sentiment is weak; act quickly on the most cited problems.")
	}
	return out
}

func strongest(signals []Signal, better func(a, b Signal) bool) (Signal, bool) {
	if len(signals) == 0 {
		return Signal{}, false
	}
	best := signals[0]
	for _, s := range signals[1:] {
		if better(s, best) {
			best = s
		}
	}
	return best, true
}

func pad(items []string, f Field) []string {
	out := make([]string, 0, f.Max)
	seen := make(map[string]bool)
	for _, it := range items {
		if len(out) == f.Max {
			break
		}
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	for _, p := range f.Padding {
		if len(out) >= f.Min {
			break
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// fitBudget drops trailing words from the longest items until the document
// fits the schema's word budget. Every item keeps at least one word.
func fitBudget(doc Document, s *Schema) {
	for doc.Words(s) > s.WordBudget {
		key, idx, longest := "", -1, 1
		for _, f := range s.Fields {
			if f.List {
				for i, it := range doc.List(f.Key) {
					if n := len(strings.Fields(it)); n > longest {
						key, idx, longest = f.Key, i, n
					}
				}
				continue
			}
			if n := len(strings.Fields(doc.Text(f.Key))); n > longest {
				key, idx, longest = f.Key, -1, n
			}
		}
		if key == "" {
			return
		}
		if idx < 0 {
			words := strings.Fields(doc.Text(key))
			doc[key] = strings.Join(words[:len(words)-1], " ")
			continue
		}
		list := doc.List(key)
		words := strings.Fields(list[idx])
		list[idx] = strings.Join(words[:len(words)-1], " ")
	}
}
