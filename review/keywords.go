package review

import "sort"

// KeywordStat is a frequently mentioned term and the mean sentiment of the
// reviews mentioning it.
type KeywordStat struct {
	Term         string
	Count        int
	AvgSentiment float64
}

// MinMentions is the review-count threshold a term needs to be reported.
// Larger corpora need more mentions.
func MinMentions(reviews int) int {
	switch {
	case reviews >= 1000:
		return 10
	case reviews >= 500:
		return 7
	default:
		return 5
	}
}

// MineKeywords counts, per term, the reviews mentioning it and returns up to
// limit terms ordered by count desc, then term. Terms are single tokens and
// adjacent token pairs after stopwords and tokens shorter than three letters
// are dropped.
func MineKeywords(analyzed []Analyzed, limit int) []KeywordStat {
	type tally struct {
		n   int
		sum float64
	}
	counts := make(map[string]*tally)
	for _, r := range analyzed {
		seen := make(map[string]bool)
		for _, term := range terms(Tokens(CleanText(r.Record.Text))) {
			if seen[term] {
				continue
			}
			seen[term] = true
			t := counts[term]
			if t == nil {
				t = &tally{}
				counts[term] = t
			}
			t.n++
			t.sum += r.Sentiment.Compound
		}
	}

	threshold := MinMentions(len(analyzed))
	var out []KeywordStat
	for term, t := range counts {
		if t.n < threshold {
			continue
		}
		out = append(out, KeywordStat{Term: term, Count: t.n, AvgSentiment: t.sum / float64(t.n)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// terms returns the kept unigrams followed by the bigrams of neighbouring
// kept tokens.
func terms(tokens []string) []string {
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	out := append(make([]string, 0, 2*len(kept)), kept...)
	for i := 1; i < len(kept); i++ {
		out = append(out, kept[i-1]+" "+kept[i])
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "and": true, "was": true, "were": true, "for": true, "with": true,
	"this": true, "that": true, "but": true, "not": true, "are": true, "you": true,
	"had": true, "have": true, "has": true, "they": true, "their": true, "them": true,
	"there": true, "here": true, "our": true, "out": true, "all": true, "very": true,
	"just": true, "too": true, "also": true, "from": true, "been": true, "will": true,
	"would": true, "could": true, "about": true, "what": true, "when": true, "which": true,
	"who": true, "she": true, "her": true, "him": true, "his": true, "its": true,
	"one": true, "two": true, "get": true, "got": true, "came": true, "come": true,
	"went": true, "back": true, "again": true, "after": true, "before": true, "than": true,
	"then": true, "some": true, "any": true, "more": true, "most": true, "only": true,
	"can": true, "did": true, "does": true, "don": true, "really": true, "place": true,
	"food": true, "restaurant": true, "order": true, "ordered": true, "because": true,
	"into": true, "over": true, "even": true, "much": true, "well": true, "like": true,
	"didn": true, "wasn": true, "isn": true,
}
