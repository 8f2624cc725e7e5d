package review

import (
	"strings"

	"github.com/agext/levenshtein"
)

// =============================================================================
// THEME CLASSIFIER - Exact substring first, fuzzy window second
// =============================================================================

const (
	// FuzzyThreshold is the minimum similarity ratio (0-100) for a fuzzy match.
	FuzzyThreshold = 85.0

	// MaxWindow is the largest number of consecutive words compared to a keyword.
	MaxWindow = 4
)

// indel distance: substitution counts as one deletion plus one insertion.
var indelParams = levenshtein.NewParams().SubCost(2)

// Ratio returns the normalized indel similarity of a and b on a 0-100 scale.
// Two empty strings are identical (100).
func Ratio(a, b string) float64 {
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 100
	}
	d := levenshtein.Distance(a, b, indelParams)
	return float64(100*(total-d)) / float64(total)
}

// ThemeFlags holds per-theme membership for one text, in table order.
type ThemeFlags []bool

// Classify returns the theme membership flags of cleaned text.
// For each keyword an exact substring hit wins immediately; otherwise every
// 1..MaxWindow word window is compared and a Ratio >= FuzzyThreshold matches.
func Classify(cleaned string, table *ThemeTable) ThemeFlags {
	flags := make(ThemeFlags, table.Len())
	if strings.TrimSpace(cleaned) == "" {
		return flags
	}
	windows := wordWindows(Tokens(cleaned))
	for i, def := range table.defs {
		for _, kw := range def.Keywords {
			if matchKeyword(cleaned, windows, kw) {
				flags[i] = true
				break
			}
		}
	}
	return flags
}

func matchKeyword(cleaned string, windows []string, keyword string) bool {
	if strings.Contains(cleaned, keyword) {
		return true
	}
	kwLen := len([]rune(keyword))
	for _, w := range windows {
		if !lengthAllows(len([]rune(w)), kwLen) {
			continue
		}
		if Ratio(w, keyword) >= FuzzyThreshold {
			return true
		}
	}
	return false
}

// lengthAllows is the best ratio two strings of these lengths could reach.
func lengthAllows(l1, l2 int) bool {
	shorter := min(l1, l2)
	return float64(200*shorter)/float64(l1+l2) >= FuzzyThreshold
}

func wordWindows(tokens []string) []string {
	var out []string
	for n := 1; n <= MaxWindow; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}
