package review

import (
	"strings"
	"unicode"
)

// CleanText lowercases text, replaces every character that is not a letter,
// digit, underscore or whitespace with a space, and collapses whitespace runs.
func CleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Tokens splits cleaned text into words.
func Tokens(cleaned string) []string {
	return strings.Fields(cleaned)
}
