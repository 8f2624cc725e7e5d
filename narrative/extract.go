package narrative

import (
	"regexp"
)

// MaxExtractBytes bounds how much of a reply Extract scans.
const MaxExtractBytes = 16 << 10

// Extract scans free text for a balanced {...} block that mentions every
// required key of s and validates. The first block that passes wins. Only
// the first MaxExtractBytes of text are considered.
func Extract(s *Schema, text string) (Document, bool) {
	if len(text) > MaxExtractBytes {
		text = text[:MaxExtractBytes]
	}
	patterns := keyPatterns(s)
	var found Document
	eachBraceBlock(text, func(block string) bool {
		if !mentionsAll(block, patterns) {
			return true
		}
		doc, err := Validate(s, block)
		if err != nil {
			return true
		}
		found = doc
		return false
	})
	return found, found != nil
}

func keyPatterns(s *Schema) []*regexp.Regexp {
	ps := make([]*regexp.Regexp, len(s.Fields))
	for i, f := range s.Fields {
		ps[i] = regexp.MustCompile(`"` + regexp.QuoteMeta(f.Key) + `"\s*:`)
	}
	return ps
}

func mentionsAll(block string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if !p.MatchString(block) {
			return false
		}
	}
	return true
}

// eachBraceBlock calls fn with every balanced brace-delimited substring in
// order of start position until fn returns false. Braces inside JSON strings
// are ignored.
func eachBraceBlock(text string, fn func(block string) bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end := matchBrace(text, start)
		if end < 0 {
			continue
		}
		if !fn(text[start : end+1]) {
			return
		}
	}
}

func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
