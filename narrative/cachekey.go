package narrative

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
)

const (
	// ComparisonSalt prefixes comparison cache keys.
	ComparisonSalt = "cmp-narrative"

	// InsightSalt prefixes insight cache keys.
	InsightSalt = "insight-narrative"

	// LatestScope marks a key computed over the latest stored scores.
	LatestScope = "latest"
)

// CacheKey derives a content fingerprint:
//
//	sha256( salt | sorted,ids | scope | sha256(canonical(content))[:16] )
//
// canonical renders content as sorted-key JSON with ", " and ": "
// separators and \u escapes for non-ASCII, so that the short hash is stable
// across processes and reproducible by other tooling.
func CacheKey(salt string, ids []string, scope string, content any) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	short := sha256.Sum256([]byte(Canonical(content)))
	key := fmt.Sprintf("%s|%s|%s|%s", salt, strings.Join(sorted, ","), scope, hex.EncodeToString(short[:])[:16])

	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Canonical renders v deterministically. Supported: nil, bool, string,
// integers, float64, []any, []string, map[string]any, map[string]string.
func Canonical(v any) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if x {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		writeString(b, x)
	case int:
		b.WriteString(strconv.Itoa(x))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case float64:
		b.WriteString(formatFloat(x))
	case []string:
		b.WriteByte('[')
		for i, s := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			writeString(b, s)
		}
		b.WriteByte(']')
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
	case map[string]string:
		m := make(map[string]any, len(x))
		for k, s := range x {
			m[k] = s
		}
		writeCanonical(b, m)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			writeString(b, k)
			b.WriteString(": ")
			writeCanonical(b, x[k])
		}
		b.WriteByte('}')
	default:
		writeString(b, fmt.Sprint(x))
	}
}

// formatFloat prints the shortest round-trip representation, always with a
// fractional part or exponent ("1.0", "0.25", "1e-05").
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			switch {
			case r < 0x20 || (r >= 0x7f && r < 0x10000):
				fmt.Fprintf(b, `\u%04x`, r)
			case r >= 0x10000:
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(b, `\u%04x\u%04x`, hi, lo)
			default:
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}
