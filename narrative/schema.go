/*
Package narrative turns aggregates into short structured narratives.

PURPOSE:
  One pipeline serves every narrative family. A Schema describes the
  required keys, per-key length bounds and the total word budget; the
  validator, the repair prompt, the extractor and the rule-based fallback
  are all driven by it.

PROTOCOL (Service.Resolve):
  1. Cache lookup by content fingerprint. Hit: cached=true, source=generated
  2. Generate (bounded by a timeout, transport failures retried with backoff)
  3. Validate
  4. One repair call, re-validate
  5. Extract a balanced {...} block from the raw text(s), validate it
  6. Deterministic fallback from the facts. Always valid, never calls out

SEE ALSO:
  - validate.go: Failure kinds
  - fallback.go: Rule-based narrative
  - cachekey.go: Fingerprint derivation
  - service.go: The protocol itself
*/
package narrative

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
)

// Kind names a narrative family.
type Kind string

const (
	KindInsight    Kind = "insight"
	KindComparison Kind = "comparison"
)

// Role selects which facts the fallback derives items from.
type Role int

const (
	RoleSummary Role = iota
	RoleLeaders
	RolePositive
	RoleNegative
	RoleRecommend
)

// Field is one required key of a schema.
type Field struct {
	Key  string
	List bool

	// Min and Max bound list length. Min == Max means exact.
	Min int
	Max int

	Role    Role
	Padding []string // distinct generic items used by the fallback
}

func (f Field) lengthRule() string {
	switch {
	case f.Min == f.Max:
		return fmt.Sprintf("exactly %d", f.Max)
	case f.Min == 0:
		return fmt.Sprintf("at most %d", f.Max)
	default:
		return fmt.Sprintf("%d to %d", f.Min, f.Max)
	}
}

// Schema describes one narrative family.
type Schema struct {
	Kind       Kind
	Name       string
	Fields     []Field
	WordBudget int

	model      any
	schemaOnce sync.Once
	schemaMap  map[string]any
}

// Template renders the schema the way prompts show it, e.g.
// {"risks": [string, string], "by_theme": [up to 5 strings]}.
func (s *Schema) Template() string {
	var b strings.Builder
	b.WriteString("{\n")
	for i, f := range s.Fields {
		fmt.Fprintf(&b, "  %q: ", f.Key)
		switch {
		case !f.List:
			b.WriteString("string")
		case f.Min == f.Max:
			b.WriteString("[" + strings.TrimSuffix(strings.Repeat("string, ", f.Max), ", ") + "]")
		default:
			fmt.Fprintf(&b, "[%s strings]", f.lengthRule())
		}
		if i < len(s.Fields)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

// JSONSchema returns the JSON Schema of the document, reflected from the
// family's model type. Backends with structured output receive it.
func (s *Schema) JSONSchema() map[string]any {
	s.schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties:  false,
			DoNotReference:             true,
			RequiredFromJSONSchemaTags: true,
		}
		b, err := reflector.Reflect(s.model).MarshalJSON()
		if err != nil {
			panic(err)
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			panic(err)
		}
		delete(m, "$schema")
		s.schemaMap = m
	})
	return s.schemaMap
}

// =============================================================================
// FAMILIES
// =============================================================================

type insightModel struct {
	Love            []string `json:"love" jsonschema:"required,minItems=5,maxItems=5"`
	Improve         []string `json:"improve" jsonschema:"required,minItems=5,maxItems=5"`
	Recommendations []string `json:"recommendations" jsonschema:"required,minItems=3,maxItems=3"`
}

type comparisonModel struct {
	Summary       string   `json:"summary" jsonschema:"required,minLength=1"`
	ByTheme       []string `json:"by_theme" jsonschema:"required,maxItems=5"`
	Risks         []string `json:"risks" jsonschema:"required,minItems=2,maxItems=2"`
	Opportunities []string `json:"opportunities" jsonschema:"required,minItems=3,maxItems=3"`
}

// InsightSchema is the periodic insight: love[5], improve[5],
// recommendations[3], at most 180 words.
var InsightSchema = &Schema{
	Kind:       KindInsight,
	Name:       "Insight",
	WordBudget: 180,
	model:      insightModel{},
	Fields: []Field{
		{Key: "love", List: true, Min: 5, Max: 5, Role: RolePositive, Padding: []string{
			"Overall customer satisfaction trending positive.",
			"Guests keep coming back.",
			"Reviews mention a welcoming experience.",
			"Regulars speak well of the menu.",
			"Consistent ratings across recent visits.",
		}},
		{Key: "improve", List: true, Min: 5, Max: 5, Role: RoleNegative, Padding: []string{
			"Continue monitoring customer feedback.",
			"Respond to critical reviews promptly.",
			"Check consistency during peak hours.",
			"Ask guests for more detailed feedback.",
			"Track recurring complaints week over week.",
		}},
		{Key: "recommendations", List: true, Min: 3, Max: 3, Role: RoleRecommend, Padding: []string{
			"Maintain current service standards.",
			"Share positive reviews with the team.",
			"Revisit this report after the next period.",
		}},
	},
}

// ComparisonSchema is the multi-business comparison: summary, by_theme[<=5],
// risks[2], opportunities[3], at most 160 words.
var ComparisonSchema = &Schema{
	Kind:       KindComparison,
	Name:       "Comparison",
	WordBudget: 160,
	model:      comparisonModel{},
	Fields: []Field{
		{Key: "summary", Role: RoleSummary, Padding: []string{
			"The compared businesses perform similarly overall.",
		}},
		{Key: "by_theme", List: true, Min: 0, Max: 5, Role: RoleLeaders},
		{Key: "risks", List: true, Min: 2, Max: 2, Role: RoleNegative, Padding: []string{
			"No critical risks stand out in recent reviews.",
			"Watch for shifts in review volume.",
		}},
		{Key: "opportunities", List: true, Min: 3, Max: 3, Role: RoleRecommend, Padding: []string{
			"Highlight the strongest themes in marketing.",
			"Learn from the theme leaders.",
			"Collect more reviews to sharpen the comparison.",
		}},
	},
}

// SchemaFor returns the schema of a kind.
func SchemaFor(kind Kind) (*Schema, bool) {
	switch kind {
	case KindInsight:
		return InsightSchema, true
	case KindComparison:
		return ComparisonSchema, true
	}
	return nil, false
}
