package narrative_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizvista/review-engine/narrative"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func items(n int, wordsEach int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = words(wordsEach)
	}
	return out
}

func comparisonJSON(t *testing.T, summary string, byTheme, risks, opps []string) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"summary":       summary,
		"by_theme":      byTheme,
		"risks":         risks,
		"opportunities": opps,
	})
	require.NoError(t, err)
	return string(b)
}

func requireFailure(t *testing.T, err error, kind narrative.FailureKind) {
	t.Helper()
	require.Error(t, err)
	var vErr *narrative.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, kind, vErr.Kind, vErr.Error())
}

// =============================================================================
// COMPARISON SCHEMA
// =============================================================================

func TestValidate_MinimalConformantComparison_Accepted(t *testing.T) {
	raw := comparisonJSON(t, "Alpha leads overall.", items(5, 2), items(2, 2), items(3, 2))

	doc, err := narrative.Validate(narrative.ComparisonSchema, raw)

	require.NoError(t, err)
	assert.Equal(t, "Alpha leads overall.", doc.Text("summary"))
	assert.Len(t, doc.List("by_theme"), 5)
	assert.Len(t, doc.List("risks"), 2)
	assert.Len(t, doc.List("opportunities"), 3)
}

func TestValidate_RisksWithOneItem_Rejected(t *testing.T) {
	raw := comparisonJSON(t, "Alpha leads.", items(5, 2), items(1, 2), items(3, 2))

	_, err := narrative.Validate(narrative.ComparisonSchema, raw)

	requireFailure(t, err, narrative.FailWrongLength)
	assert.Contains(t, err.Error(), "risks")
}

func TestValidate_ByThemeWithSixItems_Rejected(t *testing.T) {
	raw := comparisonJSON(t, "Alpha leads.", items(6, 2), items(2, 2), items(3, 2))

	_, err := narrative.Validate(narrative.ComparisonSchema, raw)

	requireFailure(t, err, narrative.FailWrongLength)
	assert.Contains(t, err.Error(), "by_theme")
}

func TestValidate_EmptyByTheme_Accepted(t *testing.T) {
	raw := comparisonJSON(t, "Alpha leads.", []string{}, items(2, 2), items(3, 2))

	_, err := narrative.Validate(narrative.ComparisonSchema, raw)
	assert.NoError(t, err)
}

func TestValidate_WordBudget(t *testing.T) {
	// GIVEN: 20 words in the lists, the rest in the summary
	// THEN: 160 words total is accepted, 165 is rejected

	lists := func(summaryWords int) string {
		return comparisonJSON(t, words(summaryWords), items(5, 2), items(2, 2), items(3, 2))
	}

	_, err := narrative.Validate(narrative.ComparisonSchema, lists(140))
	assert.NoError(t, err)

	_, err = narrative.Validate(narrative.ComparisonSchema, lists(145))
	requireFailure(t, err, narrative.FailOverBudget)
	assert.Contains(t, err.Error(), "165")
}

func TestValidate_FailureKinds(t *testing.T) {
	s := narrative.ComparisonSchema

	_, err := narrative.Validate(s, "Sure! Here is the JSON")
	requireFailure(t, err, narrative.FailParse)

	_, err = narrative.Validate(s, `{"summary": "x", "by_theme": [], "risks": ["a", "b"]}`)
	requireFailure(t, err, narrative.FailMissingKey)

	_, err = narrative.Validate(s, `{"summary": 3, "by_theme": [], "risks": ["a", "b"], "opportunities": ["a", "b", "c"]}`)
	requireFailure(t, err, narrative.FailWrongType)

	_, err = narrative.Validate(s, `{"summary": "x", "by_theme": "none", "risks": ["a", "b"], "opportunities": ["a", "b", "c"]}`)
	requireFailure(t, err, narrative.FailWrongType)

	_, err = narrative.Validate(s, `{"summary": "x", "by_theme": [], "risks": ["a", 2], "opportunities": ["a", "b", "c"]}`)
	requireFailure(t, err, narrative.FailWrongType)

	_, err = narrative.Validate(s, `{"summary": "x", "by_theme": [], "risks": ["a", "  "], "opportunities": ["a", "b", "c"]}`)
	requireFailure(t, err, narrative.FailEmptyValue)

	_, err = narrative.Validate(s, `{"summary": "", "by_theme": [], "risks": ["a", "b"], "opportunities": ["a", "b", "c"]}`)
	requireFailure(t, err, narrative.FailEmptyValue)
}

// =============================================================================
// INSIGHT SCHEMA
// =============================================================================

func TestValidate_Insight(t *testing.T) {
	good, err := json.Marshal(map[string]any{
		"love":            items(5, 3),
		"improve":         items(5, 3),
		"recommendations": items(3, 5),
		"extra":           "ignored",
	})
	require.NoError(t, err)

	doc, err := narrative.Validate(narrative.InsightSchema, string(good))
	require.NoError(t, err)
	assert.NotContains(t, doc, "extra")
	assert.Equal(t, 45, doc.Words(narrative.InsightSchema))

	short, err := json.Marshal(map[string]any{
		"love":            items(4, 3),
		"improve":         items(5, 3),
		"recommendations": items(3, 5),
	})
	require.NoError(t, err)
	_, err = narrative.Validate(narrative.InsightSchema, string(short))
	requireFailure(t, err, narrative.FailWrongLength)
}

func TestSchema_JSONSchemaCarriesBounds(t *testing.T) {
	js := narrative.InsightSchema.JSONSchema()

	props, ok := js["properties"].(map[string]any)
	require.True(t, ok)
	love, ok := props["love"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 5.0, love["minItems"])
	assert.Equal(t, 5.0, love["maxItems"])
	assert.ElementsMatch(t, []any{"love", "improve", "recommendations"}, js["required"])
}

func TestSchema_Template(t *testing.T) {
	tpl := narrative.ComparisonSchema.Template()
	assert.Contains(t, tpl, `"risks": [string, string]`)
	assert.Contains(t, tpl, `"by_theme": [at most 5 strings]`)
	assert.Contains(t, tpl, `"summary": string`)
}
