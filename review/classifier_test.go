package review_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizvista/review-engine/review"
)

func flag(t *testing.T, table *review.ThemeTable, flags review.ThemeFlags, name review.ThemeName) bool {
	t.Helper()
	i := table.Index(name)
	require.GreaterOrEqual(t, i, 0, "unknown theme %s", name)
	return flags[i]
}

// =============================================================================
// TEXT CLEANING
// =============================================================================

func TestCleanText(t *testing.T) {
	assert.Equal(t, "the food was great", review.CleanText("The FOOD   was great!!!"))
	assert.Equal(t, "don t go", review.CleanText("Don't go."))
	assert.Equal(t, "rip off", review.CleanText("rip-off"))
	assert.Equal(t, "", review.CleanText("  ...  "))
}

// =============================================================================
// THEME CLASSIFIER
// =============================================================================

func TestDefaultThemes_EightThemes(t *testing.T) {
	table := review.DefaultThemes()
	assert.Equal(t, 8, table.Len())
	assert.True(t, table.Has("food_quality"))
	assert.True(t, table.Has("staff_behavior"))
	assert.Equal(t, "Speed Wait", review.ThemeLabel("speed_wait"))
}

func TestClassify_ExactKeyword_AlwaysMatches(t *testing.T) {
	// GIVEN: Text containing keywords verbatim
	// WHEN: Classifying
	// THEN: Every theme owning one of those keywords matches

	table := review.DefaultThemes()
	flags := review.Classify(review.CleanText("The waiter was rude but the soup was delicious"), table)

	assert.True(t, flag(t, table, flags, "service"))
	assert.True(t, flag(t, table, flags, "staff_behavior"))
	assert.True(t, flag(t, table, flags, "food_quality"))
}

func TestClassify_EmptyText_AllFalse(t *testing.T) {
	table := review.DefaultThemes()
	flags := review.Classify("", table)

	require.Len(t, flags, table.Len())
	assert.NotContains(t, flags, true)
}

func TestClassify_FuzzyMisspelling_Matches(t *testing.T) {
	// "servise" vs "service": ratio 85.7
	table := review.NewThemeTable([]review.ThemeDefinition{{Name: "service", Keywords: []string{"service"}}})
	flags := review.Classify("servise", table)
	assert.True(t, flags[0])
}

func TestClassify_FuzzyBoundary(t *testing.T) {
	// GIVEN: A keyword whose closest window scores exactly 85, and one scoring 84
	// THEN: 85 matches, 84 does not

	at85 := review.NewThemeTable([]review.ThemeDefinition{{Name: "x", Keywords: []string{"abcdefghijklmnopqxyz"}}})
	at84 := review.NewThemeTable([]review.ThemeDefinition{{Name: "x", Keywords: []string{"abcdefghijklmnopqrstu1234"}}})

	require.Equal(t, 85.0, review.Ratio("abcdefghijklmnopqrst", "abcdefghijklmnopqxyz"))
	require.Equal(t, 84.0, review.Ratio("abcdefghijklmnopqrstuvwxy", "abcdefghijklmnopqrstu1234"))

	assert.True(t, review.Classify("abcdefghijklmnopqrst", at85)[0])
	assert.False(t, review.Classify("abcdefghijklmnopqrstuvwxy", at84)[0])
}

func TestClassify_MultiWordWindow(t *testing.T) {
	// "rip-off" cleans to "rip off"; only a two-word window can reach it
	table := review.DefaultThemes()
	flags := review.Classify(review.CleanText("What a rip-off"), table)
	assert.True(t, flag(t, table, flags, "price_value"))
}

func TestClassify_Deterministic(t *testing.T) {
	table := review.DefaultThemes()
	text := review.CleanText("Cozy spot, generous portions, a little pricey and the bathroom was filthy.")
	first := review.Classify(text, table)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, review.Classify(text, table))
	}
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 100.0, review.Ratio("", ""))
	assert.Equal(t, 100.0, review.Ratio("table", "table"))
	assert.Equal(t, 0.0, review.Ratio("abc", "xyz"))
}
