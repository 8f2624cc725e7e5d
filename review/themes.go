package review

import (
	"slices"
	"strings"
)

// =============================================================================
// THEME TABLE - Fixed, process-wide, read-only
// =============================================================================

// ThemeDefinition is a named theme with its curated keyword list.
type ThemeDefinition struct {
	Name     ThemeName
	Keywords []string
}

// Label returns the human-readable theme name ("food_quality" -> "Food Quality").
func (d ThemeDefinition) Label() string {
	return ThemeLabel(d.Name)
}

// ThemeLabel title-cases a theme name.
func ThemeLabel(name ThemeName) string {
	parts := strings.Split(string(name), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// ThemeTable is an ordered set of theme definitions.
// The order is the order themes appear in reports and trend rows.
type ThemeTable struct {
	defs  []ThemeDefinition
	index map[ThemeName]int
}

// NewThemeTable copies defs into an immutable table.
func NewThemeTable(defs []ThemeDefinition) *ThemeTable {
	t := &ThemeTable{
		defs:  make([]ThemeDefinition, len(defs)),
		index: make(map[ThemeName]int, len(defs)),
	}
	for i, d := range defs {
		t.defs[i] = ThemeDefinition{Name: d.Name, Keywords: slices.Clone(d.Keywords)}
		t.index[d.Name] = i
	}
	return t
}

// Len returns the number of themes.
func (t *ThemeTable) Len() int { return len(t.defs) }

// Names returns theme names in table order.
func (t *ThemeTable) Names() []ThemeName {
	names := make([]ThemeName, len(t.defs))
	for i, d := range t.defs {
		names[i] = d.Name
	}
	return names
}

// Definitions returns a copy of the definitions in table order.
func (t *ThemeTable) Definitions() []ThemeDefinition {
	out := make([]ThemeDefinition, len(t.defs))
	for i, d := range t.defs {
		out[i] = ThemeDefinition{Name: d.Name, Keywords: slices.Clone(d.Keywords)}
	}
	return out
}

// Has reports whether name is in the table.
func (t *ThemeTable) Has(name ThemeName) bool {
	_, ok := t.index[name]
	return ok
}

// Index returns the position of name in the table, or -1.
func (t *ThemeTable) Index(name ThemeName) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

var defaultThemes = NewThemeTable([]ThemeDefinition{
	{Name: "food_quality", Keywords: []string{
		"taste", "flavor", "delicious", "tasty", "bland", "spicy", "fresh", "cooked", "raw",
		"burnt", "seasoning", "sauce", "seasoned", "flavorful", "bitter", "sweet", "salty", "sour",
	}},
	{Name: "service", Keywords: []string{
		"service", "server", "waiter", "waitress", "staff", "friendly", "attentive", "helpful",
		"polite", "rude", "ignored", "welcoming", "courteous", "professional", "unfriendly",
	}},
	{Name: "speed_wait", Keywords: []string{
		"wait", "time", "slow", "fast", "quick", "delay", "rushed", "hurried", "patience",
		"timely", "prompt", "late", "early", "minutes", "hours", "seating", "table",
	}},
	{Name: "ambiance", Keywords: []string{
		"atmosphere", "ambiance", "noise", "loud", "quiet", "decor", "vibe", "romantic",
		"casual", "elegant", "cozy", "crowded", "empty", "music", "lighting", "mood",
	}},
	{Name: "cleanliness", Keywords: []string{
		"clean", "dirty", "hygiene", "tidy", "messy", "sanitary", "bathroom", "restroom",
		"table", "floor", "kitchen", "spotless", "filthy", "neat", "organized",
	}},
	{Name: "portion_size", Keywords: []string{
		"portion", "size", "small", "large", "huge", "tiny", "generous", "skimpy", "enough",
		"plenty", "scanty", "massive", "mini", "big", "little",
	}},
	{Name: "price_value", Keywords: []string{
		"price", "expensive", "cheap", "value", "worth", "overpriced", "affordable", "budget",
		"cost", "money", "dollar", "pay", "bill", "reasonable", "rip-off",
	}},
	{Name: "staff_behavior", Keywords: []string{
		"professional", "attitude", "behavior", "rude", "polite", "arrogant", "humble",
		"patient", "impatient", "knowledgeable", "ignorant", "competent", "incompetent",
	}},
})

// DefaultThemes returns the standard eight-theme restaurant table.
func DefaultThemes() *ThemeTable {
	return defaultThemes
}
