package review

import (
	"math"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTIMENT SCORER - Lexicon polarity with negation, boosters and "but"
// =============================================================================

// Label is the discrete sentiment class of a compound score.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNeutral  Label = "neutral"
	LabelNegative Label = "negative"
)

const (
	labelThreshold = 0.05
	negationScalar = -0.74
	boosterIncr    = 0.293
	normAlpha      = 15.0
	lookBack       = 3
)

// Sentiment is the result of scoring one text.
type Sentiment struct {
	Compound float64
	Label    Label
}

// LabelFor classifies a compound score.
func LabelFor(compound float64) Label {
	switch {
	case compound >= labelThreshold:
		return LabelPositive
	case compound <= -labelThreshold:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// Score returns the compound sentiment of cleaned text in [-1, 1].
// Empty text is neutral with compound 0.
func Score(cleaned string) Sentiment {
	c := compound(Tokens(cleaned))
	return Sentiment{Compound: c, Label: LabelFor(c)}
}

func compound(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	valences := make([]float64, len(tokens))
	butAt := -1
	for i, tok := range tokens {
		if tok == "but" && butAt < 0 {
			butAt = i
		}
		v, ok := lexicon[tok]
		if !ok {
			continue
		}
		for back := 1; back <= lookBack && i-back >= 0; back++ {
			prev := tokens[i-back]
			if b, ok := boosters[prev]; ok {
				scale := boosterIncr * b * (1 - 0.05*float64(back-1))
				if v < 0 {
					scale = -scale
				}
				v += scale
			}
		}
		for back := 1; back <= lookBack && i-back >= 0; back++ {
			if negations[tokens[i-back]] {
				v *= negationScalar
				break
			}
		}
		valences[i] = v
	}

	var sum float64
	for i, v := range valences {
		switch {
		case butAt < 0:
		case i < butAt:
			v *= 0.5
		case i > butAt:
			v *= 1.5
		}
		sum += v
	}
	if sum == 0 {
		return 0
	}
	c := sum / math.Sqrt(sum*sum+normAlpha)
	return math.Max(-1, math.Min(1, c))
}

// ScaledScore maps a compound score to the 0-100 display scale:
// round((compound + 1) * 50).
func ScaledScore(compound float64) int {
	if math.IsNaN(compound) || math.IsInf(compound, 0) {
		return 0
	}
	return int(decimal.NewFromFloat(compound).Add(decimal.NewFromInt(1)).
		Mul(decimal.NewFromInt(50)).Round(0).IntPart())
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Round3 rounds to three decimal places, half away from zero.
func Round3(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(3).InexactFloat64()
}
