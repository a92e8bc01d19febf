// Package fuzzy implements the fuzzy match engine: edit-distance text
// similarity, bounded numeric tolerance comparison, tiered search results and
// advisory value suggestions.
//
// All weight constants are pinned as decimals in one place so confidence
// scores are reproducible across platforms; floating point only appears at
// the final comparison boundary.
package fuzzy

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
)

// Similarity returns the edit-distance similarity of two strings, normalized
// to [0, 1] by dividing by the longer string's length. Comparison is
// case-insensitive. Two empty strings are identical (1.0); one empty string
// against a non-empty one scores 0.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	distance := levenshtein.ComputeDistance(a, b)
	longer := len([]rune(a))
	if l := len([]rune(b)); l > longer {
		longer = l
	}

	return 1.0 - float64(distance)/float64(longer)
}

// ToleranceFraction returns |a-b| / max(|a|, |b|) as a decimal fraction.
// Identical values yield zero; a zero compared against a non-zero value
// yields one (the whole magnitude differs).
func ToleranceFraction(a, b decimal.Decimal) decimal.Decimal {
	absA := a.Abs()
	absB := b.Abs()

	larger := absA
	if absB.GreaterThan(absA) {
		larger = absB
	}

	if larger.IsZero() {
		return decimal.Zero
	}

	return absA.Sub(absB).Abs().Div(larger)
}

// WithinTolerance reports whether two values differ by at most the given
// percentage of the larger magnitude.
func WithinTolerance(a, b decimal.Decimal, percent float64) bool {
	limit := decimal.NewFromFloat(percent).Div(decimal.NewFromInt(100))
	return ToleranceFraction(a, b).LessThanOrEqual(limit)
}
