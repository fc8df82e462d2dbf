// Package money converts between major and minor currency units and compares
// amounts by relative tolerance. Processors report amounts in the minor unit
// (kobo, cents); plans and persisted payments use the major unit.
package money

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToMinor converts a major-unit amount to minor units, rounding half away from zero.
func ToMinor(major decimal.Decimal) int64 {
	return major.Mul(hundred).Round(0).IntPart()
}

// FromMinor converts a minor-unit amount to major units.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

// RelativeDiff returns |actual-expected| / expected. A zero expected amount only
// matches a zero actual amount.
func RelativeDiff(expected, actual int64) float64 {
	if expected == 0 {
		if actual == 0 {
			return 0
		}
		return 1
	}
	diff := decimal.NewFromInt(actual - expected).Abs()
	return diff.Div(decimal.NewFromInt(expected).Abs()).InexactFloat64()
}

// WithinTolerance reports whether actual is within pct (0.05 = 5%) of expected.
func WithinTolerance(expected, actual int64, pct float64) bool {
	return RelativeDiff(expected, actual) <= pct
}

// Round2 rounds to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
