// Package money provides fixed-precision helpers for monetary amounts.
//
// All amounts are shopspring decimals carried at full precision; rounding to
// two decimal places happens only at the documented computation points
// (line totals, discount amounts, tax amounts). Rounding is half-up.
package money

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
)

// Zero returns the zero amount.
func Zero() decimal.Decimal {
	return decimal.Zero
}

// Round2 rounds an amount to two decimal places, half-up.
// decimal.Round rounds half away from zero, which for the non-negative
// amounts produced by the calculators is exactly half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent computes base × rate / 100 rounded to two decimal places.
func Percent(base, rate decimal.Decimal) decimal.Decimal {
	return Round2(base.Mul(rate).Div(hundred))
}

// IsNegative reports whether d < 0.
func IsNegative(d decimal.Decimal) bool {
	return d.Sign() < 0
}

// IsPositive reports whether d > 0.
func IsPositive(d decimal.Decimal) bool {
	return d.Sign() > 0
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// FromString parses an amount, returning the zero amount on error.
// Intended for trusted fixtures and config values, not user input.
func FromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
