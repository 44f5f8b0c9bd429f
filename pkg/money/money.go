// Package money converts between decimal currency amounts and the integer
// cents stored on records.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FromDecimal converts a currency amount with at most two decimal places to cents.
func FromDecimal(d decimal.Decimal) (int64, error) {
	cents := d.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than two decimal places", d.String())
	}
	if !cents.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s is out of range", d.String())
	}
	return cents.IntPart(), nil
}

// Parse converts a string such as "45.75" to cents.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

// ToDecimal converts cents to a two-decimal currency amount.
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Format renders cents as "45.75".
func Format(cents int64) string {
	return ToDecimal(cents).StringFixed(2)
}
