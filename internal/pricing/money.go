package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a decimal monetary amount. Arithmetic on Money is exact; rounding only
// happens when an amount is rendered with Format.
type Money = decimal.Decimal

var hundred = decimal.NewFromInt(100)

// Zero returns a zero amount.
func Zero() Money { return decimal.Zero }

// NewMoney parses a decimal string such as "250.75".
func NewMoney(value string) (Money, error) {
	return decimal.NewFromString(strings.TrimSpace(value))
}

// MustMoney is like NewMoney but panics on malformed input. Intended for constants and tests.
func MustMoney(value string) Money {
	m, err := NewMoney(value)
	if err != nil {
		panic(err)
	}
	return m
}

// Format renders the amount with two decimal places.
func Format(m Money) string {
	return m.StringFixed(2)
}

func nonNegative(m Money) Money {
	if m.IsNegative() {
		return decimal.Zero
	}
	return m
}
