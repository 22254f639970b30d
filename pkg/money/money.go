// Package money provides decimal arithmetic helpers for monetary amounts.
// All amounts are shopspring decimals; float64 is never used for money.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept on settled amounts.
const Scale = 2

// RateIdentity is the rate that leaves the credit leg equal to the debit leg.
var RateIdentity = decimal.NewFromInt(1)

// Parse parses a string into a monetary amount.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// MustParse parses a string amount and panics on failure. Test helper.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Positive reports whether d is strictly greater than zero.
func Positive(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.Zero)
}

// CreditLeg computes the amount credited to the destination account for a
// debit of amount at the given rate. The rate is a pure conversion factor,
// the debit leg is always exactly amount.
func CreditLeg(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(Scale)
}
