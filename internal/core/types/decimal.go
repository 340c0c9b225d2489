// Package types provides monetary helpers shared by payments and cash-flow.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// MoneyScale is the number of fractional digits persisted for payments and expenses.
const MoneyScale int32 = 2

// PaymentTolerance absorbs rounding when comparing payments to a movement total.
var PaymentTolerance = decimal.New(1, -6)

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// MoneyFromInt converts an integer amount (movement montant) to Money.
func MoneyFromInt(v int64) Money {
	return decimal.NewFromInt(v)
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// RoundMoney rounds to the persisted scale.
func RoundMoney(m Money) Money {
	return m.Round(MoneyScale)
}

// ExceedsCeiling reports whether total is above ceiling beyond PaymentTolerance.
func ExceedsCeiling(total, ceiling Money) bool {
	return total.GreaterThan(ceiling.Add(PaymentTolerance))
}

// Remainder is max(ceiling - paid, 0).
func Remainder(ceiling, paid Money) Money {
	r := ceiling.Sub(paid)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}
