// Copyright 2025 Certen Protocol
//
// Money is a fixed-point amount in integer minor currency units (cents),
// tagged with its ISO 4217 currency code. Kept as an integer throughout to
// avoid floating-point drift across operator boundaries.

package primitives

import (
	"errors"
	"fmt"
)

// ErrNegativeAmount is returned by operations that require a non-negative amount.
var ErrNegativeAmount = errors.New("primitives: amount must be non-negative")

// ErrCurrencyMismatch is returned when combining Money of different currencies.
var ErrCurrencyMismatch = errors.New("primitives: currency mismatch")

// Money is an amount of minor currency units (e.g. cents) in a given
// ISO 4217 currency.
type Money struct {
	Cents    int64
	Currency string
}

// NewMoney constructs a Money value, rejecting negative amounts.
func NewMoney(cents int64, currency string) (Money, error) {
	if cents < 0 {
		return Money{}, ErrNegativeAmount
	}
	return Money{Cents: cents, Currency: currency}, nil
}

// Add returns m+other, requiring matching currencies.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Cents: m.Cents + other.Cents, Currency: m.Currency}, nil
}

// Sub returns m-other, requiring matching currencies. The result may be
// negative; callers that require non-negative settlement amounts must
// check explicitly.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Cents: m.Cents - other.Cents, Currency: m.Currency}, nil
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.Cents > 0
}

// String renders e.g. "25000 EUR".
func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Cents, m.Currency)
}

// CanonicalBytes encodes the amount as an 8-byte little-endian signed
// integer followed by a length-prefixed currency code.
func (m Money) CanonicalBytes() []byte {
	buf := AppendInt64(nil, m.Cents)
	return AppendStringLP(buf, m.Currency)
}
