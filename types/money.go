// Package types provides value types shared across the ledger packages.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CurrencyEUR is the only currency plans are priced in.
const CurrencyEUR = "eur"

// Money is an amount in the smallest currency unit (cents).
// Arithmetic is integer-only.
//
//   - EUR(499)  = 4,99 €
//   - EUR(1999) = 19,99 €
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"` // ISO 4217 lowercase
}

// EUR creates a Money value in euro cents.
func EUR(cents int64) Money { return Money{Amount: cents, Currency: CurrencyEUR} }

// Zero returns a zero Money value in the given currency.
func Zero(currency string) Money { return Money{Currency: strings.ToLower(currency)} }

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Multiply multiplies the amount by qty.
func (m Money) Multiply(qty int64) Money {
	return Money{Amount: m.Amount * qty, Currency: m.Currency}
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// Equal reports whether amount and currency match. A zero Money with an
// empty currency equals any zero amount.
func (m Money) Equal(other Money) bool {
	if m.Amount == 0 && other.Amount == 0 && (m.Currency == "" || other.Currency == "") {
		return true
	}
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// LessThan compares amounts. Panics if currencies don't match.
func (m Money) LessThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount < other.Amount
}

// String formats the amount the way German users read prices:
// "4,99 €", "1.250,00 €", "-0,99 €".
func (m Money) String() string {
	amount := m.Amount
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	major := fmt.Sprintf("%d", amount/100)
	// thousands separator
	var b strings.Builder
	for i, r := range major {
		if i > 0 && (len(major)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	return fmt.Sprintf("%s%s,%02d %s", sign, b.String(), amount%100, currencySymbol(m.Currency))
}

// MarshalJSON adds a display string next to the raw amount.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON ignores the display field written by MarshalJSON.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Amount = raw.Amount
	m.Currency = strings.ToLower(raw.Currency)
	return nil
}

func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

func currencySymbol(currency string) string {
	switch strings.ToLower(currency) {
	case CurrencyEUR, "":
		return "€"
	case "chf":
		return "CHF"
	default:
		return strings.ToUpper(currency)
	}
}
