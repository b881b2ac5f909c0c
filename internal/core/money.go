// Package core holds the domain model of the tracker: exact-cent money,
// split rules, agreements, budget envelopes and savings goals.
//
// Money is stored as integer cents plus a 3-letter currency code. Every
// operation that can produce fractional cents goes through shopspring/decimal
// and rounds half-up, so chained arithmetic never drifts and split results
// always reconcile against the original total.
package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Money is an immutable amount in a single currency, canonical in cents.
type Money struct {
	cents    int64
	currency string
}

// NewMoney builds a Money from a major-unit amount, rounding half-up to the
// nearest cent. The amount must be finite and the currency a 3-letter code.
func NewMoney(amount float64, currency string) (Money, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Money{}, ErrInvalidAmount
	}
	code, err := normalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	cents := decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return Money{cents: cents, currency: code}, nil
}

// FromCents builds a Money directly from minor units.
func FromCents(cents int64, currency string) (Money, error) {
	code, err := normalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	return Money{cents: cents, currency: code}, nil
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) (Money, error) {
	return FromCents(0, currency)
}

func normalizeCurrency(currency string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range code {
		if !unicode.IsLetter(r) {
			return "", ErrInvalidCurrency
		}
	}
	return code, nil
}

// Cents returns the amount in minor units.
func (m Money) Cents() int64 { return m.cents }

// Currency returns the 3-letter currency code.
func (m Money) Currency() string { return m.currency }

// Amount returns the major-unit value for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Amount() float64 {
	return float64(m.cents) / 100.0
}

func (m Money) sameCurrency(o Money) error {
	if m.currency != o.currency {
		return ErrCurrencyMismatch
	}
	return nil
}

// Add returns m + o. Both amounts must share the same currency.
func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{cents: m.cents + o.cents, currency: m.currency}, nil
}

// Subtract returns m - o. Both amounts must share the same currency.
func (m Money) Subtract(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{cents: m.cents - o.cents, currency: m.currency}, nil
}

// Multiply scales the amount by factor, rounding half-up to the nearest cent.
func (m Money) Multiply(factor float64) (Money, error) {
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return Money{}, ErrInvalidOperand
	}
	cents := decimal.NewFromInt(m.cents).Mul(decimal.NewFromFloat(factor)).Round(0).IntPart()
	return Money{cents: cents, currency: m.currency}, nil
}

// Divide divides the amount by divisor, rounding half-up to the nearest cent.
// The divisor must be finite and non-zero.
func (m Money) Divide(divisor float64) (Money, error) {
	if divisor == 0 || math.IsNaN(divisor) || math.IsInf(divisor, 0) {
		return Money{}, ErrInvalidOperand
	}
	cents := decimal.NewFromInt(m.cents).Div(decimal.NewFromFloat(divisor)).Round(0).IntPart()
	return Money{cents: cents, currency: m.currency}, nil
}

// Compare returns -1, 0 or 1. Both amounts must share the same currency.
func (m Money) Compare(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}
	switch {
	case m.cents < o.cents:
		return -1, nil
	case m.cents > o.cents:
		return 1, nil
	default:
		return 0, nil
	}
}

func (m Money) GreaterThan(o Money) (bool, error) {
	c, err := m.Compare(o)
	return c > 0, err
}

func (m Money) GreaterOrEqual(o Money) (bool, error) {
	c, err := m.Compare(o)
	return c >= 0, err
}

func (m Money) LessThan(o Money) (bool, error) {
	c, err := m.Compare(o)
	return c < 0, err
}

func (m Money) LessOrEqual(o Money) (bool, error) {
	c, err := m.Compare(o)
	return c <= 0, err
}

func (m Money) IsPositive() bool { return m.cents > 0 }
func (m Money) IsNegative() bool { return m.cents < 0 }
func (m Money) IsZero() bool     { return m.cents == 0 }

// Equal reports whether amount in cents and currency both match.
func (m Money) Equal(o Money) bool {
	return m.cents == o.cents && m.currency == o.currency
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m.cents < 0 {
		return Money{cents: -m.cents, currency: m.currency}
	}
	return m
}

// Format renders the amount for display, e.g. "BRL 1234.56".
func (m Money) Format() string {
	return fmt.Sprintf("%s %s", m.currency, decimal.New(m.cents, -2).StringFixed(2))
}

func (m Money) String() string { return m.Format() }

// moneyJSON is the canonical wire shape other layers rely on.
type moneyJSON struct {
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	AmountInCents int64   `json:"amountInCents"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{
		Amount:        m.Amount(),
		Currency:      m.currency,
		AmountInCents: m.cents,
	})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromCents(raw.AmountInCents, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
