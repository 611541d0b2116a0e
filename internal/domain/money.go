package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"ledger-transfers/internal/errors"
)

// Currency is an ISO 4217 style code.
type Currency string

const (
	EUR Currency = "EUR"
	USD Currency = "USD"
	GBP Currency = "GBP"
	CHF Currency = "CHF"
	JPY Currency = "JPY"
)

const defaultScale int32 = 2

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

	currencyScales = map[Currency]int32{
		EUR: 2,
		USD: 2,
		GBP: 2,
		CHF: 2,
		JPY: 0,
	}
)

// Scale is the number of fractional digits ledger amounts carry in this currency.
func (c Currency) Scale() int32 {
	if s, ok := currencyScales[c]; ok {
		return s
	}
	return defaultScale
}

func ParseCurrency(raw string) (Currency, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if !currencyPattern.MatchString(code) {
		return "", errors.NewAppErrorf(errors.InvalidAmount, "invalid currency code %q", raw)
	}
	return Currency(code), nil
}

// Money is an immutable amount in a single currency. Every amount is rounded
// half away from zero to the currency scale when it is produced.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	c, err := ParseCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	return newMoney(amount, c), nil
}

func ParseMoney(raw, currency string) (Money, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Money{}, errors.NewAppErrorf(errors.InvalidAmount, "invalid amount %q", raw)
	}
	return NewMoney(amount, currency)
}

// MustMoney is NewMoney for literals; it panics on invalid input.
func MustMoney(raw, currency string) Money {
	m, err := ParseMoney(raw, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func ZeroMoney(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

func newMoney(amount decimal.Decimal, c Currency) Money {
	return Money{amount: amount.Round(c.Scale()), currency: c}
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() Currency      { return m.currency }

func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return newMoney(m.amount.Add(other.amount), m.currency), nil
}

func (m Money) Subtract(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return newMoney(m.amount.Sub(other.amount), m.currency), nil
}

func (m Money) IsPositive() bool { return m.amount.IsPositive() }
func (m Money) IsZero() bool     { return m.amount.IsZero() }
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// Cmp returns -1, 0 or +1.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	return m.amount.Cmp(other.amount), nil
}

func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

func (m Money) GreaterThanOrEqual(other Money) (bool, error) {
	c, err := m.Cmp(other)
	return c >= 0, err
}

func (m Money) LessThan(other Money) (bool, error) {
	c, err := m.Cmp(other)
	return c < 0, err
}

// StringFixed renders the amount with exactly the currency scale, e.g. "30.00".
func (m Money) StringFixed() string {
	return m.amount.StringFixed(m.currency.Scale())
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.StringFixed(), m.currency)
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return errors.NewAppErrorf(errors.CurrencyMismatch, "currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return nil
}
