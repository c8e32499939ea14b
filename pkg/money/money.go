package money

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/shopspring/decimal"
)

var currencyCodeRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Currency is an ISO 4217 currency code as carried on a book's exc_code property.
type Currency struct {
	code string
}

// NewCurrency creates a Currency after validating the code is exactly 3 uppercase letters.
func NewCurrency(code string) (Currency, error) {
	if !currencyCodeRe.MatchString(code) {
		return Currency{}, fmt.Errorf("invalid currency code %q: must be exactly 3 uppercase letters", code)
	}
	return Currency{code: code}, nil
}

// Code returns the ISO 4217 currency code.
func (c Currency) Code() string {
	return c.code
}

func (c Currency) String() string {
	return c.code
}

// Money is an immutable amount in a single currency.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// New creates a Money value from a decimal amount and currency.
func New(amount decimal.Decimal, currency Currency) Money {
	return Money{amount: amount, currency: currency}
}

// Amount returns the decimal amount.
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency.
func (m Money) Currency() Currency {
	return m.currency
}

// Add returns the sum of m and other. Currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: cannot add %s to %s", other.currency, m.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// StringFixed formats the amount with the given number of fraction digits, e.g. "12.50 USD".
func (m Money) StringFixed(digits int32) string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(digits), m.currency.Code())
}

// SignAt rounds the amount to places before reporting its sign (-1, 0, +1).
// Values that round to zero report 0 even when the raw amount does not.
func SignAt(amount decimal.Decimal, places int32) int {
	return amount.Round(places).Sign()
}

// Totals accumulates amounts per currency.
type Totals struct {
	byCode map[string]Money
}

// NewTotals returns an empty accumulator.
func NewTotals() *Totals {
	return &Totals{byCode: make(map[string]Money)}
}

// Add folds m into the running total of its currency.
func (t *Totals) Add(m Money) {
	cur, ok := t.byCode[m.currency.code]
	if !ok {
		t.byCode[m.currency.code] = m
		return
	}
	// Same currency by construction of the map key.
	sum, _ := cur.Add(m)
	t.byCode[m.currency.code] = sum
}

// List returns the totals ordered by currency code.
func (t *Totals) List() []Money {
	out := make([]Money, 0, len(t.byCode))
	for _, m := range t.byCode {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].currency.code < out[j].currency.code })
	return out
}
