package testutil

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stable identifiers shared by package and integration tests.
const (
	StockBookID     = "book-stock"
	FinancialBookID = "book-usd-broker"
	BaseBookID      = "book-base"
	CollectionID    = "collection-1"
)

// Date parses a YYYY-MM-DD literal and panics on malformed input.
func Date(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

// Dec parses a decimal literal and panics on malformed input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
