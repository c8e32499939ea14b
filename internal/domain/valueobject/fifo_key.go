package valueobject

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FIFOKey orders trades for lot matching.
type FIFOKey struct {
	Order decimal.NullDecimal
	Date  time.Time
	ID    string
}

// Compare returns -1, 0 or 1. When both keys carry an explicit order it
// decides alone; otherwise the date decides, then order (absent counts as
// zero), then ID.
func (k FIFOKey) Compare(other FIFOKey) int {
	if k.Order.Valid && other.Order.Valid {
		if c := k.Order.Decimal.Cmp(other.Order.Decimal); c != 0 {
			return c
		}
		return strings.Compare(k.ID, other.ID)
	}
	if c := k.Date.Compare(other.Date); c != 0 {
		return c
	}
	if c := k.orderOrZero().Cmp(other.orderOrZero()); c != 0 {
		return c
	}
	return strings.Compare(k.ID, other.ID)
}

// Before reports whether k sorts strictly before other.
func (k FIFOKey) Before(other FIFOKey) bool { return k.Compare(other) < 0 }

func (k FIFOKey) orderOrZero() decimal.Decimal {
	if k.Order.Valid {
		return k.Order.Decimal
	}
	return decimal.Zero
}
