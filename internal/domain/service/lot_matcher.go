package service

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/realizer/internal/domain/model"
)

// LotMatcher selects and orders candidate trades and splits lots.
type LotMatcher struct {
	logger *slog.Logger
}

// NewLotMatcher creates a LotMatcher.
func NewLotMatcher(logger *slog.Logger) LotMatcher {
	return LotMatcher{logger: logger}
}

// Candidates returns the open, posted sales and purchases dated on or before
// toDate, each sorted FIFO. Zero-quantity trades are dropped.
func (m LotMatcher) Candidates(ctx context.Context, trades []*model.Trade, toDate time.Time) (sales, purchases []*model.Trade) {
	for _, t := range trades {
		if t.Checked || !t.Posted || t.Date.After(toDate) {
			continue
		}
		if t.Quantity.IsZero() {
			m.logger.WarnContext(ctx, "skipping zero quantity trade", "transaction_id", t.ID)
			continue
		}
		switch {
		case t.IsSale():
			sales = append(sales, t)
		case t.IsPurchase():
			purchases = append(purchases, t)
		}
	}
	SortFIFO(sales)
	SortFIFO(purchases)
	return sales, purchases
}

// SortFIFO orders trades by their FIFO key, oldest first.
func SortFIFO(trades []*model.Trade) {
	slices.SortStableFunc(trades, func(a, b *model.Trade) int {
		return a.FIFOKey().Compare(b.FIFOKey())
	})
}

// IsShortSale reports whether the sale precedes the purchase closing it.
func (m LotMatcher) IsShortSale(sale, purchase *model.Trade) bool {
	return sale.FIFOKey().Before(purchase.FIFOKey())
}

// SplitPurchase shrinks purchase to the part the sale does not need and
// returns a new record holding the consumed part.
func (m LotMatcher) SplitPurchase(purchase *model.Trade, saleRemaining decimal.Decimal) *model.Trade {
	remainder := purchase.Quantity.Sub(saleRemaining)
	consumed := purchase.Quantity.Sub(remainder)
	purchase.Quantity = remainder
	child := purchase.NewChild(consumed)
	return &child
}

// SplitSale shrinks sale to its filled part and returns a new open record for
// the unfilled quantity.
func (m LotMatcher) SplitSale(sale *model.Trade, unfilled decimal.Decimal) *model.Trade {
	filled := sale.Quantity.Sub(unfilled)
	sale.Quantity = filled
	child := sale.NewChild(unfilled)
	return &child
}

// Last returns the FIFO-latest trade among sales and purchases.
func Last(sales, purchases []*model.Trade) *model.Trade {
	all := append(slices.Clone(sales), purchases...)
	if len(all) == 0 {
		return nil
	}
	SortFIFO(all)
	return all[len(all)-1]
}
