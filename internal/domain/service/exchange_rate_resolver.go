package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port"
	"github.com/bibbank/realizer/internal/domain/valueobject"
)

// ExchangeRateResolver finds the financial->base rate of a trade from data
// already in the ledgers.
type ExchangeRateResolver struct {
	ledger    port.LedgerClient
	books     Books
	connected map[string]decimal.NullDecimal
}

// NewExchangeRateResolver creates a resolver for one run.
func NewExchangeRateResolver(ledger port.LedgerClient, books Books) *ExchangeRateResolver {
	return &ExchangeRateResolver{
		ledger:    ledger,
		books:     books,
		connected: make(map[string]decimal.NullDecimal),
	}
}

// Rate resolves the historical rate for one side of t, in order: the recorded
// <side>_exc_rate, trade_exc_rate_hist, trade_exc_rate, 1 when the financial
// book is the base book, and exc_amount/amount of the financial record the
// trade was booked from. The result is absent when nothing applies.
func (r *ExchangeRateResolver) Rate(ctx context.Context, t *model.Trade, side model.Side) (decimal.NullDecimal, error) {
	if rate := t.ExcRate(side); rate.Valid {
		return rate, nil
	}
	if t.TradeExcRateHist.Valid {
		return t.TradeExcRateHist, nil
	}
	if t.TradeExcRate.Valid {
		return t.TradeExcRate, nil
	}
	if !r.books.HasSeparateBase() {
		return decimal.NewNullDecimal(decimal.NewFromInt(1)), nil
	}
	return r.connectedRate(ctx, t)
}

// FwdRate is fwd_<side>_exc_rate when recorded, else hist.
func (r *ExchangeRateResolver) FwdRate(t *model.Trade, side model.Side, hist decimal.NullDecimal) decimal.NullDecimal {
	if rate := t.FwdExcRate(side); rate.Valid {
		return rate
	}
	return hist
}

// Rates resolves both rates for one side.
func (r *ExchangeRateResolver) Rates(ctx context.Context, t *model.Trade, side model.Side) (hist, fwd decimal.NullDecimal, err error) {
	hist, err = r.Rate(ctx, t, side)
	if err != nil {
		return decimal.NullDecimal{}, decimal.NullDecimal{}, err
	}
	return hist, r.FwdRate(t, side, hist), nil
}

// Backfill records missing rate properties on t and reports whether t changed.
func (r *ExchangeRateResolver) Backfill(ctx context.Context, t *model.Trade, side model.Side) (bool, error) {
	if t.ExcRate(side).Valid && t.FwdExcRate(side).Valid {
		return false, nil
	}
	hist, fwd, err := r.Rates(ctx, t, side)
	if err != nil {
		return false, err
	}
	changed := false
	if !t.ExcRate(side).Valid && hist.Valid {
		t.SetExcRate(side, hist)
		changed = true
	}
	if !t.FwdExcRate(side).Valid && fwd.Valid {
		t.SetFwdExcRate(side, fwd)
		changed = true
	}
	return changed, nil
}

func (r *ExchangeRateResolver) connectedRate(ctx context.Context, t *model.Trade) (decimal.NullDecimal, error) {
	if t.ID != "" {
		if rate, ok := r.connected[t.ID]; ok {
			return rate, nil
		}
	}

	var rate decimal.NullDecimal
	for _, remoteID := range t.RemoteIDs {
		txs, err := r.ledger.QueryTransactions(ctx, port.TransactionFilter{BookID: r.books.Financial.ID, ID: remoteID})
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("failed to load financial record %s: %w", remoteID, err)
		}
		if rate = rateOf(txs); rate.Valid {
			break
		}
	}

	if t.ID != "" {
		r.connected[t.ID] = rate
	}
	return rate, nil
}

func rateOf(txs []model.Transaction) decimal.NullDecimal {
	for _, tx := range txs {
		raw := tx.Property(valueobject.PropExcAmount)
		if raw == "" || tx.Amount.IsZero() {
			continue
		}
		excAmount, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		return decimal.NewNullDecimal(excAmount.Div(tx.Amount).Abs())
	}
	return decimal.NullDecimal{}
}
