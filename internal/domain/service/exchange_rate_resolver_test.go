package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/service"
	"github.com/bibbank/realizer/internal/domain/valueobject"
	"github.com/bibbank/realizer/pkg/testutil"
)

func TestExchangeRateResolver_Rate(t *testing.T) {
	ctx := context.Background()

	t.Run("recorded side rate wins", func(t *testing.T) {
		e := newEnv(t, nil)
		r := service.NewExchangeRateResolver(e.ledger, e.books)
		p := purchase("p", "2024-01-01", "1")
		p.PurchaseExcRate = rate("1.1")
		p.TradeExcRateHist = rate("1.2")
		p.TradeExcRate = rate("1.3")

		got, err := r.Rate(ctx, p, model.SidePurchase)
		require.NoError(t, err)
		require.True(t, got.Valid)
		testutil.AssertDecimal(t, "1.1", got.Decimal)
	})

	t.Run("trade rates in order", func(t *testing.T) {
		e := newEnv(t, nil)
		r := service.NewExchangeRateResolver(e.ledger, e.books)
		p := purchase("p", "2024-01-01", "1")
		p.TradeExcRateHist = rate("1.2")
		p.TradeExcRate = rate("1.3")

		got, err := r.Rate(ctx, p, model.SidePurchase)
		require.NoError(t, err)
		testutil.AssertDecimal(t, "1.2", got.Decimal)

		p.TradeExcRateHist = decimal.NullDecimal{}
		got, err = r.Rate(ctx, p, model.SidePurchase)
		require.NoError(t, err)
		testutil.AssertDecimal(t, "1.3", got.Decimal)
	})

	t.Run("financial book as base rates at one", func(t *testing.T) {
		stock := book(testutil.StockBookID, "", nil)
		usd := book(testutil.FinancialBookID, "USD", nil)
		books, ok := service.ResolveBooks(stock, []model.Book{stock, usd}, "USD", "USD")
		require.True(t, ok)
		r := service.NewExchangeRateResolver(newEnv(t, nil).ledger, books)

		got, err := r.Rate(ctx, sale("s", "2024-01-01", "1"), model.SideSale)
		require.NoError(t, err)
		require.True(t, got.Valid)
		testutil.AssertDecimal(t, "1", got.Decimal)
	})

	t.Run("connected financial record", func(t *testing.T) {
		e := newEnv(t, nil)
		fin := e.ledger.AddTransaction(model.Transaction{
			BookID:     testutil.FinancialBookID,
			Date:       testutil.Date("2024-01-01"),
			Amount:     testutil.Dec("200"),
			Posted:     true,
			Properties: map[string]string{valueobject.PropExcAmount: "180"},
		})
		r := service.NewExchangeRateResolver(e.ledger, e.books)
		p := purchase("p", "2024-01-01", "1")
		p.RemoteIDs = []string{"missing", fin.ID}

		got, err := r.Rate(ctx, p, model.SidePurchase)
		require.NoError(t, err)
		require.True(t, got.Valid)
		testutil.AssertDecimal(t, "0.9", got.Decimal)
	})

	t.Run("absent when nothing applies", func(t *testing.T) {
		e := newEnv(t, nil)
		r := service.NewExchangeRateResolver(e.ledger, e.books)

		got, err := r.Rate(ctx, purchase("p", "2024-01-01", "1"), model.SidePurchase)
		require.NoError(t, err)
		assert.False(t, got.Valid)
	})
}

func TestExchangeRateResolver_Backfill(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	r := service.NewExchangeRateResolver(e.ledger, e.books)

	s := sale("s", "2024-01-01", "1")
	s.TradeExcRate = rate("1.25")
	s.FwdSaleExcRate = rate("1.3")

	changed, err := r.Backfill(ctx, s, model.SideSale)
	require.NoError(t, err)
	assert.True(t, changed)
	testutil.AssertDecimal(t, "1.25", s.SaleExcRate.Decimal)
	testutil.AssertDecimal(t, "1.3", s.FwdSaleExcRate.Decimal)

	changed, err = r.Backfill(ctx, s, model.SideSale)
	require.NoError(t, err)
	assert.False(t, changed)

	bare := sale("b", "2024-01-01", "1")
	changed, err = r.Backfill(ctx, bare, model.SideSale)
	require.NoError(t, err)
	assert.False(t, changed)
}
