package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/realizer/internal/domain/valueobject"
)

func day(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTradeFromTransaction_RoundTrip(t *testing.T) {
	tx := Transaction{
		ID:     "t1",
		BookID: "stock",
		Date:   day("2024-03-01"),
		Amount: decimal.NewFromInt(100),
		Credit: AccountRef{ID: "buy", Name: "Buy", Type: AccountIncoming},
		Debit:  AccountRef{ID: "aapl", Name: "AAPL", Type: AccountAsset},
		Posted: true,
	}
	tx.Properties = map[string]string{
		valueobject.PropPurchasePrice: "10.5",
		valueobject.PropOrder:         "3",
		valueobject.PropTradeDate:     "2024-02-28",
		valueobject.PropPurchaseLog:   `[{"qt":"1","pr":"2","dt":"2024-01-01"}]`,
		"instrument":                  "US0378331005",
	}

	trade, err := TradeFromTransaction(tx)
	require.NoError(t, err)
	assert.True(t, trade.IsPurchase())
	assert.False(t, trade.IsSale())
	assert.Equal(t, "aapl", trade.PositionAccountID())
	assert.True(t, trade.PurchasePrice.Decimal.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, day("2024-02-28"), trade.EffectiveDate())
	assert.Equal(t, "US0378331005", trade.Extra("instrument"))
	require.Len(t, trade.PurchaseLog, 1)

	out, err := trade.Transaction()
	require.NoError(t, err)
	assert.Equal(t, "10.5", out.Properties[valueobject.PropPurchasePrice])
	assert.Equal(t, "3", out.Properties[valueobject.PropOrder])
	assert.Equal(t, "2024-02-28", out.Properties[valueobject.PropTradeDate])
	assert.Equal(t, "US0378331005", out.Properties["instrument"])
	assert.JSONEq(t, `[{"qt":"1","pr":"2","dt":"2024-01-01"}]`, out.Properties[valueobject.PropPurchaseLog])
}

func TestTradeFromTransaction_Invalid(t *testing.T) {
	_, err := TradeFromTransaction(Transaction{ID: "t1", Properties: map[string]string{valueobject.PropSalePrice: "abc"}})
	assert.ErrorContains(t, err, valueobject.PropSalePrice)

	_, err = TradeFromTransaction(Transaction{ID: "t1", Properties: map[string]string{valueobject.PropTradeDate: "03/01/2024"}})
	assert.Error(t, err)

	trade, err := TradeFromTransaction(Transaction{ID: "t1", Properties: map[string]string{valueobject.PropOrder: "first"}})
	require.NoError(t, err)
	assert.False(t, trade.Order.Valid)
	assert.Equal(t, "first", trade.Extra(valueobject.PropOrder))
}

func TestTrade_Prices(t *testing.T) {
	trade := Trade{
		SalePrice:     decimal.NewNullDecimal(decimal.NewFromInt(15)),
		SalePriceHist: decimal.NewNullDecimal(decimal.NewFromInt(14)),
		PurchasePrice: decimal.NewNullDecimal(decimal.NewFromInt(10)),
	}
	assert.True(t, trade.HistPrice(SideSale).Decimal.Equal(decimal.NewFromInt(14)))
	assert.True(t, trade.FwdPrice(SideSale).Decimal.Equal(decimal.NewFromInt(15)))
	assert.True(t, trade.HistPrice(SidePurchase).Decimal.Equal(decimal.NewFromInt(10)))
	assert.True(t, trade.FwdPrice(SidePurchase).Decimal.Equal(decimal.NewFromInt(10)))

	trade.FwdPurchasePrice = decimal.NewNullDecimal(decimal.NewFromInt(11))
	assert.True(t, trade.FwdPrice(SidePurchase).Decimal.Equal(decimal.NewFromInt(11)))
}

func TestTrade_SetGain(t *testing.T) {
	hist, fair := decimal.NewFromInt(100), decimal.NewFromInt(110)

	var h Trade
	h.SetGain(valueobject.ModelHistoricalOnly, hist, fair)
	assert.True(t, h.GainAmount.Decimal.Equal(hist))
	assert.False(t, h.GainAmountHist.Valid)

	var b Trade
	b.SetGain(valueobject.ModelBoth, hist, fair)
	assert.True(t, b.GainAmount.Decimal.Equal(fair))
	assert.True(t, b.GainAmountHist.Decimal.Equal(hist))
}

func TestTrade_NewChild(t *testing.T) {
	td := day("2024-01-02")
	parent := Trade{
		ID: "p1", BookID: "stock", Date: day("2024-01-03"), Quantity: decimal.NewFromInt(100),
		Order: decimal.NewNullDecimal(decimal.NewFromInt(7)), TradeDate: &td, Description: "buy",
	}
	child := parent.NewChild(decimal.NewFromInt(60))

	assert.Empty(t, child.ID)
	assert.Equal(t, "p1", child.ParentID)
	assert.Equal(t, parent.Date, child.Date)
	assert.Equal(t, td, *child.TradeDate)
	assert.True(t, child.Order.Decimal.Equal(decimal.NewFromInt(7)))
	assert.True(t, child.Quantity.Equal(decimal.NewFromInt(60)))
}

func TestPosition(t *testing.T) {
	acc := Account{
		ID: "aapl", BookID: "stock", Name: "AAPL", Type: AccountAsset, Groups: []string{"Stocks", "NASDAQ"},
		Properties: map[string]string{valueobject.PropRealizedDate: "2024-01-31"},
	}
	groups := []Group{
		{Name: "Stocks"},
		{Name: "NASDAQ", Properties: map[string]string{valueobject.PropStockExcCode: "USD"}},
	}

	p, err := NewPosition(acc, groups)
	require.NoError(t, err)
	assert.Equal(t, "USD", p.ExchangeCode())
	assert.False(t, p.NeedsRebuild())
	require.NotNil(t, p.RealizedDate())
	assert.Equal(t, day("2024-01-31"), *p.RealizedDate())

	next := day("2024-02-15")
	out := p.WithRealizedDate(&next).WithNeedsRebuild(true).Account()
	assert.Equal(t, "2024-02-15", out.Properties[valueobject.PropRealizedDate])
	assert.Equal(t, "TRUE", out.Properties[valueobject.PropNeedsRebuild])
	assert.Equal(t, "2024-01-31", acc.Properties[valueobject.PropRealizedDate], "original account untouched")

	_, err = NewPosition(Account{ID: "x", Properties: map[string]string{valueobject.PropRealizedDate: "bad"}}, nil)
	assert.Error(t, err)
}

func TestBook(t *testing.T) {
	lock := day("2024-01-31")
	b := Book{LockDate: &lock, Properties: map[string]string{
		valueobject.PropExchangeCode:    "BRL",
		valueobject.PropStockHistorical: "true",
		valueobject.PropExcAggregate:    "true",
	}}
	assert.Equal(t, "BRL", b.ExchangeCode())
	assert.False(t, b.IsBase())
	assert.True(t, b.ExcAggregate())
	assert.Equal(t, valueobject.ModelHistoricalOnly, b.CalculationModel())
	assert.True(t, b.IsLocked(lock))
	assert.False(t, b.IsLocked(day("2024-02-01")))
}

func TestSummary(t *testing.T) {
	s := NewSummary("aapl")
	s.AddCreatedAccount("USD", "AAPL Unrealized")
	s.AddCreatedAccount("USD", "AAPL Unrealized")
	s.AddRealized("USD", decimal.NewFromInt(500))
	s.AddRealized("USD", decimal.NewFromInt(-200))
	s.AddRealized("not-a-code", decimal.NewFromInt(1))

	assert.Equal(t, []string{"AAPL Unrealized"}, s.CreatedAccounts["USD"])
	totals := s.RealizedTotals()
	require.Len(t, totals, 1)
	assert.True(t, totals[0].Amount().Equal(decimal.NewFromInt(300)))
	assert.Equal(t, ResultCalculatingAsync, s.CalculatingAsync().Result)
}
