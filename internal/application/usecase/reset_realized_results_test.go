package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/realizer/internal/application/dto"
	"github.com/bibbank/realizer/internal/application/usecase"
	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/valueobject"
	"github.com/bibbank/realizer/pkg/testutil"
)

func TestResetRealizedResults_Execute(t *testing.T) {
	reset := func(t *testing.T, f *fixture) dto.ResetRealizedResultsResponse {
		t.Helper()
		uc := usecase.NewResetRealizedResults(f.ledger, f.calculateUseCase(), discardLogger())
		resp, err := uc.Execute(context.Background(), dto.ResetRealizedResultsRequest{
			StockBookID: testutil.StockBookID,
			PositionID:  f.position.ID,
			ToDate:      testutil.Date(toDate),
		})
		require.NoError(t, err)
		return resp
	}

	t.Run("merges splits and recalculates", func(t *testing.T) {
		f := newFixture(t)
		buy := f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		sell := f.sale("2024-03-15", "60", price(valueobject.PropSalePrice, "15.00"))
		f.calculate(t, false)
		first := f.children(t, buy.ID)
		require.Len(t, first, 1)

		resp := reset(t, f)

		assert.Equal(t, 1, resp.PostingsDeleted)
		assert.Equal(t, 1, resp.TradesMerged)
		assert.Equal(t, 2, resp.TradesReset)
		assert.Equal(t, string(model.ResultCalculatingAsync), resp.Calculation.Result)
		assert.Equal(t, 1, resp.Calculation.PostingsCreated)

		_, ok := f.ledger.Transaction(testutil.StockBookID, first[0].ID)
		assert.False(t, ok, "old split should be merged away")

		second := f.children(t, buy.ID)
		require.Len(t, second, 1)
		testutil.AssertDecimal(t, "60", second[0].Quantity)
		testutil.AssertDecimal(t, "40", f.trade(t, buy.ID).Quantity)
		testutil.AssertDecimal(t, "300", f.posting(t, sell.ID).Amount)
		assert.Len(t, f.ledger.Transactions(testutil.FinancialBookID), 1)
	})

	t.Run("clears the rebuild flag", func(t *testing.T) {
		f := newFixture(t)
		f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		f.sale("2024-03-15", "100", price(valueobject.PropSalePrice, "15.00"))
		f.calculate(t, false)

		acc := f.positionAccount(t).WithProperty(valueobject.PropNeedsRebuild, "TRUE")
		_, err := f.ledger.UpdateAccount(context.Background(), acc)
		require.NoError(t, err)

		resp := reset(t, f)

		assert.Equal(t, string(model.ResultCalculatingAsync), resp.Calculation.Result)
		props := f.positionAccount(t).Properties
		assert.Empty(t, props[valueobject.PropNeedsRebuild])
		assert.Equal(t, "2024-03-15", props[valueobject.PropRealizedDate])
		assert.Empty(t, f.publisher.Topic(usecase.TopicRebuildRequested))
	})

	t.Run("locked posting aborts the reset", func(t *testing.T) {
		f := newFixture(t)
		f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		sell := f.sale("2024-03-15", "100", price(valueobject.PropSalePrice, "15.00"))
		f.calculate(t, false)

		posting := f.posting(t, sell.ID)
		posting.Locked = true
		_, err := f.ledger.UpdateTransaction(context.Background(), posting)
		require.NoError(t, err)

		resp := reset(t, f)

		assert.Equal(t, string(model.ResultLockError), resp.Calculation.Result)
		assert.Zero(t, resp.PostingsDeleted)
		assert.True(t, f.trade(t, sell.ID).Checked)
		assert.Len(t, f.ledger.Transactions(testutil.FinancialBookID), 1)
	})
}

func TestDeleteTradeResults_Execute(t *testing.T) {
	t.Run("deletes the postings of a trade", func(t *testing.T) {
		f := newFixture(t, withStockProps(map[string]string{}))
		f.purchase("2024-01-10", "10", price(valueobject.PropPurchasePrice, "100"))
		sell := f.sale("2024-03-15", "10", map[string]string{
			valueobject.PropSalePriceHist: "110",
			valueobject.PropSalePrice:     "111",
		})
		f.calculate(t, false)
		require.Len(t, f.ledger.Transactions(testutil.FinancialBookID), 2)

		uc := usecase.NewDeleteTradeResults(f.ledger, valueobject.DefaultConventions(), discardLogger())
		resp, err := uc.Execute(context.Background(), dto.DeleteTradeResultsRequest{
			StockBookID: testutil.StockBookID,
			PositionID:  f.position.ID,
			TradeID:     sell.ID,
		})

		require.NoError(t, err)
		assert.Equal(t, 2, resp.PostingsDeleted)
		assert.Empty(t, f.ledger.Transactions(testutil.FinancialBookID))
	})

	t.Run("leaves other trades alone", func(t *testing.T) {
		f := newFixture(t)
		buy := f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		f.sale("2024-03-15", "100", price(valueobject.PropSalePrice, "15.00"))
		f.calculate(t, false)

		uc := usecase.NewDeleteTradeResults(f.ledger, valueobject.DefaultConventions(), discardLogger())
		resp, err := uc.Execute(context.Background(), dto.DeleteTradeResultsRequest{
			StockBookID: testutil.StockBookID,
			PositionID:  f.position.ID,
			TradeID:     buy.ID,
		})

		require.NoError(t, err)
		assert.Zero(t, resp.PostingsDeleted)
		assert.Len(t, f.ledger.Transactions(testutil.FinancialBookID), 1)
	})

	t.Run("fails without a trade ID", func(t *testing.T) {
		f := newFixture(t)

		uc := usecase.NewDeleteTradeResults(f.ledger, valueobject.DefaultConventions(), discardLogger())
		_, err := uc.Execute(context.Background(), dto.DeleteTradeResultsRequest{
			StockBookID: testutil.StockBookID,
			PositionID:  f.position.ID,
		})

		testutil.AssertErrorContains(t, err, "trade ID is required")
	})
}

func TestFlagRebuild_Execute(t *testing.T) {
	flag := func(t *testing.T, f *fixture, tradeID string) dto.FlagRebuildResponse {
		t.Helper()
		uc := usecase.NewFlagRebuild(f.ledger, discardLogger())
		resp, err := uc.Execute(context.Background(), dto.FlagRebuildRequest{
			StockBookID: testutil.StockBookID,
			TradeID:     tradeID,
		})
		require.NoError(t, err)
		return resp
	}

	t.Run("backdated trade flags the position", func(t *testing.T) {
		f := newFixture(t)
		f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		f.sale("2024-03-15", "100", price(valueobject.PropSalePrice, "15.00"))
		f.calculate(t, false)

		late := f.purchase("2024-02-01", "5", price(valueobject.PropPurchasePrice, "11.00"))
		resp := flag(t, f, late.ID)

		assert.True(t, resp.Flagged)
		assert.Equal(t, f.position.ID, resp.PositionID)
		assert.Equal(t, "TRUE", f.positionAccount(t).Properties[valueobject.PropNeedsRebuild])

		calc := f.calculate(t, false)
		assert.Equal(t, string(model.ResultRebuild), calc.Result)
	})

	t.Run("newer trade does not flag", func(t *testing.T) {
		f := newFixture(t)
		f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		f.sale("2024-03-15", "100", price(valueobject.PropSalePrice, "15.00"))
		f.calculate(t, false)

		next := f.purchase("2024-04-01", "5", price(valueobject.PropPurchasePrice, "11.00"))
		resp := flag(t, f, next.ID)

		assert.False(t, resp.Flagged)
		assert.Empty(t, f.positionAccount(t).Properties[valueobject.PropNeedsRebuild])
	})

	t.Run("unrealized position is never flagged", func(t *testing.T) {
		f := newFixture(t)
		buy := f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))

		assert.False(t, flag(t, f, buy.ID).Flagged)
	})

	t.Run("unknown trade fails", func(t *testing.T) {
		f := newFixture(t)

		uc := usecase.NewFlagRebuild(f.ledger, discardLogger())
		_, err := uc.Execute(context.Background(), dto.FlagRebuildRequest{
			StockBookID: testutil.StockBookID,
			TradeID:     "missing",
		})

		testutil.AssertErrorContains(t, err, "not found")
	})
}
