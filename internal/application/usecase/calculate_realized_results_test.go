package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/realizer/internal/application/dto"
	"github.com/bibbank/realizer/internal/application/usecase"
	"github.com/bibbank/realizer/internal/domain/event"
	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/valueobject"
	"github.com/bibbank/realizer/pkg/testutil"
)

func TestCalculateRealizedResults_Execute(t *testing.T) {
	t.Run("full closure posts the historical gain", func(t *testing.T) {
		f := newFixture(t)
		buy := f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		sell := f.sale("2024-03-15", "100", price(valueobject.PropSalePrice, "15.00"))

		resp := f.calculate(t, false)

		assert.Equal(t, string(model.ResultCalculatingAsync), resp.Result)
		assert.Equal(t, 1, resp.PostingsCreated)
		assert.Equal(t, 2, resp.TradesUpdated)
		assert.Equal(t, 0, resp.TradesCreated)
		assert.Equal(t, map[string][]string{"USD": {"ACME Unrealized", "ACME Realized"}}, resp.CreatedAccounts)
		testutil.AssertDecimal(t, "500", decimal.RequireFromString(resp.RealizedTotals["USD"]))

		posting := f.posting(t, sell.ID)
		testutil.AssertDecimal(t, "500", posting.Amount)
		assert.Equal(t, valueobject.TagStockGain, posting.Description)
		assert.Equal(t, "ACME Realized", posting.Credit.Name)
		assert.Equal(t, "ACME Unrealized", posting.Debit.Name)
		assert.True(t, posting.Checked)

		sale := f.trade(t, sell.ID)
		assert.True(t, sale.Checked)
		require.True(t, sale.GainAmount.Valid)
		testutil.AssertDecimal(t, "500", sale.GainAmount.Decimal)
		testutil.AssertDecimal(t, "1000", sale.PurchaseAmount.Decimal)
		testutil.AssertDecimal(t, "1500", sale.SaleAmount.Decimal)
		require.Len(t, sale.PurchaseLog, 1)
		testutil.AssertDecimal(t, "10", sale.PurchaseLog[0].Price)

		purchase := f.trade(t, buy.ID)
		assert.True(t, purchase.Checked)
		require.Len(t, purchase.LiquidationLog, 1)
		assert.Equal(t, sell.ID, purchase.LiquidationLog[0].ID)

		// No FX posting: every rate is 1 when the financial book is the base book.
		_, ok := f.ledger.ByRemoteID(testutil.FinancialBookID, valueobject.PostingFX.RemoteID(sell.ID, false))
		assert.False(t, ok)

		assert.Equal(t, "2024-03-15", f.positionAccount(t).Properties[valueobject.PropRealizedDate])
		published := f.publisher.Topic(usecase.TopicResults)
		require.Len(t, published, 1)
		evt, ok := published[0].(event.RealizedResultsCalculated)
		require.True(t, ok)
		assert.Equal(t, map[string]string{"USD": "500.00"}, evt.RealizedTotals)
	})

	t.Run("partial sale splits the purchase", func(t *testing.T) {
		f := newFixture(t)
		buy := f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		sell := f.sale("2024-03-15", "60", price(valueobject.PropSalePrice, "15.00"))

		resp := f.calculate(t, false)

		assert.Equal(t, 1, resp.TradesCreated)
		assert.Equal(t, 2, resp.TradesUpdated)

		remainder := f.trade(t, buy.ID)
		assert.False(t, remainder.Checked)
		testutil.AssertDecimal(t, "40", remainder.Quantity)
		assert.True(t, remainder.PurchaseExcRate.Valid)

		children := f.children(t, buy.ID)
		require.Len(t, children, 1)
		lot := children[0]
		assert.True(t, lot.Checked)
		testutil.AssertDecimal(t, "60", lot.Quantity)
		testutil.AssertDecimal(t, "10", lot.PurchasePrice.Decimal)
		testutil.AssertDecimal(t, "600", lot.PurchaseAmount.Decimal)

		sale := f.trade(t, sell.ID)
		assert.True(t, sale.Checked)
		testutil.AssertDecimal(t, "300", sale.GainAmount.Decimal)
		testutil.AssertDecimal(t, "300", f.posting(t, sell.ID).Amount)

		// Quantity is conserved across the split.
		testutil.AssertDecimal(t, "100", remainder.Quantity.Add(lot.Quantity))
	})

	t.Run("unfilled sale keeps an open remainder", func(t *testing.T) {
		f := newFixture(t)
		buy := f.purchase("2024-01-10", "40", price(valueobject.PropPurchasePrice, "10.00"))
		sell := f.sale("2024-03-15", "100", price(valueobject.PropSalePrice, "12.00"))

		resp := f.calculate(t, false)

		assert.Equal(t, 1, resp.TradesCreated)
		assert.True(t, f.trade(t, buy.ID).Checked)

		sale := f.trade(t, sell.ID)
		assert.True(t, sale.Checked)
		testutil.AssertDecimal(t, "40", sale.Quantity)
		testutil.AssertDecimal(t, "80", sale.GainAmount.Decimal)

		children := f.children(t, sell.ID)
		require.Len(t, children, 1)
		open := children[0]
		assert.False(t, open.Checked)
		testutil.AssertDecimal(t, "60", open.Quantity)
		testutil.AssertDecimal(t, "12", open.SalePrice.Decimal)
		assert.True(t, open.IsSale())
	})

	t.Run("sale before purchase is a short sale", func(t *testing.T) {
		f := newFixture(t)
		sell := f.sale("2024-01-10", "50", price(valueobject.PropSalePrice, "20.00"))
		buy := f.purchase("2024-02-10", "50", price(valueobject.PropPurchasePrice, "12.00"))

		resp := f.calculate(t, false)
		assert.Equal(t, 1, resp.PostingsCreated)

		lot := f.trade(t, buy.ID)
		assert.True(t, lot.Checked)
		assert.True(t, lot.ShortSale)
		testutil.AssertDecimal(t, "20", lot.SalePrice.Decimal)
		testutil.AssertDecimal(t, "400", lot.GainAmount.Decimal)
		require.NotNil(t, lot.SaleDate)
		assert.Equal(t, "2024-01-10", lot.SaleDate.Format("2006-01-02"))

		// A short-sale gain books to the reverse sides of a long-sale gain.
		posting := f.posting(t, buy.ID)
		testutil.AssertDecimal(t, "400", posting.Amount)
		assert.Equal(t, valueobject.TagStockGain, posting.Description)
		assert.Equal(t, "2024-02-10", posting.Date.Format("2006-01-02"))
		assert.Equal(t, "ACME Unrealized", posting.Credit.Name)
		assert.Equal(t, "ACME Realized", posting.Debit.Name)

		sale := f.trade(t, sell.ID)
		assert.True(t, sale.Checked)
		require.Len(t, sale.LiquidationLog, 1)
		assert.Equal(t, buy.ID, sale.LiquidationLog[0].ID)
		_, ok := f.ledger.ByRemoteID(testutil.FinancialBookID, sell.ID)
		assert.False(t, ok)
	})

	t.Run("both models post to separate accounts", func(t *testing.T) {
		f := newFixture(t, withStockProps(map[string]string{
			valueobject.PropStockHistorical: "true",
			valueobject.PropStockFair:       "true",
		}))
		f.purchase("2024-01-10", "10", price(valueobject.PropPurchasePrice, "100"))
		sell := f.sale("2024-03-15", "10", map[string]string{
			valueobject.PropSalePriceHist: "110",
			valueobject.PropSalePrice:     "111",
		})

		resp := f.calculate(t, false)
		assert.Equal(t, 2, resp.PostingsCreated)

		hist := f.posting(t, valueobject.PostingRealized.RemoteID(sell.ID, true))
		testutil.AssertDecimal(t, "100", hist.Amount)
		assert.Equal(t, "ACME Realized Hist", hist.Credit.Name)
		assert.Equal(t, "ACME Unrealized Hist", hist.Debit.Name)
		assert.Equal(t, "#stock_gain_hist", hist.Description)

		fair := f.posting(t, sell.ID)
		testutil.AssertDecimal(t, "110", fair.Amount)
		assert.Equal(t, "ACME Realized", fair.Credit.Name)
		assert.Equal(t, "ACME Unrealized", fair.Debit.Name)

		sale := f.trade(t, sell.ID)
		testutil.AssertDecimal(t, "100", sale.GainAmountHist.Decimal)
		testutil.AssertDecimal(t, "110", sale.GainAmount.Decimal)
		testutil.AssertDecimal(t, "110", decimal.RequireFromString(resp.RealizedTotals["USD"]))
	})

	t.Run("loss goes to an existing legacy account", func(t *testing.T) {
		f := newFixture(t, withStockProps(map[string]string{valueobject.PropStockFair: "true"}))
		f.ledger.AddAccount(model.Account{BookID: testutil.FinancialBookID, Name: "ACME Realized Loss", Type: model.AccountOutgoing})
		f.purchase("2024-01-10", "10", price(valueobject.PropPurchasePrice, "10"))
		sell := f.sale("2024-03-15", "10", price(valueobject.PropSalePrice, "8"))

		resp := f.calculate(t, false)

		posting := f.posting(t, sell.ID)
		testutil.AssertDecimal(t, "20", posting.Amount)
		assert.Equal(t, valueobject.TagStockLoss, posting.Description)
		assert.Equal(t, "ACME Unrealized", posting.Credit.Name)
		assert.Equal(t, "ACME Realized Loss", posting.Debit.Name)
		assert.Equal(t, []string{"ACME Unrealized"}, resp.CreatedAccounts["USD"])
	})

	t.Run("fifo order follows the order property", func(t *testing.T) {
		f := newFixture(t)
		late := f.purchase("2024-01-10", "10", map[string]string{
			valueobject.PropPurchasePrice: "10",
			valueobject.PropOrder:         "2",
		})
		early := f.purchase("2024-01-10", "10", map[string]string{
			valueobject.PropPurchasePrice: "12",
			valueobject.PropOrder:         "1",
		})
		sell := f.sale("2024-03-15", "10", price(valueobject.PropSalePrice, "15"))

		f.calculate(t, false)

		assert.True(t, f.trade(t, early.ID).Checked)
		assert.False(t, f.trade(t, late.ID).Checked)
		testutil.AssertDecimal(t, "30", f.posting(t, sell.ID).Amount)
	})

	t.Run("second run creates nothing", func(t *testing.T) {
		f := newFixture(t)
		f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		f.sale("2024-03-15", "60", price(valueobject.PropSalePrice, "15.00"))

		f.calculate(t, false)
		before := len(f.ledger.Transactions(testutil.FinancialBookID))
		stock := len(f.ledger.Transactions(testutil.StockBookID))

		resp := f.calculate(t, false)

		assert.Equal(t, 0, resp.PostingsCreated)
		assert.Equal(t, 0, resp.TradesCreated)
		assert.Len(t, f.ledger.Transactions(testutil.FinancialBookID), before)
		assert.Len(t, f.ledger.Transactions(testutil.StockBookID), stock)
	})

	t.Run("re-run after uncheck reuses existing postings", func(t *testing.T) {
		f := newFixture(t)
		buy := f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		sell := f.sale("2024-03-15", "100", price(valueobject.PropSalePrice, "15.00"))
		f.calculate(t, false)

		ctx := context.Background()
		require.NoError(t, f.ledger.SetChecked(ctx, testutil.StockBookID, buy.ID, false))
		require.NoError(t, f.ledger.SetChecked(ctx, testutil.StockBookID, sell.ID, false))

		resp := f.calculate(t, false)

		assert.Equal(t, 0, resp.PostingsCreated)
		assert.Equal(t, 1, resp.PostingsExisting)
		assert.Len(t, f.ledger.Transactions(testutil.FinancialBookID), 1)
	})

	t.Run("locked trade aborts without writes", func(t *testing.T) {
		f := newFixture(t, withLockDate("2024-06-30"))
		f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		f.sale("2024-03-15", "100", price(valueobject.PropSalePrice, "15.00"))

		resp := f.calculate(t, false)

		assert.Equal(t, string(model.ResultLockError), resp.Result)
		assert.Empty(t, f.ledger.BatchCalls)
		assert.Empty(t, f.ledger.Transactions(testutil.FinancialBookID))
		assert.Empty(t, f.publisher.Topic(usecase.TopicResults))
	})

	t.Run("trade locked after load returns lockError and writes nothing", func(t *testing.T) {
		f := newFixture(t)
		buy := f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		sell := f.sale("2024-03-15", "60", price(valueobject.PropSalePrice, "15.00"))
		f.ledger.BeforeBatch = func() { f.ledger.Lock(testutil.StockBookID, buy.ID) }

		resp := f.calculate(t, false)

		assert.Equal(t, string(model.ResultLockError), resp.Result)
		assert.Empty(t, f.children(t, buy.ID))
		testutil.AssertDecimal(t, "100", f.trade(t, buy.ID).Quantity)
		assert.False(t, f.trade(t, sell.ID).Checked)
		assert.Empty(t, f.ledger.Transactions(testutil.FinancialBookID))
		assert.Len(t, f.ledger.Transactions(testutil.StockBookID), 2)
		assert.Empty(t, f.publisher.Topic(usecase.TopicResults))
	})

	t.Run("run after a failed flush posts everything", func(t *testing.T) {
		f := newFixture(t)
		buy := f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		sell := f.sale("2024-03-15", "60", price(valueobject.PropSalePrice, "15.00"))
		f.ledger.FailOn = func(op model.BatchOperation) error {
			if op.Transaction.BookID == testutil.FinancialBookID {
				return errors.New("ledger unavailable")
			}
			return nil
		}

		_, err := f.calculateUseCase().Execute(context.Background(), dto.CalculateRealizedResultsRequest{
			StockBookID: testutil.StockBookID,
			PositionID:  f.position.ID,
			ToDate:      testutil.Date(toDate),
		})
		require.Error(t, err)
		assert.False(t, f.trade(t, sell.ID).Checked)
		assert.Empty(t, f.children(t, buy.ID))

		f.ledger.FailOn = nil
		resp := f.calculate(t, false)

		assert.Equal(t, 1, resp.PostingsCreated)
		assert.Equal(t, 1, resp.TradesCreated)
		assert.True(t, f.trade(t, sell.ID).Checked)
		testutil.AssertDecimal(t, "300", f.posting(t, sell.ID).Amount)
	})

	t.Run("flagged position requests a rebuild", func(t *testing.T) {
		f := newFixture(t, withPositionProps(map[string]string{valueobject.PropNeedsRebuild: "TRUE"}))
		f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		f.sale("2024-03-15", "100", price(valueobject.PropSalePrice, "15.00"))

		resp := f.calculate(t, true)

		assert.Equal(t, string(model.ResultRebuild), resp.Result)
		assert.Empty(t, f.ledger.BatchCalls)
		require.Len(t, f.publisher.Topic(usecase.TopicRebuildRequested), 1)
		assert.Equal(t, f.position.ID, f.publisher.Topic(usecase.TopicRebuildRequested)[0].AggregateID())
	})

	t.Run("position without financial book is skipped", func(t *testing.T) {
		f := newFixture(t, withExchangeCode("EUR"))
		f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		f.sale("2024-03-15", "100", price(valueobject.PropSalePrice, "15.00"))

		resp := f.calculate(t, false)

		assert.Equal(t, string(model.ResultSkipped), resp.Result)
		assert.Empty(t, f.ledger.BatchCalls)
	})

	t.Run("trades after the cut-off date stay open", func(t *testing.T) {
		f := newFixture(t)
		buy := f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		sell := f.sale("2025-03-15", "100", price(valueobject.PropSalePrice, "15.00"))

		resp := f.calculate(t, false)

		assert.Equal(t, 0, resp.PostingsCreated)
		assert.False(t, f.trade(t, sell.ID).Checked)
		assert.False(t, f.trade(t, buy.ID).Checked)
	})

	t.Run("missing price fails the run", func(t *testing.T) {
		f := newFixture(t)
		f.purchase("2024-01-10", "100", nil)
		f.sale("2024-03-15", "100", price(valueobject.PropSalePrice, "15.00"))

		_, err := f.calculateUseCase().Execute(context.Background(), dto.CalculateRealizedResultsRequest{
			StockBookID: testutil.StockBookID,
			PositionID:  f.position.ID,
			ToDate:      testutil.Date(toDate),
		})

		testutil.AssertErrorContains(t, err, "has no price")
		assert.Empty(t, f.ledger.BatchCalls)
	})

	t.Run("batch failure is returned", func(t *testing.T) {
		f := newFixture(t)
		f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		f.sale("2024-03-15", "100", price(valueobject.PropSalePrice, "15.00"))
		f.ledger.FailBatch = errors.New("ledger unavailable")

		_, err := f.calculateUseCase().Execute(context.Background(), dto.CalculateRealizedResultsRequest{
			StockBookID: testutil.StockBookID,
			PositionID:  f.position.ID,
			ToDate:      testutil.Date(toDate),
		})

		testutil.AssertErrorContains(t, err, "failed to flush batch")
	})

	t.Run("unknown position fails", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.calculateUseCase().Execute(context.Background(), dto.CalculateRealizedResultsRequest{
			StockBookID: testutil.StockBookID,
			PositionID:  "missing",
		})

		testutil.AssertErrorContains(t, err, "failed to load position account")
	})
}

func TestCalculateRealizedResults_MarkToMarket(t *testing.T) {
	financialTx := func(f *fixture, day, amount string, credit, debit model.Account) {
		f.ledger.AddTransaction(model.Transaction{
			BookID: testutil.FinancialBookID,
			Date:   testutil.Date(day),
			Amount: testutil.Dec(amount),
			Credit: refOf(credit),
			Debit:  refOf(debit),
			Posted: true,
		})
	}

	t.Run("open quantity is marked at the sale price", func(t *testing.T) {
		f := newFixture(t)
		instrument := f.ledger.AddAccount(model.Account{BookID: testutil.FinancialBookID, Name: "ACME", Type: model.AccountAsset})
		cash := f.ledger.AddAccount(model.Account{BookID: testutil.FinancialBookID, Name: "Cash", Type: model.AccountAsset})
		financialTx(f, "2024-01-10", "1000", cash, instrument)
		financialTx(f, "2024-03-15", "900", instrument, cash)

		f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		sell := f.sale("2024-03-15", "60", price(valueobject.PropSalePrice, "15.00"))

		resp := f.calculate(t, true)
		assert.Equal(t, 2, resp.PostingsCreated)

		mtm := f.posting(t, valueobject.PostingMTM.RemoteID(sell.ID, false))
		testutil.AssertDecimal(t, "500", mtm.Amount)
		assert.Equal(t, valueobject.TagMTM, mtm.Description)
		assert.Equal(t, "ACME Unrealized", mtm.Credit.Name)
		assert.Equal(t, "ACME", mtm.Debit.Name)
		assert.Equal(t, "15.00", mtm.Properties[valueobject.PropPrice])
		assert.Equal(t, "40", mtm.Properties[valueobject.PropOpenQuantity])

		balance, err := f.ledger.Balance(context.Background(), testutil.FinancialBookID, "ACME", testutil.Date("2024-03-15"))
		require.NoError(t, err)
		testutil.AssertDecimal(t, "600", balance)
	})

	t.Run("short lot bought at zero is marked at zero", func(t *testing.T) {
		f := newFixture(t)
		instrument := f.ledger.AddAccount(model.Account{BookID: testutil.FinancialBookID, Name: "ACME", Type: model.AccountAsset})
		cash := f.ledger.AddAccount(model.Account{BookID: testutil.FinancialBookID, Name: "Cash", Type: model.AccountAsset})
		financialTx(f, "2024-01-10", "1000", instrument, cash)

		f.sale("2024-01-10", "50", price(valueobject.PropSalePrice, "20.00"))
		buy := f.purchase("2024-02-10", "50", price(valueobject.PropPurchasePrice, "0"))

		resp := f.calculate(t, true)
		assert.Equal(t, 2, resp.PostingsCreated)

		mtm := f.posting(t, valueobject.PostingMTM.RemoteID(buy.ID, false))
		testutil.AssertDecimal(t, "1000", mtm.Amount)
		assert.Equal(t, "ACME Unrealized", mtm.Credit.Name)
		assert.Equal(t, "ACME", mtm.Debit.Name)
		assert.Equal(t, "0.00", mtm.Properties[valueobject.PropPrice])
	})

	t.Run("missing instrument account skips the mark", func(t *testing.T) {
		f := newFixture(t)
		f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		sell := f.sale("2024-03-15", "60", price(valueobject.PropSalePrice, "15.00"))

		resp := f.calculate(t, true)

		assert.Equal(t, 1, resp.PostingsCreated)
		_, ok := f.ledger.ByRemoteID(testutil.FinancialBookID, valueobject.PostingMTM.RemoteID(sell.ID, false))
		assert.False(t, ok)
	})

	t.Run("closed position moves interest to unrealized", func(t *testing.T) {
		f := newFixture(t)
		interest := f.ledger.AddAccount(model.Account{BookID: testutil.FinancialBookID, Name: "ACME Interest", Type: model.AccountIncoming})
		cash := f.ledger.AddAccount(model.Account{BookID: testutil.FinancialBookID, Name: "Cash", Type: model.AccountAsset})
		financialTx(f, "2024-02-01", "25", interest, cash)

		f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		sell := f.sale("2024-03-15", "100", price(valueobject.PropSalePrice, "15.00"))

		resp := f.calculate(t, true)

		assert.Contains(t, resp.CreatedAccounts["USD"], "ACME Interest Unrealized")
		posting := f.posting(t, valueobject.PostingInterestMTM.RemoteID(sell.ID, false))
		testutil.AssertDecimal(t, "25", posting.Amount)
		assert.Equal(t, valueobject.TagInterestMTM, posting.Description)
		assert.Equal(t, "ACME Interest Unrealized", posting.Credit.Name)
		assert.Equal(t, "ACME Interest", posting.Debit.Name)
		assert.Equal(t, toDate, posting.Date.Format("2006-01-02"))
	})

	t.Run("interest waits while the position is open", func(t *testing.T) {
		f := newFixture(t)
		interest := f.ledger.AddAccount(model.Account{BookID: testutil.FinancialBookID, Name: "ACME Interest", Type: model.AccountIncoming})
		cash := f.ledger.AddAccount(model.Account{BookID: testutil.FinancialBookID, Name: "Cash", Type: model.AccountAsset})
		financialTx(f, "2024-02-01", "25", interest, cash)

		f.purchase("2024-01-10", "100", price(valueobject.PropPurchasePrice, "10.00"))
		sell := f.sale("2024-03-15", "60", price(valueobject.PropSalePrice, "15.00"))

		f.calculate(t, true)

		_, ok := f.ledger.ByRemoteID(testutil.FinancialBookID, valueobject.PostingInterestMTM.RemoteID(sell.ID, false))
		assert.False(t, ok)
	})
}
