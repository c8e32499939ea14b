package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/service"
	"github.com/bibbank/realizer/internal/domain/valueobject"
)

// run holds the collaborators of one position calculation.
type run struct {
	books      service.Books
	position   model.Position
	calcModel  valueobject.CalculationModel
	autoMtM    bool
	summary    *model.Summary
	processor  *service.BatchProcessor
	rates      *service.ExchangeRateResolver
	matcher    service.LotMatcher
	calculator service.GainCalculator
	realized   *service.RealizedResultPoster
	fx         *service.FXSeparator
	mtm        *service.MTMAccumulator
	logger     *slog.Logger
}

// valuationSide selects which valuation is posted and whether it goes to the
// _hist accounts and remote ids.
type valuationSide struct {
	useHist   bool
	histNames bool
}

func (r *run) sides() []valuationSide {
	switch r.calcModel {
	case valueobject.ModelHistoricalOnly:
		return []valuationSide{{useHist: true}}
	case valueobject.ModelFairOnly:
		return []valuationSide{{}}
	default:
		return []valuationSide{{useHist: true, histNames: true}, {}}
	}
}

// quote is the pricing of one side of a trade.
type quote struct {
	price    decimal.Decimal
	fwdPrice decimal.Decimal
	rate     decimal.NullDecimal
	fwdRate  decimal.NullDecimal
}

func (q quote) gainQuote() service.Quote {
	return service.Quote{HistPrice: q.price, FwdPrice: q.fwdPrice, HistRate: q.rate, FwdRate: q.fwdRate}
}

func (r *run) quote(ctx context.Context, t *model.Trade, side model.Side) (quote, error) {
	price := t.HistPrice(side)
	if !price.Valid {
		return quote{}, fmt.Errorf("trade %s has no price", t.ID)
	}
	rate, fwdRate, err := r.rates.Rates(ctx, t, side)
	if err != nil {
		return quote{}, fmt.Errorf("failed to resolve rates of trade %s: %w", t.ID, err)
	}
	return quote{price: price.Decimal, fwdPrice: t.FwdPrice(side).Decimal, rate: rate, fwdRate: fwdRate}, nil
}

// saleTotals accumulates the long part of one sale.
type saleTotals struct {
	gains          valueobject.GainResult
	saleAmount     decimal.Decimal
	purchaseAmount decimal.Decimal
	fwdSale        decimal.Decimal
	fwdPurchase    decimal.Decimal
	purchaseLog    []valueobject.PurchaseLogEntry
	fwdPurchaseLog []valueobject.PurchaseLogEntry
	shortLog       []valueobject.LiquidationLogEntry
}

// processSale matches sale against the open purchases in FIFO order and
// stages every resulting update, split and posting.
func (r *run) processSale(ctx context.Context, sale *model.Trade, purchases []*model.Trade) error {
	r.logger.DebugContext(ctx, "processing sale", "sale_id", sale.ID)

	sq, err := r.quote(ctx, sale, model.SideSale)
	if err != nil {
		return err
	}

	totals := saleTotals{gains: valueobject.ZeroGainResult()}
	remaining := sale.Quantity
	processed := false

	for _, purchase := range purchases {
		if purchase.Checked {
			continue
		}
		processed = true

		pq, err := r.quote(ctx, purchase, model.SidePurchase)
		if err != nil {
			return err
		}
		short := r.matcher.IsShortSale(sale, purchase)

		lot := purchase
		if remaining.LessThan(purchase.Quantity) {
			lot = r.matcher.SplitPurchase(purchase, remaining)
			copyPurchasePricing(lot, purchase)
			purchase.SetExcRate(model.SidePurchase, pq.rate)
			purchase.SetFwdExcRate(model.SidePurchase, pq.fwdRate)
			r.processor.StageTradeUpdate(purchase)
		}

		amounts := r.calculator.Calculate(service.Match{
			Quantity: lot.Quantity,
			Short:    short,
			Sale:     sq.gainQuote(),
			Purchase: pq.gainQuote(),
		})

		lot.PurchaseAmount = decimal.NewNullDecimal(amounts.PurchaseAmount)
		lot.FwdPurchaseAmount = decimal.NewNullDecimal(amounts.FwdPurchaseAmount)
		lot.SetExcRate(model.SidePurchase, pq.rate)
		lot.SetFwdExcRate(model.SidePurchase, pq.fwdRate)

		if short {
			r.markShortLot(lot, sale, sq, amounts)
		} else {
			lot.LiquidationLog = []valueobject.LiquidationLogEntry{liquidationEntry(sale, sale.Quantity, sq.price, sq.rate)}
			totals.add(lot, pq, amounts)
		}

		lot.Checked = true
		if lot.ID == "" {
			r.processor.StageTradeCreate(lot)
		} else {
			r.processor.StageTradeUpdate(lot)
		}

		if short {
			if err := r.post(ctx, lot, amounts.Gains, decimal.NewNullDecimal(pq.price)); err != nil {
				return err
			}
			totals.shortLog = append(totals.shortLog, liquidationEntry(lot, lot.Quantity, pq.price, pq.rate))
		}

		remaining = remaining.Sub(lot.Quantity)
		if !remaining.IsPositive() {
			break
		}
	}

	if !remaining.Round(r.books.Stock.FractionDigits).IsZero() {
		if remaining.Equal(sale.Quantity) {
			return nil
		}
		child := r.matcher.SplitSale(sale, remaining)
		copySalePricing(child, sale, sq)
		r.processor.StageTradeCreate(child)
		r.logger.DebugContext(ctx, "sale partially filled",
			"sale_id", sale.ID,
			"filled", sale.Quantity.String(),
			"open", child.Quantity.String(),
		)
	}

	r.closeSale(sale, sq, totals)

	if err := r.post(ctx, sale, totals.gains, decimal.NullDecimal{}); err != nil {
		return err
	}
	if r.autoMtM && processed && len(sale.LiquidationLog) == 0 {
		return r.postMTM(ctx, sale, sq.price)
	}
	return nil
}

func (t *saleTotals) add(lot *model.Trade, pq quote, amounts service.MatchAmounts) {
	t.gains = t.gains.Add(amounts.Gains)
	t.saleAmount = t.saleAmount.Add(amounts.SaleAmount)
	t.purchaseAmount = t.purchaseAmount.Add(amounts.PurchaseAmount)
	t.fwdSale = t.fwdSale.Add(amounts.FwdSaleAmount)
	t.fwdPurchase = t.fwdPurchase.Add(amounts.FwdPurchaseAmount)

	date := lot.EffectiveDate().Format(time.DateOnly)
	t.purchaseLog = append(t.purchaseLog, valueobject.PurchaseLogEntry{
		Quantity: lot.Quantity,
		Price:    pq.price,
		Date:     date,
		Rate:     valueobject.RatePtr(pq.rate),
	})
	t.fwdPurchaseLog = append(t.fwdPurchaseLog, valueobject.PurchaseLogEntry{
		Quantity: lot.Quantity,
		Price:    pq.fwdPrice,
		Date:     date,
		Rate:     valueobject.RatePtr(pq.fwdRate),
	})
}

// markShortLot records on a purchase lot the sale it covers.
func (r *run) markShortLot(lot, sale *model.Trade, sq quote, amounts service.MatchAmounts) {
	saleDate := sale.EffectiveDate()
	lot.SalePrice = decimal.NewNullDecimal(sq.price)
	lot.SaleExcRate = sq.rate
	lot.SaleAmount = decimal.NewNullDecimal(amounts.SaleAmount)
	lot.FwdSalePrice = decimal.NewNullDecimal(sq.fwdPrice)
	lot.FwdSaleExcRate = sq.fwdRate
	lot.FwdSaleAmount = decimal.NewNullDecimal(amounts.FwdSaleAmount)
	lot.SaleDate = &saleDate
	lot.ShortSale = true
	lot.SetGain(r.calcModel, amounts.Gains.Hist.Gain, amounts.Gains.Fair.Gain)
}

// closeSale records the matched totals on the sale and checks it.
func (r *run) closeSale(sale *model.Trade, sq quote, totals saleTotals) {
	if len(totals.shortLog) > 0 {
		sale.LiquidationLog = totals.shortLog
		sale.SaleExcRate = sq.rate
		sale.FwdSaleExcRate = sq.fwdRate
	}
	if len(totals.purchaseLog) > 0 {
		sale.PurchaseAmount = decimal.NewNullDecimal(totals.purchaseAmount)
		sale.SaleAmount = decimal.NewNullDecimal(totals.saleAmount)
		sale.PurchaseLog = totals.purchaseLog
		sale.SaleExcRate = sq.rate
		sale.SetGain(r.calcModel, totals.gains.Hist.Gain, totals.gains.Fair.Gain)

		sale.FwdPurchaseAmount = nonZero(totals.fwdPurchase)
		sale.FwdSaleAmount = nonZero(totals.fwdSale)
		sale.FwdPurchaseLog = totals.fwdPurchaseLog
		sale.FwdSaleExcRate = sq.fwdRate
	}
	sale.Checked = true
	r.processor.StageTradeUpdate(sale)
}

// post stages the realized and FX results of trade for every recorded model.
// When mtmPrice is set it also stages MTM at that price, zero included.
func (r *run) post(ctx context.Context, trade *model.Trade, gains valueobject.GainResult, mtmPrice decimal.NullDecimal) error {
	name := r.position.Name()
	sides := r.sides()
	primary := sides[len(sides)-1]

	for _, side := range sides {
		v := gains.For(side.useHist)
		posted, err := r.realized.Post(ctx, trade, name, v, side.histNames)
		if err != nil {
			return err
		}
		if posted && side == primary {
			r.summary.AddRealized(r.books.Financial.ExchangeCode(), v.Gain)
		}
	}
	for _, side := range sides {
		if _, err := r.fx.Post(ctx, trade, name, r.position.ExchangeCode(), gains.For(side.useHist), side.histNames); err != nil {
			return err
		}
	}
	if r.autoMtM && mtmPrice.Valid {
		return r.postMTM(ctx, trade, mtmPrice.Decimal)
	}
	return nil
}

func (r *run) postMTM(ctx context.Context, trade *model.Trade, price decimal.Decimal) error {
	for _, side := range r.sides() {
		if _, err := r.mtm.Post(ctx, trade, r.position.Name(), price, side.histNames); err != nil {
			return fmt.Errorf("failed to post MTM: %w", err)
		}
	}
	return nil
}

// backfillRates records missing exchange-rate properties on the trades left
// open by this run. Locked trades are left alone.
func (r *run) backfillRates(ctx context.Context, sales, purchases []*model.Trade) error {
	backfill := func(trades []*model.Trade, side model.Side) error {
		for _, t := range trades {
			if t.Checked || t.ID == "" || t.Locked || r.books.Stock.IsLocked(t.Date) {
				continue
			}
			changed, err := r.rates.Backfill(ctx, t, side)
			if err != nil {
				return fmt.Errorf("failed to backfill rates of trade %s: %w", t.ID, err)
			}
			if changed {
				r.processor.StageTradeUpdate(t)
			}
		}
		return nil
	}
	if err := backfill(sales, model.SideSale); err != nil {
		return err
	}
	return backfill(purchases, model.SidePurchase)
}

func copyPurchasePricing(lot, purchase *model.Trade) {
	lot.PurchasePrice = purchase.PurchasePrice
	lot.PurchasePriceHist = purchase.PurchasePriceHist
	lot.FwdPurchasePrice = purchase.FwdPurchasePrice
	lot.TradeExcRate = purchase.TradeExcRate
	lot.TradeExcRateHist = purchase.TradeExcRateHist
}

func copySalePricing(child, sale *model.Trade, sq quote) {
	child.SalePrice = sale.SalePrice
	child.SalePriceHist = sale.SalePriceHist
	child.FwdSalePrice = sale.FwdSalePrice
	child.TradeExcRate = sale.TradeExcRate
	child.TradeExcRateHist = sale.TradeExcRateHist
	child.SaleExcRate = sq.rate
	child.FwdSaleExcRate = sq.fwdRate
}

func liquidationEntry(t *model.Trade, quantity, price decimal.Decimal, rate decimal.NullDecimal) valueobject.LiquidationLogEntry {
	return valueobject.LiquidationLogEntry{
		ID:       t.ID,
		Date:     t.EffectiveDate().Format(time.DateOnly),
		Quantity: quantity,
		Price:    price,
		Rate:     valueobject.RatePtr(rate),
	}
}

func nonZero(d decimal.Decimal) decimal.NullDecimal {
	if d.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
