package service

import (
	"github.com/shopspring/decimal"

	"github.com/bibbank/realizer/internal/domain/valueobject"
)

// Quote is the pricing of one side of a match.
type Quote struct {
	HistPrice decimal.Decimal
	FwdPrice  decimal.Decimal
	HistRate  decimal.NullDecimal
	FwdRate   decimal.NullDecimal
}

// Match is a quantity closed between a sale and a purchase.
type Match struct {
	Quantity decimal.Decimal
	Short    bool
	Sale     Quote
	Purchase Quote
}

// MatchAmounts are the amounts and gains of one Match.
type MatchAmounts struct {
	SaleAmount        decimal.Decimal
	PurchaseAmount    decimal.Decimal
	FwdSaleAmount     decimal.Decimal
	FwdPurchaseAmount decimal.Decimal
	Gains             valueobject.GainResult
}

// GainCalculator values matches under the historical and fair models.
type GainCalculator struct{}

// Calculate computes both valuations of m.
func (GainCalculator) Calculate(m Match) MatchAmounts {
	a := MatchAmounts{
		SaleAmount:        m.Sale.HistPrice.Mul(m.Quantity),
		PurchaseAmount:    m.Purchase.HistPrice.Mul(m.Quantity),
		FwdSaleAmount:     m.Sale.FwdPrice.Mul(m.Quantity),
		FwdPurchaseAmount: m.Purchase.FwdPrice.Mul(m.Quantity),
	}

	histGain := a.SaleAmount.Sub(a.PurchaseAmount)
	a.Gains.Hist = valueobject.Valuation{
		Gain:       histGain,
		BaseNoFx:   GainBaseNoFx(histGain, m.Purchase.HistRate, m.Sale.HistRate, m.Short),
		BaseWithFx: GainBaseWithFx(a.PurchaseAmount, m.Purchase.HistRate, a.SaleAmount, m.Sale.HistRate),
	}

	fairGain := a.FwdSaleAmount.Sub(a.FwdPurchaseAmount)
	a.Gains.Fair = valueobject.Valuation{
		Gain:       fairGain,
		BaseNoFx:   GainBaseNoFx(fairGain, m.Purchase.FwdRate, m.Sale.FwdRate, m.Short),
		BaseWithFx: GainBaseWithFx(a.FwdPurchaseAmount, m.Purchase.FwdRate, a.FwdSaleAmount, m.Sale.FwdRate),
	}
	return a
}

// GainBaseNoFx converts gain with a single rate: the purchase rate for a
// short sale, otherwise the sale rate.
func GainBaseNoFx(gain decimal.Decimal, purchaseRate, saleRate decimal.NullDecimal, short bool) decimal.NullDecimal {
	rate := saleRate
	if short {
		rate = purchaseRate
	}
	if !rate.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(gain.Mul(rate.Decimal))
}

// GainBaseWithFx converts each leg at its own rate.
func GainBaseWithFx(purchaseAmount decimal.Decimal, purchaseRate decimal.NullDecimal, saleAmount decimal.Decimal, saleRate decimal.NullDecimal) decimal.NullDecimal {
	if !purchaseRate.Valid || !saleRate.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(saleAmount.Mul(saleRate.Decimal).Sub(purchaseAmount.Mul(purchaseRate.Decimal)))
}
