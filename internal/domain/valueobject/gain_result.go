package valueobject

import "github.com/shopspring/decimal"

// Valuation is one model's gain with its base-currency conversions. The base
// figures are absent when a rate was missing.
type Valuation struct {
	Gain       decimal.Decimal
	BaseNoFx   decimal.NullDecimal
	BaseWithFx decimal.NullDecimal
}

// ZeroValuation is the identity accumulator.
func ZeroValuation() Valuation {
	return Valuation{
		BaseNoFx:   decimal.NewNullDecimal(decimal.Zero),
		BaseWithFx: decimal.NewNullDecimal(decimal.Zero),
	}
}

// Add sums two valuations; an absent base figure stays absent.
func (v Valuation) Add(o Valuation) Valuation {
	return Valuation{
		Gain:       v.Gain.Add(o.Gain),
		BaseNoFx:   addNull(v.BaseNoFx, o.BaseNoFx),
		BaseWithFx: addNull(v.BaseWithFx, o.BaseWithFx),
	}
}

// FXGain is BaseWithFx - BaseNoFx, absent if either is.
func (v Valuation) FXGain() decimal.NullDecimal {
	if !v.BaseNoFx.Valid || !v.BaseWithFx.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v.BaseWithFx.Decimal.Sub(v.BaseNoFx.Decimal))
}

// GainResult carries both valuation models for one matched quantity or the
// running totals of one sale.
type GainResult struct {
	Hist Valuation
	Fair Valuation
}

// ZeroGainResult is the identity accumulator.
func ZeroGainResult() GainResult {
	return GainResult{Hist: ZeroValuation(), Fair: ZeroValuation()}
}

// Add sums two results.
func (g GainResult) Add(o GainResult) GainResult {
	return GainResult{Hist: g.Hist.Add(o.Hist), Fair: g.Fair.Add(o.Fair)}
}

// For returns the valuation recorded under the given model side.
func (g GainResult) For(hist bool) Valuation {
	if hist {
		return g.Hist
	}
	return g.Fair
}

func addNull(a, b decimal.NullDecimal) decimal.NullDecimal {
	if !a.Valid || !b.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(a.Decimal.Add(b.Decimal))
}
