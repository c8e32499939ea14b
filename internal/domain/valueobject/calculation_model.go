package valueobject

// CalculationModel selects which valuations a stock book records.
type CalculationModel string

const (
	ModelHistoricalOnly CalculationModel = "HISTORICAL_ONLY"
	ModelFairOnly       CalculationModel = "FAIR_ONLY"
	ModelBoth           CalculationModel = "BOTH"
)

// CalculationModelFromFlags maps the stock_historical / stock_fair book flags.
func CalculationModelFromFlags(historical, fair bool) CalculationModel {
	switch {
	case historical && !fair:
		return ModelHistoricalOnly
	case fair && !historical:
		return ModelFairOnly
	default:
		return ModelBoth
	}
}

// RecordsHistorical reports whether historical results are posted.
func (m CalculationModel) RecordsHistorical() bool { return m != ModelFairOnly }

// RecordsFair reports whether fair results are posted.
func (m CalculationModel) RecordsFair() bool { return m != ModelHistoricalOnly }

// SplitsKeys reports whether historical results go to _hist keys and
// accounts next to the fair ones.
func (m CalculationModel) SplitsKeys() bool { return m == ModelBoth }
