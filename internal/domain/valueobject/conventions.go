package valueobject

import "strings"

// MaxDecimalPlaces is the precision postings are rounded to before their sign
// is tested.
const MaxDecimalPlaces int32 = 8

// Conventions holds the account naming scheme shared by a stock book and its
// connected financial and base books. BaseCurrency names the book used as the
// base book when no collection book is flagged exc_base.
type Conventions struct {
	UnrealizedSuffix        string
	UnrealizedHistSuffix    string
	UnrealizedExcSuffix     string
	UnrealizedHistExcSuffix string
	RealizedSuffix          string
	RealizedHistSuffix      string
	RealizedExcSuffix       string
	RealizedHistExcSuffix   string
	LegacyRealizedGain      string
	LegacyRealizedLoss      string
	MTMSuffix               string
	InterestSuffix          string
	HistSuffix              string
	ExchangeAccountPrefix   string
	MaxDecimalPlaces        int32
	BaseCurrency            string
}

// DefaultConventions returns the naming scheme used by existing books.
func DefaultConventions() Conventions {
	return Conventions{
		UnrealizedSuffix:        "Unrealized",
		UnrealizedHistSuffix:    "Unrealized Hist",
		UnrealizedExcSuffix:     "Unrealized EXC",
		UnrealizedHistExcSuffix: "Unrealized Hist EXC",
		RealizedSuffix:          "Realized",
		RealizedHistSuffix:      "Realized Hist",
		RealizedExcSuffix:       "Realized EXC",
		RealizedHistExcSuffix:   "Realized Hist EXC",
		LegacyRealizedGain:      "Realized Gain",
		LegacyRealizedLoss:      "Realized Loss",
		MTMSuffix:               "MTM",
		InterestSuffix:          "Interest",
		HistSuffix:              "Hist",
		ExchangeAccountPrefix:   "Exchange_",
		MaxDecimalPlaces:        MaxDecimalPlaces,
		BaseCurrency:            "USD",
	}
}

// SupportName joins an instrument name and a support-account suffix.
func (c Conventions) SupportName(instrument, suffix string) string {
	return instrument + " " + suffix
}

// ExchangeAccountName is the aggregated realized FX account for excCode.
func (c Conventions) ExchangeAccountName(excCode string, hist bool) string {
	name := c.ExchangeAccountPrefix + excCode
	if hist {
		name += " " + c.HistSuffix
	}
	return name
}

// RealizedFromUnrealized swaps the unrealized suffix for the realized one.
func (c Conventions) RealizedFromUnrealized(name string) string {
	return strings.Replace(name, c.UnrealizedSuffix, c.RealizedSuffix, 1)
}

// IsExchangeAccount reports whether name follows the aggregated FX naming.
func (c Conventions) IsExchangeAccount(name string, hist bool) bool {
	if !strings.HasPrefix(name, c.ExchangeAccountPrefix) {
		return false
	}
	return !hist || strings.HasSuffix(name, " "+c.HistSuffix)
}
