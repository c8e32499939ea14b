package valueobject

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// LiquidationLogEntry records one lot that closed a trade.
type LiquidationLogEntry struct {
	ID       string           `json:"id"`
	Date     string           `json:"dt"`
	Quantity decimal.Decimal  `json:"qt"`
	Price    decimal.Decimal  `json:"pr"`
	Rate     *decimal.Decimal `json:"rt,omitempty"`
}

// PurchaseLogEntry records one purchase lot consumed by a sale.
type PurchaseLogEntry struct {
	Quantity decimal.Decimal  `json:"qt"`
	Price    decimal.Decimal  `json:"pr"`
	Date     string           `json:"dt"`
	Rate     *decimal.Decimal `json:"rt,omitempty"`
}

// RatePtr converts a nullable rate to the log representation.
func RatePtr(rate decimal.NullDecimal) *decimal.Decimal {
	if !rate.Valid {
		return nil
	}
	r := rate.Decimal
	return &r
}

// EncodeLog serializes a log for storage in a property value.
func EncodeLog[T LiquidationLogEntry | PurchaseLogEntry](entries []T) (string, error) {
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode log: %w", err)
	}
	return string(b), nil
}

// DecodeLog parses a log property value. An empty value yields nil.
func DecodeLog[T LiquidationLogEntry | PurchaseLogEntry](raw string) ([]T, error) {
	if raw == "" {
		return nil, nil
	}
	var entries []T
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode log: %w", err)
	}
	return entries, nil
}
