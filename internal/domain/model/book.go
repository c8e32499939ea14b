package model

import (
	"strings"
	"time"

	"github.com/bibbank/realizer/internal/domain/valueobject"
)

// Book is a ledger. Stock books hold quantities; financial and base books hold
// values in their exchange code.
type Book struct {
	ID             string
	Name           string
	CollectionID   string
	FractionDigits int32
	LockDate       *time.Time
	Properties     map[string]string
}

// Property returns the first non-blank value among keys.
func (b Book) Property(keys ...string) string {
	return lookup(b.Properties, keys...)
}

// ExchangeCode is the currency of the book.
func (b Book) ExchangeCode() string {
	return b.Property(valueobject.PropExcCode, valueobject.PropExchangeCode)
}

// IsBase reports whether the book is the collection's reporting book.
func (b Book) IsBase() bool {
	return b.Property(valueobject.PropExcBase) != ""
}

// ExcAggregate reports whether FX results are aggregated per exchange code.
func (b Book) ExcAggregate() bool {
	return b.Property(valueobject.PropExcAggregate) != ""
}

// CalculationModel derives the valuation model from the book flags.
func (b Book) CalculationModel() valueobject.CalculationModel {
	return valueobject.CalculationModelFromFlags(
		isTrue(b.Property(valueobject.PropStockHistorical)),
		isTrue(b.Property(valueobject.PropStockFair)),
	)
}

// IsLocked reports whether records dated on day can no longer be edited.
func (b Book) IsLocked(day time.Time) bool {
	return b.LockDate != nil && !day.After(*b.LockDate)
}

func lookup(props map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(props[k]); v != "" {
			return v
		}
	}
	return ""
}

func isTrue(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
