package model

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/realizer/internal/domain/valueobject"
)

// Side distinguishes the sale and purchase halves of a trade's properties.
type Side int

const (
	SideSale Side = iota
	SidePurchase
)

// Trade is the typed view of a stock-book transaction. Every field the
// realizer computes has its own typed member; properties it does not own are
// carried through unchanged.
type Trade struct {
	ID          string
	BookID      string
	Date        time.Time
	Quantity    decimal.Decimal
	Credit      AccountRef
	Debit       AccountRef
	Description string
	Posted      bool
	Checked     bool
	Locked      bool
	RemoteIDs   []string

	Order     decimal.NullDecimal
	TradeDate *time.Time
	ParentID  string

	PurchasePrice      decimal.NullDecimal
	PurchasePriceHist  decimal.NullDecimal
	PurchaseAmount     decimal.NullDecimal
	PurchaseExcRate    decimal.NullDecimal
	FwdPurchasePrice   decimal.NullDecimal
	FwdPurchaseAmount  decimal.NullDecimal
	FwdPurchaseExcRate decimal.NullDecimal

	SalePrice      decimal.NullDecimal
	SalePriceHist  decimal.NullDecimal
	SaleAmount     decimal.NullDecimal
	SaleExcRate    decimal.NullDecimal
	FwdSalePrice   decimal.NullDecimal
	FwdSaleAmount  decimal.NullDecimal
	FwdSaleExcRate decimal.NullDecimal
	SaleDate       *time.Time

	TradeExcRate     decimal.NullDecimal
	TradeExcRateHist decimal.NullDecimal
	OriginalQuantity decimal.NullDecimal
	OriginalAmount   decimal.NullDecimal

	GainAmount     decimal.NullDecimal
	GainAmountHist decimal.NullDecimal
	ShortSale      bool

	LiquidationLog []valueobject.LiquidationLogEntry
	PurchaseLog    []valueobject.PurchaseLogEntry
	FwdPurchaseLog []valueobject.PurchaseLogEntry

	extra map[string]string
}

type decimalField struct {
	key string
	ptr *decimal.NullDecimal
}

func (t *Trade) decimalFields() []decimalField {
	return []decimalField{
		{valueobject.PropPurchasePrice, &t.PurchasePrice},
		{valueobject.PropPurchasePriceHist, &t.PurchasePriceHist},
		{valueobject.PropPurchaseAmount, &t.PurchaseAmount},
		{valueobject.PropPurchaseExcRate, &t.PurchaseExcRate},
		{valueobject.PropFwdPurchasePrice, &t.FwdPurchasePrice},
		{valueobject.PropFwdPurchaseAmount, &t.FwdPurchaseAmount},
		{valueobject.PropFwdPurchaseExcRate, &t.FwdPurchaseExcRate},
		{valueobject.PropSalePrice, &t.SalePrice},
		{valueobject.PropSalePriceHist, &t.SalePriceHist},
		{valueobject.PropSaleAmount, &t.SaleAmount},
		{valueobject.PropSaleExcRate, &t.SaleExcRate},
		{valueobject.PropFwdSalePrice, &t.FwdSalePrice},
		{valueobject.PropFwdSaleAmount, &t.FwdSaleAmount},
		{valueobject.PropFwdSaleExcRate, &t.FwdSaleExcRate},
		{valueobject.PropTradeExcRate, &t.TradeExcRate},
		{valueobject.PropTradeExcRateHist, &t.TradeExcRateHist},
		{valueobject.PropOriginalQuantity, &t.OriginalQuantity},
		{valueobject.PropOriginalAmount, &t.OriginalAmount},
		{valueobject.PropGainAmount, &t.GainAmount},
		{valueobject.PropGainAmountHist, &t.GainAmountHist},
	}
}

// ownedKeys are removed from the carried-through property set on decode.
var ownedKeys = []string{
	valueobject.PropOrder,
	valueobject.PropTradeDate,
	valueobject.PropParentID,
	valueobject.PropSaleDate,
	valueobject.PropShortSale,
	valueobject.PropLiquidationLog,
	valueobject.PropPurchaseLog,
	valueobject.PropFwdPurchaseLog,
}

// TradeFromTransaction decodes a stock-book transaction.
func TradeFromTransaction(tx Transaction) (Trade, error) {
	t := Trade{
		ID:          tx.ID,
		BookID:      tx.BookID,
		Date:        tx.Date,
		Quantity:    tx.Amount,
		Credit:      tx.Credit,
		Debit:       tx.Debit,
		Description: tx.Description,
		Posted:      tx.Posted,
		Checked:     tx.Checked,
		Locked:      tx.Locked,
		RemoteIDs:   slices.Clone(tx.RemoteIDs),
		extra:       maps.Clone(tx.Properties),
	}
	if t.extra == nil {
		t.extra = map[string]string{}
	}

	for _, f := range t.decimalFields() {
		v, err := parseNullDecimal(tx.Properties[f.key])
		if err != nil {
			return Trade{}, fmt.Errorf("trade %s: property %s: %w", tx.ID, f.key, err)
		}
		*f.ptr = v
		delete(t.extra, f.key)
	}

	// A non-numeric order is left in place untouched and ignored for sorting.
	if order, err := parseNullDecimal(tx.Properties[valueobject.PropOrder]); err == nil {
		t.Order = order
		delete(t.extra, valueobject.PropOrder)
	}

	var err error
	if t.TradeDate, err = parseDate(tx.Properties[valueobject.PropTradeDate]); err != nil {
		return Trade{}, fmt.Errorf("trade %s: property %s: %w", tx.ID, valueobject.PropTradeDate, err)
	}
	if t.SaleDate, err = parseDate(tx.Properties[valueobject.PropSaleDate]); err != nil {
		return Trade{}, fmt.Errorf("trade %s: property %s: %w", tx.ID, valueobject.PropSaleDate, err)
	}
	t.ParentID = tx.Properties[valueobject.PropParentID]
	t.ShortSale = isTrue(tx.Properties[valueobject.PropShortSale])

	if t.LiquidationLog, err = valueobject.DecodeLog[valueobject.LiquidationLogEntry](tx.Properties[valueobject.PropLiquidationLog]); err != nil {
		return Trade{}, fmt.Errorf("trade %s: property %s: %w", tx.ID, valueobject.PropLiquidationLog, err)
	}
	if t.PurchaseLog, err = valueobject.DecodeLog[valueobject.PurchaseLogEntry](tx.Properties[valueobject.PropPurchaseLog]); err != nil {
		return Trade{}, fmt.Errorf("trade %s: property %s: %w", tx.ID, valueobject.PropPurchaseLog, err)
	}
	if t.FwdPurchaseLog, err = valueobject.DecodeLog[valueobject.PurchaseLogEntry](tx.Properties[valueobject.PropFwdPurchaseLog]); err != nil {
		return Trade{}, fmt.Errorf("trade %s: property %s: %w", tx.ID, valueobject.PropFwdPurchaseLog, err)
	}

	for _, k := range ownedKeys {
		delete(t.extra, k)
	}
	return t, nil
}

// Transaction encodes the trade back into a ledger record.
func (t Trade) Transaction() (Transaction, error) {
	props := maps.Clone(t.extra)
	if props == nil {
		props = map[string]string{}
	}
	for _, f := range t.decimalFields() {
		if f.ptr.Valid {
			props[f.key] = f.ptr.Decimal.String()
		}
	}
	if t.Order.Valid {
		props[valueobject.PropOrder] = t.Order.Decimal.String()
	}
	if t.TradeDate != nil {
		props[valueobject.PropTradeDate] = t.TradeDate.Format(time.DateOnly)
	}
	if t.SaleDate != nil {
		props[valueobject.PropSaleDate] = t.SaleDate.Format(time.DateOnly)
	}
	if t.ParentID != "" {
		props[valueobject.PropParentID] = t.ParentID
	}
	if t.ShortSale {
		props[valueobject.PropShortSale] = "true"
	}
	if err := putLog(props, valueobject.PropLiquidationLog, t.LiquidationLog); err != nil {
		return Transaction{}, err
	}
	if err := putLog(props, valueobject.PropPurchaseLog, t.PurchaseLog); err != nil {
		return Transaction{}, err
	}
	if err := putLog(props, valueobject.PropFwdPurchaseLog, t.FwdPurchaseLog); err != nil {
		return Transaction{}, err
	}

	return Transaction{
		ID:          t.ID,
		BookID:      t.BookID,
		Date:        t.Date,
		Amount:      t.Quantity,
		Credit:      t.Credit,
		Debit:       t.Debit,
		Description: t.Description,
		Posted:      t.Posted,
		Checked:     t.Checked,
		Locked:      t.Locked,
		RemoteIDs:   slices.Clone(t.RemoteIDs),
		Properties:  props,
	}, nil
}

// Extra returns a property the realizer does not own.
func (t Trade) Extra(key string) string { return t.extra[key] }

// IsSale reports whether the trade moves quantity out of the position.
func (t Trade) IsSale() bool { return t.Posted && t.Debit.Type == AccountOutgoing }

// IsPurchase reports whether the trade moves quantity into the position.
func (t Trade) IsPurchase() bool { return t.Posted && t.Credit.Type == AccountIncoming }

// PositionAccountID is the stock account the trade belongs to.
func (t Trade) PositionAccountID() string {
	if t.IsSale() {
		return t.Credit.ID
	}
	return t.Debit.ID
}

// EffectiveDate is the trade date when recorded, else the posting date.
func (t Trade) EffectiveDate() time.Time {
	if t.TradeDate != nil {
		return *t.TradeDate
	}
	return t.Date
}

// FIFOKey orders the trade for lot matching.
func (t Trade) FIFOKey() valueobject.FIFOKey {
	return valueobject.FIFOKey{Order: t.Order, Date: t.EffectiveDate(), ID: t.ID}
}

// HistPrice is <side>_price_hist, falling back to <side>_price.
func (t Trade) HistPrice(side Side) decimal.NullDecimal {
	if side == SideSale {
		return firstValid(t.SalePriceHist, t.SalePrice)
	}
	return firstValid(t.PurchasePriceHist, t.PurchasePrice)
}

// FwdPrice is fwd_<side>_price, falling back to <side>_price.
func (t Trade) FwdPrice(side Side) decimal.NullDecimal {
	if side == SideSale {
		return firstValid(t.FwdSalePrice, t.SalePrice)
	}
	return firstValid(t.FwdPurchasePrice, t.PurchasePrice)
}

// ExcRate returns the recorded <side>_exc_rate.
func (t Trade) ExcRate(side Side) decimal.NullDecimal {
	if side == SideSale {
		return t.SaleExcRate
	}
	return t.PurchaseExcRate
}

// FwdExcRate returns the recorded fwd_<side>_exc_rate.
func (t Trade) FwdExcRate(side Side) decimal.NullDecimal {
	if side == SideSale {
		return t.FwdSaleExcRate
	}
	return t.FwdPurchaseExcRate
}

// SetExcRate records <side>_exc_rate.
func (t *Trade) SetExcRate(side Side, rate decimal.NullDecimal) {
	if side == SideSale {
		t.SaleExcRate = rate
	} else {
		t.PurchaseExcRate = rate
	}
}

// SetFwdExcRate records fwd_<side>_exc_rate.
func (t *Trade) SetFwdExcRate(side Side, rate decimal.NullDecimal) {
	if side == SideSale {
		t.FwdSaleExcRate = rate
	} else {
		t.FwdPurchaseExcRate = rate
	}
}

// SetGain records the gain properties for the model.
func (t *Trade) SetGain(model valueobject.CalculationModel, hist, fair decimal.Decimal) {
	switch model {
	case valueobject.ModelHistoricalOnly:
		t.GainAmount = decimal.NewNullDecimal(hist)
	case valueobject.ModelFairOnly:
		t.GainAmount = decimal.NewNullDecimal(fair)
	default:
		t.GainAmountHist = decimal.NewNullDecimal(hist)
		t.GainAmount = decimal.NewNullDecimal(fair)
	}
}

// NewChild starts a record on the same accounts and dates as t, linked to it
// through parent_id. The child has no id until created.
func (t Trade) NewChild(quantity decimal.Decimal) Trade {
	child := Trade{
		BookID:      t.BookID,
		Date:        t.Date,
		Quantity:    quantity,
		Credit:      t.Credit,
		Debit:       t.Debit,
		Description: t.Description,
		Posted:      true,
		Order:       t.Order,
		ParentID:    t.ID,
		extra:       map[string]string{},
	}
	if t.TradeDate != nil {
		d := *t.TradeDate
		child.TradeDate = &d
	}
	return child
}

// ResetComputed clears every field the realizer writes so the trade can be
// matched again from scratch.
func (t *Trade) ResetComputed() {
	t.Checked = false
	t.PurchaseAmount = decimal.NullDecimal{}
	t.FwdPurchaseAmount = decimal.NullDecimal{}
	t.SaleAmount = decimal.NullDecimal{}
	t.FwdSaleAmount = decimal.NullDecimal{}
	t.GainAmount = decimal.NullDecimal{}
	t.GainAmountHist = decimal.NullDecimal{}
	t.SaleDate = nil
	t.ShortSale = false
	t.LiquidationLog = nil
	t.PurchaseLog = nil
	t.FwdPurchaseLog = nil
	if t.IsPurchase() {
		t.SalePrice = decimal.NullDecimal{}
		t.FwdSalePrice = decimal.NullDecimal{}
		t.SaleExcRate = decimal.NullDecimal{}
		t.FwdSaleExcRate = decimal.NullDecimal{}
	}
}

func firstValid(values ...decimal.NullDecimal) decimal.NullDecimal {
	for _, v := range values {
		if v.Valid {
			return v
		}
	}
	return decimal.NullDecimal{}
}

func parseNullDecimal(raw string) (decimal.NullDecimal, error) {
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func putLog[T valueobject.LiquidationLogEntry | valueobject.PurchaseLogEntry](props map[string]string, key string, entries []T) error {
	if len(entries) == 0 {
		return nil
	}
	raw, err := valueobject.EncodeLog(entries)
	if err != nil {
		return fmt.Errorf("property %s: %w", key, err)
	}
	props[key] = raw
	return nil
}
