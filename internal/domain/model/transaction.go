package model

import (
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// AccountRef points at an account by id or, for records not yet created, by
// name within the record's book.
type AccountRef struct {
	ID   string
	Name string
	Type AccountType
}

// Transaction is a ledger record as stored. Amounts are always positive; the
// direction is credit -> debit.
type Transaction struct {
	ID          string
	BookID      string
	Date        time.Time
	Amount      decimal.Decimal
	Credit      AccountRef
	Debit       AccountRef
	Description string
	Posted      bool
	Checked     bool
	Locked      bool
	RemoteIDs   []string
	Properties  map[string]string
}

// Property returns the first non-blank value among keys.
func (t Transaction) Property(keys ...string) string {
	return lookup(t.Properties, keys...)
}

// HasRemoteID reports whether id is one of the record's remote ids.
func (t Transaction) HasRemoteID(id string) bool {
	return slices.Contains(t.RemoteIDs, id)
}

// Clone returns a deep copy.
func (t Transaction) Clone() Transaction {
	out := t
	out.RemoteIDs = slices.Clone(t.RemoteIDs)
	out.Properties = maps.Clone(t.Properties)
	return out
}

// BatchOp is the kind of a batched ledger write.
type BatchOp int

const (
	BatchCreate BatchOp = iota
	BatchUpdate
)

// BatchOperation is one write in a Batch call, on the book named by
// Transaction.BookID. Creates are create-if-absent: a record whose remote id
// already exists in the book is left alone. A create may carry its own ID.
type BatchOperation struct {
	Op          BatchOp
	Transaction Transaction
}

// BatchResult reports the outcome of one BatchOperation. Existing is set when
// a create matched an existing remote id.
type BatchResult struct {
	Transaction Transaction
	Existing    bool
}
