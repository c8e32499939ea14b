package port

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/pkg/events"
)

var (
	// ErrNotFound is returned when a book, account or transaction does not exist.
	ErrNotFound = errors.New("not found")
	// ErrLocked is returned when the ledger refuses to edit a locked record.
	ErrLocked = errors.New("record is locked")
	// ErrAlreadyFlushed is returned by a second flush of the same batch.
	ErrAlreadyFlushed = errors.New("batch already flushed")
	// ErrPositionBusy is returned when another run holds the position.
	ErrPositionBusy = errors.New("position is being calculated")
)

// TransactionFilter narrows QueryTransactions. Zero values do not filter.
type TransactionFilter struct {
	BookID string
	// AccountID matches either side of the transaction.
	AccountID  string
	Checked    *bool
	OnOrBefore *time.Time
	RemoteID   string
	ID         string
}

// LedgerClient is the ledger the realizer reads from and writes to. Account
// refs on transactions it receives may carry only a name, resolved within the
// transaction's book.
type LedgerClient interface {
	GetBook(ctx context.Context, bookID string) (model.Book, error)
	// ListCollectionBooks returns every book sharing the collection, including
	// the one asked from.
	ListCollectionBooks(ctx context.Context, collectionID string) ([]model.Book, error)

	GetAccount(ctx context.Context, bookID, name string) (model.Account, error)
	GetAccountByID(ctx context.Context, bookID, accountID string) (model.Account, error)
	ListAccounts(ctx context.Context, bookID string) ([]model.Account, error)
	ListGroups(ctx context.Context, bookID string) ([]model.Group, error)
	// CreateAccount creates the account and any missing groups it names.
	CreateAccount(ctx context.Context, account model.Account) (model.Account, error)
	UpdateAccount(ctx context.Context, account model.Account) (model.Account, error)

	QueryTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	CreateTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error)
	// UpdateTransaction replaces amount, accounts, description and properties.
	UpdateTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error)
	SetChecked(ctx context.Context, bookID, transactionID string, checked bool) error
	DeleteTransaction(ctx context.Context, bookID, transactionID string) error

	// Balance is the sum of debits minus credits of posted transactions on
	// the named account up to and including day. Unknown accounts are zero.
	Balance(ctx context.Context, bookID, accountName string, day time.Time) (decimal.Decimal, error)
	// Batch applies ops in order, across books, as one unit: either every op
	// is applied or none is. A locked or missing record fails the whole batch
	// with an error wrapping ErrLocked or ErrNotFound.
	Batch(ctx context.Context, ops []model.BatchOperation) ([]model.BatchResult, error)
}

// PositionLocker serializes runs against the same position across processes.
type PositionLocker interface {
	// Acquire returns ErrPositionBusy when the key is held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, events ...events.DomainEvent) error
}
