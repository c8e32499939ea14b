package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port"
	"github.com/bibbank/realizer/internal/domain/port/porttest"
)

// countingLedger counts metadata reads that reach the ledger.
type countingLedger struct {
	*porttest.Ledger
	books  int
	groups int
}

func (l *countingLedger) GetBook(ctx context.Context, bookID string) (model.Book, error) {
	l.books++
	return l.Ledger.GetBook(ctx, bookID)
}

func (l *countingLedger) ListGroups(ctx context.Context, bookID string) ([]model.Group, error) {
	l.groups++
	return l.Ledger.ListGroups(ctx, bookID)
}

func TestLedgerClient(t *testing.T) {
	ctx := context.Background()
	inner := &countingLedger{Ledger: porttest.NewLedger()}
	inner.AddBook(model.Book{ID: "stock", Name: "Stocks", CollectionID: "c1"})
	inner.AddBook(model.Book{ID: "usd", Name: "Broker", CollectionID: "c1"})
	c := NewLedgerClient(inner, time.Minute)

	t.Run("books are read once", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			b, err := c.GetBook(ctx, "stock")
			require.NoError(t, err)
			assert.Equal(t, "Stocks", b.Name)
		}
		assert.Equal(t, 1, inner.books)
	})

	t.Run("missing books are not cached", func(t *testing.T) {
		_, err := c.GetBook(ctx, "nope")
		assert.ErrorIs(t, err, port.ErrNotFound)
		_, err = c.GetBook(ctx, "nope")
		assert.ErrorIs(t, err, port.ErrNotFound)
		assert.Equal(t, 3, inner.books)
	})

	t.Run("collection copies are independent", func(t *testing.T) {
		books, err := c.ListCollectionBooks(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, books, 2)
		books[0].Name = "changed"

		again, err := c.ListCollectionBooks(ctx, "c1")
		require.NoError(t, err)
		assert.NotEqual(t, "changed", again[0].Name)
	})

	t.Run("account creation drops cached groups", func(t *testing.T) {
		groups, err := c.ListGroups(ctx, "usd")
		require.NoError(t, err)
		assert.Empty(t, groups)

		_, err = c.CreateAccount(ctx, model.Account{BookID: "usd", Name: "ACME Unrealized", Type: model.AccountLiability, Groups: []string{"Unrealized"}})
		require.NoError(t, err)

		groups, err = c.ListGroups(ctx, "usd")
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, "Unrealized", groups[0].Name)
		assert.Equal(t, 2, inner.groups)
	})
}
