package cache

import (
	"context"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port"
)

// Compile-time interface check
var _ port.LedgerClient = (*LedgerClient)(nil)

// LedgerClient caches book and group metadata in front of another
// LedgerClient. Accounts and transactions always go to the ledger.
type LedgerClient struct {
	port.LedgerClient
	cache *gocache.Cache
}

// NewLedgerClient wraps next. Entries live for ttl.
func NewLedgerClient(next port.LedgerClient, ttl time.Duration) *LedgerClient {
	return &LedgerClient{
		LedgerClient: next,
		cache:        gocache.New(ttl, 2*ttl),
	}
}

func bookKey(id string) string       { return "book:" + id }
func collectionKey(id string) string { return "collection:" + id }
func groupsKey(bookID string) string { return "groups:" + bookID }

func (c *LedgerClient) GetBook(ctx context.Context, bookID string) (model.Book, error) {
	if v, ok := c.cache.Get(bookKey(bookID)); ok {
		return v.(model.Book), nil
	}
	b, err := c.LedgerClient.GetBook(ctx, bookID)
	if err != nil {
		return model.Book{}, err
	}
	c.cache.SetDefault(bookKey(bookID), b)
	return b, nil
}

func (c *LedgerClient) ListCollectionBooks(ctx context.Context, collectionID string) ([]model.Book, error) {
	if v, ok := c.cache.Get(collectionKey(collectionID)); ok {
		return slices.Clone(v.([]model.Book)), nil
	}
	books, err := c.LedgerClient.ListCollectionBooks(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(collectionKey(collectionID), slices.Clone(books))
	return books, nil
}

func (c *LedgerClient) ListGroups(ctx context.Context, bookID string) ([]model.Group, error) {
	if v, ok := c.cache.Get(groupsKey(bookID)); ok {
		return slices.Clone(v.([]model.Group)), nil
	}
	groups, err := c.LedgerClient.ListGroups(ctx, bookID)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(groupsKey(bookID), slices.Clone(groups))
	return groups, nil
}

// CreateAccount may create groups, so the book's groups are dropped.
func (c *LedgerClient) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	c.cache.Delete(groupsKey(account.BookID))
	return c.LedgerClient.CreateAccount(ctx, account)
}

// Flush drops every cached entry.
func (c *LedgerClient) Flush() {
	c.cache.Flush()
}
