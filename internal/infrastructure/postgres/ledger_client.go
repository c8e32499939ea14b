package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port"
	pgpkg "github.com/bibbank/realizer/pkg/postgres"
)

// Compile-time interface check
var _ port.LedgerClient = (*LedgerClient)(nil)

// LedgerClient implements port.LedgerClient on the ledger schema in
// migrations/.
type LedgerClient struct {
	pool *pgxpool.Pool
}

func NewLedgerClient(pool *pgxpool.Pool) *LedgerClient {
	return &LedgerClient{pool: pool}
}

func (c *LedgerClient) GetBook(ctx context.Context, bookID string) (model.Book, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, name, collection_id, fraction_digits, lock_date, properties
		FROM books WHERE id = $1
	`, bookID)
	if err != nil {
		return model.Book{}, fmt.Errorf("query book: %w", err)
	}
	books, err := scanBooks(rows)
	if err != nil {
		return model.Book{}, err
	}
	if len(books) == 0 {
		return model.Book{}, fmt.Errorf("book %s: %w", bookID, port.ErrNotFound)
	}
	return books[0], nil
}

func (c *LedgerClient) ListCollectionBooks(ctx context.Context, collectionID string) ([]model.Book, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, name, collection_id, fraction_digits, lock_date, properties
		FROM books WHERE collection_id = $1 ORDER BY id
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("query collection books: %w", err)
	}
	return scanBooks(rows)
}

// SaveBook inserts or replaces a book. Books are owned by the ledger; the
// realizer only writes them when seeding a database.
func (c *LedgerClient) SaveBook(ctx context.Context, b model.Book) error {
	if b.Properties == nil {
		b.Properties = map[string]string{}
	}
	_, err := c.pool.Exec(ctx, `
		INSERT INTO books (id, collection_id, name, fraction_digits, lock_date, properties)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			collection_id = EXCLUDED.collection_id,
			name = EXCLUDED.name,
			fraction_digits = EXCLUDED.fraction_digits,
			lock_date = EXCLUDED.lock_date,
			properties = EXCLUDED.properties
	`, b.ID, b.CollectionID, b.Name, b.FractionDigits, b.LockDate, b.Properties)
	if err != nil {
		return fmt.Errorf("upsert book: %w", err)
	}
	return nil
}

func scanBooks(rows pgx.Rows) ([]model.Book, error) {
	defer rows.Close()
	var books []model.Book
	for rows.Next() {
		var (
			b        model.Book
			lockDate *time.Time
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.CollectionID, &b.FractionDigits, &lockDate, &b.Properties); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		b.LockDate = lockDate
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return books, nil
}

const accountColumns = `id, book_id, name, type, groups, properties, archived`

func (c *LedgerClient) GetAccount(ctx context.Context, bookID, name string) (model.Account, error) {
	return getAccount(ctx, c.pool, `book_id = $1 AND name = $2`, bookID, name)
}

func (c *LedgerClient) GetAccountByID(ctx context.Context, bookID, accountID string) (model.Account, error) {
	return getAccount(ctx, c.pool, `book_id = $1 AND id = $2`, bookID, accountID)
}

func getAccount(ctx context.Context, q pgpkg.Querier, where, bookID, key string) (model.Account, error) {
	rows, err := q.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where, bookID, key)
	if err != nil {
		return model.Account{}, fmt.Errorf("query account: %w", err)
	}
	accounts, err := scanAccounts(rows)
	if err != nil {
		return model.Account{}, err
	}
	if len(accounts) == 0 {
		return model.Account{}, fmt.Errorf("account %q in book %s: %w", key, bookID, port.ErrNotFound)
	}
	return accounts[0], nil
}

func (c *LedgerClient) ListAccounts(ctx context.Context, bookID string) ([]model.Account, error) {
	rows, err := c.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE book_id = $1 ORDER BY name`, bookID)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	return scanAccounts(rows)
}

func scanAccounts(rows pgx.Rows) ([]model.Account, error) {
	defer rows.Close()
	var accounts []model.Account
	for rows.Next() {
		var (
			a   model.Account
			typ string
		)
		if err := rows.Scan(&a.ID, &a.BookID, &a.Name, &typ, &a.Groups, &a.Properties, &a.Archived); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		t, err := model.ParseAccountType(typ)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", a.ID, err)
		}
		a.Type = t
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

func (c *LedgerClient) ListGroups(ctx context.Context, bookID string) ([]model.Group, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, book_id, name, properties FROM account_groups WHERE book_id = $1 ORDER BY name
	`, bookID)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.BookID, &g.Name, &g.Properties); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

func (c *LedgerClient) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	account.ID = uuid.NewString()
	if account.Groups == nil {
		account.Groups = []string{}
	}
	if account.Properties == nil {
		account.Properties = map[string]string{}
	}

	err := pgpkg.WithTransaction(ctx, c.pool, func(tx pgx.Tx) error {
		for _, name := range account.Groups {
			if _, err := tx.Exec(ctx, `
				INSERT INTO account_groups (id, book_id, name)
				VALUES ($1, $2, $3)
				ON CONFLICT (book_id, name) DO NOTHING
			`, uuid.NewString(), account.BookID, name); err != nil {
				return fmt.Errorf("insert group %q: %w", name, err)
			}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO accounts (id, book_id, name, type, groups, properties, archived)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, account.ID, account.BookID, account.Name, string(account.Type), account.Groups, account.Properties, account.Archived); err != nil {
			return fmt.Errorf("insert account %q: %w", account.Name, err)
		}
		return nil
	})
	if err != nil {
		return model.Account{}, err
	}
	return account, nil
}

func (c *LedgerClient) UpdateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	if account.Groups == nil {
		account.Groups = []string{}
	}
	if account.Properties == nil {
		account.Properties = map[string]string{}
	}
	tag, err := c.pool.Exec(ctx, `
		UPDATE accounts SET name = $3, type = $4, groups = $5, properties = $6, archived = $7
		WHERE book_id = $1 AND id = $2
	`, account.BookID, account.ID, account.Name, string(account.Type), account.Groups, account.Properties, account.Archived)
	if err != nil {
		return model.Account{}, fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Account{}, fmt.Errorf("account %s: %w", account.ID, port.ErrNotFound)
	}
	return account, nil
}

// resolveRef fills in the id, name and type of ref from the book's accounts.
func resolveRef(ctx context.Context, q pgpkg.Querier, bookID string, ref model.AccountRef) (model.AccountRef, error) {
	var (
		acc model.Account
		err error
	)
	if ref.ID != "" {
		acc, err = getAccount(ctx, q, `book_id = $1 AND id = $2`, bookID, ref.ID)
	} else {
		acc, err = getAccount(ctx, q, `book_id = $1 AND name = $2`, bookID, ref.Name)
	}
	if err != nil {
		return model.AccountRef{}, err
	}
	return model.AccountRef{ID: acc.ID, Name: acc.Name, Type: acc.Type}, nil
}
