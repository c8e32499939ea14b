package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port"
	pgpkg "github.com/bibbank/realizer/pkg/postgres"
)

const transactionSelect = `
	SELECT t.id, t.book_id, t.date, t.amount, t.description,
		c.id, c.name, c.type, d.id, d.name, d.type,
		t.posted, t.checked, t.locked, t.remote_ids, t.properties
	FROM transactions t
	JOIN accounts c ON c.id = t.credit_account_id
	JOIN accounts d ON d.id = t.debit_account_id`

// transactionQuery builds the SELECT for f. Results are ordered by date, then
// insertion.
func transactionQuery(f port.TransactionFilter) (string, []any) {
	where := []string{"t.book_id = $1"}
	args := []any{f.BookID}
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.ID != "" {
		add("t.id = $%d", f.ID)
	}
	if f.AccountID != "" {
		add("(t.credit_account_id = $%[1]d OR t.debit_account_id = $%[1]d)", f.AccountID)
	}
	if f.Checked != nil {
		add("t.checked = $%d", *f.Checked)
	}
	if f.OnOrBefore != nil {
		add("t.date <= $%d", *f.OnOrBefore)
	}
	if f.RemoteID != "" {
		add("$%d = ANY(t.remote_ids)", f.RemoteID)
	}

	return transactionSelect + "\n\tWHERE " + strings.Join(where, " AND ") + "\n\tORDER BY t.date, t.created_at, t.id", args
}

func (c *LedgerClient) QueryTransactions(ctx context.Context, f port.TransactionFilter) ([]model.Transaction, error) {
	sql, args := transactionQuery(f)
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	defer rows.Close()
	var txs []model.Transaction
	for rows.Next() {
		var (
			tx                    model.Transaction
			creditType, debitType string
		)
		err := rows.Scan(&tx.ID, &tx.BookID, &tx.Date, &tx.Amount, &tx.Description,
			&tx.Credit.ID, &tx.Credit.Name, &creditType, &tx.Debit.ID, &tx.Debit.Name, &debitType,
			&tx.Posted, &tx.Checked, &tx.Locked, &tx.RemoteIDs, &tx.Properties)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Credit.Type, err = model.ParseAccountType(creditType); err != nil {
			return nil, fmt.Errorf("transaction %s credit: %w", tx.ID, err)
		}
		if tx.Debit.Type, err = model.ParseAccountType(debitType); err != nil {
			return nil, fmt.Errorf("transaction %s debit: %w", tx.ID, err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func (c *LedgerClient) CreateTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	tx.ID = ""
	return insertTransaction(ctx, c.pool, tx)
}

// insertTransaction writes tx, keeping its id when the caller assigned one.
func insertTransaction(ctx context.Context, q pgpkg.Querier, tx model.Transaction) (model.Transaction, error) {
	tx = normalize(tx)
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	var err error
	if tx.Credit, err = resolveRef(ctx, q, tx.BookID, tx.Credit); err != nil {
		return model.Transaction{}, fmt.Errorf("resolve credit account: %w", err)
	}
	if tx.Debit, err = resolveRef(ctx, q, tx.BookID, tx.Debit); err != nil {
		return model.Transaction{}, fmt.Errorf("resolve debit account: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO transactions (id, book_id, date, amount, description, credit_account_id, debit_account_id,
			posted, checked, locked, remote_ids, properties)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, tx.ID, tx.BookID, tx.Date, tx.Amount, tx.Description, tx.Credit.ID, tx.Debit.ID,
		tx.Posted, tx.Checked, tx.Locked, tx.RemoteIDs, tx.Properties)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

func (c *LedgerClient) UpdateTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	var out model.Transaction
	err := pgpkg.WithTransaction(ctx, c.pool, func(dbtx pgx.Tx) error {
		var err error
		out, err = updateTransaction(ctx, dbtx, tx)
		return err
	})
	return out, err
}

// updateTransaction replaces every editable column of tx. Locked records are
// refused with port.ErrLocked.
func updateTransaction(ctx context.Context, q pgpkg.Querier, tx model.Transaction) (model.Transaction, error) {
	tx = normalize(tx)
	if err := checkUnlocked(ctx, q, tx.BookID, tx.ID); err != nil {
		return model.Transaction{}, err
	}

	var err error
	if tx.Credit, err = resolveRef(ctx, q, tx.BookID, tx.Credit); err != nil {
		return model.Transaction{}, fmt.Errorf("resolve credit account: %w", err)
	}
	if tx.Debit, err = resolveRef(ctx, q, tx.BookID, tx.Debit); err != nil {
		return model.Transaction{}, fmt.Errorf("resolve debit account: %w", err)
	}

	_, err = q.Exec(ctx, `
		UPDATE transactions SET date = $3, amount = $4, description = $5, credit_account_id = $6,
			debit_account_id = $7, posted = $8, checked = $9, remote_ids = $10, properties = $11
		WHERE book_id = $1 AND id = $2
	`, tx.BookID, tx.ID, tx.Date, tx.Amount, tx.Description, tx.Credit.ID, tx.Debit.ID,
		tx.Posted, tx.Checked, tx.RemoteIDs, tx.Properties)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	tx.Locked = false
	return tx, nil
}

// checkUnlocked returns port.ErrNotFound or port.ErrLocked for records that
// cannot be edited, and row-locks the record for the rest of the transaction.
func checkUnlocked(ctx context.Context, q pgpkg.Querier, bookID, id string) error {
	var locked bool
	err := q.QueryRow(ctx, `SELECT locked FROM transactions WHERE book_id = $1 AND id = $2 FOR UPDATE`, bookID, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("transaction %s: %w", id, port.ErrNotFound)
		}
		return fmt.Errorf("query transaction: %w", err)
	}
	if locked {
		return fmt.Errorf("transaction %s: %w", id, port.ErrLocked)
	}
	return nil
}

func (c *LedgerClient) SetChecked(ctx context.Context, bookID, transactionID string, checked bool) error {
	tag, err := c.pool.Exec(ctx, `UPDATE transactions SET checked = $3 WHERE book_id = $1 AND id = $2`,
		bookID, transactionID, checked)
	if err != nil {
		return fmt.Errorf("set checked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, port.ErrNotFound)
	}
	return nil
}

func (c *LedgerClient) DeleteTransaction(ctx context.Context, bookID, transactionID string) error {
	return pgpkg.WithTransaction(ctx, c.pool, func(tx pgx.Tx) error {
		if err := checkUnlocked(ctx, tx, bookID, transactionID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM transactions WHERE book_id = $1 AND id = $2`, bookID, transactionID); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return nil
	})
}

func (c *LedgerClient) Balance(ctx context.Context, bookID, accountName string, day time.Time) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := c.pool.QueryRow(ctx, `
		SELECT COALESCE(
			SUM(CASE WHEN d.name = $2 THEN t.amount ELSE 0 END) -
			SUM(CASE WHEN c.name = $2 THEN t.amount ELSE 0 END), 0)
		FROM transactions t
		JOIN accounts c ON c.id = t.credit_account_id
		JOIN accounts d ON d.id = t.debit_account_id
		WHERE t.book_id = $1 AND t.posted AND t.date <= $3 AND (c.name = $2 OR d.name = $2)
	`, bookID, accountName, day).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

// Batch applies ops in one database transaction. Any failing op, a locked or
// missing record included, rolls back the whole batch.
func (c *LedgerClient) Batch(ctx context.Context, ops []model.BatchOperation) ([]model.BatchResult, error) {
	var results []model.BatchResult
	err := pgpkg.WithTransaction(ctx, c.pool, func(dbtx pgx.Tx) error {
		results = make([]model.BatchResult, 0, len(ops))
		for i, op := range ops {
			tx := op.Transaction
			if tx.BookID == "" {
				return fmt.Errorf("item %d: missing book id", i)
			}

			switch op.Op {
			case model.BatchCreate:
				existing, ok, err := findByRemoteIDs(ctx, dbtx, tx.BookID, tx.RemoteIDs)
				if err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
				if ok {
					results = append(results, model.BatchResult{Transaction: existing, Existing: true})
					continue
				}
				created, err := insertTransaction(ctx, dbtx, tx)
				if err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
				results = append(results, model.BatchResult{Transaction: created})

			case model.BatchUpdate:
				updated, err := updateTransaction(ctx, dbtx, tx)
				if err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
				results = append(results, model.BatchResult{Transaction: updated})

			default:
				return fmt.Errorf("item %d: unknown batch op %d", i, op.Op)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	return results, nil
}

func findByRemoteIDs(ctx context.Context, q pgpkg.Querier, bookID string, remoteIDs []string) (model.Transaction, bool, error) {
	if len(remoteIDs) == 0 {
		return model.Transaction{}, false, nil
	}
	rows, err := q.Query(ctx, transactionSelect+`
	WHERE t.book_id = $1 AND t.remote_ids && $2
	ORDER BY t.created_at, t.id
	LIMIT 1`, bookID, remoteIDs)
	if err != nil {
		return model.Transaction{}, false, fmt.Errorf("query remote ids: %w", err)
	}
	txs, err := scanTransactions(rows)
	if err != nil || len(txs) == 0 {
		return model.Transaction{}, false, err
	}
	return txs[0], true, nil
}

func normalize(tx model.Transaction) model.Transaction {
	tx = tx.Clone()
	if tx.RemoteIDs == nil {
		tx.RemoteIDs = []string{}
	}
	if tx.Properties == nil {
		tx.Properties = map[string]string{}
	}
	return tx
}
