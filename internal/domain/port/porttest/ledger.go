// Package porttest provides in-memory implementations of the domain ports for
// tests.
package porttest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port"
)

var _ port.LedgerClient = (*Ledger)(nil)

// Ledger is an in-memory LedgerClient. Identifiers are sequential so tests
// can predict them.
type Ledger struct {
	mu sync.Mutex

	books    map[string]model.Book
	accounts map[string][]model.Account
	groups   map[string][]model.Group
	txs      map[string][]model.Transaction
	seq      int

	// BatchCalls counts Batch invocations.
	BatchCalls int
	// FailBatch, when set, is returned by Batch before anything is applied.
	FailBatch error
	// FailOn, when set, is consulted for every op; a non-nil error fails the
	// batch at that op and rolls back the ops before it.
	FailOn func(model.BatchOperation) error
	// BeforeBatch, when set, runs at the start of Batch without the ledger
	// lock held, so it may change the ledger.
	BeforeBatch func()
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		books:    make(map[string]model.Book),
		accounts: make(map[string][]model.Account),
		groups:   make(map[string][]model.Group),
		txs:      make(map[string][]model.Transaction),
	}
}

func (l *Ledger) nextID(prefix string) string {
	l.seq++
	return fmt.Sprintf("%s-%d", prefix, l.seq)
}

// AddBook registers a book.
func (l *Ledger) AddBook(b model.Book) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.books[b.ID] = b
}

// AddGroup registers a group.
func (l *Ledger) AddGroup(g model.Group) model.Group {
	l.mu.Lock()
	defer l.mu.Unlock()
	if g.ID == "" {
		g.ID = l.nextID("grp")
	}
	l.groups[g.BookID] = append(l.groups[g.BookID], g)
	return g
}

// AddAccount registers an account and returns it with an id.
func (l *Ledger) AddAccount(a model.Account) model.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addAccount(a)
}

func (l *Ledger) addAccount(a model.Account) model.Account {
	if a.ID == "" {
		a.ID = l.nextID("acc")
	}
	l.accounts[a.BookID] = append(l.accounts[a.BookID], a)
	return a
}

// AddTransaction records a transaction as is and returns it with an id.
func (l *Ledger) AddTransaction(tx model.Transaction) model.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.insert(tx)
}

func (l *Ledger) insert(tx model.Transaction) model.Transaction {
	tx = tx.Clone()
	if tx.ID == "" {
		tx.ID = l.nextID("tx")
	}
	if tx.Properties == nil {
		tx.Properties = map[string]string{}
	}
	tx.Credit = l.resolveRef(tx.BookID, tx.Credit)
	tx.Debit = l.resolveRef(tx.BookID, tx.Debit)
	l.txs[tx.BookID] = append(l.txs[tx.BookID], tx)
	return tx.Clone()
}

func (l *Ledger) resolveRef(bookID string, ref model.AccountRef) model.AccountRef {
	for _, a := range l.accounts[bookID] {
		if (ref.ID != "" && a.ID == ref.ID) || (ref.ID == "" && a.Name == ref.Name) {
			return model.AccountRef{ID: a.ID, Name: a.Name, Type: a.Type}
		}
	}
	return ref
}

// Lock marks a record as locked.
func (l *Ledger) Lock(bookID, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, tx := range l.txs[bookID] {
		if tx.ID == id {
			l.txs[bookID][i].Locked = true
		}
	}
}

// Transactions returns a copy of every record in the book.
func (l *Ledger) Transactions(bookID string) []model.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Transaction, 0, len(l.txs[bookID]))
	for _, tx := range l.txs[bookID] {
		out = append(out, tx.Clone())
	}
	return out
}

// Transaction returns one record.
func (l *Ledger) Transaction(bookID, id string) (model.Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, tx := range l.txs[bookID] {
		if tx.ID == id {
			return tx.Clone(), true
		}
	}
	return model.Transaction{}, false
}

// ByRemoteID returns the record carrying remoteID.
func (l *Ledger) ByRemoteID(bookID, remoteID string) (model.Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, tx := range l.txs[bookID] {
		if tx.HasRemoteID(remoteID) {
			return tx.Clone(), true
		}
	}
	return model.Transaction{}, false
}

func (l *Ledger) GetBook(_ context.Context, bookID string) (model.Book, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.books[bookID]
	if !ok {
		return model.Book{}, fmt.Errorf("book %s: %w", bookID, port.ErrNotFound)
	}
	return b, nil
}

func (l *Ledger) ListCollectionBooks(_ context.Context, collectionID string) ([]model.Book, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Book
	for _, b := range l.books {
		if b.CollectionID == collectionID {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.Book) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (l *Ledger) GetAccount(_ context.Context, bookID, name string) (model.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.accounts[bookID] {
		if a.Name == name {
			return a, nil
		}
	}
	return model.Account{}, fmt.Errorf("account %q: %w", name, port.ErrNotFound)
}

func (l *Ledger) GetAccountByID(_ context.Context, bookID, accountID string) (model.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.accounts[bookID] {
		if a.ID == accountID {
			return a, nil
		}
	}
	return model.Account{}, fmt.Errorf("account %s: %w", accountID, port.ErrNotFound)
}

func (l *Ledger) ListAccounts(_ context.Context, bookID string) ([]model.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.accounts[bookID]), nil
}

func (l *Ledger) ListGroups(_ context.Context, bookID string) ([]model.Group, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.groups[bookID]), nil
}

func (l *Ledger) CreateAccount(_ context.Context, account model.Account) (model.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.accounts[account.BookID] {
		if a.Name == account.Name {
			return model.Account{}, fmt.Errorf("account %q already exists", account.Name)
		}
	}
	for _, name := range account.Groups {
		exists := slices.ContainsFunc(l.groups[account.BookID], func(g model.Group) bool { return g.Name == name })
		if !exists {
			l.groups[account.BookID] = append(l.groups[account.BookID], model.Group{ID: l.nextID("grp"), BookID: account.BookID, Name: name})
		}
	}
	account.ID = ""
	return l.addAccount(account), nil
}

func (l *Ledger) UpdateAccount(_ context.Context, account model.Account) (model.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, a := range l.accounts[account.BookID] {
		if a.ID == account.ID {
			l.accounts[account.BookID][i] = account
			return account, nil
		}
	}
	return model.Account{}, fmt.Errorf("account %s: %w", account.ID, port.ErrNotFound)
}

func (l *Ledger) QueryTransactions(_ context.Context, f port.TransactionFilter) ([]model.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Transaction
	for _, tx := range l.txs[f.BookID] {
		if matches(tx, f) {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

func matches(tx model.Transaction, f port.TransactionFilter) bool {
	switch {
	case f.ID != "" && tx.ID != f.ID:
		return false
	case f.AccountID != "" && tx.Credit.ID != f.AccountID && tx.Debit.ID != f.AccountID:
		return false
	case f.Checked != nil && tx.Checked != *f.Checked:
		return false
	case f.OnOrBefore != nil && tx.Date.After(*f.OnOrBefore):
		return false
	case f.RemoteID != "" && !tx.HasRemoteID(f.RemoteID):
		return false
	}
	return true
}

func (l *Ledger) CreateTransaction(_ context.Context, tx model.Transaction) (model.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx.ID = ""
	return l.insert(tx), nil
}

func (l *Ledger) UpdateTransaction(_ context.Context, tx model.Transaction) (model.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.update(tx)
}

func (l *Ledger) update(tx model.Transaction) (model.Transaction, error) {
	for i, cur := range l.txs[tx.BookID] {
		if cur.ID != tx.ID {
			continue
		}
		if cur.Locked {
			return model.Transaction{}, fmt.Errorf("transaction %s: %w", tx.ID, port.ErrLocked)
		}
		next := tx.Clone()
		next.Credit = l.resolveRef(tx.BookID, tx.Credit)
		next.Debit = l.resolveRef(tx.BookID, tx.Debit)
		l.txs[tx.BookID][i] = next
		return next.Clone(), nil
	}
	return model.Transaction{}, fmt.Errorf("transaction %s: %w", tx.ID, port.ErrNotFound)
}

func (l *Ledger) SetChecked(_ context.Context, bookID, transactionID string, checked bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, tx := range l.txs[bookID] {
		if tx.ID == transactionID {
			l.txs[bookID][i].Checked = checked
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", transactionID, port.ErrNotFound)
}

func (l *Ledger) DeleteTransaction(_ context.Context, bookID, transactionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, tx := range l.txs[bookID] {
		if tx.ID == transactionID {
			if tx.Locked {
				return fmt.Errorf("transaction %s: %w", transactionID, port.ErrLocked)
			}
			l.txs[bookID] = slices.Delete(l.txs[bookID], i, i+1)
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", transactionID, port.ErrNotFound)
}

func (l *Ledger) Balance(_ context.Context, bookID, accountName string, day time.Time) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for _, tx := range l.txs[bookID] {
		if !tx.Posted || tx.Date.After(day) {
			continue
		}
		if tx.Debit.Name == accountName {
			total = total.Add(tx.Amount)
		}
		if tx.Credit.Name == accountName {
			total = total.Sub(tx.Amount)
		}
	}
	return total, nil
}

func (l *Ledger) Batch(_ context.Context, ops []model.BatchOperation) ([]model.BatchResult, error) {
	if l.BeforeBatch != nil {
		l.BeforeBatch()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.BatchCalls++
	if l.FailBatch != nil {
		return nil, l.FailBatch
	}

	txs, seq := l.snapshot(), l.seq
	results, err := l.apply(ops)
	if err != nil {
		l.txs, l.seq = txs, seq
		return nil, err
	}
	return results, nil
}

func (l *Ledger) apply(ops []model.BatchOperation) ([]model.BatchResult, error) {
	results := make([]model.BatchResult, 0, len(ops))
	for i, op := range ops {
		if op.Transaction.BookID == "" {
			return nil, fmt.Errorf("batch: item %d: missing book id", i)
		}
		if l.FailOn != nil {
			if err := l.FailOn(op); err != nil {
				return nil, fmt.Errorf("batch: item %d: %w", i, err)
			}
		}
		tx := op.Transaction
		switch op.Op {
		case model.BatchCreate:
			if existing, ok := l.existing(tx.BookID, tx.RemoteIDs); ok {
				results = append(results, model.BatchResult{Transaction: existing, Existing: true})
				continue
			}
			results = append(results, model.BatchResult{Transaction: l.insert(tx)})
		case model.BatchUpdate:
			updated, err := l.update(tx)
			if err != nil {
				return nil, fmt.Errorf("batch: item %d: %w", i, err)
			}
			results = append(results, model.BatchResult{Transaction: updated})
		default:
			return nil, fmt.Errorf("batch: item %d: unknown op %v", i, op.Op)
		}
	}
	return results, nil
}

func (l *Ledger) snapshot() map[string][]model.Transaction {
	out := make(map[string][]model.Transaction, len(l.txs))
	for bookID, txs := range l.txs {
		cp := make([]model.Transaction, len(txs))
		for i, tx := range txs {
			cp[i] = tx.Clone()
		}
		out[bookID] = cp
	}
	return out
}

func (l *Ledger) existing(bookID string, remoteIDs []string) (model.Transaction, bool) {
	for _, tx := range l.txs[bookID] {
		for _, id := range remoteIDs {
			if tx.HasRemoteID(id) {
				return tx.Clone(), true
			}
		}
	}
	return model.Transaction{}, false
}
