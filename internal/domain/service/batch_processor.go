package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port"
	"github.com/bibbank/realizer/internal/domain/valueobject"
)

// TradeRef is the arena index of a stock record staged for creation.
type TradeRef struct{ Index int }

// Origin identifies the stock trade a generated posting belongs to. Exactly
// one of TradeID and Ref is set; Ref is resolved when the batch flushes.
type Origin struct {
	TradeID string
	Ref     *TradeRef
	Kind    valueobject.PostingKind
	Hist    bool
}

type stagedPosting struct {
	tx     model.Transaction
	origin Origin
}

type mtmKey struct {
	day  string
	hist bool
}

// FlushResult counts what a flush wrote.
type FlushResult struct {
	AccountsCreated  []model.Account
	TradesCreated    int
	TradesUpdated    int
	PostingsCreated  int
	PostingsExisting int
}

// BatchProcessor stages every write of one run and applies them in a single
// flush. It is not safe for concurrent use.
type BatchProcessor struct {
	ledger port.LedgerClient
	books  Books
	logger *slog.Logger

	accounts     []model.Account
	accountIndex map[string]int

	stockCreates []*model.Trade
	createIndex  map[*model.Trade]int
	stockUpdates []*model.Trade
	updateIndex  map[*model.Trade]struct{}

	financial []stagedPosting
	base      []stagedPosting

	mtm     map[mtmKey]decimal.Decimal
	locked  bool
	flushed bool
}

// NewBatchProcessor creates an empty batch for books.
func NewBatchProcessor(ledger port.LedgerClient, books Books, logger *slog.Logger) *BatchProcessor {
	return &BatchProcessor{
		ledger:       ledger,
		books:        books,
		logger:       logger,
		accountIndex: make(map[string]int),
		createIndex:  make(map[*model.Trade]int),
		updateIndex:  make(map[*model.Trade]struct{}),
		mtm:          make(map[mtmKey]decimal.Decimal),
	}
}

func accountKey(bookID, name string) string { return bookID + "\x00" + name }

// StageAccount queues an account for creation. A second account with the same
// book and name returns the first one.
func (p *BatchProcessor) StageAccount(acc model.Account) model.Account {
	key := accountKey(acc.BookID, acc.Name)
	if i, ok := p.accountIndex[key]; ok {
		return p.accounts[i]
	}
	p.accountIndex[key] = len(p.accounts)
	p.accounts = append(p.accounts, acc)
	return acc
}

// StagedAccount returns an account staged for creation.
func (p *BatchProcessor) StagedAccount(bookID, name string) (model.Account, bool) {
	i, ok := p.accountIndex[accountKey(bookID, name)]
	if !ok {
		return model.Account{}, false
	}
	return p.accounts[i], true
}

// StageTradeCreate queues a new stock record and returns its arena index.
func (p *BatchProcessor) StageTradeCreate(t *model.Trade) TradeRef {
	if i, ok := p.createIndex[t]; ok {
		return TradeRef{Index: i}
	}
	i := len(p.stockCreates)
	p.createIndex[t] = i
	p.stockCreates = append(p.stockCreates, t)
	return TradeRef{Index: i}
}

// StageTradeUpdate queues an existing stock record for update. Staging a
// locked record marks the whole batch as locked.
func (p *BatchProcessor) StageTradeUpdate(t *model.Trade) {
	if t.Locked || p.books.Stock.IsLocked(t.Date) {
		p.logger.Warn("locked transaction in batch", "transaction_id", t.ID, "date", t.Date.Format(time.DateOnly))
		p.locked = true
	}
	if _, ok := p.updateIndex[t]; ok {
		return
	}
	p.updateIndex[t] = struct{}{}
	p.stockUpdates = append(p.stockUpdates, t)
}

// HasLockedTransaction reports whether any staged update touches a locked record.
func (p *BatchProcessor) HasLockedTransaction() bool { return p.locked }

// Origin builds the remote-id origin of a posting generated for t.
func (p *BatchProcessor) Origin(t *model.Trade, kind valueobject.PostingKind, hist bool) Origin {
	if t.ID != "" {
		return Origin{TradeID: t.ID, Kind: kind, Hist: hist}
	}
	ref := p.StageTradeCreate(t)
	return Origin{Ref: &ref, Kind: kind, Hist: hist}
}

// StageFinancialPosting queues a posting on the financial book.
func (p *BatchProcessor) StageFinancialPosting(tx model.Transaction, origin Origin) {
	tx.BookID = p.books.Financial.ID
	p.financial = append(p.financial, stagedPosting{tx: tx, origin: origin})
}

// StageBasePosting queues a posting on the base book.
func (p *BatchProcessor) StageBasePosting(tx model.Transaction, origin Origin) {
	tx.BookID = p.books.Base.ID
	p.base = append(p.base, stagedPosting{tx: tx, origin: origin})
}

// MtmBalance is the MTM amount already staged for day.
func (p *BatchProcessor) MtmBalance(day time.Time, hist bool) decimal.Decimal {
	return p.mtm[mtmKey{day: day.Format(time.DateOnly), hist: hist}]
}

// AddMtmBalance records a staged MTM amount for day.
func (p *BatchProcessor) AddMtmBalance(day time.Time, hist bool, amount decimal.Decimal) {
	k := mtmKey{day: day.Format(time.DateOnly), hist: hist}
	p.mtm[k] = p.mtm[k].Add(amount)
}

// Pending reports whether anything is staged.
func (p *BatchProcessor) Pending() bool {
	return len(p.accounts)+len(p.stockCreates)+len(p.stockUpdates)+len(p.financial)+len(p.base) > 0
}

// Flush applies the batch. Accounts are created first; stock creates, stock
// updates and the postings of both books then go to the ledger as one Batch,
// so either all of them land or none do. It may run once.
func (p *BatchProcessor) Flush(ctx context.Context) (FlushResult, error) {
	if p.flushed {
		return FlushResult{}, port.ErrAlreadyFlushed
	}
	p.flushed = true
	if p.locked {
		return FlushResult{}, port.ErrLocked
	}

	var res FlushResult
	for _, acc := range p.accounts {
		created, err := p.ledger.CreateAccount(ctx, acc)
		if err != nil {
			return res, fmt.Errorf("failed to create account %q: %w", acc.Name, err)
		}
		res.AccountsCreated = append(res.AccountsCreated, created)
	}

	// Postings reference new stock records by id, so creates get theirs now.
	for _, t := range p.stockCreates {
		t.ID = uuid.NewString()
	}

	ops, err := p.operations()
	if err != nil {
		p.clearCreateIDs()
		return res, err
	}
	if len(ops) == 0 {
		return res, nil
	}

	results, err := p.ledger.Batch(ctx, ops)
	if err != nil {
		p.clearCreateIDs()
		return res, fmt.Errorf("failed to apply batch: %w", err)
	}

	res.TradesCreated = len(p.stockCreates)
	res.TradesUpdated = len(p.stockUpdates)
	for _, r := range results[res.TradesCreated+res.TradesUpdated:] {
		if r.Existing {
			res.PostingsExisting++
		} else {
			res.PostingsCreated++
		}
	}

	p.logger.DebugContext(ctx, "batch flushed",
		"accounts", len(res.AccountsCreated),
		"trades_created", res.TradesCreated,
		"trades_updated", res.TradesUpdated,
		"postings_created", res.PostingsCreated,
		"postings_existing", res.PostingsExisting,
	)
	return res, nil
}

// operations lists the batch in write order: stock creates, stock updates,
// financial postings, base postings.
func (p *BatchProcessor) operations() ([]model.BatchOperation, error) {
	n := len(p.stockCreates) + len(p.stockUpdates) + len(p.financial) + len(p.base)
	ops := make([]model.BatchOperation, 0, n)

	var err error
	if ops, err = p.appendTrades(ops, model.BatchCreate, p.stockCreates); err != nil {
		return nil, err
	}
	if ops, err = p.appendTrades(ops, model.BatchUpdate, p.stockUpdates); err != nil {
		return nil, err
	}
	if ops, err = p.appendPostings(ops, p.financial); err != nil {
		return nil, fmt.Errorf("failed to stage financial postings: %w", err)
	}
	if ops, err = p.appendPostings(ops, p.base); err != nil {
		return nil, fmt.Errorf("failed to stage base postings: %w", err)
	}
	return ops, nil
}

func (p *BatchProcessor) appendTrades(ops []model.BatchOperation, op model.BatchOp, trades []*model.Trade) ([]model.BatchOperation, error) {
	for _, t := range trades {
		tx, err := t.Transaction()
		if err != nil {
			return nil, fmt.Errorf("failed to encode trade %s: %w", t.ID, err)
		}
		if tx.BookID == "" {
			tx.BookID = p.books.Stock.ID
		}
		ops = append(ops, model.BatchOperation{Op: op, Transaction: tx})
	}
	return ops, nil
}

func (p *BatchProcessor) appendPostings(ops []model.BatchOperation, staged []stagedPosting) ([]model.BatchOperation, error) {
	for _, sp := range staged {
		base, err := p.resolve(sp.origin)
		if err != nil {
			return nil, err
		}
		tx := sp.tx.Clone()
		tx.RemoteIDs = []string{sp.origin.Kind.RemoteID(base, sp.origin.Hist)}
		ops = append(ops, model.BatchOperation{Op: model.BatchCreate, Transaction: tx})
	}
	return ops, nil
}

func (p *BatchProcessor) clearCreateIDs() {
	for _, t := range p.stockCreates {
		t.ID = ""
	}
}

func (p *BatchProcessor) resolve(o Origin) (string, error) {
	if o.Ref == nil {
		return o.TradeID, nil
	}
	if o.Ref.Index < 0 || o.Ref.Index >= len(p.stockCreates) {
		return "", fmt.Errorf("unknown trade reference %d", o.Ref.Index)
	}
	id := p.stockCreates[o.Ref.Index].ID
	if id == "" {
		return "", fmt.Errorf("trade reference %d has no id", o.Ref.Index)
	}
	return id, nil
}
