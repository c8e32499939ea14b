package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bibbank/realizer/internal/application/dto"
	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port"
	"github.com/bibbank/realizer/internal/domain/service"
	"github.com/bibbank/realizer/internal/domain/valueobject"
)

// ResetRealizedResults undoes every result generated for a position and
// calculates it again from scratch.
type ResetRealizedResults struct {
	ledger    port.LedgerClient
	calculate *CalculateRealizedResults
	logger    *slog.Logger
}

func NewResetRealizedResults(ledger port.LedgerClient, calculate *CalculateRealizedResults, logger *slog.Logger) *ResetRealizedResults {
	return &ResetRealizedResults{
		ledger:    ledger,
		calculate: calculate,
		logger:    logger,
	}
}

// resetPlan is everything a reset will touch, collected before any write so a
// locked record aborts the reset untouched.
type resetPlan struct {
	postings []model.Transaction
	merges   map[*model.Trade][]*model.Trade
	resets   []*model.Trade
}

func (uc *ResetRealizedResults) Execute(ctx context.Context, req dto.ResetRealizedResultsRequest) (dto.ResetRealizedResultsResponse, error) {
	stockBook, err := uc.ledger.GetBook(ctx, req.StockBookID)
	if err != nil {
		return dto.ResetRealizedResultsResponse{}, fmt.Errorf("failed to load stock book: %w", err)
	}
	position, err := loadPosition(ctx, uc.ledger, req.StockBookID, req.PositionID)
	if err != nil {
		return dto.ResetRealizedResultsResponse{}, err
	}
	logger := uc.logger.With("stock_book_id", stockBook.ID, "position_id", position.ID())

	txs, err := uc.ledger.QueryTransactions(ctx, port.TransactionFilter{BookID: stockBook.ID, AccountID: position.ID()})
	if err != nil {
		return dto.ResetRealizedResultsResponse{}, fmt.Errorf("failed to load position trades: %w", err)
	}
	trades, err := decodeTrades(txs)
	if err != nil {
		return dto.ResetRealizedResultsResponse{}, err
	}

	collection, err := uc.ledger.ListCollectionBooks(ctx, stockBook.CollectionID)
	if err != nil {
		return dto.ResetRealizedResultsResponse{}, fmt.Errorf("failed to load collection books: %w", err)
	}
	books, hasBooks := service.ResolveBooks(stockBook, collection, position.ExchangeCode(), uc.calculate.conv.BaseCurrency)

	plan, err := uc.plan(ctx, stockBook, books, hasBooks, trades)
	if err != nil {
		return dto.ResetRealizedResultsResponse{}, err
	}
	if plan == nil {
		logger.WarnContext(ctx, "locked record found, reset aborted")
		return dto.ResetRealizedResultsResponse{
			Calculation: toCalculateResponse(model.NewSummary(position.ID()).LockError()),
		}, nil
	}

	var resp dto.ResetRealizedResultsResponse
	for _, p := range plan.postings {
		if p.Checked {
			if err := uc.ledger.SetChecked(ctx, p.BookID, p.ID, false); err != nil {
				return resp, fmt.Errorf("failed to uncheck posting %s: %w", p.ID, err)
			}
		}
		if err := uc.ledger.DeleteTransaction(ctx, p.BookID, p.ID); err != nil {
			return resp, fmt.Errorf("failed to delete posting %s: %w", p.ID, err)
		}
		resp.PostingsDeleted++
	}

	for root, children := range plan.merges {
		for _, child := range children {
			root.Quantity = root.Quantity.Add(child.Quantity)
			if child.Checked {
				if err := uc.ledger.SetChecked(ctx, child.BookID, child.ID, false); err != nil {
					return resp, fmt.Errorf("failed to uncheck split %s: %w", child.ID, err)
				}
			}
			if err := uc.ledger.DeleteTransaction(ctx, child.BookID, child.ID); err != nil {
				return resp, fmt.Errorf("failed to delete split %s: %w", child.ID, err)
			}
			resp.TradesMerged++
		}
	}

	for _, t := range plan.resets {
		wasChecked := t.Checked
		t.ResetComputed()
		tx, err := t.Transaction()
		if err != nil {
			return resp, fmt.Errorf("failed to encode trade %s: %w", t.ID, err)
		}
		if _, err := uc.ledger.UpdateTransaction(ctx, tx); err != nil {
			return resp, fmt.Errorf("failed to reset trade %s: %w", t.ID, err)
		}
		if wasChecked {
			if err := uc.ledger.SetChecked(ctx, t.BookID, t.ID, false); err != nil {
				return resp, fmt.Errorf("failed to uncheck trade %s: %w", t.ID, err)
			}
		}
		resp.TradesReset++
	}

	cleared := position.WithRealizedDate(nil).WithNeedsRebuild(false)
	if _, err := uc.ledger.UpdateAccount(ctx, cleared.Account()); err != nil {
		return resp, fmt.Errorf("failed to clear position state: %w", err)
	}

	logger.InfoContext(ctx, "realized results reset",
		"postings_deleted", resp.PostingsDeleted,
		"trades_merged", resp.TradesMerged,
		"trades_reset", resp.TradesReset,
	)

	resp.Calculation, err = uc.calculate.Execute(ctx, dto.CalculateRealizedResultsRequest{
		StockBookID: req.StockBookID,
		PositionID:  req.PositionID,
		AutoMtM:     req.AutoMtM,
		ToDate:      req.ToDate,
	})
	if err != nil {
		return resp, fmt.Errorf("failed to recalculate: %w", err)
	}
	return resp, nil
}

// plan returns nil when any record it would touch is locked.
func (uc *ResetRealizedResults) plan(ctx context.Context, stockBook model.Book, books service.Books, hasBooks bool, trades []*model.Trade) (*resetPlan, error) {
	plan := &resetPlan{merges: make(map[*model.Trade][]*model.Trade)}
	byID := make(map[string]*model.Trade, len(trades))
	for _, t := range trades {
		byID[t.ID] = t
	}
	locked := func(t *model.Trade) bool { return t.Locked || stockBook.IsLocked(t.Date) }

	prefixes := append(valueobject.GeneratedPrefixes(true), valueobject.PostingInterestMTM.Prefix(false))
	for _, t := range trades {
		if hasBooks {
			found, err := generatedPostings(ctx, uc.ledger, books, t.ID, prefixes)
			if err != nil {
				return nil, err
			}
			for _, p := range found {
				if p.Locked {
					return nil, nil
				}
			}
			plan.postings = append(plan.postings, found...)
		}

		if root := rootOf(t, byID); root != t {
			if locked(t) || locked(root) {
				return nil, nil
			}
			plan.merges[root] = append(plan.merges[root], t)
		}
	}

	for _, t := range trades {
		if rootOf(t, byID) != t {
			continue
		}
		if !computed(t) && len(plan.merges[t]) == 0 {
			continue
		}
		if locked(t) {
			return nil, nil
		}
		plan.resets = append(plan.resets, t)
	}
	return plan, nil
}

func computed(t *model.Trade) bool {
	return t.Checked || t.ShortSale || len(t.LiquidationLog) > 0 || len(t.PurchaseLog) > 0 ||
		t.GainAmount.Valid || t.GainAmountHist.Valid || t.PurchaseAmount.Valid || t.SaleAmount.Valid
}

// rootOf follows parent links to the first record of a split chain. A parent
// that is gone from the position ends the chain.
func rootOf(t *model.Trade, byID map[string]*model.Trade) *model.Trade {
	seen := map[string]bool{t.ID: true}
	for t.ParentID != "" {
		parent, ok := byID[t.ParentID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		t = parent
	}
	return t
}

// generatedPostings finds the postings generated for tradeID under prefixes.
// FX postings live on the base book, the rest on the financial book.
func generatedPostings(ctx context.Context, ledger port.LedgerClient, books service.Books, tradeID string, prefixes []string) ([]model.Transaction, error) {
	fx := map[string]bool{
		valueobject.PostingFX.Prefix(false): true,
		valueobject.PostingFX.Prefix(true):  true,
	}
	var out []model.Transaction
	for _, prefix := range prefixes {
		bookID := books.Financial.ID
		if fx[prefix] {
			bookID = books.Base.ID
		}
		txs, err := ledger.QueryTransactions(ctx, port.TransactionFilter{BookID: bookID, RemoteID: prefix + tradeID})
		if err != nil {
			return nil, fmt.Errorf("failed to query postings of trade %s: %w", tradeID, err)
		}
		out = append(out, txs...)
	}
	return out, nil
}
