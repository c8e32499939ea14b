package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bibbank/realizer/internal/application/dto"
	"github.com/bibbank/realizer/internal/domain/port"
	"github.com/bibbank/realizer/internal/domain/service"
	"github.com/bibbank/realizer/internal/domain/valueobject"
)

// DeleteTradeResults removes the postings generated from a stock trade that
// has been deleted.
type DeleteTradeResults struct {
	ledger port.LedgerClient
	conv   valueobject.Conventions
	logger *slog.Logger
}

func NewDeleteTradeResults(ledger port.LedgerClient, conv valueobject.Conventions, logger *slog.Logger) *DeleteTradeResults {
	return &DeleteTradeResults{ledger: ledger, conv: conv, logger: logger}
}

func (uc *DeleteTradeResults) Execute(ctx context.Context, req dto.DeleteTradeResultsRequest) (dto.DeleteTradeResultsResponse, error) {
	if req.TradeID == "" {
		return dto.DeleteTradeResultsResponse{}, errors.New("trade ID is required")
	}
	stockBook, err := uc.ledger.GetBook(ctx, req.StockBookID)
	if err != nil {
		return dto.DeleteTradeResultsResponse{}, fmt.Errorf("failed to load stock book: %w", err)
	}
	position, err := loadPosition(ctx, uc.ledger, req.StockBookID, req.PositionID)
	if err != nil {
		return dto.DeleteTradeResultsResponse{}, err
	}
	collection, err := uc.ledger.ListCollectionBooks(ctx, stockBook.CollectionID)
	if err != nil {
		return dto.DeleteTradeResultsResponse{}, fmt.Errorf("failed to load collection books: %w", err)
	}
	books, ok := service.ResolveBooks(stockBook, collection, position.ExchangeCode(), uc.conv.BaseCurrency)
	if !ok {
		return dto.DeleteTradeResultsResponse{}, nil
	}

	prefixes := valueobject.GeneratedPrefixes(stockBook.CalculationModel().SplitsKeys())
	postings, err := generatedPostings(ctx, uc.ledger, books, req.TradeID, prefixes)
	if err != nil {
		return dto.DeleteTradeResultsResponse{}, err
	}
	for _, p := range postings {
		if p.Locked {
			return dto.DeleteTradeResultsResponse{}, fmt.Errorf("posting %s of trade %s: %w", p.ID, req.TradeID, port.ErrLocked)
		}
	}

	var resp dto.DeleteTradeResultsResponse
	for _, p := range postings {
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

	uc.logger.InfoContext(ctx, "trade results deleted",
		"stock_book_id", stockBook.ID,
		"position_id", position.ID(),
		"trade_id", req.TradeID,
		"postings_deleted", resp.PostingsDeleted,
	)
	return resp, nil
}
