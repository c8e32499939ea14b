package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bibbank/realizer/internal/application/dto"
	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port"
)

// FlagRebuild marks a position for rebuild when a trade lands on or before the
// date its results were realized through.
type FlagRebuild struct {
	ledger port.LedgerClient
	logger *slog.Logger
}

func NewFlagRebuild(ledger port.LedgerClient, logger *slog.Logger) *FlagRebuild {
	return &FlagRebuild{ledger: ledger, logger: logger}
}

func (uc *FlagRebuild) Execute(ctx context.Context, req dto.FlagRebuildRequest) (dto.FlagRebuildResponse, error) {
	txs, err := uc.ledger.QueryTransactions(ctx, port.TransactionFilter{BookID: req.StockBookID, ID: req.TradeID})
	if err != nil {
		return dto.FlagRebuildResponse{}, fmt.Errorf("failed to load trade: %w", err)
	}
	if len(txs) == 0 {
		return dto.FlagRebuildResponse{}, fmt.Errorf("trade %s: %w", req.TradeID, port.ErrNotFound)
	}
	trade, err := model.TradeFromTransaction(txs[0])
	if err != nil {
		return dto.FlagRebuildResponse{}, fmt.Errorf("failed to decode trade: %w", err)
	}
	if !trade.IsSale() && !trade.IsPurchase() {
		return dto.FlagRebuildResponse{}, nil
	}

	position, err := loadPosition(ctx, uc.ledger, req.StockBookID, trade.PositionAccountID())
	if err != nil {
		return dto.FlagRebuildResponse{}, err
	}
	resp := dto.FlagRebuildResponse{PositionID: position.ID()}

	realized := position.RealizedDate()
	if realized == nil || trade.Date.After(*realized) {
		return resp, nil
	}
	resp.Flagged = true
	if position.NeedsRebuild() {
		return resp, nil
	}
	if _, err := uc.ledger.UpdateAccount(ctx, position.WithNeedsRebuild(true).Account()); err != nil {
		return resp, fmt.Errorf("failed to flag position: %w", err)
	}

	uc.logger.InfoContext(ctx, "position flagged for rebuild",
		"stock_book_id", req.StockBookID,
		"position_id", position.ID(),
		"trade_id", trade.ID,
	)
	return resp, nil
}
