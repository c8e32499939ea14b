package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bibbank/realizer/internal/application/dto"
	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port"
)

// CalculateBook runs the calculation for every position of a stock book that
// has open trades. Positions held by another run are reported as busy.
type CalculateBook struct {
	ledger    port.LedgerClient
	locker    port.PositionLocker
	calculate *CalculateRealizedResults
	lockTTL   time.Duration
	logger    *slog.Logger
}

func NewCalculateBook(ledger port.LedgerClient, locker port.PositionLocker, calculate *CalculateRealizedResults, logger *slog.Logger) *CalculateBook {
	return &CalculateBook{
		ledger:    ledger,
		locker:    locker,
		calculate: calculate,
		lockTTL:   DefaultLockTTL,
		logger:    logger,
	}
}

func (uc *CalculateBook) Execute(ctx context.Context, req dto.CalculateBookRequest) (dto.CalculateBookResponse, error) {
	accounts, err := uc.ledger.ListAccounts(ctx, req.StockBookID)
	if err != nil {
		return dto.CalculateBookResponse{}, fmt.Errorf("failed to list positions: %w", err)
	}

	var resp dto.CalculateBookResponse
	for _, acc := range accounts {
		if acc.Archived || acc.Type != model.AccountAsset {
			continue
		}
		if err := ctx.Err(); err != nil {
			return resp, err
		}

		open, err := uc.hasOpenTrades(ctx, req.StockBookID, acc.ID)
		if err != nil {
			return resp, err
		}
		if !open {
			continue
		}

		err = RunLocked(ctx, uc.locker, uc.lockTTL, req.StockBookID, acc.ID, func(ctx context.Context) error {
			result, err := uc.calculate.Execute(ctx, dto.CalculateRealizedResultsRequest{
				StockBookID: req.StockBookID,
				PositionID:  acc.ID,
				AutoMtM:     req.AutoMtM,
				ToDate:      req.ToDate,
			})
			if err != nil {
				return err
			}
			resp.Results = append(resp.Results, result)
			return nil
		})
		if errors.Is(err, port.ErrPositionBusy) {
			uc.logger.InfoContext(ctx, "position busy, skipped", "stock_book_id", req.StockBookID, "position_id", acc.ID)
			resp.Busy = append(resp.Busy, acc.ID)
			continue
		}
		if err != nil {
			return resp, err
		}
	}

	uc.logger.InfoContext(ctx, "book calculated",
		"stock_book_id", req.StockBookID,
		"positions", len(resp.Results),
		"busy", len(resp.Busy),
	)
	return resp, nil
}

func (uc *CalculateBook) hasOpenTrades(ctx context.Context, stockBookID, positionID string) (bool, error) {
	unchecked := false
	txs, err := uc.ledger.QueryTransactions(ctx, port.TransactionFilter{
		BookID:    stockBookID,
		AccountID: positionID,
		Checked:   &unchecked,
	})
	if err != nil {
		return false, fmt.Errorf("failed to query open trades of %s: %w", positionID, err)
	}
	return len(txs) > 0, nil
}
