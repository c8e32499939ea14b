package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/valueobject"
)

// FXSeparator stages the FX part of a realized result on the base book.
type FXSeparator struct {
	accounts  *AccountResolver
	processor *BatchProcessor
	books     Books
	conv      valueobject.Conventions
	logger    *slog.Logger
}

// NewFXSeparator creates a separator for one run.
func NewFXSeparator(accounts *AccountResolver, processor *BatchProcessor, books Books, conv valueobject.Conventions, logger *slog.Logger) *FXSeparator {
	return &FXSeparator{accounts: accounts, processor: processor, books: books, conv: conv, logger: logger}
}

// Post stages withFx - noFx between the position's realized and unrealized FX
// accounts on the base book, with roles reversed for a short-sale lot. Missing
// base figures skip the posting.
func (s *FXSeparator) Post(ctx context.Context, trade *model.Trade, instrument, excCode string, v valueobject.Valuation, hist bool) (bool, error) {
	if !v.BaseWithFx.Valid {
		s.logger.WarnContext(ctx, "missing gain with FX", "transaction_id", trade.ID, "hist", hist)
		return false, nil
	}
	if !v.BaseNoFx.Valid {
		s.logger.WarnContext(ctx, "missing gain no FX", "transaction_id", trade.ID, "hist", hist)
		return false, nil
	}

	fxGain, ok := signedOnly(v.FXGain().Decimal, s.conv.MaxDecimalPlaces)
	if !ok {
		return false, nil
	}

	unrealizedFX, err := s.accounts.UnrealizedFX(ctx, s.books.Base, instrument, hist)
	if err != nil {
		return false, fmt.Errorf("failed to resolve unrealized FX account: %w", err)
	}
	realizedFX, err := s.accounts.RealizedFX(ctx, s.books.Base, unrealizedFX, excCode, hist)
	if err != nil {
		return false, fmt.Errorf("failed to resolve realized FX account: %w", err)
	}

	tx := model.Transaction{
		Date:        trade.EffectiveDate(),
		Amount:      fxGain.Abs(),
		Description: valueobject.HistTag(valueobject.TagExchangeLoss, hist),
		Credit:      ref(unrealizedFX),
		Debit:       ref(realizedFX),
		Posted:      true,
		Checked:     true,
		Properties:  map[string]string{valueobject.PropExcAmount: "0"},
	}
	if fxGain.IsPositive() {
		tx.Description = valueobject.HistTag(valueobject.TagExchangeGain, hist)
		tx.Credit, tx.Debit = ref(realizedFX), ref(unrealizedFX)
	}
	if trade.ShortSale {
		tx.Credit, tx.Debit = tx.Debit, tx.Credit
	}

	s.processor.StageBasePosting(tx, s.processor.Origin(trade, valueobject.PostingFX, hist))
	return true, nil
}
