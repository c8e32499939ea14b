package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/valueobject"
	"github.com/bibbank/realizer/pkg/money"
)

// RealizedResultPoster stages realized gain/loss postings on the financial book.
type RealizedResultPoster struct {
	accounts  *AccountResolver
	processor *BatchProcessor
	books     Books
	conv      valueobject.Conventions
	logger    *slog.Logger
}

// NewRealizedResultPoster creates a poster for one run.
func NewRealizedResultPoster(accounts *AccountResolver, processor *BatchProcessor, books Books, conv valueobject.Conventions, logger *slog.Logger) *RealizedResultPoster {
	return &RealizedResultPoster{accounts: accounts, processor: processor, books: books, conv: conv, logger: logger}
}

// Post stages the realized result of v for trade. A gain moves value from the
// realized account to unrealized and a loss the other way; a short-sale lot
// reverses both. A gain that rounds to zero posts nothing. It reports whether
// a posting was staged.
func (p *RealizedResultPoster) Post(ctx context.Context, trade *model.Trade, instrument string, v valueobject.Valuation, hist bool) (bool, error) {
	sign := money.SignAt(v.Gain, p.conv.MaxDecimalPlaces)
	if sign == 0 {
		return false, nil
	}
	gain := sign > 0

	unrealized, err := p.accounts.Unrealized(ctx, p.books.Financial, instrument, hist)
	if err != nil {
		return false, fmt.Errorf("failed to resolve unrealized account: %w", err)
	}
	realized, err := p.accounts.Realized(ctx, p.books.Financial, instrument, hist, gain)
	if err != nil {
		return false, fmt.Errorf("failed to resolve realized account: %w", err)
	}

	tx := model.Transaction{
		Date:        trade.EffectiveDate(),
		Amount:      v.Gain.Abs(),
		Description: valueobject.HistTag(valueobject.TagStockLoss, hist),
		Credit:      ref(unrealized),
		Debit:       ref(realized),
		Posted:      true,
		Checked:     true,
		Properties:  map[string]string{},
	}
	if gain {
		tx.Description = valueobject.HistTag(valueobject.TagStockGain, hist)
		tx.Credit, tx.Debit = ref(realized), ref(unrealized)
	}
	if trade.ShortSale {
		tx.Credit, tx.Debit = tx.Debit, tx.Credit
	}

	if p.books.HasSeparateBase() {
		if v.BaseNoFx.Valid {
			tx.Properties[valueobject.PropExcAmount] = v.BaseNoFx.Decimal.Abs().String()
		}
		tx.Properties[valueobject.PropExcCode] = p.books.Base.ExchangeCode()
	}

	p.processor.StageFinancialPosting(tx, p.processor.Origin(trade, valueobject.PostingRealized, hist))
	p.logger.DebugContext(ctx, "realized result staged",
		"transaction_id", trade.ID,
		"gain", v.Gain.String(),
		"hist", hist,
	)
	return true, nil
}

func ref(acc model.Account) model.AccountRef {
	return model.AccountRef{ID: acc.ID, Name: acc.Name, Type: acc.Type}
}

func signedOnly(d decimal.Decimal, places int32) (decimal.Decimal, bool) {
	if money.SignAt(d, places) == 0 {
		return decimal.Zero, false
	}
	return d, true
}
