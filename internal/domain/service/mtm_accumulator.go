package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port"
	"github.com/bibbank/realizer/internal/domain/valueobject"
)

// MTMAccumulator stages mark-to-market postings that bring the instrument's
// carrying value to open quantity x price. Amounts already staged for the same
// day are netted so several trades on one day post only the residual.
type MTMAccumulator struct {
	ledger    port.LedgerClient
	accounts  *AccountResolver
	processor *BatchProcessor
	books     Books
	conv      valueobject.Conventions
	logger    *slog.Logger
}

// NewMTMAccumulator creates an accumulator for one run.
func NewMTMAccumulator(ledger port.LedgerClient, accounts *AccountResolver, processor *BatchProcessor, books Books, conv valueobject.Conventions, logger *slog.Logger) *MTMAccumulator {
	return &MTMAccumulator{ledger: ledger, accounts: accounts, processor: processor, books: books, conv: conv, logger: logger}
}

// Post stages the MTM delta for trade's day at price. Historical MTM nets
// against the "<name> MTM" account, fair MTM against the instrument itself.
func (m *MTMAccumulator) Post(ctx context.Context, trade *model.Trade, instrument string, price decimal.Decimal, hist bool) (bool, error) {
	day := trade.EffectiveDate()

	instrumentAcc, ok, err := m.accounts.Find(ctx, m.books.Financial.ID, instrument)
	if err != nil {
		return false, err
	}
	if !ok {
		m.logger.WarnContext(ctx, "instrument account missing, skipping MTM", "instrument", instrument)
		return false, nil
	}
	contra := instrumentAcc
	if hist {
		if contra, err = m.accounts.Support(ctx, m.books.Financial.ID, instrument, m.conv.MTMSuffix, model.AccountLiability); err != nil {
			return false, fmt.Errorf("failed to resolve MTM account: %w", err)
		}
	}

	unrealized, err := m.accounts.Unrealized(ctx, m.books.Financial, instrument, hist)
	if err != nil {
		return false, fmt.Errorf("failed to resolve unrealized account: %w", err)
	}

	quantity, err := m.ledger.Balance(ctx, m.books.Stock.ID, instrument, day)
	if err != nil {
		return false, fmt.Errorf("failed to load open quantity: %w", err)
	}
	balance, err := m.ledger.Balance(ctx, m.books.Financial.ID, instrumentAcc.Name, day)
	if err != nil {
		return false, fmt.Errorf("failed to load instrument balance: %w", err)
	}

	carrying := balance.Add(m.processor.MtmBalance(day, hist))
	amount, ok := signedOnly(quantity.Mul(price).Sub(carrying), m.conv.MaxDecimalPlaces)
	if !ok {
		return false, nil
	}

	tx := model.Transaction{
		Date:        day,
		Amount:      amount.Abs(),
		Description: valueobject.TagMTM,
		Credit:      ref(contra),
		Debit:       ref(unrealized),
		Posted:      true,
		Checked:     true,
		Properties: map[string]string{
			valueobject.PropPrice:        price.StringFixed(m.books.Financial.FractionDigits),
			valueobject.PropOpenQuantity: quantity.StringFixed(m.books.Stock.FractionDigits),
		},
	}
	if amount.IsPositive() {
		tx.Credit, tx.Debit = ref(unrealized), ref(contra)
	}

	m.processor.AddMtmBalance(day, hist, amount)
	m.processor.StageFinancialPosting(tx, m.processor.Origin(trade, valueobject.PostingMTM, hist))
	return true, nil
}

// PostInterest stages the interest MTM that moves the balance of
// "<name> Interest" into "<name> Interest Unrealized" once the position is
// closed on day.
func (m *MTMAccumulator) PostInterest(ctx context.Context, instrument string, day time.Time, last *model.Trade) (bool, error) {
	interestName := m.conv.SupportName(instrument, m.conv.InterestSuffix)
	interest, ok, err := m.accounts.Find(ctx, m.books.Financial.ID, interestName)
	if err != nil || !ok || last == nil {
		return false, err
	}

	quantity, err := m.ledger.Balance(ctx, m.books.Stock.ID, instrument, day)
	if err != nil {
		return false, fmt.Errorf("failed to load open quantity: %w", err)
	}
	if !quantity.IsZero() {
		return false, nil
	}
	balance, err := m.ledger.Balance(ctx, m.books.Financial.ID, interest.Name, day)
	if err != nil {
		return false, fmt.Errorf("failed to load interest balance: %w", err)
	}
	if balance.IsZero() {
		return false, nil
	}

	unrealized, err := m.accounts.Unrealized(ctx, m.books.Financial, interestName, false)
	if err != nil {
		return false, err
	}

	tx := model.Transaction{
		Date:        day,
		Amount:      balance.Abs(),
		Description: valueobject.TagInterestMTM,
		Credit:      ref(unrealized),
		Debit:       ref(interest),
		Posted:      true,
		Checked:     true,
		Properties:  map[string]string{},
	}
	if balance.IsPositive() {
		tx.Credit, tx.Debit = ref(interest), ref(unrealized)
	}
	m.processor.StageFinancialPosting(tx, m.processor.Origin(last, valueobject.PostingInterestMTM, false))
	return true, nil
}
