package model

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/bibbank/realizer/pkg/money"
)

// RunResult is the terminal state of a realized-results run.
type RunResult string

const (
	ResultOK               RunResult = "ok"
	ResultRebuild          RunResult = "rebuild"
	ResultLockError        RunResult = "lockError"
	ResultSkipped          RunResult = "skipped"
	ResultCalculatingAsync RunResult = "calculatingAsync"
)

// Summary is the externally visible outcome of one run.
type Summary struct {
	PositionID string
	Result     RunResult
	// CreatedAccounts lists support accounts created during the run, keyed by
	// the position's exchange code.
	CreatedAccounts  map[string][]string
	PostingsCreated  int
	PostingsExisting int
	TradesUpdated    int
	TradesCreated    int
	realized         *money.Totals
}

// NewSummary starts an ok summary for a position.
func NewSummary(positionID string) *Summary {
	return &Summary{
		PositionID:      positionID,
		Result:          ResultOK,
		CreatedAccounts: map[string][]string{},
		realized:        money.NewTotals(),
	}
}

// AddCreatedAccount records a support account created for excCode.
func (s *Summary) AddCreatedAccount(excCode, name string) {
	if slices.Contains(s.CreatedAccounts[excCode], name) {
		return
	}
	s.CreatedAccounts[excCode] = append(s.CreatedAccounts[excCode], name)
}

// AddRealized accumulates a signed realized gain. Amounts in codes that are
// not ISO-like currencies are not totalled.
func (s *Summary) AddRealized(excCode string, amount decimal.Decimal) {
	cur, err := money.NewCurrency(excCode)
	if err != nil {
		return
	}
	if s.realized == nil {
		s.realized = money.NewTotals()
	}
	s.realized.Add(money.New(amount, cur))
}

// RealizedTotals lists net realized gains per currency.
func (s *Summary) RealizedTotals() []money.Money {
	if s.realized == nil {
		return nil
	}
	return s.realized.List()
}

func (s *Summary) finish(r RunResult) *Summary {
	s.Result = r
	return s
}

// Rebuild marks the run as deferred to a full rebuild.
func (s *Summary) Rebuild() *Summary { return s.finish(ResultRebuild) }

// LockError marks the run as aborted on a locked record.
func (s *Summary) LockError() *Summary { return s.finish(ResultLockError) }

// Skipped marks the run as having no financial book.
func (s *Summary) Skipped() *Summary { return s.finish(ResultSkipped) }

// CalculatingAsync marks a flushed run.
func (s *Summary) CalculatingAsync() *Summary { return s.finish(ResultCalculatingAsync) }
