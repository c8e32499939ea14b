package event

import (
	"time"

	"github.com/bibbank/realizer/pkg/events"
)

const (
	AggregateTypePosition = "Position"

	TypeRebuildRequested          = "realizer.rebuild.requested"
	TypeRealizedResultsCalculated = "realizer.results.calculated"
)

// RebuildRequested asks for a full reset and recalculation of a position.
type RebuildRequested struct {
	events.BaseEvent
	StockBookID string `json:"stock_book_id"`
	PositionID  string `json:"position_id"`
	AutoMtM     bool   `json:"auto_mtm"`
	ToDate      string `json:"to_date,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func NewRebuildRequested(stockBookID, positionID string, autoMtM bool, toDate time.Time, reason string) RebuildRequested {
	e := RebuildRequested{
		BaseEvent:   events.NewBaseEvent(TypeRebuildRequested, positionID, AggregateTypePosition, stockBookID),
		StockBookID: stockBookID,
		PositionID:  positionID,
		AutoMtM:     autoMtM,
		Reason:      reason,
	}
	if !toDate.IsZero() {
		e.ToDate = toDate.Format(time.DateOnly)
	}
	return e
}

// RealizedResultsCalculated reports a finished run.
type RealizedResultsCalculated struct {
	events.BaseEvent
	StockBookID     string              `json:"stock_book_id"`
	PositionID      string              `json:"position_id"`
	Result          string              `json:"result"`
	ToDate          string              `json:"to_date"`
	PostingsCreated int                 `json:"postings_created"`
	CreatedAccounts map[string][]string `json:"created_accounts,omitempty"`
	RealizedTotals  map[string]string   `json:"realized_totals,omitempty"`
}

func NewRealizedResultsCalculated(stockBookID, positionID, result string, toDate time.Time, postings int, created map[string][]string, totals map[string]string) RealizedResultsCalculated {
	return RealizedResultsCalculated{
		BaseEvent:       events.NewBaseEvent(TypeRealizedResultsCalculated, positionID, AggregateTypePosition, stockBookID),
		StockBookID:     stockBookID,
		PositionID:      positionID,
		Result:          result,
		ToDate:          toDate.Format(time.DateOnly),
		PostingsCreated: postings,
		CreatedAccounts: created,
		RealizedTotals:  totals,
	}
}
