package dto

import "time"

// --- Calculation DTOs ---

// CalculateRealizedResultsRequest is the input DTO for one position run.
type CalculateRealizedResultsRequest struct {
	StockBookID string
	PositionID  string
	AutoMtM     bool
	// ToDate bounds the trades considered; zero means today.
	ToDate      time.Time
}

// CalculateRealizedResultsResponse is the output DTO of one position run.
type CalculateRealizedResultsResponse struct {
	PositionID       string
	Result           string
	CreatedAccounts  map[string][]string
	PostingsCreated  int
	PostingsExisting int
	TradesCreated    int
	TradesUpdated    int
	// RealizedTotals maps currency codes to the net realized gain posted.
	RealizedTotals   map[string]string
}

// CalculateBookRequest is the input DTO for a sweep over a stock book.
type CalculateBookRequest struct {
	StockBookID string
	AutoMtM     bool
	ToDate      time.Time
}

// CalculateBookResponse is the output DTO for a sweep over a stock book.
type CalculateBookResponse struct {
	Results []CalculateRealizedResultsResponse
	// Busy lists positions skipped because another run held them.
	Busy    []string
}

// --- Rebuild DTOs ---

// ResetRealizedResultsRequest is the input DTO for a full position rebuild.
type ResetRealizedResultsRequest struct {
	StockBookID string
	PositionID  string
	AutoMtM     bool
	ToDate      time.Time
}

// ResetRealizedResultsResponse is the output DTO for a full position rebuild.
type ResetRealizedResultsResponse struct {
	PostingsDeleted int
	TradesMerged    int
	TradesReset     int
	Calculation     CalculateRealizedResultsResponse
}

// DeleteTradeResultsRequest is the input DTO for removing the postings
// generated from a deleted stock trade.
type DeleteTradeResultsRequest struct {
	StockBookID string
	PositionID  string
	TradeID     string
}

// DeleteTradeResultsResponse is the output DTO for DeleteTradeResults.
type DeleteTradeResultsResponse struct {
	PostingsDeleted int
}

// FlagRebuildRequest is the input DTO for flagging a position after a
// backdated trade.
type FlagRebuildRequest struct {
	StockBookID string
	TradeID     string
}

// FlagRebuildResponse is the output DTO for FlagRebuild.
type FlagRebuildResponse struct {
	PositionID string
	Flagged    bool
}
