package grpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bibbank/realizer/internal/application/dto"
	"github.com/bibbank/realizer/internal/application/usecase"
	"github.com/bibbank/realizer/internal/domain/port"
	"github.com/bibbank/realizer/pkg/auth"
)

// RealizerHandler implements the gRPC RealizerService server.
type RealizerHandler struct {
	UnimplementedRealizerServiceServer

	calculate     *usecase.CalculateRealizedResults
	calculateBook *usecase.CalculateBook
	reset         *usecase.ResetRealizedResults
	deleteResults *usecase.DeleteTradeResults
	flagRebuild   *usecase.FlagRebuild
	locker        port.PositionLocker
	lockTTL       time.Duration
	logger        *slog.Logger
}

func NewRealizerHandler(
	calculate *usecase.CalculateRealizedResults,
	calculateBook *usecase.CalculateBook,
	reset *usecase.ResetRealizedResults,
	deleteResults *usecase.DeleteTradeResults,
	flagRebuild *usecase.FlagRebuild,
	locker port.PositionLocker,
	logger *slog.Logger,
) *RealizerHandler {
	return &RealizerHandler{
		calculate:     calculate,
		calculateBook: calculateBook,
		reset:         reset,
		deleteResults: deleteResults,
		flagRebuild:   flagRebuild,
		locker:        locker,
		lockTTL:       usecase.DefaultLockTTL,
		logger:        logger,
	}
}

// --- Messages ---

// CalculateRealizedResultsRequest selects one position. ToDate is YYYY-MM-DD
// and defaults to today.
type CalculateRealizedResultsRequest struct {
	StockBookID string `json:"stock_book_id"`
	PositionID  string `json:"position_id"`
	AutoMtM     bool   `json:"auto_mtm"`
	ToDate      string `json:"to_date,omitempty"`
}

type CalculationMsg struct {
	PositionID       string              `json:"position_id"`
	Result           string              `json:"result"`
	CreatedAccounts  map[string][]string `json:"created_accounts,omitempty"`
	PostingsCreated  int32               `json:"postings_created"`
	PostingsExisting int32               `json:"postings_existing"`
	TradesCreated    int32               `json:"trades_created"`
	TradesUpdated    int32               `json:"trades_updated"`
	RealizedTotals   map[string]string   `json:"realized_totals,omitempty"`
}

type CalculateRealizedResultsResponse struct {
	Calculation *CalculationMsg `json:"calculation"`
}

type CalculateBookRequest struct {
	StockBookID string `json:"stock_book_id"`
	AutoMtM     bool   `json:"auto_mtm"`
	ToDate      string `json:"to_date,omitempty"`
}

type CalculateBookResponse struct {
	Results []*CalculationMsg `json:"results"`
	Busy    []string          `json:"busy,omitempty"`
}

type ResetRealizedResultsRequest struct {
	StockBookID string `json:"stock_book_id"`
	PositionID  string `json:"position_id"`
	AutoMtM     bool   `json:"auto_mtm"`
	ToDate      string `json:"to_date,omitempty"`
}

type ResetRealizedResultsResponse struct {
	PostingsDeleted int32           `json:"postings_deleted"`
	TradesMerged    int32           `json:"trades_merged"`
	TradesReset     int32           `json:"trades_reset"`
	Calculation     *CalculationMsg `json:"calculation"`
}

type DeleteTradeResultsRequest struct {
	StockBookID string `json:"stock_book_id"`
	PositionID  string `json:"position_id"`
	TradeID     string `json:"trade_id"`
}

type DeleteTradeResultsResponse struct {
	PostingsDeleted int32 `json:"postings_deleted"`
}

type FlagRebuildRequest struct {
	StockBookID string `json:"stock_book_id"`
	TradeID     string `json:"trade_id"`
}

type FlagRebuildResponse struct {
	PositionID string `json:"position_id"`
	Flagged    bool   `json:"flagged"`
}

// --- Handlers ---

func (h *RealizerHandler) CalculateRealizedResults(ctx context.Context, req *CalculateRealizedResultsRequest) (*CalculateRealizedResultsResponse, error) {
	if err := requirePosition(ctx, req.StockBookID, req.PositionID); err != nil {
		return nil, err
	}
	toDate, err := parseDate(req.ToDate)
	if err != nil {
		return nil, err
	}

	var result dto.CalculateRealizedResultsResponse
	err = usecase.RunLocked(ctx, h.locker, h.lockTTL, req.StockBookID, req.PositionID, func(ctx context.Context) error {
		var err error
		result, err = h.calculate.Execute(ctx, dto.CalculateRealizedResultsRequest{
			StockBookID: req.StockBookID,
			PositionID:  req.PositionID,
			AutoMtM:     req.AutoMtM,
			ToDate:      toDate,
		})
		return err
	})
	if err != nil {
		return nil, h.toStatus(ctx, err, "failed to calculate realized results")
	}

	return &CalculateRealizedResultsResponse{Calculation: toCalculationMsg(result)}, nil
}

func (h *RealizerHandler) CalculateBook(ctx context.Context, req *CalculateBookRequest) (*CalculateBookResponse, error) {
	if req.StockBookID == "" {
		return nil, status.Error(codes.InvalidArgument, "stock_book_id is required")
	}
	if err := checkBookAccess(ctx, req.StockBookID); err != nil {
		return nil, err
	}
	toDate, err := parseDate(req.ToDate)
	if err != nil {
		return nil, err
	}

	result, err := h.calculateBook.Execute(ctx, dto.CalculateBookRequest{
		StockBookID: req.StockBookID,
		AutoMtM:     req.AutoMtM,
		ToDate:      toDate,
	})
	if err != nil {
		return nil, h.toStatus(ctx, err, "failed to calculate book")
	}

	resp := &CalculateBookResponse{
		Results: make([]*CalculationMsg, 0, len(result.Results)),
		Busy:    result.Busy,
	}
	for _, r := range result.Results {
		resp.Results = append(resp.Results, toCalculationMsg(r))
	}
	return resp, nil
}

func (h *RealizerHandler) ResetRealizedResults(ctx context.Context, req *ResetRealizedResultsRequest) (*ResetRealizedResultsResponse, error) {
	if err := requirePosition(ctx, req.StockBookID, req.PositionID); err != nil {
		return nil, err
	}
	toDate, err := parseDate(req.ToDate)
	if err != nil {
		return nil, err
	}

	var result dto.ResetRealizedResultsResponse
	err = usecase.RunLocked(ctx, h.locker, h.lockTTL, req.StockBookID, req.PositionID, func(ctx context.Context) error {
		var err error
		result, err = h.reset.Execute(ctx, dto.ResetRealizedResultsRequest{
			StockBookID: req.StockBookID,
			PositionID:  req.PositionID,
			AutoMtM:     req.AutoMtM,
			ToDate:      toDate,
		})
		return err
	})
	if err != nil {
		return nil, h.toStatus(ctx, err, "failed to reset realized results")
	}

	return &ResetRealizedResultsResponse{
		PostingsDeleted: int32(result.PostingsDeleted), //nolint:gosec // bounded by one position
		TradesMerged:    int32(result.TradesMerged),    //nolint:gosec // bounded by one position
		TradesReset:     int32(result.TradesReset),     //nolint:gosec // bounded by one position
		Calculation:     toCalculationMsg(result.Calculation),
	}, nil
}

func (h *RealizerHandler) DeleteTradeResults(ctx context.Context, req *DeleteTradeResultsRequest) (*DeleteTradeResultsResponse, error) {
	if err := requirePosition(ctx, req.StockBookID, req.PositionID); err != nil {
		return nil, err
	}
	if req.TradeID == "" {
		return nil, status.Error(codes.InvalidArgument, "trade_id is required")
	}

	var result dto.DeleteTradeResultsResponse
	err := usecase.RunLocked(ctx, h.locker, h.lockTTL, req.StockBookID, req.PositionID, func(ctx context.Context) error {
		var err error
		result, err = h.deleteResults.Execute(ctx, dto.DeleteTradeResultsRequest{
			StockBookID: req.StockBookID,
			PositionID:  req.PositionID,
			TradeID:     req.TradeID,
		})
		return err
	})
	if err != nil {
		return nil, h.toStatus(ctx, err, "failed to delete trade results")
	}

	return &DeleteTradeResultsResponse{PostingsDeleted: int32(result.PostingsDeleted)}, nil //nolint:gosec // bounded by one trade
}

func (h *RealizerHandler) FlagRebuild(ctx context.Context, req *FlagRebuildRequest) (*FlagRebuildResponse, error) {
	if req.StockBookID == "" || req.TradeID == "" {
		return nil, status.Error(codes.InvalidArgument, "stock_book_id and trade_id are required")
	}
	if err := checkBookAccess(ctx, req.StockBookID); err != nil {
		return nil, err
	}

	result, err := h.flagRebuild.Execute(ctx, dto.FlagRebuildRequest{
		StockBookID: req.StockBookID,
		TradeID:     req.TradeID,
	})
	if err != nil {
		return nil, h.toStatus(ctx, err, "failed to flag rebuild")
	}

	return &FlagRebuildResponse{PositionID: result.PositionID, Flagged: result.Flagged}, nil
}

// --- Helpers ---

func requirePosition(ctx context.Context, stockBookID, positionID string) error {
	if stockBookID == "" {
		return status.Error(codes.InvalidArgument, "stock_book_id is required")
	}
	if positionID == "" {
		return status.Error(codes.InvalidArgument, "position_id is required")
	}
	return checkBookAccess(ctx, stockBookID)
}

// checkBookAccess enforces the books claim. Calls that reach the handler
// without claims were let through by the server configuration.
func checkBookAccess(ctx context.Context, stockBookID string) error {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok || claims.CanAccessBook(stockBookID) {
		return nil
	}
	return status.Errorf(codes.PermissionDenied, "no access to book %s", stockBookID)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "invalid to_date: %v", err)
	}
	return d, nil
}

// toStatus maps use-case errors onto gRPC codes.
func (h *RealizerHandler) toStatus(ctx context.Context, err error, msg string) error {
	var code codes.Code
	switch {
	case errors.Is(err, port.ErrPositionBusy):
		code = codes.Aborted
	case errors.Is(err, port.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, port.ErrLocked):
		code = codes.FailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
		h.logger.ErrorContext(ctx, msg, "error", err)
	}
	return status.Errorf(code, "%s: %v", msg, err)
}

func toCalculationMsg(r dto.CalculateRealizedResultsResponse) *CalculationMsg {
	return &CalculationMsg{
		PositionID:       r.PositionID,
		Result:           r.Result,
		CreatedAccounts:  r.CreatedAccounts,
		PostingsCreated:  int32(r.PostingsCreated),  //nolint:gosec // bounded by one position
		PostingsExisting: int32(r.PostingsExisting), //nolint:gosec // bounded by one position
		TradesCreated:    int32(r.TradesCreated),    //nolint:gosec // bounded by one position
		TradesUpdated:    int32(r.TradesUpdated),    //nolint:gosec // bounded by one position
		RealizedTotals:   r.RealizedTotals,
	}
}
