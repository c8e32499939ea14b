package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bibbank/realizer/internal/application/dto"
	"github.com/bibbank/realizer/internal/application/usecase"
	"github.com/bibbank/realizer/internal/domain/event"
	"github.com/bibbank/realizer/internal/domain/port"
	pkgkafka "github.com/bibbank/realizer/pkg/kafka"
)

// Resetter rebuilds one position.
type Resetter interface {
	Execute(ctx context.Context, req dto.ResetRealizedResultsRequest) (dto.ResetRealizedResultsResponse, error)
}

// RebuildHandler consumes RebuildRequested commands and resets the position
// under its lock. A command for a busy position is published again so the
// rebuild is not lost when the offset is committed.
type RebuildHandler struct {
	reset     Resetter
	locker    port.PositionLocker
	publisher port.EventPublisher
	lockTTL   time.Duration
	logger    *slog.Logger
}

func NewRebuildHandler(reset Resetter, locker port.PositionLocker, publisher port.EventPublisher, logger *slog.Logger) *RebuildHandler {
	return &RebuildHandler{
		reset:     reset,
		locker:    locker,
		publisher: publisher,
		lockTTL:   usecase.DefaultLockTTL,
		logger:    logger,
	}
}

// Handle is a pkg/kafka.Handler. Malformed commands are logged and dropped.
func (h *RebuildHandler) Handle(ctx context.Context, msg pkgkafka.Message) error {
	if t := msg.Headers[HeaderEventType]; t != "" && t != event.TypeRebuildRequested {
		h.logger.DebugContext(ctx, "ignoring event", "event_type", t)
		return nil
	}

	var cmd event.RebuildRequested
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		h.logger.ErrorContext(ctx, "dropping malformed rebuild command", "error", err)
		return nil
	}
	if cmd.StockBookID == "" || cmd.PositionID == "" {
		h.logger.ErrorContext(ctx, "dropping rebuild command without position", "event_id", cmd.EventID())
		return nil
	}

	req := dto.ResetRealizedResultsRequest{
		StockBookID: cmd.StockBookID,
		PositionID:  cmd.PositionID,
		AutoMtM:     cmd.AutoMtM,
	}
	if cmd.ToDate != "" {
		toDate, err := time.Parse(time.DateOnly, cmd.ToDate)
		if err != nil {
			h.logger.ErrorContext(ctx, "dropping rebuild command with bad date", "to_date", cmd.ToDate, "error", err)
			return nil
		}
		req.ToDate = toDate
	}

	logger := h.logger.With("stock_book_id", cmd.StockBookID, "position_id", cmd.PositionID, "event_id", cmd.EventID())
	err := usecase.RunLocked(ctx, h.locker, h.lockTTL, cmd.StockBookID, cmd.PositionID, func(ctx context.Context) error {
		resp, err := h.reset.Execute(ctx, req)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "position rebuilt",
			"postings_deleted", resp.PostingsDeleted,
			"trades_merged", resp.TradesMerged,
			"trades_reset", resp.TradesReset,
			"result", resp.Calculation.Result,
		)
		return nil
	})
	if errors.Is(err, port.ErrPositionBusy) {
		logger.InfoContext(ctx, "position busy, requeueing rebuild")
		requeued := event.NewRebuildRequested(cmd.StockBookID, cmd.PositionID, cmd.AutoMtM, req.ToDate, cmd.Reason)
		if err := h.publisher.Publish(ctx, usecase.TopicRebuildRequested, requeued); err != nil {
			return fmt.Errorf("failed to requeue rebuild: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to rebuild position: %w", err)
	}
	return nil
}
