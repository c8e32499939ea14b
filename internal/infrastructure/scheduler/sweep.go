package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bibbank/realizer/internal/application/dto"
)

// BookCalculator sweeps one stock book.
type BookCalculator interface {
	Execute(ctx context.Context, req dto.CalculateBookRequest) (dto.CalculateBookResponse, error)
}

// Sweep periodically calculates every open position of the configured stock
// books. Runs never overlap; a tick that fires while a sweep is still running
// is skipped.
type Sweep struct {
	cron       *cron.Cron
	calculate  BookCalculator
	stockBooks []string
	autoMtM    bool
	now        func() time.Time
	logger     *slog.Logger
	baseCtx    context.Context
}

// NewSweep creates a sweep. schedule is a standard five-field cron expression or a
// descriptor such as "@every 15m".
func NewSweep(ctx context.Context, schedule string, calculate BookCalculator, stockBooks []string, autoMtM bool, logger *slog.Logger) (*Sweep, error) {
	s := &Sweep{
		calculate:  calculate,
		stockBooks: stockBooks,
		autoMtM:    autoMtM,
		now:        time.Now,
		logger:     logger,
		baseCtx:    ctx,
	}
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(schedule, func() { s.Run(s.baseCtx) }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Run sweeps every stock book once. Failures are logged per book.
func (s *Sweep) Run(ctx context.Context) {
	toDate := s.now().UTC().Truncate(24 * time.Hour)
	for _, bookID := range s.stockBooks {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		resp, err := s.calculate.Execute(ctx, dto.CalculateBookRequest{
			StockBookID: bookID,
			AutoMtM:     s.autoMtM,
			ToDate:      toDate,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "sweep failed", "stock_book_id", bookID, "error", err)
			continue
		}
		s.logger.InfoContext(ctx, "sweep finished",
			"stock_book_id", bookID,
			"positions", len(resp.Results),
			"busy", len(resp.Busy),
			"duration", time.Since(start),
		)
	}
}

func (s *Sweep) Start() {
	s.logger.Info("sweep scheduler started", "stock_books", len(s.stockBooks))
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweep) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("sweep scheduler stopped")
}
