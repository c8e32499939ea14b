package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bibbank/realizer/internal/application/dto"
	"github.com/bibbank/realizer/internal/domain/event"
	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port"
	"github.com/bibbank/realizer/internal/domain/service"
	"github.com/bibbank/realizer/internal/domain/valueobject"
)

const (
	TopicRebuildRequested = "realizer.rebuild.requested"
	TopicResults          = "realizer.results"
)

const instrumentationName = "github.com/bibbank/realizer/internal/application/usecase"

// CalculateRealizedResults runs FIFO matching for one position and flushes
// the resulting postings in a single batch.
type CalculateRealizedResults struct {
	ledger    port.LedgerClient
	publisher port.EventPublisher
	conv      valueobject.Conventions
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *runMetrics
	now       func() time.Time
}

func NewCalculateRealizedResults(
	ledger port.LedgerClient,
	publisher port.EventPublisher,
	conv valueobject.Conventions,
	logger *slog.Logger,
) *CalculateRealizedResults {
	return &CalculateRealizedResults{
		ledger:    ledger,
		publisher: publisher,
		conv:      conv,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		metrics:   newRunMetrics(logger),
		now:       time.Now,
	}
}

func (uc *CalculateRealizedResults) Execute(ctx context.Context, req dto.CalculateRealizedResultsRequest) (dto.CalculateRealizedResultsResponse, error) {
	ctx, span := uc.tracer.Start(ctx, "CalculateRealizedResults", trace.WithAttributes(
		attribute.String("stock_book_id", req.StockBookID),
		attribute.String("position_id", req.PositionID),
		attribute.Bool("auto_mtm", req.AutoMtM),
	))
	defer span.End()

	summary, err := uc.execute(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		uc.metrics.recordFailure(ctx)
		return dto.CalculateRealizedResultsResponse{}, err
	}

	span.SetAttributes(attribute.String("result", string(summary.Result)))
	uc.metrics.record(ctx, summary)
	return toCalculateResponse(summary), nil
}

func (uc *CalculateRealizedResults) execute(ctx context.Context, req dto.CalculateRealizedResultsRequest) (*model.Summary, error) {
	toDate := req.ToDate
	if toDate.IsZero() {
		toDate = uc.now().UTC().Truncate(24 * time.Hour)
	}

	stockBook, err := uc.ledger.GetBook(ctx, req.StockBookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock book: %w", err)
	}
	position, err := loadPosition(ctx, uc.ledger, req.StockBookID, req.PositionID)
	if err != nil {
		return nil, err
	}

	summary := model.NewSummary(position.ID())
	logger := uc.logger.With("stock_book_id", stockBook.ID, "position_id", position.ID())

	if position.NeedsRebuild() {
		evt := event.NewRebuildRequested(stockBook.ID, position.ID(), req.AutoMtM, req.ToDate, "needs_rebuild")
		if err := uc.publisher.Publish(ctx, TopicRebuildRequested, evt); err != nil {
			return nil, fmt.Errorf("failed to request rebuild: %w", err)
		}
		logger.InfoContext(ctx, "position needs rebuild, rebuild requested")
		return summary.Rebuild(), nil
	}

	collection, err := uc.ledger.ListCollectionBooks(ctx, stockBook.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection books: %w", err)
	}
	books, ok := service.ResolveBooks(stockBook, collection, position.ExchangeCode(), uc.conv.BaseCurrency)
	if !ok {
		logger.InfoContext(ctx, "no financial book for position, skipping", "exchange_code", position.ExchangeCode())
		return summary.Skipped(), nil
	}

	trades, err := loadOpenTrades(ctx, uc.ledger, stockBook.ID, position.ID(), toDate)
	if err != nil {
		return nil, err
	}

	r := uc.newRun(books, position, req.AutoMtM, summary, logger)
	sales, purchases := r.matcher.Candidates(ctx, trades, toDate)
	logger.DebugContext(ctx, "candidates loaded", "sales", len(sales), "purchases", len(purchases))

	for _, sale := range sales {
		if len(purchases) > 0 {
			if err := r.processSale(ctx, sale, purchases); err != nil {
				return nil, fmt.Errorf("failed to process sale %s: %w", sale.ID, err)
			}
		}
		if r.processor.HasLockedTransaction() {
			logger.WarnContext(ctx, "locked transaction found, nothing flushed", "sale_id", sale.ID)
			return summary.LockError(), nil
		}
	}

	if err := r.backfillRates(ctx, sales, purchases); err != nil {
		return nil, err
	}

	if req.AutoMtM {
		if _, err := r.mtm.PostInterest(ctx, position.Name(), toDate, service.Last(sales, purchases)); err != nil {
			return nil, fmt.Errorf("failed to post interest MTM: %w", err)
		}
	}

	flushed, err := r.processor.Flush(ctx)
	if errors.Is(err, port.ErrLocked) {
		logger.WarnContext(ctx, "locked transaction found, nothing flushed")
		return summary.LockError(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to flush batch: %w", err)
	}
	summary.PostingsCreated = flushed.PostingsCreated
	summary.PostingsExisting = flushed.PostingsExisting
	summary.TradesCreated = flushed.TradesCreated
	summary.TradesUpdated = flushed.TradesUpdated

	if err := uc.advanceRealizedDate(ctx, position, sales, purchases); err != nil {
		return nil, err
	}

	totals := make(map[string]string)
	var realized []string
	for _, m := range summary.RealizedTotals() {
		totals[m.Currency().Code()] = m.Amount().StringFixed(books.Financial.FractionDigits)
		realized = append(realized, m.StringFixed(books.Financial.FractionDigits))
	}
	evt := event.NewRealizedResultsCalculated(stockBook.ID, position.ID(), string(model.ResultCalculatingAsync), toDate,
		summary.PostingsCreated, summary.CreatedAccounts, totals)
	if err := uc.publisher.Publish(ctx, TopicResults, evt); err != nil {
		logger.WarnContext(ctx, "failed to publish results event", "error", err)
	}

	logger.InfoContext(ctx, "realized results calculated",
		"postings_created", summary.PostingsCreated,
		"postings_existing", summary.PostingsExisting,
		"trades_created", summary.TradesCreated,
		"trades_updated", summary.TradesUpdated,
		"realized", realized,
	)
	return summary.CalculatingAsync(), nil
}

func (uc *CalculateRealizedResults) newRun(books service.Books, position model.Position, autoMtM bool, summary *model.Summary, logger *slog.Logger) *run {
	processor := service.NewBatchProcessor(uc.ledger, books, logger)
	accounts := service.NewAccountResolver(uc.ledger, processor, uc.conv, func(acc model.Account) {
		summary.AddCreatedAccount(position.ExchangeCode(), acc.Name)
	})
	return &run{
		books:      books,
		position:   position,
		calcModel:  books.Stock.CalculationModel(),
		autoMtM:    autoMtM,
		summary:    summary,
		processor:  processor,
		rates:      service.NewExchangeRateResolver(uc.ledger, books),
		matcher:    service.NewLotMatcher(logger),
		calculator: service.GainCalculator{},
		realized:   service.NewRealizedResultPoster(accounts, processor, books, uc.conv, logger),
		fx:         service.NewFXSeparator(accounts, processor, books, uc.conv, logger),
		mtm:        service.NewMTMAccumulator(uc.ledger, accounts, processor, books, uc.conv, logger),
		logger:     logger,
	}
}

// advanceRealizedDate moves the position's realized date to the posting date
// of its latest processed trade when that is newer.
func (uc *CalculateRealizedResults) advanceRealizedDate(ctx context.Context, position model.Position, sales, purchases []*model.Trade) error {
	var last *time.Time
	for _, list := range [][]*model.Trade{sales, purchases} {
		if len(list) == 0 {
			continue
		}
		d := list[len(list)-1].Date
		if last == nil || d.After(*last) {
			last = &d
		}
	}
	if last == nil {
		return nil
	}
	if current := position.RealizedDate(); current != nil && !last.After(*current) {
		return nil
	}
	if _, err := uc.ledger.UpdateAccount(ctx, position.WithRealizedDate(last).Account()); err != nil {
		return fmt.Errorf("failed to update realized date: %w", err)
	}
	return nil
}

func loadPosition(ctx context.Context, ledger port.LedgerClient, stockBookID, positionID string) (model.Position, error) {
	account, err := ledger.GetAccountByID(ctx, stockBookID, positionID)
	if err != nil {
		return model.Position{}, fmt.Errorf("failed to load position account: %w", err)
	}
	groups, err := ledger.ListGroups(ctx, stockBookID)
	if err != nil {
		return model.Position{}, fmt.Errorf("failed to load stock groups: %w", err)
	}
	position, err := model.NewPosition(account, groups)
	if err != nil {
		return model.Position{}, fmt.Errorf("failed to build position: %w", err)
	}
	return position, nil
}

func loadOpenTrades(ctx context.Context, ledger port.LedgerClient, stockBookID, positionID string, toDate time.Time) ([]*model.Trade, error) {
	unchecked := false
	txs, err := ledger.QueryTransactions(ctx, port.TransactionFilter{
		BookID:     stockBookID,
		AccountID:  positionID,
		Checked:    &unchecked,
		OnOrBefore: &toDate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load open trades: %w", err)
	}
	return decodeTrades(txs)
}

func decodeTrades(txs []model.Transaction) ([]*model.Trade, error) {
	trades := make([]*model.Trade, 0, len(txs))
	for _, tx := range txs {
		t, err := model.TradeFromTransaction(tx)
		if err != nil {
			return nil, fmt.Errorf("failed to decode trade: %w", err)
		}
		trades = append(trades, &t)
	}
	return trades, nil
}

func toCalculateResponse(s *model.Summary) dto.CalculateRealizedResultsResponse {
	resp := dto.CalculateRealizedResultsResponse{
		PositionID:       s.PositionID,
		Result:           string(s.Result),
		CreatedAccounts:  s.CreatedAccounts,
		PostingsCreated:  s.PostingsCreated,
		PostingsExisting: s.PostingsExisting,
		TradesCreated:    s.TradesCreated,
		TradesUpdated:    s.TradesUpdated,
		RealizedTotals:   make(map[string]string),
	}
	for _, m := range s.RealizedTotals() {
		resp.RealizedTotals[m.Currency().Code()] = m.Amount().String()
	}
	return resp
}
