package usecase

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/bibbank/realizer/internal/domain/model"
)

type runMetrics struct {
	runs     metric.Int64Counter
	postings metric.Int64Counter
}

func newRunMetrics(logger *slog.Logger) *runMetrics {
	meter := otel.Meter(instrumentationName)
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	runs, err := meter.Int64Counter("realizer_runs_total",
		metric.WithDescription("Realized-results runs by result."))
	if err != nil {
		logger.Warn("failed to create runs counter", "error", err)
		runs, _ = fallback.Int64Counter("realizer_runs_total")
	}
	postings, err := meter.Int64Counter("realizer_postings_created_total",
		metric.WithDescription("Postings created by realized-results runs."))
	if err != nil {
		logger.Warn("failed to create postings counter", "error", err)
		postings, _ = fallback.Int64Counter("realizer_postings_created_total")
	}
	return &runMetrics{runs: runs, postings: postings}
}

func (m *runMetrics) record(ctx context.Context, s *model.Summary) {
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("result", string(s.Result))))
	if s.PostingsCreated > 0 {
		m.postings.Add(ctx, int64(s.PostingsCreated))
	}
}

func (m *runMetrics) recordFailure(ctx context.Context) {
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
}
