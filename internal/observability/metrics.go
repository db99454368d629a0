package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the query metric instruments.
type Metrics struct {
	queryDuration   metric.Float64Histogram
	queryCount      metric.Int64Counter
	resultCount     metric.Int64Histogram
	dbQueryDuration metric.Float64Histogram
	errorCount      metric.Int64Counter
	warningCount    metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	// Instrument creation only fails on invalid parameters; fall back to
	// bare instruments so a partial setup still records.
	var err error

	m.queryDuration, err = meter.Float64Histogram(
		"optimade.query.duration",
		metric.WithDescription("Duration of collection queries in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.queryDuration, _ = meter.Float64Histogram("optimade.query.duration")
	}

	m.queryCount, err = meter.Int64Counter(
		"optimade.query.count",
		metric.WithDescription("Total number of collection queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		m.queryCount, _ = meter.Int64Counter("optimade.query.count")
	}

	m.resultCount, err = meter.Int64Histogram(
		"optimade.result.count",
		metric.WithDescription("Number of entries returned per page"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		m.resultCount, _ = meter.Int64Histogram("optimade.result.count")
	}

	m.dbQueryDuration, err = meter.Float64Histogram(
		"optimade.db.query.duration",
		metric.WithDescription("Duration of database queries in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.dbQueryDuration, _ = meter.Float64Histogram("optimade.db.query.duration")
	}

	m.errorCount, err = meter.Int64Counter(
		"optimade.error.count",
		metric.WithDescription("Total number of failed queries by pipeline step"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.errorCount, _ = meter.Int64Counter("optimade.error.count")
	}

	m.warningCount, err = meter.Int64Counter(
		"optimade.warning.count",
		metric.WithDescription("Total number of warnings attached to query results"),
		metric.WithUnit("{warning}"),
	)
	if err != nil {
		m.warningCount, _ = meter.Int64Counter("optimade.warning.count")
	}

	return m
}

// RecordQuery records a completed query.
func (m *Metrics) RecordQuery(ctx context.Context, collection, operation string, duration time.Duration) {
	attrs := metric.WithAttributes(
		CollectionAttr(collection),
		OperationAttr(operation),
	)
	m.queryDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.queryCount.Add(ctx, 1, attrs)
}

// RecordResultCount records the number of entries returned in a page.
func (m *Metrics) RecordResultCount(ctx context.Context, collection string, count int64) {
	m.resultCount.Record(ctx, count, metric.WithAttributes(CollectionAttr(collection)))
}

// RecordWarnings records warnings attached to a result.
func (m *Metrics) RecordWarnings(ctx context.Context, collection string, count int) {
	if count == 0 {
		return
	}
	m.warningCount.Add(ctx, int64(count), metric.WithAttributes(CollectionAttr(collection)))
}

// RecordDBQuery records metrics for a database query.
func (m *Metrics) RecordDBQuery(ctx context.Context, operation string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("db.operation", operation))
	m.dbQueryDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordError records a query failure in the given step.
func (m *Metrics) RecordError(ctx context.Context, collection, step, errorType string) {
	attrs := metric.WithAttributes(
		CollectionAttr(collection),
		StepAttr(step),
		attribute.String(AttrErrorType, errorType),
	)
	m.errorCount.Add(ctx, 1, attrs)
}
