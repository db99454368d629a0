package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer with query span helpers.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// NewTracer creates a new Tracer using the given TracerProvider.
func NewTracer(tp trace.TracerProvider, serviceName string) *Tracer {
	return &Tracer{
		tracer:      tp.Tracer(TracerName),
		serviceName: serviceName,
	}
}

// StartSpan starts a new span with the given name and attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartFind starts the root span of a collection query. id is empty for
// listing queries.
func (t *Tracer) StartFind(ctx context.Context, collection, queryID, id string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		CollectionAttr(collection),
		QueryIDAttr(queryID),
	}
	if id != "" {
		attrs = append(attrs, EntryIDAttr(id), OperationAttr(OpFindByID))
	} else {
		attrs = append(attrs, OperationAttr(OpFind))
	}
	return t.tracer.Start(ctx, "optimade.find", trace.WithAttributes(attrs...))
}

// StartStep starts a child span for one pipeline step, named
// optimade.<step>.
func (t *Tracer) StartStep(ctx context.Context, step string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, StepAttr(step))
	return t.tracer.Start(ctx, "optimade."+step, trace.WithAttributes(attrs...))
}

// StartDBQuery starts a span for a database query.
func (t *Tracer) StartDBQuery(ctx context.Context, operation string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "db.query", trace.WithAttributes(
		attribute.String("db.operation", operation),
	))
}

// RecordError records an error on the span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddPagination adds the page window and result size to a span.
func (t *Tracer) AddPagination(span trace.Span, limit, offset, returned int, dataReturned int64) {
	span.SetAttributes(
		PageLimitAttr(limit),
		PageOffsetAttr(offset),
		ResultCountAttr(returned),
		DataReturnedAttr(dataReturned),
	)
}

// LoggerWithTrace returns a logger enriched with trace context.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return logger
	}
	return logger.With(
		slog.String(LogFieldTraceID, span.SpanContext().TraceID().String()),
		slog.String(LogFieldSpanID, span.SpanContext().SpanID().String()),
	)
}
