// Package observability wires OpenTelemetry tracing and metrics, database
// spans and Server-Timing headers into collection queries. Every entry point
// degrades to a no-op when nothing is configured.
package observability

import (
	"strings"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Feature is an optional piece of query instrumentation.
type Feature uint8

const (
	// FeatureStatementSpans opens a span per SQL statement of relational
	// collections. It needs a tracer provider.
	FeatureStatementSpans Feature = 1 << iota
	// FeatureFilterAttribute records the raw filter on parse spans. Filters
	// may carry user data.
	FeatureFilterAttribute
	// FeatureServerTiming adds the Server-Timing response header with the
	// per-step and database durations of a query.
	FeatureServerTiming
)

var featureNames = map[Feature]string{
	FeatureStatementSpans:  "statement_spans",
	FeatureFilterAttribute: "filter_attribute",
	FeatureServerTiming:    "server_timing",
}

func (f Feature) String() string {
	var names []string
	for _, one := range []Feature{FeatureStatementSpans, FeatureFilterAttribute, FeatureServerTiming} {
		if f&one != 0 {
			names = append(names, featureNames[one])
		}
	}
	return strings.Join(names, "|")
}

// Config is the instrumentation shared by the collections of a service.
// A nil *Config is valid and disables everything.
type Config struct {
	// TracerProvider enables query spans when set.
	TracerProvider trace.TracerProvider
	// MeterProvider enables query metrics when set.
	MeterProvider metric.MeterProvider
	// ServiceName is recorded on query spans.
	ServiceName string
	Features    Feature

	tracer  *Tracer
	metrics *Metrics
}

var (
	noopTracer  = NewTracer(tracenoop.NewTracerProvider(), "")
	noopMetrics = NewMetrics(metricnoop.NewMeterProvider())
)

// Initialize builds the tracer and metrics from the providers. Missing
// providers fall back to no-op instruments.
func (c *Config) Initialize() {
	c.tracer, c.metrics = noopTracer, noopMetrics
	if c.TracerProvider != nil {
		c.tracer = NewTracer(c.TracerProvider, c.ServiceName)
	}
	if c.MeterProvider != nil {
		c.metrics = NewMetrics(c.MeterProvider)
	}
}

// Tracer returns the configured tracer, or a no-op tracer.
func (c *Config) Tracer() *Tracer {
	if c == nil || c.tracer == nil {
		return noopTracer
	}
	return c.tracer
}

// Metrics returns the configured metrics, or no-op metrics.
func (c *Config) Metrics() *Metrics {
	if c == nil || c.metrics == nil {
		return noopMetrics
	}
	return c.metrics
}

// Enabled reports whether every feature in f is switched on.
func (c *Config) Enabled(f Feature) bool {
	return c != nil && c.Features&f == f
}

// statementTracing reports whether relational stores trace each statement.
func (c *Config) statementTracing() bool {
	return c.Enabled(FeatureStatementSpans) && c.TracerProvider != nil
}
