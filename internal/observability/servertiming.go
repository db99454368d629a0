package observability

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	servertiming "github.com/mitchellh/go-server-timing"
)

// ServerTimingMetric wraps the server-timing library's Metric type.
type ServerTimingMetric struct {
	metric *servertiming.Metric
}

// Stop stops the timing metric.
func (m *ServerTimingMetric) Stop() {
	if m != nil && m.metric != nil {
		m.metric.Stop()
	}
}

// StartServerTiming starts a server-timing metric with the given name.
// If the context carries no timing header, the returned metric is a no-op.
func StartServerTiming(ctx context.Context, name string) *ServerTimingMetric {
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return &ServerTimingMetric{}
	}

	return &ServerTimingMetric{
		metric: timing.NewMetric(name).Start(),
	}
}

// StartServerTimingWithDesc starts a server-timing metric with the given
// name and description.
func StartServerTimingWithDesc(ctx context.Context, name, description string) *ServerTimingMetric {
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return &ServerTimingMetric{}
	}

	return &ServerTimingMetric{
		metric: timing.NewMetric(name).WithDesc(description).Start(),
	}
}

type dbTimeKey struct{}

// DBTimeAccumulator sums the database time of one request. It is safe for
// concurrent use.
type DBTimeAccumulator struct {
	nanos atomic.Int64
}

// Add adds d to the total.
func (a *DBTimeAccumulator) Add(d time.Duration) {
	a.nanos.Add(int64(d))
}

// Duration returns the total.
func (a *DBTimeAccumulator) Duration() time.Duration {
	return time.Duration(a.nanos.Load())
}

// WithDBTimeAccumulator returns a context that collects database time
// reported through AddDBTime.
func WithDBTimeAccumulator(ctx context.Context) context.Context {
	return context.WithValue(ctx, dbTimeKey{}, &DBTimeAccumulator{})
}

// DBTimeAccumulatorFromContext returns the accumulator of ctx or nil.
func DBTimeAccumulatorFromContext(ctx context.Context) *DBTimeAccumulator {
	acc, _ := ctx.Value(dbTimeKey{}).(*DBTimeAccumulator)
	return acc
}

// AddDBTime adds d to the accumulator of ctx, if any.
func AddDBTime(ctx context.Context, d time.Duration) {
	if acc := DBTimeAccumulatorFromContext(ctx); acc != nil {
		acc.Add(d)
	}
}

// RecordDBTiming adds the accumulated database time of ctx as a "db"
// metric. The header is sent with the status line, so handlers call this
// right before writing the response.
func RecordDBTiming(ctx context.Context) {
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return
	}
	acc := DBTimeAccumulatorFromContext(ctx)
	if acc == nil {
		return
	}
	if d := acc.Duration(); d > 0 {
		m := timing.NewMetric("db").WithDesc("database")
		m.Duration = d
	}
}

// ServerTimingMiddleware adds a Server-Timing header to responses carrying
// the metrics recorded by the handler. When disabled the handler is
// returned unchanged.
func ServerTimingMiddleware(cfg *Config, next http.Handler) http.Handler {
	if !cfg.Enabled(FeatureServerTiming) {
		return next
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithDBTimeAccumulator(r.Context())))
	})
	return servertiming.Middleware(inner, nil)
}
