package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	gormSpanKey             = "optimade:gorm:span"
	gormStartTimeKey        = "optimade:gorm:start"
	gormTimingStartKey      = "optimade:gorm:timing_start"
	gormTimingCallbacksName = "optimade_server_timing"
)

// RegisterGORMCallbacks registers GORM callbacks that open a span and record
// a duration metric for every statement. It is a no-op unless tracing and
// detailed DB tracing are configured.
func RegisterGORMCallbacks(db *gorm.DB, cfg *Config) error {
	if !cfg.statementTracing() {
		return nil
	}

	tracer := cfg.Tracer()

	// Query callbacks
	if err := db.Callback().Query().Before("gorm:query").Register("optimade:before_query", beforeStatement(tracer, "db.query")); err != nil {
		return err
	}
	if err := db.Callback().Query().After("gorm:query").Register("optimade:after_query", afterStatement(tracer, cfg, "SELECT")); err != nil {
		return err
	}

	// Create callbacks
	if err := db.Callback().Create().Before("gorm:create").Register("optimade:before_create", beforeStatement(tracer, "db.create")); err != nil {
		return err
	}
	if err := db.Callback().Create().After("gorm:create").Register("optimade:after_create", afterStatement(tracer, cfg, "INSERT")); err != nil {
		return err
	}

	// Delete callbacks
	if err := db.Callback().Delete().Before("gorm:delete").Register("optimade:before_delete", beforeStatement(tracer, "db.delete")); err != nil {
		return err
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("optimade:after_delete", afterStatement(tracer, cfg, "DELETE")); err != nil {
		return err
	}

	// Row callbacks
	if err := db.Callback().Row().Before("gorm:row").Register("optimade:before_row", beforeStatement(tracer, "db.row")); err != nil {
		return err
	}
	if err := db.Callback().Row().After("gorm:row").Register("optimade:after_row", afterStatement(tracer, cfg, "ROW")); err != nil {
		return err
	}

	// Raw callbacks
	if err := db.Callback().Raw().Before("gorm:raw").Register("optimade:before_raw", beforeStatement(tracer, "db.raw")); err != nil {
		return err
	}
	if err := db.Callback().Raw().After("gorm:raw").Register("optimade:after_raw", afterStatement(tracer, cfg, "RAW")); err != nil {
		return err
	}

	return nil
}

// RegisterServerTimingCallbacks registers GORM callbacks that add the
// duration of every statement to the request's database time accumulator,
// reported as the "db" Server-Timing metric. It works without OpenTelemetry.
func RegisterServerTimingCallbacks(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register(gormTimingCallbacksName+":before_query", beforeTiming); err != nil {
		return err
	}
	if err := db.Callback().Query().After("gorm:query").Register(gormTimingCallbacksName+":after_query", afterTiming); err != nil {
		return err
	}
	if err := db.Callback().Create().Before("gorm:create").Register(gormTimingCallbacksName+":before_create", beforeTiming); err != nil {
		return err
	}
	if err := db.Callback().Create().After("gorm:create").Register(gormTimingCallbacksName+":after_create", afterTiming); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register(gormTimingCallbacksName+":before_row", beforeTiming); err != nil {
		return err
	}
	if err := db.Callback().Row().After("gorm:row").Register(gormTimingCallbacksName+":after_row", afterTiming); err != nil {
		return err
	}
	if err := db.Callback().Raw().Before("gorm:raw").Register(gormTimingCallbacksName+":before_raw", beforeTiming); err != nil {
		return err
	}
	if err := db.Callback().Raw().After("gorm:raw").Register(gormTimingCallbacksName+":after_raw", afterTiming); err != nil {
		return err
	}
	return nil
}

func beforeTiming(db *gorm.DB) {
	db.InstanceSet(gormTimingStartKey, time.Now())
}

func afterTiming(db *gorm.DB) {
	startTimeVal, ok := db.InstanceGet(gormTimingStartKey)
	if !ok {
		return
	}
	startTime, ok := startTimeVal.(time.Time)
	if !ok {
		return
	}
	if db.Statement != nil && db.Statement.Context != nil {
		AddDBTime(db.Statement.Context, time.Since(startTime))
	}
}

func beforeStatement(tracer *Tracer, spanName string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		ctx, span := tracer.StartSpan(ctx, spanName,
			attribute.String("db.system", db.Dialector.Name()),
		)

		db.Statement.Context = ctx
		db.InstanceSet(gormSpanKey, span)
		db.InstanceSet(gormStartTimeKey, time.Now())
	}
}

func afterStatement(tracer *Tracer, cfg *Config, operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		spanVal, ok := db.InstanceGet(gormSpanKey)
		if !ok {
			return
		}
		span, ok := spanVal.(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		if db.Statement != nil {
			if table := db.Statement.Table; table != "" {
				span.SetAttributes(attribute.String("db.sql.table", table))
			}
			span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
		}

		tracer.RecordError(span, db.Error)

		if startTimeVal, ok := db.InstanceGet(gormStartTimeKey); ok {
			if startTime, ok := startTimeVal.(time.Time); ok {
				cfg.Metrics().RecordDBQuery(db.Statement.Context, operation, time.Since(startTime))
			}
		}
	}
}
