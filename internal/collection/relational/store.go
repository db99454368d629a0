// Package relational is an entry backend on a SQL database through GORM.
// Entries are stored in an entries table; their attributes are spread over
// one key/value table per value kind so the sqlfilter dialect can filter on
// them. SQLite and PostgreSQL are supported.
package relational

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nlstn/go-optimade/internal/ast"
	"github.com/nlstn/go-optimade/internal/collection"
	"github.com/nlstn/go-optimade/internal/entry"
	"github.com/nlstn/go-optimade/internal/observability"
	"github.com/nlstn/go-optimade/internal/transform"
	"github.com/nlstn/go-optimade/internal/transform/sqlfilter"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const insertBatchSize = 500

// Store is a GORM-backed collection backend. It is safe for concurrent use.
type Store struct {
	db *gorm.DB
	// schema decides the attribute table of declared fields
	schema *transform.Config
}

var _ collection.Backend = (*Store)(nil)

type options struct {
	logger        *slog.Logger
	slowThreshold time.Duration
	observability *observability.Config
	schema        *transform.Config
}

// Option configures Open.
type Option func(*options)

// WithLogger routes SQL logging to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSlowThreshold logs statements slower than d at warn level.
func WithSlowThreshold(d time.Duration) Option {
	return func(o *options) {
		o.slowThreshold = d
	}
}

// WithSchema declares the field kinds of the collection. Declared
// attributes are converted to their kind on insert, so they land in the
// table the sqlfilter dialect queries.
func WithSchema(cfg *transform.Config) Option {
	return func(o *options) {
		o.schema = cfg
	}
}

// WithObservability registers DB spans and Server-Timing callbacks.
func WithObservability(cfg *observability.Config) Option {
	return func(o *options) {
		o.observability = cfg
	}
}

// Open connects to a database and migrates the schema. For SQLite the pool
// is limited to one connection, so in-memory databases are shared by all
// queries and the LIKE pragma holds for every statement.
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	o := options{slowThreshold: 200 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		if dsn == "" {
			return nil, errors.New("relational: postgres needs a DSN")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("relational: unsupported driver %q (use %q or %q)", driver, DriverSQLite, DriverPostgres)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newSlogLogger(o.logger.With("component", "gorm"), o.slowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("relational: failed to connect to %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		// LIKE must be case sensitive like the regex of the mongo dialect
		if err := db.Exec("PRAGMA case_sensitive_like = ON").Error; err != nil {
			return nil, fmt.Errorf("relational: %w", err)
		}
	}

	if err := observability.RegisterGORMCallbacks(db, o.observability); err != nil {
		return nil, fmt.Errorf("relational: failed to register tracing callbacks: %w", err)
	}
	if o.observability.Enabled(observability.FeatureServerTiming) {
		if err := observability.RegisterServerTimingCallbacks(db); err != nil {
			return nil, fmt.Errorf("relational: failed to register server timing callbacks: %w", err)
		}
	}

	return New(db, o.schema)
}

// New wraps an open database and migrates the schema. A nil schema stores
// every attribute by its ingested kind.
func New(db *gorm.DB, schema *transform.Config) (*Store, error) {
	if err := db.AutoMigrate(models()...); err != nil {
		return nil, fmt.Errorf("relational: failed to migrate: %w", err)
	}
	return &Store{db: db, schema: schema}, nil
}

// DB returns the underlying database.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Name() string {
	return "relational"
}

// Insert stores entries in one transaction.
func (s *Store) Insert(ctx context.Context, entries ...*entry.Entry) error {
	var (
		rows    []entryRow
		strs    []stringAttribute
		ints    []integerAttribute
		floats  []floatAttribute
		pending = make(map[string]bool, len(entries))
	)
	for _, e := range entries {
		if e == nil || e.ID == "" {
			return errors.New("relational: entry without id")
		}
		if pending[e.ID] {
			return fmt.Errorf("relational: duplicate entry id %q", e.ID)
		}
		pending[e.ID] = true

		e, err := s.coerceEntry(e)
		if err != nil {
			return err
		}
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("relational: entry %s: %w", e.ID, err)
		}
		rows = append(rows, entryRow{ID: e.ID, Type: e.Type, Data: string(data)})

		for _, key := range e.Keys() {
			v := e.Attributes[key]
			items := []entry.Value{v}
			if v.Kind() == entry.KindList {
				items = v.Items()
			}
			for pos, item := range items {
				switch item.Kind() {
				case entry.KindInt:
					ints = append(ints, integerAttribute{EntryID: e.ID, Key: key, Position: pos, Value: item.Int64()})
				case entry.KindFloat:
					floats = append(floats, floatAttribute{EntryID: e.ID, Key: key, Position: pos, Value: item.Float64()})
				case entry.KindString:
					strs = append(strs, stringAttribute{EntryID: e.ID, Key: key, Position: pos, Value: item.Text()})
				default:
					return fmt.Errorf("relational: entry %s: attribute %s: nested lists are not supported", e.ID, key)
				}
			}
		}
	}
	if len(rows) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("relational: insert entries: %w", err)
		}
		if len(strs) > 0 {
			if err := tx.CreateInBatches(strs, insertBatchSize).Error; err != nil {
				return fmt.Errorf("relational: insert string attributes: %w", err)
			}
		}
		if len(ints) > 0 {
			if err := tx.CreateInBatches(ints, insertBatchSize).Error; err != nil {
				return fmt.Errorf("relational: insert integer attributes: %w", err)
			}
		}
		if len(floats) > 0 {
			if err := tx.CreateInBatches(floats, insertBatchSize).Error; err != nil {
				return fmt.Errorf("relational: insert float attributes: %w", err)
			}
		}
		return nil
	})
}

// InsertJSON decodes a JSON array of entries and inserts them.
func (s *Store) InsertJSON(ctx context.Context, data []byte) error {
	entries, err := entry.DecodeAll(data)
	if err != nil {
		return err
	}
	return s.Insert(ctx, entries...)
}

// Transform lowers expr with the sqlfilter dialect.
func (s *Store) Transform(expr ast.Expr, r *transform.Resolver) (collection.Predicate, error) {
	return sqlfilter.Transform(expr, r)
}

func (s *Store) where(ctx context.Context, pred collection.Predicate) (*gorm.DB, error) {
	cond, ok := pred.(sqlfilter.Condition)
	if !ok {
		return nil, fmt.Errorf("relational: predicate is %T, not a SQL condition", pred)
	}
	return s.db.WithContext(ctx).Model(&entryRow{}).Where(cond.SQL, cond.Args...), nil
}

func (s *Store) Count(ctx context.Context, pred collection.Predicate) (int64, error) {
	q, err := s.where(ctx, pred)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("relational: count: %w", err)
	}
	return n, nil
}

func (s *Store) Total(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&entryRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("relational: total: %w", err)
	}
	return n, nil
}

func (s *Store) Fetch(ctx context.Context, pred collection.Predicate, keys []collection.SortKey, offset, limit int) ([]*entry.Entry, error) {
	q, err := s.where(ctx, pred)
	if err != nil {
		return nil, err
	}
	if len(keys) > 0 {
		q = q.Order(orderBy(keys))
	}

	var rows []entryRow
	if err := q.Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("relational: fetch: %w", err)
	}

	out := make([]*entry.Entry, len(rows))
	for i, row := range rows {
		e, err := entry.Decode([]byte(row.Data))
		if err != nil {
			return nil, fmt.Errorf("relational: entry %s: %w", row.ID, err)
		}
		out[i] = e
	}
	return out, nil
}

// orderBy renders all sort keys as one ORDER BY expression. Entries missing
// a sort attribute come last in either direction.
func orderBy(keys []collection.SortKey) clause.OrderBy {
	var (
		parts []string
		vars  []any
	)
	for _, k := range keys {
		dir := "ASC"
		if k.Descending {
			dir = "DESC"
		}

		if k.Field.Builtin() {
			parts = append(parts, fmt.Sprintf(`"%s"."%s" %s`, sqlfilter.EntriesTable, k.Field.Public, dir))
			continue
		}

		for _, expr := range sortExprs(k.Field) {
			parts = append(parts, "("+expr+") IS NULL", expr+" "+dir)
			// every subquery binds the attribute key, and expr is used twice
			for i := 0; i < 2*strings.Count(expr, "?"); i++ {
				vars = append(vars, k.Field.Storage)
			}
		}
	}
	return clause.OrderBy{Expression: clause.Expr{
		SQL:                strings.Join(parts, ", "),
		Vars:               vars,
		WithoutParentheses: true,
	}}
}

// sortExprs returns scalar subqueries yielding the first stored value of f.
// Undeclared fields are ordered by numeric value, then by string value.
func sortExprs(f transform.Field) []string {
	if f.Declared {
		switch f.Spec.Kind {
		case transform.KindInt:
			return []string{firstValue(sqlfilter.IntegerTable)}
		case transform.KindFloat:
			return []string{firstValue(sqlfilter.FloatTable)}
		}
		return []string{firstValue(sqlfilter.StringTable)}
	}
	numeric := fmt.Sprintf("COALESCE(%s, %s)",
		firstValue(sqlfilter.IntegerTable), firstValue(sqlfilter.FloatTable))
	return []string{numeric, firstValue(sqlfilter.StringTable)}
}

func firstValue(table string) string {
	return fmt.Sprintf(`(SELECT s."value" FROM "%s" s WHERE s."entry_id" = "%s"."id" AND s."key" = ? ORDER BY s."position" LIMIT 1)`,
		table, sqlfilter.EntriesTable)
}
