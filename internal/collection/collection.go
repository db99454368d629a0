// Package collection executes filter queries against an entry backend. A
// query moves through the states Received, Parsed, Transformed, Executed,
// Paginated and Responded; a failure stops it and is reported as a
// *StepError naming the step.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nlstn/go-optimade/internal/ast"
	"github.com/nlstn/go-optimade/internal/cursor"
	"github.com/nlstn/go-optimade/internal/entry"
	"github.com/nlstn/go-optimade/internal/filter"
	"github.com/nlstn/go-optimade/internal/grammar"
	"github.com/nlstn/go-optimade/internal/observability"
	"github.com/nlstn/go-optimade/internal/transform"
)

// Page limit defaults.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 500
)

// Predicate is a backend-specific lowered filter.
type Predicate any

// Backend stores entries and evaluates lowered filters.
type Backend interface {
	// Name identifies the backend in logs and spans.
	Name() string
	// Transform lowers a normalized filter; a nil expression matches
	// every entry.
	Transform(expr ast.Expr, r *transform.Resolver) (Predicate, error)
	// Count returns the number of entries matching pred.
	Count(ctx context.Context, pred Predicate) (int64, error)
	// Total returns the number of entries in the backend.
	Total(ctx context.Context) (int64, error)
	// Fetch returns at most limit matching entries in sort order, skipping
	// the first offset.
	Fetch(ctx context.Context, pred Predicate, sort []SortKey, offset, limit int) ([]*entry.Entry, error)
}

// Options configures a collection.
type Options struct {
	// Registry holds the filter grammars; nil selects the embedded ones.
	Registry *grammar.Registry
	// Transform declares fields and aliases; nil accepts every field.
	Transform *transform.Config
	// DefaultPageLimit applies when a request sets no limit.
	DefaultPageLimit int
	// MaxPageLimit caps the limit a request may ask for.
	MaxPageLimit int
	Logger       *slog.Logger
	// Observability is optional; nil disables tracing and metrics.
	Observability *observability.Config
}

// Request is a query against a collection.
type Request struct {
	Filter string
	// GrammarVersion selects the filter grammar; empty means the latest.
	GrammarVersion string
	PageLimit      int
	PageOffset     int
	// Cursor resumes a previous query; it takes precedence over
	// PageOffset.
	Cursor string
	Sort   string
	// ResponseFields restricts the returned attributes. id and type are
	// always present.
	ResponseFields []string
}

// Page is one page of query results.
type Page struct {
	QueryID           string
	Entries           []*entry.Entry
	Offset            int
	MoreDataAvailable bool
	DataReturned      int64
	DataAvailable     int64
	NextCursor        string
	Warnings          []transform.Warning
}

// Collection is a named, queryable set of entries.
type Collection struct {
	name    string
	backend Backend
	opts    Options
	logger  *slog.Logger
	parser  *filter.Parser
}

// New creates a collection over backend.
func New(name string, backend Backend, opts Options) (*Collection, error) {
	if name == "" {
		return nil, errors.New("collection name must not be empty")
	}
	if backend == nil {
		return nil, errors.New("collection backend must not be nil")
	}
	if opts.Transform != nil {
		if err := opts.Transform.Validate(); err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
	}
	if opts.Registry == nil {
		reg, err := grammar.LoadEmbedded()
		if err != nil {
			return nil, err
		}
		opts.Registry = reg
	}
	if opts.DefaultPageLimit <= 0 {
		opts.DefaultPageLimit = DefaultPageLimit
	}
	if opts.MaxPageLimit <= 0 {
		opts.MaxPageLimit = MaxPageLimit
	}
	if opts.DefaultPageLimit > opts.MaxPageLimit {
		return nil, fmt.Errorf("collection %s: default page limit %d exceeds max page limit %d",
			name, opts.DefaultPageLimit, opts.MaxPageLimit)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	parser, err := filter.NewParser(opts.Registry)
	if err != nil {
		return nil, err
	}

	return &Collection{
		name:    name,
		backend: backend,
		opts:    opts,
		logger:  logger,
		parser:  parser,
	}, nil
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Backend returns the collection's backend.
func (c *Collection) Backend() Backend {
	return c.backend
}

// SetLogger replaces the collection logger. A nil logger restores
// slog.Default.
func (c *Collection) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger
}

// Find runs a query and returns one page of results.
func (c *Collection) Find(ctx context.Context, req Request) (*Page, error) {
	q := c.newQuery(ctx, req, "")
	defer q.finish()

	page, err := q.run(nil)
	if err != nil {
		return nil, q.fail(err)
	}
	return page, nil
}

// FindByID returns the page holding the single entry with the given id. The
// request filter, if any, further restricts the match. A missing entry is
// ErrEntryNotFound; more than one match is an *InvariantError.
func (c *Collection) FindByID(ctx context.Context, id string, req Request) (*Page, error) {
	q := c.newQuery(ctx, req, id)
	defer q.finish()

	// two is enough to detect duplicate ids
	q.req.PageLimit = 2
	q.req.PageOffset = 0
	q.req.Cursor = ""
	q.req.Sort = ""

	byID := &ast.Comparison{Field: ast.Path{transform.FieldID}, Op: ast.OpEq, Value: ast.String(id)}
	page, err := q.run(byID)
	if err != nil {
		return nil, q.fail(err)
	}

	switch {
	case page.DataReturned == 0:
		return nil, q.fail(&StepError{Step: StatePaginated, Err: fmt.Errorf("%w: %s/%s", ErrEntryNotFound, c.name, id)})
	case page.DataReturned > 1 || len(page.Entries) > 1:
		return nil, q.fail(&InvariantError{Collection: c.name, Detail: fmt.Sprintf("id %q matches %d entries", id, page.DataReturned)})
	case page.MoreDataAvailable:
		return nil, q.fail(&InvariantError{Collection: c.name, Detail: fmt.Sprintf("lookup of id %q reports more data available", id)})
	}
	page.NextCursor = ""
	return page, nil
}

// query is the per-call pipeline state.
type query struct {
	c       *Collection
	ctx     context.Context
	span    trace.Span
	req     Request
	id      string
	queryID string
	state   State
	logger  *slog.Logger
	started time.Time
}

func (c *Collection) newQuery(ctx context.Context, req Request, id string) *query {
	queryID := uuid.NewString()
	ctx, span := c.opts.Observability.Tracer().StartFind(ctx, c.name, queryID, id)
	logger := observability.LoggerWithTrace(ctx, c.logger).With(
		"collection", c.name,
		"query_id", queryID,
	)
	return &query{
		c:       c,
		ctx:     ctx,
		span:    span,
		req:     req,
		id:      id,
		queryID: queryID,
		state:   StateReceived,
		logger:  logger,
		started: time.Now(),
	}
}

func (q *query) operation() string {
	if q.id != "" {
		return observability.OpFindByID
	}
	return observability.OpFind
}

func (q *query) finish() {
	q.c.opts.Observability.Metrics().RecordQuery(q.ctx, q.c.name, q.operation(), time.Since(q.started))
	q.span.End()
}

// advance moves the query to the next state.
func (q *query) advance(to State) {
	if to != q.state+1 {
		panic(fmt.Sprintf("collection: illegal transition %s -> %s", q.state, to))
	}
	q.state = to
	q.logger.Debug("query state", "state", to.String())
}

// fail records err on the span and in the logs and returns it.
func (q *query) fail(err error) error {
	q.c.opts.Observability.Tracer().RecordError(q.span, err)

	step := StateReceived
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		step = stepErr.Step
	}
	q.c.opts.Observability.Metrics().RecordError(q.ctx, q.c.name, step.Verb(), classify(err))

	var invErr *InvariantError
	if errors.As(err, &invErr) {
		q.logger.Error("query violated an internal invariant", "error", err)
	} else {
		q.logger.Warn("query failed", "step", step.Verb(), "error", err)
	}
	return err
}

// classify names the error kind for metrics.
func classify(err error) string {
	switch {
	case errors.Is(err, filter.ErrSyntax):
		return "syntax"
	case errors.Is(err, grammar.ErrUnknownVersion):
		return "unknown_grammar_version"
	case errors.Is(err, transform.ErrNotImplemented):
		return "not_implemented"
	case errors.Is(err, transform.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, transform.ErrUnknownField):
		return "unknown_field"
	case errors.Is(err, ErrPageLimitExceeded), errors.Is(err, ErrInvalidPagination), errors.Is(err, ErrInvalidCursor):
		return "pagination"
	case errors.Is(err, ErrInvalidSort):
		return "sort"
	case errors.Is(err, ErrEntryNotFound):
		return "not_found"
	case errors.Is(err, ErrInternalInvariant):
		return "invariant"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "backend"
}

// run executes the pipeline. extra is ANDed with the request filter.
func (q *query) run(extra ast.Expr) (*Page, error) {
	c := q.c
	tracer := c.opts.Observability.Tracer()
	q.logger.Debug("query received",
		"operation", q.operation(),
		"filter", q.req.Filter,
		"sort", q.req.Sort,
		"page_limit", q.req.PageLimit,
		"page_offset", q.req.PageOffset,
	)

	limit, offset, err := c.window(q.req, q.id != "")
	if err != nil {
		return nil, &StepError{Step: StateReceived, Err: err}
	}

	// Parsed: filter, sort and cursor
	ctx, span := tracer.StartStep(q.ctx, observability.StepParse, c.parseAttrs(q.req)...)
	timing := observability.StartServerTiming(ctx, observability.StepParse)
	expr, sortKeys, fp, err := c.parse(q.req)
	if err == nil && q.req.Cursor != "" {
		var cur *cursor.Cursor
		if cur, err = cursor.Resume(q.req.Cursor, fp); err != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidCursor, err)
		} else {
			offset = cur.Offset
		}
	}
	timing.Stop()
	tracer.RecordError(span, err)
	span.End()
	if err != nil {
		return nil, &StepError{Step: StateParsed, Err: err}
	}
	if extra != nil {
		if expr == nil {
			expr = extra
		} else {
			expr = &ast.And{Left: extra, Right: expr}
		}
	}
	q.advance(StateParsed)

	// Transformed
	resolver := transform.NewResolver(c.opts.Transform)
	ctx, span = tracer.StartStep(q.ctx, observability.StepTransform, observability.BackendAttr(c.backend.Name()))
	timing = observability.StartServerTiming(ctx, observability.StepTransform)
	pred, err := c.backend.Transform(expr, resolver)
	timing.Stop()
	tracer.RecordError(span, err)
	span.End()
	if err != nil {
		return nil, &StepError{Step: StateTransformed, Err: err}
	}
	q.advance(StateTransformed)

	// Executed
	ctx, span = tracer.StartStep(q.ctx, observability.StepExecute,
		observability.BackendAttr(c.backend.Name()),
		observability.SortAttr(formatSort(sortKeys)),
	)
	timing = observability.StartServerTiming(ctx, observability.StepExecute)
	returned, available, entries, err := c.execute(ctx, pred, sortKeys, offset, limit)
	timing.Stop()
	tracer.RecordError(span, err)
	if err == nil {
		tracer.AddPagination(span, limit, offset, len(entries), returned)
	}
	span.End()
	if err != nil {
		return nil, &StepError{Step: StateExecuted, Err: err}
	}
	q.advance(StateExecuted)

	// Paginated
	if len(entries) > limit {
		return nil, &InvariantError{Collection: c.name, Detail: fmt.Sprintf("backend %s returned %d entries for limit %d", c.backend.Name(), len(entries), limit)}
	}
	if int64(offset+len(entries)) > returned {
		return nil, &InvariantError{Collection: c.name, Detail: fmt.Sprintf("backend %s returned entries beyond the %d matches it counted", c.backend.Name(), returned)}
	}
	page := &Page{
		QueryID:           q.queryID,
		Entries:           make([]*entry.Entry, len(entries)),
		Offset:            offset,
		MoreDataAvailable: int64(offset+len(entries)) < returned,
		DataReturned:      returned,
		DataAvailable:     available,
		Warnings:          resolver.Warnings(),
	}
	for i, e := range entries {
		page.Entries[i] = present(e, q.req.ResponseFields, c.opts.Transform)
	}
	if page.MoreDataAvailable && len(entries) > 0 {
		next, err := cursor.Encode(&cursor.Cursor{
			Offset:      offset + len(entries),
			LastID:      entries[len(entries)-1].ID,
			Fingerprint: fp,
		})
		if err != nil {
			return nil, &StepError{Step: StatePaginated, Err: err}
		}
		page.NextCursor = next
	}
	q.advance(StatePaginated)

	c.opts.Observability.Metrics().RecordResultCount(q.ctx, c.name, int64(len(page.Entries)))
	c.opts.Observability.Metrics().RecordWarnings(q.ctx, c.name, len(page.Warnings))
	q.advance(StateResponded)
	q.logger.Debug("query responded",
		"returned", len(page.Entries),
		"data_returned", page.DataReturned,
		"more_data_available", page.MoreDataAvailable,
		"warnings", len(page.Warnings),
	)
	return page, nil
}

// window validates the requested page limit and offset.
// window validates the requested page. Single-entry lookups use a fixed
// internal limit that the configured maximum does not apply to.
func (c *Collection) window(req Request, lookup bool) (limit, offset int, err error) {
	limit = req.PageLimit
	switch {
	case lookup:
		// fixed by FindByID
	case limit < 0:
		return 0, 0, fmt.Errorf("%w: page limit %d is negative", ErrInvalidPagination, limit)
	case limit == 0:
		limit = c.opts.DefaultPageLimit
	case limit > c.opts.MaxPageLimit:
		return 0, 0, fmt.Errorf("%w: %d is above the maximum of %d", ErrPageLimitExceeded, limit, c.opts.MaxPageLimit)
	}
	if req.PageOffset < 0 {
		return 0, 0, fmt.Errorf("%w: page offset %d is negative", ErrInvalidPagination, req.PageOffset)
	}
	return limit, req.PageOffset, nil
}

func (c *Collection) parseAttrs(req Request) []attribute.KeyValue {
	attrs := []attribute.KeyValue{observability.GrammarVersionAttr(req.GrammarVersion)}
	if c.opts.Observability.Enabled(observability.FeatureFilterAttribute) && req.Filter != "" {
		attrs = append(attrs, observability.FilterAttr(req.Filter))
	}
	return attrs
}

// parse parses the filter with the requested grammar and the sort
// parameter, and fingerprints the resulting query for cursors.
func (c *Collection) parse(req Request) (ast.Expr, []SortKey, uint64, error) {
	parser := c.parser
	if req.GrammarVersion != "" {
		var err error
		if parser, err = filter.NewParser(c.opts.Registry, filter.WithGrammar(req.GrammarVersion)); err != nil {
			return nil, nil, 0, err
		}
	}
	expr, err := parser.Parse(req.Filter)
	if err != nil {
		return nil, nil, 0, err
	}
	keys, err := parseSort(req.Sort, c.opts.Transform)
	if err != nil {
		return nil, nil, 0, err
	}

	canonical := ""
	if expr != nil {
		canonical = ast.Format(expr)
	}
	fp := cursor.Fingerprint(c.name, canonical, formatSort(keys))
	return expr, keys, fp, nil
}

func (c *Collection) execute(ctx context.Context, pred Predicate, sort []SortKey, offset, limit int) (returned, available int64, entries []*entry.Entry, err error) {
	if returned, err = c.backend.Count(ctx, pred); err != nil {
		return 0, 0, nil, fmt.Errorf("count: %w", err)
	}
	if available, err = c.backend.Total(ctx); err != nil {
		return 0, 0, nil, fmt.Errorf("total: %w", err)
	}
	if int64(offset) >= returned {
		return returned, available, nil, nil
	}
	if entries, err = c.backend.Fetch(ctx, pred, sort, offset, limit); err != nil {
		return 0, 0, nil, fmt.Errorf("fetch: %w", err)
	}
	return returned, available, entries, nil
}
