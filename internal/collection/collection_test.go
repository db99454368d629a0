package collection_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/nlstn/go-optimade/internal/collection"
	"github.com/nlstn/go-optimade/internal/collection/docstore"
	"github.com/nlstn/go-optimade/internal/collection/relational"
	"github.com/nlstn/go-optimade/internal/entry"
	"github.com/nlstn/go-optimade/internal/filter"
	"github.com/nlstn/go-optimade/internal/grammar"
	"github.com/nlstn/go-optimade/internal/testutil"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// backends returns a fresh fixture backend of every kind.
func backends(t *testing.T) map[string]collection.Backend {
	t.Helper()

	doc, err := docstore.New(testutil.Structures()...)
	if err != nil {
		t.Fatalf("docstore.New failed: %v", err)
	}

	rel, err := relational.Open(relational.DriverSQLite, ":memory:",
		relational.WithLogger(quiet), relational.WithSchema(testutil.StructuresConfig()))
	if err != nil {
		t.Fatalf("relational.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = rel.Close() })
	if err := rel.Insert(context.Background(), testutil.Structures()...); err != nil {
		t.Fatalf("relational Insert failed: %v", err)
	}

	return map[string]collection.Backend{"docstore": doc, "relational": rel}
}

func newStructures(t *testing.T, backend collection.Backend) *collection.Collection {
	t.Helper()
	c, err := collection.New("structures", backend, collection.Options{
		Transform: testutil.StructuresConfig(),
		Logger:    quiet,
	})
	if err != nil {
		t.Fatalf("collection.New failed: %v", err)
	}
	return c
}

func pageIDs(p *collection.Page) []string {
	out := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		out[i] = e.ID
	}
	return out
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFindSingleMatch(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := newStructures(t, backend)
			page, err := c.Find(context.Background(), collection.Request{Filter: `elements HAS "Ac" AND nelements=1`})
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}

			if got := pageIDs(page); !sameIDs(got, []string{"mpf_1"}) {
				t.Fatalf("entries = %v, want [mpf_1]", got)
			}
			if page.DataReturned != 1 || page.DataAvailable != 12 {
				t.Errorf("data returned/available = %d/%d, want 1/12", page.DataReturned, page.DataAvailable)
			}
			if page.MoreDataAvailable || page.NextCursor != "" {
				t.Errorf("unexpected further page: more=%v cursor=%q", page.MoreDataAvailable, page.NextCursor)
			}
			if page.QueryID == "" {
				t.Error("query id should be set")
			}

			// stored pretty_formula is presented under its public name
			e := page.Entries[0]
			if v, ok := e.Attributes["chemical_formula_reduced"]; !ok || v.Text() != "Ac" {
				t.Errorf("chemical_formula_reduced = %v (present %v)", v.Interface(), ok)
			}
			if _, ok := e.Attributes["pretty_formula"]; ok {
				t.Error("storage name leaked into the response")
			}
		})
	}
}

func TestFiltersAgreeAcrossBackends(t *testing.T) {
	filters := []struct {
		filter string
		want   []string
	}{
		{`elements HAS "Si"`, testutil.SiliconIDs},
		{`elements HAS ALL "Si","O"`, []string{"mpf_10", "mpf_4", "mpf_6", "mpf_8", "mpf_9"}},
		{`elements HAS ANY "Ac","Au"`, []string{"mpf_1", "mpf_12", "mpf_2"}},
		{`elements HAS ONLY "Si","O"`, []string{"mpf_4"}},
		{`elements LENGTH 3 AND NOT elements HAS "Si"`, []string{"mpf_2"}},
		{`nsites >= 28`, []string{"mpf_10", "mpf_8", "mpf_9"}},
		{`28 <= nsites`, []string{"mpf_10", "mpf_8", "mpf_9"}},
		{`band_gap IS UNKNOWN`, []string{"mpf_7"}},
		{`band_gap > 5 OR band_gap = 0`, []string{"mpf_1", "mpf_12", "mpf_4", "mpf_9"}},
		{`chemical_formula_reduced CONTAINS "O3"`, []string{"mpf_11", "mpf_6", "mpf_9"}},
		{`chemical_formula_reduced STARTS WITH "Fe2"`, []string{"mpf_10", "mpf_11"}},
		{`chemical_formula_reduced ENDS "Si"`, []string{"mpf_10", "mpf_4", "mpf_5", "mpf_6", "mpf_8", "mpf_9"}},
		{`_exmpl_stability <= 0.12`, []string{"mpf_1", "mpf_4"}},
		{`_exmpl_stability = 0`, []string{"mpf_4"}},
		{`band_gap < 0.1`, []string{"mpf_1", "mpf_12"}},
		{`_other_stability < 1`, []string{}},
		{`id = "mpf_3" OR id = "mpf_7"`, []string{"mpf_3", "mpf_7"}},
		{`NOT (nelements > 1)`, []string{"mpf_1", "mpf_12", "mpf_5", "mpf_7"}},
	}

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := newStructures(t, backend)
			for _, tt := range filters {
				page, err := c.Find(context.Background(), collection.Request{Filter: tt.filter, PageLimit: 100})
				if err != nil {
					t.Errorf("Find(%q) failed: %v", tt.filter, err)
					continue
				}
				got := pageIDs(page)
				sort.Strings(got)
				if !sameIDs(got, tt.want) {
					t.Errorf("Find(%q) = %v, want %v", tt.filter, got, tt.want)
				}
				if page.DataReturned != int64(len(tt.want)) {
					t.Errorf("Find(%q) data returned = %d, want %d", tt.filter, page.DataReturned, len(tt.want))
				}
			}
		})
	}
}

func TestCursorWalk(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := newStructures(t, backend)
			req := collection.Request{Filter: `elements HAS "Si"`, PageLimit: 2}

			var (
				seen   []string
				pages  int
				cursor string
			)
			for {
				req.Cursor = cursor
				page, err := c.Find(context.Background(), req)
				if err != nil {
					t.Fatalf("page %d: Find failed: %v", pages+1, err)
				}
				pages++
				if len(page.Entries) != 2 {
					t.Errorf("page %d has %d entries, want 2", pages, len(page.Entries))
				}
				if page.DataReturned != 6 {
					t.Errorf("page %d data returned = %d, want 6", pages, page.DataReturned)
				}
				seen = append(seen, pageIDs(page)...)

				if !page.MoreDataAvailable {
					if page.NextCursor != "" {
						t.Errorf("last page carries a cursor")
					}
					break
				}
				if page.NextCursor == "" {
					t.Fatalf("page %d has more data but no cursor", pages)
				}
				if pages > 3 {
					t.Fatal("cursor walk does not terminate")
				}
				cursor = page.NextCursor
			}

			if pages != 3 {
				t.Errorf("pages = %d, want 3", pages)
			}
			if !sameIDs(seen, testutil.SiliconIDs) {
				t.Errorf("walked %v, want %v", seen, testutil.SiliconIDs)
			}
		})
	}
}

func TestCursorBoundToQuery(t *testing.T) {
	c := newStructures(t, backends(t)["docstore"])
	ctx := context.Background()

	first, err := c.Find(ctx, collection.Request{Filter: `elements HAS "Si"`, PageLimit: 2})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	requests := map[string]collection.Request{
		"other filter": {Filter: `elements HAS "O"`, PageLimit: 2, Cursor: first.NextCursor},
		"other sort":   {Filter: `elements HAS "Si"`, PageLimit: 2, Sort: "-nsites", Cursor: first.NextCursor},
		"garbage":      {Filter: `elements HAS "Si"`, PageLimit: 2, Cursor: "not-a-cursor"},
	}
	for name, req := range requests {
		_, err := c.Find(ctx, req)
		if !errors.Is(err, collection.ErrInvalidCursor) {
			t.Errorf("%s: error = %v, want ErrInvalidCursor", name, err)
		}
		var stepErr *collection.StepError
		if !errors.As(err, &stepErr) || stepErr.Step != collection.StateParsed {
			t.Errorf("%s: error %v should fail the parse step", name, err)
		}
	}

	// the same query written differently resumes fine
	page, err := c.Find(ctx, collection.Request{Filter: `elements  HAS  "Si"`, PageLimit: 2, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("resuming with reformatted filter failed: %v", err)
	}
	if page.Offset != 2 {
		t.Errorf("resumed offset = %d, want 2", page.Offset)
	}
}

func TestFindSort(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := newStructures(t, backend)
			page, err := c.Find(context.Background(), collection.Request{
				Filter:    `elements HAS "Si"`,
				Sort:      "-nsites",
				PageLimit: 3,
			})
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			if got := pageIDs(page); !sameIDs(got, []string{"mpf_8", "mpf_9", "mpf_10"}) {
				t.Errorf("sorted = %v", got)
			}
		})
	}
}

func TestFindErrors(t *testing.T) {
	c := newStructures(t, backends(t)["docstore"])

	tests := []struct {
		name string
		req  collection.Request
		want error
		step collection.State
	}{
		{"limit too large", collection.Request{PageLimit: collection.MaxPageLimit + 1}, collection.ErrPageLimitExceeded, collection.StateReceived},
		{"negative limit", collection.Request{PageLimit: -1}, collection.ErrInvalidPagination, collection.StateReceived},
		{"negative offset", collection.Request{PageOffset: -3}, collection.ErrInvalidPagination, collection.StateReceived},
		{"syntax", collection.Request{Filter: `nelements = `}, filter.ErrSyntax, collection.StateParsed},
		{"grammar version", collection.Request{Filter: `nelements = 1`, GrammarVersion: "9.9.9"}, grammar.ErrUnknownVersion, collection.StateParsed},
		{"sort by list", collection.Request{Sort: "elements"}, collection.ErrInvalidSort, collection.StateParsed},
		{"sort by unknown", collection.Request{Sort: "density"}, collection.ErrInvalidSort, collection.StateParsed},
		{"sort twice", collection.Request{Sort: "nsites,-nsites"}, collection.ErrInvalidSort, collection.StateParsed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Find(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var stepErr *collection.StepError
			if !errors.As(err, &stepErr) {
				t.Fatalf("error %T is not a *StepError", err)
			}
			if stepErr.Step != tt.step {
				t.Errorf("step = %s, want %s", stepErr.Step, tt.step)
			}
		})
	}
}

func TestFindWarnings(t *testing.T) {
	c := newStructures(t, backends(t)["docstore"])
	page, err := c.Find(context.Background(), collection.Request{Filter: `density > 1 OR nelements = 1`, PageLimit: 100})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if page.DataReturned != 4 {
		t.Errorf("data returned = %d, want 4", page.DataReturned)
	}
	if len(page.Warnings) != 1 || page.Warnings[0].Field != "density" {
		t.Errorf("warnings = %+v, want one for density", page.Warnings)
	}
}

func TestFindOffsetPastEnd(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := newStructures(t, backend)
			page, err := c.Find(context.Background(), collection.Request{PageOffset: 40})
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			if len(page.Entries) != 0 || page.MoreDataAvailable || page.DataReturned != 12 {
				t.Errorf("page = %+v", page)
			}
		})
	}
}

func TestResponseFields(t *testing.T) {
	c := newStructures(t, backends(t)["relational"])
	page, err := c.Find(context.Background(), collection.Request{
		Filter:         `id = "mpf_3"`,
		ResponseFields: []string{"chemical_formula_reduced", "nsites", "missing"},
	})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(page.Entries) != 1 {
		t.Fatalf("entries = %v", pageIDs(page))
	}
	attrs := page.Entries[0].Attributes
	if len(attrs) != 2 || attrs["chemical_formula_reduced"].Text() != "AgBr" || attrs["nsites"].Int64() != 8 {
		t.Errorf("attributes = %v", attrs)
	}
}

func TestFindByID(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := newStructures(t, backend)
			ctx := context.Background()

			page, err := c.FindByID(ctx, "mpf_3", collection.Request{})
			if err != nil {
				t.Fatalf("FindByID failed: %v", err)
			}
			if got := pageIDs(page); !sameIDs(got, []string{"mpf_3"}) {
				t.Errorf("entries = %v", got)
			}

			_, err = c.FindByID(ctx, "mpf_404", collection.Request{})
			if !errors.Is(err, collection.ErrEntryNotFound) {
				t.Errorf("missing id error = %v, want ErrEntryNotFound", err)
			}

			// the request filter narrows the lookup
			_, err = c.FindByID(ctx, "mpf_3", collection.Request{Filter: `nelements = 1`})
			if !errors.Is(err, collection.ErrEntryNotFound) {
				t.Errorf("filtered out id error = %v, want ErrEntryNotFound", err)
			}
		})
	}
}

func TestFindByIDIgnoresMaxPageLimit(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c, err := collection.New("structures", backend, collection.Options{
				Transform:        testutil.StructuresConfig(),
				Logger:           quiet,
				DefaultPageLimit: 1,
				MaxPageLimit:     1,
			})
			if err != nil {
				t.Fatalf("collection.New failed: %v", err)
			}

			page, err := c.FindByID(context.Background(), "mpf_1", collection.Request{})
			if err != nil {
				t.Fatalf("FindByID failed: %v", err)
			}
			if got := pageIDs(page); !sameIDs(got, []string{"mpf_1"}) {
				t.Errorf("entries = %v", got)
			}

			_, err = c.Find(context.Background(), collection.Request{PageLimit: 2})
			if !errors.Is(err, collection.ErrPageLimitExceeded) {
				t.Errorf("Find error = %v, want ErrPageLimitExceeded", err)
			}
		})
	}
}

// duplicating reports every match twice, as a store with a broken id
// index would.
type duplicating struct {
	*docstore.Store
}

func (d duplicating) Count(ctx context.Context, pred collection.Predicate) (int64, error) {
	n, err := d.Store.Count(ctx, pred)
	return 2 * n, err
}

func (d duplicating) Fetch(ctx context.Context, pred collection.Predicate, keys []collection.SortKey, offset, limit int) ([]*entry.Entry, error) {
	entries, err := d.Store.Fetch(ctx, pred, keys, 0, limit)
	if err != nil {
		return nil, err
	}
	var out []*entry.Entry
	for _, e := range entries {
		out = append(out, e, e)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestFindByIDInvariant(t *testing.T) {
	store, err := docstore.New(testutil.Structures()...)
	if err != nil {
		t.Fatalf("docstore.New failed: %v", err)
	}
	c := newStructures(t, duplicating{store})

	_, err = c.FindByID(context.Background(), "mpf_3", collection.Request{})
	if !errors.Is(err, collection.ErrInternalInvariant) {
		t.Fatalf("error = %v, want ErrInternalInvariant", err)
	}
	var invErr *collection.InvariantError
	if !errors.As(err, &invErr) || invErr.Collection != "structures" {
		t.Errorf("error %v should be an *InvariantError of structures", err)
	}
}

// overflowing returns more entries than asked for.
type overflowing struct {
	*docstore.Store
}

func (o overflowing) Fetch(ctx context.Context, pred collection.Predicate, keys []collection.SortKey, offset, limit int) ([]*entry.Entry, error) {
	return o.Store.Fetch(ctx, pred, keys, offset, limit+1)
}

func TestFindPageInvariant(t *testing.T) {
	store, err := docstore.New(testutil.Structures()...)
	if err != nil {
		t.Fatalf("docstore.New failed: %v", err)
	}
	c := newStructures(t, overflowing{store})

	_, err = c.Find(context.Background(), collection.Request{PageLimit: 3})
	if !errors.Is(err, collection.ErrInternalInvariant) {
		t.Errorf("error = %v, want ErrInternalInvariant", err)
	}
}

func TestNewValidates(t *testing.T) {
	doc, err := docstore.New()
	if err != nil {
		t.Fatalf("docstore.New failed: %v", err)
	}
	if _, err := collection.New("", doc, collection.Options{}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := collection.New("structures", nil, collection.Options{}); err == nil {
		t.Error("expected error for nil backend")
	}
	if _, err := collection.New("structures", doc, collection.Options{DefaultPageLimit: 50, MaxPageLimit: 10}); err == nil {
		t.Error("expected error when the default limit exceeds the maximum")
	}
	c, err := collection.New("structures", doc, collection.Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.Name() != "structures" || c.Backend() != collection.Backend(doc) {
		t.Errorf("Name/Backend = %q/%v", c.Name(), c.Backend())
	}
}
