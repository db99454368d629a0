package docstore

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlstn/go-optimade/internal/collection"
	"github.com/nlstn/go-optimade/internal/entry"
	"github.com/nlstn/go-optimade/internal/filter"
	"github.com/nlstn/go-optimade/internal/testutil"
	"github.com/nlstn/go-optimade/internal/transform"
	"github.com/nlstn/go-optimade/internal/transform/mongo"
)

func newFixtureStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(testutil.Structures()...)
	require.NoError(t, err)
	return s
}

// matchingIDs lowers text with the fixture configuration and returns the
// sorted ids of the matching entries.
func matchingIDs(t *testing.T, s *Store, text string) []string {
	t.Helper()
	expr, err := filter.Parse(text)
	require.NoError(t, err, "filter %q", text)
	pred, err := s.Transform(expr, transform.NewResolver(testutil.StructuresConfig()))
	require.NoError(t, err, "filter %q", text)

	entries, err := s.Fetch(context.Background(), pred, nil, 0, 100)
	require.NoError(t, err, "filter %q", text)

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	sort.Strings(ids)
	return ids
}

func TestFilters(t *testing.T) {
	t.Parallel()

	s := newFixtureStore(t)

	testCases := []struct {
		filter   string
		expected []string
	}{
		{`elements HAS "Ac" AND nelements=1`, []string{"mpf_1"}},
		{`elements HAS "Si"`, testutil.SiliconIDs},
		{`elements HAS ALL "Si","O"`, []string{"mpf_10", "mpf_4", "mpf_6", "mpf_8", "mpf_9"}},
		{`elements HAS ANY "Ac","Au"`, []string{"mpf_1", "mpf_12", "mpf_2"}},
		{`elements HAS ONLY "Si"`, []string{"mpf_5"}},
		{`elements HAS ONLY "Si","O"`, []string{"mpf_4"}},
		{`elements HAS ONLY "O","Si","O"`, []string{"mpf_4"}},
		{`elements LENGTH 3 AND elements HAS "Fe"`, []string{"mpf_10"}},
		{`NOT elements HAS "O"`, []string{"mpf_1", "mpf_12", "mpf_2", "mpf_3", "mpf_5", "mpf_7"}},
		{`nelements > 2 AND band_gap < 1`, []string{"mpf_10", "mpf_2"}},
		{`band_gap = 0`, []string{"mpf_1", "mpf_12"}},
		{`band_gap IS UNKNOWN`, []string{"mpf_7"}},
		{`NOT band_gap IS KNOWN`, []string{"mpf_7"}},
		{`band_gap != 0 AND nelements = 1`, []string{"mpf_5"}},
		{`chemical_formula_reduced STARTS WITH "Fe2"`, []string{"mpf_10", "mpf_11"}},
		{`chemical_formula_reduced ENDS "Si"`, []string{"mpf_4", "mpf_5", "mpf_6", "mpf_8", "mpf_9", "mpf_10"}},
		{`chemical_formula_reduced CONTAINS "O3"`, []string{"mpf_11", "mpf_6", "mpf_9"}},
		{`chemical_formula_reduced CONTAINS "."`, []string{}},
		{`_exmpl_stability <= 0.12`, []string{"mpf_1", "mpf_4"}},
		{`_other_stability < 1`, []string{}},
		{`_other_stability IS UNKNOWN`, []string{"mpf_1", "mpf_10", "mpf_11", "mpf_12", "mpf_2", "mpf_3", "mpf_4", "mpf_5", "mpf_6", "mpf_7", "mpf_8", "mpf_9"}},
		{`id = "mpf_3" OR (nsites >= 30 AND NOT id = "mpf_9")`, []string{"mpf_3", "mpf_8"}},
		{`2 < nelements`, []string{"mpf_10", "mpf_2", "mpf_6", "mpf_8", "mpf_9"}},
		{`type = "structures" AND nsites = 1`, []string{"mpf_1", "mpf_12"}},
	}

	for _, tc := range testCases {
		t.Run(tc.filter, func(t *testing.T) {
			t.Parallel()

			expected := append([]string{}, tc.expected...)
			sort.Strings(expected)
			assert.Equal(t, expected, append([]string{}, matchingIDs(t, s, tc.filter)...))
		})
	}
}

func TestCountAndTotal(t *testing.T) {
	t.Parallel()

	s := newFixtureStore(t)
	ctx := context.Background()

	total, err := s.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)

	n, err := s.Count(ctx, mongo.Document{"elements": mongo.Document{"$in": []any{"Si"}}})
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	n, err = s.Count(ctx, mongo.Document{})
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestFetchSortAndWindow(t *testing.T) {
	t.Parallel()

	s := newFixtureStore(t)
	keys := []collection.SortKey{
		{Field: transform.Field{Public: "nelements", Storage: "nelements"}, Descending: true},
		{Field: transform.Field{Public: "id", Storage: "id"}},
	}

	entries, err := s.Fetch(context.Background(), mongo.Document{}, keys, 1, 3)
	require.NoError(t, err)

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	// nelements 3: mpf_10, mpf_2, mpf_6, mpf_8, mpf_9
	assert.Equal(t, []string{"mpf_2", "mpf_6", "mpf_8"}, ids)

	entries, err = s.Fetch(context.Background(), mongo.Document{}, keys, 50, 3)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSortMissingLast(t *testing.T) {
	t.Parallel()

	s := newFixtureStore(t)
	for _, desc := range []bool{false, true} {
		keys := []collection.SortKey{{Field: transform.Field{Public: "band_gap", Storage: "band_gap"}, Descending: desc}}
		entries, err := s.Fetch(context.Background(), mongo.Document{}, keys, 0, 100)
		require.NoError(t, err)
		require.Len(t, entries, 12)
		assert.Equal(t, "mpf_7", entries[11].ID, "descending=%v", desc)
	}
}

func TestInsertDuplicate(t *testing.T) {
	t.Parallel()

	s := newFixtureStore(t)
	err := s.Insert(&entry.Entry{ID: "mpf_1"})
	require.Error(t, err)

	err = s.Insert(&entry.Entry{ID: "new"}, &entry.Entry{ID: "new"})
	require.Error(t, err)

	total, err := s.Total(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), total, "a rejected batch must not be partially inserted")

	require.NoError(t, s.InsertJSON([]byte(`[{"id": "mpf_13", "type": "structures"}]`)))
	total, err = s.Total(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(13), total)
}

func TestInvalidPredicates(t *testing.T) {
	t.Parallel()

	s := newFixtureStore(t)
	ctx := context.Background()

	for _, pred := range []collection.Predicate{
		"nelements = 1",
		mongo.Document{"$where": "true"},
		mongo.Document{"$and": []any{}},
		mongo.Document{"nelements": mongo.Document{"$mod": []any{2, 0}}},
		mongo.Document{"elements": mongo.Document{"$regex": "("}},
		mongo.Document{"elements": mongo.Document{"$size": "two"}},
	} {
		_, err := s.Count(ctx, pred)
		assert.Error(t, err, "predicate %v", pred)
	}
}
