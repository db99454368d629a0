// Package docstore is an in-memory entry backend that evaluates
// MongoDB-style predicate documents. It serves development setups and tests
// and mirrors how a document database interprets the mongo dialect.
package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nlstn/go-optimade/internal/ast"
	"github.com/nlstn/go-optimade/internal/collection"
	"github.com/nlstn/go-optimade/internal/entry"
	"github.com/nlstn/go-optimade/internal/transform"
	"github.com/nlstn/go-optimade/internal/transform/mongo"
)

// Store holds entries in insertion order. It is safe for concurrent use.
// Entries handed to and returned from the store must not be modified.
type Store struct {
	mu      sync.RWMutex
	entries []*entry.Entry
	ids     map[string]bool
}

var _ collection.Backend = (*Store)(nil)

// New returns a store holding entries.
func New(entries ...*entry.Entry) (*Store, error) {
	s := &Store{ids: make(map[string]bool)}
	if err := s.Insert(entries...); err != nil {
		return nil, err
	}
	return s, nil
}

// Insert adds entries. Ids must be unique across the store; on a duplicate
// nothing is inserted.
func (s *Store) Insert(entries ...*entry.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e == nil || e.ID == "" {
			return fmt.Errorf("docstore: entry without id")
		}
		if s.ids[e.ID] || batch[e.ID] {
			return fmt.Errorf("docstore: duplicate entry id %q", e.ID)
		}
		batch[e.ID] = true
	}
	for _, e := range entries {
		s.ids[e.ID] = true
		s.entries = append(s.entries, e)
	}
	return nil
}

// InsertJSON decodes a JSON array of entries and inserts them.
func (s *Store) InsertJSON(data []byte) error {
	entries, err := entry.DecodeAll(data)
	if err != nil {
		return err
	}
	return s.Insert(entries...)
}

func (s *Store) Name() string {
	return "docstore"
}

// Transform lowers expr with the mongo dialect.
func (s *Store) Transform(expr ast.Expr, r *transform.Resolver) (collection.Predicate, error) {
	return mongo.Transform(expr, r)
}

func (s *Store) Count(ctx context.Context, pred collection.Predicate) (int64, error) {
	m, err := s.compile(pred)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.entries {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if m(e) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Total(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

func (s *Store) Fetch(ctx context.Context, pred collection.Predicate, keys []collection.SortKey, offset, limit int) ([]*entry.Entry, error) {
	m, err := s.compile(pred)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var matched []*entry.Entry
	for _, e := range s.entries {
		if m(e) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return less(matched[i], matched[j], keys)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	end := len(matched)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}

func (s *Store) compile(pred collection.Predicate) (matcher, error) {
	doc, ok := pred.(mongo.Document)
	if !ok {
		return nil, fmt.Errorf("docstore: predicate is %T, not a mongo document", pred)
	}
	m, err := compile(doc)
	if err != nil {
		return nil, fmt.Errorf("docstore: %w", err)
	}
	return m, nil
}

// less orders entries by keys. Entries missing a sort field come after
// those that have it, in either direction.
func less(a, b *entry.Entry, keys []collection.SortKey) bool {
	for _, k := range keys {
		av, aok := a.Get(k.Field.Storage)
		bv, bok := b.Get(k.Field.Storage)
		switch {
		case !aok && !bok:
			continue
		case !aok:
			return false
		case !bok:
			return true
		}
		c := av.Compare(bv)
		if c == 0 {
			continue
		}
		if k.Descending {
			return c > 0
		}
		return c < 0
	}
	return false
}
