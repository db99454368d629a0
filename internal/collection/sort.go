package collection

import (
	"fmt"
	"strings"

	"github.com/nlstn/go-optimade/internal/ast"
	"github.com/nlstn/go-optimade/internal/transform"
)

// SortKey is one resolved sort criterion.
type SortKey struct {
	Field      transform.Field
	Descending bool
}

func (k SortKey) String() string {
	if k.Descending {
		return "-" + k.Field.Public
	}
	return k.Field.Public
}

// parseSort parses the sort parameter, e.g. "-nelements,id". Fields are
// resolved through cfg; unknown fields are rejected rather than ignored.
// Ascending id is appended as a tie breaker unless id is already a key, so
// the order of any two entries is always defined.
func parseSort(sortStr string, cfg *transform.Config) ([]SortKey, error) {
	var keys []SortKey
	seen := make(map[string]bool)

	if strings.TrimSpace(sortStr) != "" {
		for _, part := range strings.Split(sortStr, ",") {
			name := strings.TrimSpace(part)
			key := SortKey{}
			if strings.HasPrefix(name, "-") {
				key.Descending = true
				name = strings.TrimSpace(name[1:])
			}
			if name == "" {
				return nil, fmt.Errorf("%w: empty sort field in %q", ErrInvalidSort, sortStr)
			}
			if seen[name] {
				return nil, fmt.Errorf("%w: field %q listed twice", ErrInvalidSort, name)
			}

			// a throwaway resolver: warnings about sort fields are not
			// attached to results because the query fails instead
			f, ok, err := transform.NewResolver(cfg).Resolve(ast.ParsePath(name))
			if err != nil || !ok {
				return nil, fmt.Errorf("%w: unknown sort field %q", ErrInvalidSort, name)
			}
			if f.Spec.List {
				return nil, fmt.Errorf("%w: cannot sort by list field %q", ErrInvalidSort, name)
			}

			seen[name] = true
			key.Field = f
			keys = append(keys, key)
		}
	}

	if !seen[transform.FieldID] {
		keys = append(keys, SortKey{Field: transform.Field{
			Public:   transform.FieldID,
			Storage:  transform.FieldID,
			Spec:     transform.FieldSpec{Kind: transform.KindString},
			Declared: true,
		}})
	}
	return keys, nil
}

// formatSort renders keys back into sort parameter syntax.
func formatSort(keys []SortKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}
