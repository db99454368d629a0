package relational

import (
	"fmt"
	"math"

	"github.com/nlstn/go-optimade/internal/entry"
	"github.com/nlstn/go-optimade/internal/transform"
)

// coerceEntry returns e with every declared attribute converted to its
// declared kind. Undeclared attributes keep their ingested kind.
func (s *Store) coerceEntry(e *entry.Entry) (*entry.Entry, error) {
	if s.schema == nil {
		return e, nil
	}
	out := &entry.Entry{ID: e.ID, Type: e.Type, Attributes: make(map[string]entry.Value, len(e.Attributes)), Opaque: e.Opaque}
	for key, v := range e.Attributes {
		spec, declared := s.schema.Spec(s.schema.PublicName(key))
		if !declared {
			out.Attributes[key] = v
			continue
		}
		c, err := coerce(spec.Kind, v)
		if err != nil {
			return nil, fmt.Errorf("relational: entry %s: attribute %s: %w", e.ID, key, err)
		}
		out.Attributes[key] = c
	}
	return out, nil
}

func coerce(kind transform.FieldKind, v entry.Value) (entry.Value, error) {
	if v.Kind() != entry.KindList {
		return coerceScalar(kind, v)
	}
	items := make([]entry.Value, len(v.Items()))
	for i, item := range v.Items() {
		c, err := coerceScalar(kind, item)
		if err != nil {
			return entry.Value{}, fmt.Errorf("item %d: %w", i, err)
		}
		items[i] = c
	}
	return entry.List(items...), nil
}

func coerceScalar(kind transform.FieldKind, v entry.Value) (entry.Value, error) {
	switch kind {
	case transform.KindFloat:
		if v.IsNumber() {
			return entry.Float(v.Float64()), nil
		}
	case transform.KindInt:
		if v.Kind() == entry.KindInt {
			return v, nil
		}
		if f := v.Float64(); v.Kind() == entry.KindFloat && f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return entry.Int(int64(f)), nil
		}
	case transform.KindString:
		if v.Kind() == entry.KindString {
			return v, nil
		}
	default:
		return v, nil
	}
	return entry.Value{}, fmt.Errorf("%s value %v does not fit declared kind %s", v.Kind(), v.Interface(), kind)
}
