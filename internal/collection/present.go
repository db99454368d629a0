package collection

import (
	"encoding/json"

	"github.com/nlstn/go-optimade/internal/entry"
	"github.com/nlstn/go-optimade/internal/transform"
)

// present renames stored attributes to their public names and keeps only
// the requested fields. A nil field list keeps every attribute.
func present(e *entry.Entry, fields []string, cfg *transform.Config) *entry.Entry {
	if cfg == nil || len(cfg.Aliases.Fields) == 0 {
		return e.Project(fields)
	}

	out := &entry.Entry{ID: e.ID, Type: e.Type, Attributes: make(map[string]entry.Value)}
	if len(e.Opaque) > 0 {
		out.Opaque = make(map[string]json.RawMessage)
	}
	if fields == nil {
		for storage, v := range e.Attributes {
			out.Attributes[cfg.PublicName(storage)] = v
		}
		for storage, raw := range e.Opaque {
			out.Opaque[cfg.PublicName(storage)] = raw
		}
		return out
	}
	for _, public := range fields {
		storage := cfg.StorageName(public)
		if v, ok := e.Attributes[storage]; ok {
			out.Attributes[public] = v
		}
		if raw, ok := e.Opaque[storage]; ok {
			out.Opaque[public] = raw
		}
	}
	return out
}
