// Package entry is the data model of stored OPTIMADE entries. Attribute
// values are tagged once at ingestion; nested JSON objects are flattened to
// dotted keys so every attribute is addressable by a filter path. Lists of
// objects or of lists (species, lattice_vectors) are kept verbatim and are
// not filterable.
package entry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Entry is one resource of a collection.
type Entry struct {
	ID         string
	Type       string
	Attributes map[string]Value
	// Opaque holds structured list attributes as raw JSON.
	Opaque map[string]json.RawMessage
}

// Keys returns the attribute keys in sorted order.
func (e *Entry) Keys() []string {
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns an attribute or one of the id and type columns.
func (e *Entry) Get(field string) (Value, bool) {
	switch field {
	case "id":
		return String(e.ID), true
	case "type":
		return String(e.Type), true
	}
	v, ok := e.Attributes[field]
	return v, ok
}

// Project returns a copy holding only the listed attributes. A nil list
// keeps every attribute.
func (e *Entry) Project(fields []string) *Entry {
	if fields == nil {
		return e
	}
	out := &Entry{ID: e.ID, Type: e.Type, Attributes: make(map[string]Value, len(fields))}
	for _, f := range fields {
		if v, ok := e.Attributes[f]; ok {
			out.Attributes[f] = v
		}
		if raw, ok := e.Opaque[f]; ok {
			if out.Opaque == nil {
				out.Opaque = make(map[string]json.RawMessage)
			}
			out.Opaque[f] = raw
		}
	}
	return out
}

type document struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
}

// Decode reads an entry in OPTIMADE resource form:
// {"id": ..., "type": ..., "attributes": {...}}.
func Decode(data []byte) (*Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("entry has no id")
	}
	return FromMap(doc.ID, doc.Type, doc.Attributes)
}

// DecodeAll reads a JSON array of entries.
func DecodeAll(data []byte) ([]*Entry, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode entries: %w", err)
	}
	out := make([]*Entry, 0, len(raws))
	for i, raw := range raws {
		e, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// FromMap builds an entry from decoded attributes. Null attributes are
// dropped.
func FromMap(id, typ string, attributes map[string]any) (*Entry, error) {
	e := &Entry{ID: id, Type: typ, Attributes: make(map[string]Value)}
	if err := e.flatten("", attributes); err != nil {
		return nil, fmt.Errorf("entry %s: %w", id, err)
	}
	return e, nil
}

func (e *Entry) flatten(prefix string, in map[string]any) error {
	for k, raw := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := raw.(map[string]any); ok {
			if err := e.flatten(key, nested); err != nil {
				return err
			}
			continue
		}
		if list, ok := raw.([]any); ok && structured(list) {
			data, err := json.Marshal(list)
			if err != nil {
				return fmt.Errorf("attribute %s: %w", key, err)
			}
			if e.Opaque == nil {
				e.Opaque = make(map[string]json.RawMessage)
			}
			e.Opaque[key] = data
			continue
		}
		v, ok, err := ValueOf(raw)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", key, err)
		}
		if ok {
			e.Attributes[key] = v
		}
	}
	return nil
}

// structured reports whether a list holds objects or lists.
func structured(list []any) bool {
	for _, item := range list {
		switch item.(type) {
		case map[string]any, []any:
			return true
		}
	}
	return false
}

// MarshalJSON renders the entry in OPTIMADE resource form with flattened
// attribute keys.
func (e *Entry) MarshalJSON() ([]byte, error) {
	attributes := make(map[string]any, len(e.Attributes)+len(e.Opaque))
	for k, v := range e.Attributes {
		attributes[k] = v
	}
	for k, raw := range e.Opaque {
		attributes[k] = raw
	}
	return json.Marshal(struct {
		ID         string         `json:"id"`
		Type       string         `json:"type"`
		Attributes map[string]any `json:"attributes"`
	}{e.ID, e.Type, attributes})
}
