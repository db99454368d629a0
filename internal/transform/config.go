package transform

import (
	"fmt"
	"strings"
)

// FieldKind is the declared value kind of a field. The relational dialect
// uses it to pick the attribute table.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindInt    FieldKind = "int"
	KindFloat  FieldKind = "float"
)

// FieldSpec declares a public field.
type FieldSpec struct {
	Kind FieldKind `mapstructure:"kind" yaml:"kind"`
	List bool      `mapstructure:"list" yaml:"list"`
}

// IsNumeric reports whether the field holds numbers.
func (s FieldSpec) IsNumeric() bool {
	return s.Kind == KindInt || s.Kind == KindFloat
}

// Aliases maps public filter fields to storage fields. Lengths maps a list
// field to the public field holding its cardinality, e.g. elements to
// nelements.
type Aliases struct {
	Fields  map[string]string `mapstructure:"fields" yaml:"fields"`
	Lengths map[string]string `mapstructure:"lengths" yaml:"lengths"`
}

// UnknownFieldPolicy decides how filters on undeclared fields are handled.
type UnknownFieldPolicy string

const (
	// UnknownFieldsWarn records a warning and lowers the comparison to a
	// predicate that matches nothing.
	UnknownFieldsWarn UnknownFieldPolicy = "warn"
	// UnknownFieldsError fails the transformation with *UnknownFieldError.
	UnknownFieldsError UnknownFieldPolicy = "error"
)

// Config is the static transformation setup of one collection.
type Config struct {
	Aliases Aliases `mapstructure:"aliases" yaml:"aliases"`
	// Fields declares the public fields. A nil map accepts every field.
	Fields        map[string]FieldSpec `mapstructure:"fields" yaml:"fields"`
	UnknownFields UnknownFieldPolicy   `mapstructure:"unknown_fields" yaml:"unknown_fields"`
	// ProviderPrefix is this provider's field prefix, e.g. "_exmpl_". Fields
	// with any other leading-underscore prefix belong to other providers.
	ProviderPrefix string `mapstructure:"provider_prefix" yaml:"provider_prefix"`
}

// Builtin fields are stored as entry columns and are always known.
const (
	FieldID   = "id"
	FieldType = "type"
)

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.UnknownFields {
	case "", UnknownFieldsWarn, UnknownFieldsError:
	default:
		return fmt.Errorf("invalid unknown_fields policy %q", c.UnknownFields)
	}

	for public, storage := range c.Aliases.Fields {
		if public == "" || storage == "" {
			return fmt.Errorf("alias %q -> %q: names must not be empty", public, storage)
		}
		if public == FieldID || public == FieldType {
			return fmt.Errorf("builtin field %q cannot be aliased", public)
		}
	}
	for list, length := range c.Aliases.Lengths {
		if list == "" || length == "" {
			return fmt.Errorf("length alias %q -> %q: names must not be empty", list, length)
		}
		if spec, ok := c.Fields[length]; ok && spec.Kind != KindInt {
			return fmt.Errorf("length alias %q -> %q: target must be an int field", list, length)
		}
	}
	for name, spec := range c.Fields {
		switch spec.Kind {
		case KindString, KindInt, KindFloat:
		default:
			return fmt.Errorf("field %q: invalid kind %q", name, spec.Kind)
		}
	}
	if c.ProviderPrefix != "" && !(strings.HasPrefix(c.ProviderPrefix, "_") && strings.HasSuffix(c.ProviderPrefix, "_")) {
		return fmt.Errorf("provider prefix %q must have the form _name_", c.ProviderPrefix)
	}
	return nil
}

func (c *Config) policy() UnknownFieldPolicy {
	if c.UnknownFields == "" {
		return UnknownFieldsWarn
	}
	return c.UnknownFields
}

// StorageName maps a public field to its storage name. An alias applies
// when its key equals the field or is a dotted prefix of it; a key that only
// shares leading characters never matches.
func (c *Config) StorageName(public string) string {
	if storage, ok := c.Aliases.Fields[public]; ok {
		return storage
	}
	for i := strings.LastIndexByte(public, '.'); i > 0; i = strings.LastIndexByte(public[:i], '.') {
		if storage, ok := c.Aliases.Fields[public[:i]]; ok {
			return storage + public[i:]
		}
	}
	return public
}

// PublicName maps a storage field back to its public name. When several
// public fields alias the same storage field the smallest name wins.
func (c *Config) PublicName(storage string) string {
	if public, ok := c.publicAlias(storage); ok {
		return public
	}
	for i := strings.LastIndexByte(storage, '.'); i > 0; i = strings.LastIndexByte(storage[:i], '.') {
		if public, ok := c.publicAlias(storage[:i]); ok {
			return public + storage[i:]
		}
	}
	return storage
}

func (c *Config) publicAlias(storage string) (string, bool) {
	var (
		best  string
		found bool
	)
	for public, s := range c.Aliases.Fields {
		if s == storage && (!found || public < best) {
			best, found = public, true
		}
	}
	return best, found
}

// LengthField returns the public cardinality field registered for a list
// field.
func (c *Config) LengthField(public string) (string, bool) {
	length, ok := c.Aliases.Lengths[public]
	return length, ok
}

// Spec returns the declared spec of a public field. Fields nested below a
// declared field inherit its declaration.
func (c *Config) Spec(public string) (FieldSpec, bool) {
	if public == FieldID || public == FieldType {
		return FieldSpec{Kind: KindString}, true
	}
	if spec, ok := c.Fields[public]; ok {
		return spec, true
	}
	for i := strings.LastIndexByte(public, '.'); i > 0; i = strings.LastIndexByte(public[:i], '.') {
		if spec, ok := c.Fields[public[:i]]; ok {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// foreign reports whether the field carries another provider's prefix.
func (c *Config) foreign(public string) bool {
	if !strings.HasPrefix(public, "_") {
		return false
	}
	return c.ProviderPrefix == "" || !strings.HasPrefix(public, c.ProviderPrefix)
}
