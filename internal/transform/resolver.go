package transform

import (
	"fmt"

	"github.com/nlstn/go-optimade/internal/ast"
)

// Warning codes.
const (
	WarningUnknownField = "unknown_field"
)

// Warning is a non-fatal remark produced while lowering a filter.
type Warning struct {
	Code   string `json:"code"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail"`
}

// Field is the resolution of a public field reference.
type Field struct {
	Public  string
	Storage string
	Spec    FieldSpec
	// Declared is set when Spec comes from the configuration.
	Declared bool
}

// Builtin reports whether the field is an entry column rather than an
// attribute.
func (f Field) Builtin() bool {
	return f.Public == FieldID || f.Public == FieldType
}

// Resolver resolves field references for one transformation and collects
// its warnings. It is not safe for concurrent use.
type Resolver struct {
	cfg      *Config
	warnings []Warning
	warned   map[string]bool
}

// NewResolver returns a resolver over cfg. A nil cfg accepts every field
// without aliases.
func NewResolver(cfg *Config) *Resolver {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Resolver{cfg: cfg, warned: make(map[string]bool)}
}

// Config returns the configuration the resolver reads.
func (r *Resolver) Config() *Config {
	return r.cfg
}

// Resolve looks up path. ok is false for unknown fields the caller should
// treat as matching nothing; err is set when the policy rejects them.
func (r *Resolver) Resolve(path ast.Path) (field Field, ok bool, err error) {
	public := path.String()
	field = Field{Public: public, Storage: r.cfg.StorageName(public)}

	if r.cfg.foreign(public) {
		return field, false, nil
	}

	spec, declared := r.cfg.Spec(public)
	if declared || r.cfg.Fields == nil {
		field.Spec, field.Declared = spec, declared
		return field, true, nil
	}

	if r.cfg.policy() == UnknownFieldsError {
		return field, false, &UnknownFieldError{Field: public}
	}
	r.warn(Warning{
		Code:   WarningUnknownField,
		Field:  public,
		Detail: fmt.Sprintf("field %q is not known to this collection; comparisons on it match nothing", public),
	})
	return field, false, nil
}

// LengthField returns the resolved cardinality field registered for the
// list field at path.
func (r *Resolver) LengthField(path ast.Path) (Field, bool) {
	length, ok := r.cfg.LengthField(path.String())
	if !ok {
		return Field{}, false
	}
	spec, declared := r.cfg.Spec(length)
	if !declared {
		spec = FieldSpec{Kind: KindInt}
	}
	return Field{Public: length, Storage: r.cfg.StorageName(length), Spec: spec, Declared: declared}, true
}

func (r *Resolver) warn(w Warning) {
	if r.warned[w.Field] {
		return
	}
	r.warned[w.Field] = true
	r.warnings = append(r.warnings, w)
}

// Warnings returns the warnings collected so far in order of appearance.
func (r *Resolver) Warnings() []Warning {
	out := make([]Warning, len(r.warnings))
	copy(out, r.warnings)
	return out
}
