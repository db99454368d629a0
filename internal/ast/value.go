package ast

import (
	"math"
	"strconv"
	"strings"
)

// Kind tags the payload of a Value.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindProperty
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindProperty:
		return "property"
	}
	return "unknown"
}

// Value is a filter literal. The kind is fixed when the literal is parsed,
// so transformers switch on Kind instead of inspecting dynamic types.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	path Path
}

// Int returns an integer literal.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point literal.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string literal.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Property returns a property reference used in value position.
func Property(p Path) Value { return Value{kind: KindProperty, path: p} }

// Kind returns the literal kind.
func (v Value) Kind() Kind { return v.kind }

// IsNumber reports whether the literal is an Int or a Float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// Int64 returns the integer payload; floats are truncated.
func (v Value) Int64() int64 {
	if v.kind == KindFloat {
		return int64(v.f)
	}
	return v.i
}

// Float64 returns the numeric payload as a float64.
func (v Value) Float64() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// Text returns the string payload.
func (v Value) Text() string { return v.s }

// Path returns the property payload.
func (v Value) Path() Path { return v.path }

// Interface returns the payload as int64, float64, string or the dotted
// property name.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindProperty:
		return v.path.String()
	}
	return nil
}

// Equal reports whether two literals have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindProperty:
		return v.path.String() == o.path.String()
	}
	return false
}

// String renders the literal in filter syntax.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return quote(v.s)
	case KindProperty:
		return v.path.String()
	}
	return "?"
}

// formatFloat always yields text that parses back as a float: a decimal
// point or exponent is present, and infinities use an overflowing exponent.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "1e999"
	case math.IsInf(f, -1):
		return "-1e999"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}
