package entry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
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
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	}
	return "unknown"
}

// Value is an attribute value. Its kind is decided when the entry is
// ingested and never inferred again.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	list []Value
}

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List returns a list value.
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) Text() string   { return v.s }
func (v Value) Items() []Value { return v.list }

// IsNumber reports whether v is an Int or a Float.
func (v Value) IsNumber() bool {
	return v.kind == KindInt || v.kind == KindFloat
}

// Int64 returns the integer payload; floats are truncated.
func (v Value) Int64() int64 {
	if v.kind == KindFloat {
		return int64(v.f)
	}
	return v.i
}

// Float64 returns the numeric payload.
func (v Value) Float64() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// Interface returns the payload as int64, float64, string or []any.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	}
	return nil
}

// Compare orders two values. Numbers compare by magnitude across kinds and
// sort before strings; lists sort last and compare by length.
func (v Value) Compare(o Value) int {
	rank := func(x Value) int {
		switch {
		case x.IsNumber():
			return 0
		case x.kind == KindString:
			return 1
		}
		return 2
	}
	if rv, ro := rank(v), rank(o); rv != ro {
		return rv - ro
	}

	switch {
	case v.kind == KindInt && o.kind == KindInt:
		return cmp3(v.i < o.i, v.i > o.i)
	case v.IsNumber():
		a, b := v.Float64(), o.Float64()
		return cmp3(a < b, a > b)
	case v.kind == KindString:
		return strings.Compare(v.s, o.s)
	}
	return len(v.list) - len(o.list)
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// MarshalJSON renders the payload. Infinite floats have no JSON form and
// are rendered as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return strconv.AppendInt(nil, v.i, 10), nil
	case KindFloat:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return []byte("null"), nil
		}
		b, err := json.Marshal(v.f)
		if err != nil {
			return nil, err
		}
		// keep the kind when the entry is decoded again
		if !bytes.ContainsAny(b, ".eE") {
			b = append(b, ".0"...)
		}
		return b, nil
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("entry: cannot marshal value of kind %s", v.kind)
}

// ValueOf converts a decoded JSON value. Numbers should be decoded with
// json.Decoder.UseNumber so integers keep their kind. ok is false for
// null, which callers drop.
func ValueOf(raw any) (v Value, ok bool, err error) {
	switch x := raw.(type) {
	case nil:
		return Value{}, false, nil
	case string:
		return String(x), true, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), true, nil
		}
		f, err := strconv.ParseFloat(x.String(), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return Value{}, false, fmt.Errorf("invalid number %s: %w", x, err)
		}
		return Float(f), true, nil
	case int:
		return Int(int64(x)), true, nil
	case int64:
		return Int(x), true, nil
	case float64:
		return Float(x), true, nil
	case bool:
		// booleans are stored as their filter literal
		return String(strconv.FormatBool(x)), true, nil
	case []any:
		items := make([]Value, 0, len(x))
		for _, item := range x {
			iv, ok, err := ValueOf(item)
			if err != nil {
				return Value{}, false, err
			}
			if ok {
				items = append(items, iv)
			}
		}
		return List(items...), true, nil
	}
	return Value{}, false, fmt.Errorf("unsupported attribute value of type %T", raw)
}
