package docstore

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nlstn/go-optimade/internal/entry"
	"github.com/nlstn/go-optimade/internal/transform/mongo"
)

// matcher reports whether an entry satisfies a compiled predicate.
type matcher func(e *entry.Entry) bool

// valueMatcher tests a field value; present is false for missing fields.
type valueMatcher func(v entry.Value, present bool) bool

func matchAll(*entry.Entry) bool { return true }

// compile turns a query document into a matcher. Documents follow MongoDB
// semantics: a list field satisfies an operator when any of its elements
// does, and missing fields equal null.
func compile(doc mongo.Document) (matcher, error) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var ms []matcher
	for _, key := range keys {
		m, err := compileKey(key, doc[key])
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return and(ms), nil
}

func compileKey(key string, spec any) (matcher, error) {
	switch key {
	case "$and", "$or", "$nor":
		clauses, ok := spec.([]any)
		if !ok || len(clauses) == 0 {
			return nil, fmt.Errorf("%s needs a non-empty array", key)
		}
		ms := make([]matcher, len(clauses))
		for i, clause := range clauses {
			doc, ok := clause.(mongo.Document)
			if !ok {
				return nil, fmt.Errorf("%s clause %d is %T, not a document", key, i, clause)
			}
			m, err := compile(doc)
			if err != nil {
				return nil, err
			}
			ms[i] = m
		}
		switch key {
		case "$and":
			return and(ms), nil
		case "$or":
			return or(ms), nil
		}
		anyOf := or(ms)
		return func(e *entry.Entry) bool { return !anyOf(e) }, nil
	}
	if strings.HasPrefix(key, "$") {
		return nil, fmt.Errorf("unsupported top-level operator %s", key)
	}

	vm, err := compileField(spec)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", key, err)
	}
	return func(e *entry.Entry) bool {
		v, ok := e.Get(key)
		return vm(v, ok)
	}, nil
}

// compileField compiles {$op: operand, ...} or a bare value meaning $eq.
func compileField(spec any) (valueMatcher, error) {
	ops, ok := spec.(mongo.Document)
	if !ok || !isOperatorDoc(ops) {
		return compileOp("$eq", spec)
	}

	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	vms := make([]valueMatcher, 0, len(ops))
	for _, name := range names {
		vm, err := compileOp(name, ops[name])
		if err != nil {
			return nil, err
		}
		vms = append(vms, vm)
	}
	return func(v entry.Value, present bool) bool {
		for _, vm := range vms {
			if !vm(v, present) {
				return false
			}
		}
		return true
	}, nil
}

func isOperatorDoc(d mongo.Document) bool {
	if len(d) == 0 {
		return false
	}
	for k := range d {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func compileOp(op string, operand any) (valueMatcher, error) {
	switch op {
	case "$eq", "$ne":
		want, null, err := operandValue(operand)
		if err != nil {
			return nil, err
		}
		eq := func(v entry.Value, present bool) bool {
			if null {
				return !present
			}
			return present && anyElement(v, func(x entry.Value) bool { return equal(x, want) })
		}
		if op == "$ne" {
			return negate(eq), nil
		}
		return eq, nil

	case "$lt", "$lte", "$gt", "$gte":
		want, null, err := operandValue(operand)
		if err != nil {
			return nil, err
		}
		if null {
			return nil, fmt.Errorf("%s needs a non-null operand", op)
		}
		test := orderTest(op)
		return func(v entry.Value, present bool) bool {
			return present && anyElement(v, func(x entry.Value) bool {
				c, ok := compare(x, want)
				return ok && test(c)
			})
		}, nil

	case "$in", "$nin":
		alts, err := operandList(op, operand)
		if err != nil {
			return nil, err
		}
		in := or2(alts)
		if op == "$nin" {
			return negate(in), nil
		}
		return in, nil

	case "$all":
		all, err := operandList(op, operand)
		if err != nil {
			return nil, err
		}
		return func(v entry.Value, present bool) bool {
			if len(all) == 0 {
				return false
			}
			for _, m := range all {
				if !m(v, present) {
					return false
				}
			}
			return true
		}, nil

	case "$size":
		n, ok := toInt(operand)
		if !ok || n < 0 {
			return nil, fmt.Errorf("$size needs a non-negative integer, got %v", operand)
		}
		return func(v entry.Value, present bool) bool {
			return present && v.Kind() == entry.KindList && len(v.Items()) == n
		}, nil

	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return nil, fmt.Errorf("$exists needs a boolean, got %T", operand)
		}
		return func(_ entry.Value, present bool) bool { return present == want }, nil

	case "$regex":
		pattern, ok := operand.(string)
		if !ok {
			return nil, fmt.Errorf("$regex needs a string, got %T", operand)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("$regex: %w", err)
		}
		return func(v entry.Value, present bool) bool {
			return present && anyElement(v, func(x entry.Value) bool {
				return x.Kind() == entry.KindString && re.MatchString(x.Text())
			})
		}, nil

	case "$not":
		ops, ok := operand.(mongo.Document)
		if !ok || !isOperatorDoc(ops) {
			return nil, fmt.Errorf("$not needs an operator document")
		}
		inner, err := compileField(ops)
		if err != nil {
			return nil, err
		}
		return negate(inner), nil
	}
	return nil, fmt.Errorf("unsupported operator %s", op)
}

// operandList compiles each element of an $in, $nin or $all array to an
// equality test.
func operandList(op string, operand any) ([]valueMatcher, error) {
	items, ok := operand.([]any)
	if !ok {
		return nil, fmt.Errorf("%s needs an array, got %T", op, operand)
	}
	out := make([]valueMatcher, len(items))
	for i, item := range items {
		m, err := compileOp("$eq", item)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// operandValue converts a document operand; null reports a nil operand.
func operandValue(operand any) (v entry.Value, null bool, err error) {
	switch x := operand.(type) {
	case nil:
		return entry.Value{}, true, nil
	case int:
		return entry.Int(int64(x)), false, nil
	case int64:
		return entry.Int(x), false, nil
	case float64:
		return entry.Float(x), false, nil
	case string:
		return entry.String(x), false, nil
	}
	return entry.Value{}, false, fmt.Errorf("unsupported operand %v of type %T", operand, operand)
}

func toInt(operand any) (int, bool) {
	switch x := operand.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	}
	return 0, false
}

// anyElement applies test to a scalar, or to each element of a list.
func anyElement(v entry.Value, test func(entry.Value) bool) bool {
	if v.Kind() != entry.KindList {
		return test(v)
	}
	for _, item := range v.Items() {
		if test(item) {
			return true
		}
	}
	return false
}

// compare orders values of the same type class; ok is false across
// classes, where no order comparison matches.
func compare(a, b entry.Value) (int, bool) {
	switch {
	case a.IsNumber() && b.IsNumber():
		return a.Compare(b), true
	case a.Kind() == entry.KindString && b.Kind() == entry.KindString:
		return a.Compare(b), true
	}
	return 0, false
}

func equal(a, b entry.Value) bool {
	c, ok := compare(a, b)
	return ok && c == 0
}

func orderTest(op string) func(int) bool {
	switch op {
	case "$lt":
		return func(c int) bool { return c < 0 }
	case "$lte":
		return func(c int) bool { return c <= 0 }
	case "$gt":
		return func(c int) bool { return c > 0 }
	}
	return func(c int) bool { return c >= 0 }
}

func negate(m valueMatcher) valueMatcher {
	return func(v entry.Value, present bool) bool { return !m(v, present) }
}

func or2(ms []valueMatcher) valueMatcher {
	return func(v entry.Value, present bool) bool {
		for _, m := range ms {
			if m(v, present) {
				return true
			}
		}
		return false
	}
}

func and(ms []matcher) matcher {
	if len(ms) == 0 {
		return matchAll
	}
	if len(ms) == 1 {
		return ms[0]
	}
	return func(e *entry.Entry) bool {
		for _, m := range ms {
			if !m(e) {
				return false
			}
		}
		return true
	}
}

func or(ms []matcher) matcher {
	return func(e *entry.Entry) bool {
		for _, m := range ms {
			if m(e) {
				return true
			}
		}
		return false
	}
}
