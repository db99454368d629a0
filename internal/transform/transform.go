// Package transform holds what every filter dialect shares: field
// resolution through the collection's aliases, the unknown-field policy,
// the error taxonomy and the operand checks that decide which constructs a
// dialect may lower. Dialects live in subpackages and implement
// ast.Visitor for their predicate type.
package transform

import (
	"errors"

	"github.com/nlstn/go-optimade/internal/ast"
)

// Lower runs v over e. A node kind v cannot dispatch is reported as a
// *NotImplementedError carrying the whole expression.
func Lower[T any](e ast.Expr, v ast.Visitor[T]) (T, error) {
	out, err := ast.Accept(e, v)
	if err != nil && errors.Is(err, ast.ErrUnsupportedNode) && !errors.Is(err, ErrNotImplemented) {
		var zero T
		return zero, &NotImplementedError{Expr: ast.Format(e), Reason: err.Error()}
	}
	return out, err
}

// ScalarOperand returns the literal of a comparison. Comparing a field with
// another property is not supported by any dialect.
func ScalarOperand(n *ast.Comparison) (ast.Value, error) {
	if n.Value.Kind() == ast.KindProperty {
		return ast.Value{}, NotImplemented(n, "comparisons between two properties")
	}
	return n.Value, nil
}

// CheckKind rejects a literal whose kind contradicts the declared field
// kind. Undeclared fields accept any literal.
func CheckKind(e ast.Expr, f Field, v ast.Value) error {
	if !f.Declared {
		return nil
	}
	switch {
	case f.Spec.IsNumeric() && !v.IsNumber():
		return InvalidArgument(e, "field %s holds numbers, got %s", f.Public, v.Kind())
	case f.Spec.Kind == KindString && v.Kind() != ast.KindString:
		return InvalidArgument(e, "field %s holds strings, got %s", f.Public, v.Kind())
	}
	return nil
}

// SetOperands returns the values of a HAS comparison. Operators inside the
// value list are not supported.
func SetOperands(n *ast.SetComparison) ([]ast.Value, error) {
	if n.UsesOperators() {
		return nil, NotImplemented(n, "%s with comparison operators", n.Quantifier)
	}
	for _, v := range n.Values() {
		if v.Kind() == ast.KindProperty {
			return nil, NotImplemented(n, "%s with a property operand", n.Quantifier)
		}
	}
	return n.Values(), nil
}

// Distinct returns vs without repeated values, keeping the first
// occurrence.
func Distinct(vs []ast.Value) []ast.Value {
	out := make([]ast.Value, 0, len(vs))
	for _, v := range vs {
		dup := false
		for _, seen := range out {
			if seen.Equal(v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

// StringOperand returns the pattern of a fuzzy string predicate.
func StringOperand(n *ast.StringPredicate) (string, error) {
	if n.Value.Kind() != ast.KindString {
		return "", InvalidArgument(n, "%s requires a string, got %s", n.Kind, n.Value.Kind())
	}
	return n.Value.Text(), nil
}

// LengthOperand resolves a LENGTH comparison to its cardinality field. A
// field without a registered length alias, or the != operator, is not
// supported.
func LengthOperand(n *ast.LengthComparison, r *Resolver) (Field, error) {
	if n.Op == ast.OpNe {
		return Field{}, NotImplemented(n, "LENGTH with !=")
	}
	length, ok := r.LengthField(n.Field)
	if !ok {
		return Field{}, NotImplemented(n, "no length field is registered for %s", n.Field)
	}
	return length, nil
}

// Correlated reports that correlated comparisons are not supported.
func Correlated(n *ast.ZipComparison) error {
	return NotImplemented(n, "correlated comparisons")
}
