package ast

import (
	"errors"
	"fmt"
)

// ErrUnsupportedNode is returned by Accept for nodes outside the closed set.
var ErrUnsupportedNode = errors.New("unsupported filter node")

// Visitor lowers a normalized tree into a backend representation T.
// Implementations recurse into children with Accept.
type Visitor[T any] interface {
	VisitAnd(n *And) (T, error)
	VisitOr(n *Or) (T, error)
	VisitNot(n *Not) (T, error)
	VisitComparison(n *Comparison) (T, error)
	VisitSetComparison(n *SetComparison) (T, error)
	VisitZipComparison(n *ZipComparison) (T, error)
	VisitLengthComparison(n *LengthComparison) (T, error)
	VisitStringPredicate(n *StringPredicate) (T, error)
	VisitIsKnown(n *IsKnown) (T, error)
}

// Accept dispatches e to the matching Visitor method.
func Accept[T any](e Expr, v Visitor[T]) (T, error) {
	switch n := e.(type) {
	case *And:
		return v.VisitAnd(n)
	case *Or:
		return v.VisitOr(n)
	case *Not:
		return v.VisitNot(n)
	case *Comparison:
		return v.VisitComparison(n)
	case *SetComparison:
		return v.VisitSetComparison(n)
	case *ZipComparison:
		return v.VisitZipComparison(n)
	case *LengthComparison:
		return v.VisitLengthComparison(n)
	case *StringPredicate:
		return v.VisitStringPredicate(n)
	case *IsKnown:
		return v.VisitIsKnown(n)
	}
	var zero T
	return zero, fmt.Errorf("%w: %T", ErrUnsupportedNode, e)
}
