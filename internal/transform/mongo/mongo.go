// Package mongo lowers filters into MongoDB-style predicate documents.
package mongo

import (
	"regexp"

	"github.com/nlstn/go-optimade/internal/ast"
	"github.com/nlstn/go-optimade/internal/transform"
)

// Document is a MongoDB-style query document.
type Document = map[string]any

// noMatch is a predicate no document satisfies.
func noMatch() Document {
	return Document{"$nor": []any{Document{}}}
}

var comparisonOps = map[ast.Operator]string{
	ast.OpEq: "$eq",
	ast.OpLt: "$lt",
	ast.OpLe: "$lte",
	ast.OpGt: "$gt",
	ast.OpGe: "$gte",
}

// Transformer implements ast.Visitor[Document].
type Transformer struct {
	resolver *transform.Resolver
}

var _ ast.Visitor[Document] = (*Transformer)(nil)

// New returns a transformer resolving fields through r.
func New(r *transform.Resolver) *Transformer {
	return &Transformer{resolver: r}
}

// Transform lowers e. A nil expression matches every document.
func Transform(e ast.Expr, r *transform.Resolver) (Document, error) {
	if e == nil {
		return Document{}, nil
	}
	return transform.Lower[Document](e, New(r))
}

func (t *Transformer) binary(op string, l, r ast.Expr) (Document, error) {
	left, err := ast.Accept[Document](l, t)
	if err != nil {
		return nil, err
	}
	right, err := ast.Accept[Document](r, t)
	if err != nil {
		return nil, err
	}
	return Document{op: []any{left, right}}, nil
}

func (t *Transformer) VisitAnd(n *ast.And) (Document, error) {
	return t.binary("$and", n.Left, n.Right)
}

func (t *Transformer) VisitOr(n *ast.Or) (Document, error) {
	return t.binary("$or", n.Left, n.Right)
}

// VisitNot negates a single-field operator document in place with $not.
// Compound or already negated predicates are wrapped in $nor.
func (t *Transformer) VisitNot(n *ast.Not) (Document, error) {
	inner, err := ast.Accept[Document](n.Inner, t)
	if err != nil {
		return nil, err
	}
	if field, ops, ok := fieldOperators(inner); ok {
		if _, negated := ops["$not"]; !negated {
			return Document{field: Document{"$not": ops}}, nil
		}
	}
	return Document{"$nor": []any{inner}}, nil
}

// fieldOperators matches {field: {$op: ...}} documents.
func fieldOperators(d Document) (string, Document, bool) {
	if len(d) != 1 {
		return "", nil, false
	}
	for field, v := range d {
		if len(field) > 0 && field[0] == '$' {
			return "", nil, false
		}
		ops, ok := v.(Document)
		if !ok || len(ops) == 0 {
			return "", nil, false
		}
		for op := range ops {
			if len(op) == 0 || op[0] != '$' {
				return "", nil, false
			}
		}
		return field, ops, true
	}
	return "", nil, false
}

func (t *Transformer) VisitComparison(n *ast.Comparison) (Document, error) {
	v, err := transform.ScalarOperand(n)
	if err != nil {
		return nil, err
	}
	f, ok, err := t.resolver.Resolve(n.Field)
	if err != nil {
		return nil, err
	}
	if !ok {
		return noMatch(), nil
	}
	if err := transform.CheckKind(n, f, v); err != nil {
		return nil, err
	}

	if n.Op == ast.OpNe {
		// only known values can differ
		return Document{f.Storage: Document{"$nin": []any{v.Interface(), nil}}}, nil
	}
	return Document{f.Storage: Document{comparisonOps[n.Op]: v.Interface()}}, nil
}

func (t *Transformer) VisitSetComparison(n *ast.SetComparison) (Document, error) {
	values, err := transform.SetOperands(n)
	if err != nil {
		return nil, err
	}
	f, ok, err := t.resolver.Resolve(n.Field)
	if err != nil {
		return nil, err
	}
	if !ok {
		return noMatch(), nil
	}
	for _, v := range values {
		if err := transform.CheckKind(n, f, v); err != nil {
			return nil, err
		}
	}

	switch n.Quantifier {
	case ast.Has, ast.HasAny:
		return Document{f.Storage: Document{"$in": interfaces(values)}}, nil
	case ast.HasAll:
		return Document{f.Storage: Document{"$all": interfaces(values)}}, nil
	case ast.HasOnly:
		// $size alone accepts lists with repeated values, so pair it with
		// $all over the distinct values
		distinct := transform.Distinct(values)
		return Document{f.Storage: Document{
			"$all":  interfaces(distinct),
			"$size": len(distinct),
		}}, nil
	}
	return nil, transform.NotImplemented(n, "unknown quantifier")
}

func (t *Transformer) VisitZipComparison(n *ast.ZipComparison) (Document, error) {
	return nil, transform.Correlated(n)
}

// VisitLengthComparison rewrites LENGTH into a comparison on the registered
// cardinality field.
func (t *Transformer) VisitLengthComparison(n *ast.LengthComparison) (Document, error) {
	_, ok, err := t.resolver.Resolve(n.Field)
	if err != nil {
		return nil, err
	}
	if !ok {
		return noMatch(), nil
	}
	length, err := transform.LengthOperand(n, t.resolver)
	if err != nil {
		return nil, err
	}
	return Document{length.Storage: Document{comparisonOps[n.Op]: n.Value.Interface()}}, nil
}

func (t *Transformer) VisitStringPredicate(n *ast.StringPredicate) (Document, error) {
	s, err := transform.StringOperand(n)
	if err != nil {
		return nil, err
	}
	f, ok, err := t.resolver.Resolve(n.Field)
	if err != nil {
		return nil, err
	}
	if !ok {
		return noMatch(), nil
	}

	pattern := regexp.QuoteMeta(s)
	switch n.Kind {
	case ast.StartsWith:
		pattern = "^" + pattern
	case ast.EndsWith:
		pattern += "$"
	}
	return Document{f.Storage: Document{"$regex": pattern}}, nil
}

func (t *Transformer) VisitIsKnown(n *ast.IsKnown) (Document, error) {
	f, ok, err := t.resolver.Resolve(n.Field)
	if err != nil {
		return nil, err
	}
	if !ok {
		if n.Unknown {
			return Document{}, nil
		}
		return noMatch(), nil
	}

	if n.Unknown {
		return Document{"$or": []any{
			Document{f.Storage: Document{"$exists": false}},
			Document{f.Storage: Document{"$eq": nil}},
		}}, nil
	}
	return Document{f.Storage: Document{"$exists": true, "$ne": nil}}, nil
}

func interfaces(vs []ast.Value) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v.Interface()
	}
	return out
}
