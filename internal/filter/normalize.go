package filter

import (
	"errors"
	"strconv"
	"strings"

	"github.com/nlstn/go-optimade/internal/ast"
)

// literal is a normalized value node. A single-quoted list yields several
// values and sets list.
type literal struct {
	values []ast.Value
	list   bool
	pos    int
}

type listItem struct {
	op    ast.Operator
	value literal
}

type opRHS struct {
	op    ast.Operator
	value literal
}

type fuzzyRHS struct {
	kind  ast.StringKind
	value literal
}

type setRHS struct {
	quantifier ast.Quantifier
	items      []listItem
}

type zipRHS struct {
	fields     []ast.Path
	quantifier ast.Quantifier
	tuples     [][]listItem
}

type knownRHS struct {
	unknown bool
}

type lengthRHS struct {
	op    ast.Operator
	value literal
}

// Normalize converts a CST produced by ParseCST into an AST. Children are
// converted before their parent; an empty filter yields a nil expression.
func Normalize(root *Node) (ast.Expr, error) {
	if root == nil || root.Rule != RuleFilter {
		return nil, &SyntaxError{Msg: "normalize requires a filter node"}
	}
	res, err := walk(root)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.(ast.Expr), nil
}

func walk(node *Node) (any, error) {
	children := make([]any, len(node.Children))
	for i, c := range node.Children {
		res, err := walk(c)
		if err != nil {
			return nil, err
		}
		children[i] = res
	}

	switch node.Rule {
	case RuleToken:
		return node.Token, nil
	case RuleProperty:
		return ast.ParsePath(node.Children[0].Token.Value), nil
	case RuleOperator:
		op, ok := ast.ParseOperator(node.Children[0].Token.Value)
		if !ok {
			return nil, errorAt(node, "unknown operator %q", node.Children[0].Token.Value)
		}
		return op, nil
	case RuleValue:
		return toLiteral(node, children[0])
	case RuleValueList, RuleValueZip:
		return collectItems(children), nil
	case RuleValueZipList:
		var tuples [][]listItem
		for _, c := range children {
			if tuple, ok := c.([]listItem); ok {
				tuples = append(tuples, tuple)
			}
		}
		return tuples, nil
	case RuleValueOpRHS:
		return opRHS{op: children[0].(ast.Operator), value: children[1].(literal)}, nil
	case RuleFuzzyStringOpRHS:
		return fuzzyRHS{kind: stringKind(children[0].(*Token)), value: children[len(children)-1].(literal)}, nil
	case RuleSetOpRHS:
		return toSetRHS(children), nil
	case RuleSetZipOpRHS:
		return toZipRHS(children), nil
	case RuleKnownOpRHS:
		return knownRHS{unknown: children[1].(*Token).Value == "UNKNOWN"}, nil
	case RuleLengthOpRHS:
		return toLengthRHS(children[1:]), nil
	case RuleLengthComparison:
		rhs := toLengthRHS(children[2:])
		return lengthComparison(node, children[1].(ast.Path), rhs)
	case RuleComparison:
		return comparison(node, children)
	case RulePhrase:
		return phrase(children), nil
	case RuleClause:
		return fold(children, func(l, r ast.Expr) ast.Expr { return &ast.And{Left: l, Right: r} }), nil
	case RuleExpression:
		return fold(children, func(l, r ast.Expr) ast.Expr { return &ast.Or{Left: l, Right: r} }), nil
	case RuleFilter:
		if len(children) == 0 {
			return nil, nil
		}
		return children[0], nil
	}
	return nil, errorAt(node, "unexpected grammar rule %q", node.Rule)
}

func errorAt(node *Node, format string, args ...any) *SyntaxError {
	return newSyntaxError("", node.Pos, "", format, args...)
}

func toLiteral(node *Node, child any) (literal, error) {
	lit := literal{pos: node.Pos}
	switch c := child.(type) {
	case ast.Path:
		lit.values = []ast.Value{ast.Property(c)}
	case *Token:
		switch c.Type {
		case TokenString:
			lit.values = []ast.Value{ast.String(c.Value)}
		case TokenNumber:
			v, err := parseNumber(c.Value)
			if err != nil {
				return lit, errorAt(node, "invalid number %s", c.Value)
			}
			lit.values = []ast.Value{v}
		case TokenLegacyString:
			lit.values = splitLegacyList(c.Value)
			lit.list = len(lit.values) > 1
		}
	}
	return lit, nil
}

// splitLegacyList splits the contents of a single-quoted literal on commas.
// Only commas inside the quotes separate values.
func splitLegacyList(s string) []ast.Value {
	var out []ast.Value
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, ast.String(part))
	}
	if len(out) == 0 {
		out = append(out, ast.String(strings.TrimSpace(s)))
	}
	return out
}

// parseNumber keeps integral literals that fit in an int64 as integers.
// Everything else is a float; literals out of float range become ±Inf.
func parseNumber(text string) (ast.Value, error) {
	text = strings.TrimPrefix(text, "+")
	if !strings.ContainsAny(text, ".eE") {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return ast.Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return ast.Value{}, err
	}
	return ast.Float(f), nil
}

func stringKind(tok *Token) ast.StringKind {
	switch tok.Value {
	case "STARTS":
		return ast.StartsWith
	case "ENDS":
		return ast.EndsWith
	}
	return ast.Contains
}

func quantifier(tok *Token) (ast.Quantifier, bool) {
	switch tok.Value {
	case "ALL":
		return ast.HasAll, true
	case "ANY":
		return ast.HasAny, true
	case "ONLY":
		return ast.HasOnly, true
	}
	return ast.Has, false
}

// collectItems pairs each value with the operator preceding it.
func collectItems(children []any) []listItem {
	var items []listItem
	op := ast.OpEq
	for _, c := range children {
		switch c := c.(type) {
		case ast.Operator:
			op = c
		case literal:
			items = append(items, listItem{op: op, value: c})
			op = ast.OpEq
		}
	}
	return items
}

func toSetRHS(children []any) setRHS {
	if tok, ok := children[1].(*Token); ok {
		if q, ok := quantifier(tok); ok {
			return setRHS{quantifier: q, items: children[2].([]listItem)}
		}
	}
	return setRHS{quantifier: ast.Has, items: collectItems(children[1:])}
}

func toZipRHS(children []any) zipRHS {
	var rhs zipRHS
	for _, c := range children {
		switch c := c.(type) {
		case ast.Path:
			rhs.fields = append(rhs.fields, c)
		case *Token:
			if q, ok := quantifier(c); ok {
				rhs.quantifier = q
			}
		case []listItem:
			rhs.tuples = [][]listItem{c}
		case [][]listItem:
			rhs.tuples = c
		}
	}
	return rhs
}

func toLengthRHS(children []any) lengthRHS {
	rhs := lengthRHS{op: ast.OpEq}
	for _, c := range children {
		switch c := c.(type) {
		case ast.Operator:
			rhs.op = c
		case literal:
			rhs.value = c
		}
	}
	return rhs
}

func comparison(node *Node, children []any) (ast.Expr, error) {
	switch left := children[0].(type) {
	case ast.Expr:
		return left, nil

	case literal:
		// constant OP property is rewritten as property FLIPPED-OP constant
		rhs := children[1].(opRHS)
		return valueComparison(node, rhs.value.values[0].Path(), rhs.op.Flip(), left)

	case ast.Path:
		switch rhs := children[1].(type) {
		case opRHS:
			return valueComparison(node, left, rhs.op, rhs.value)
		case fuzzyRHS:
			if rhs.value.list {
				return nil, errorAt(node, "%s takes a single value", rhs.kind)
			}
			return &ast.StringPredicate{Field: left, Kind: rhs.kind, Value: rhs.value.values[0]}, nil
		case setRHS:
			items := expandItems(rhs.items)
			q := rhs.quantifier
			if q == ast.Has && len(items) > 1 {
				q = ast.HasAll
			}
			return &ast.SetComparison{Field: left, Quantifier: q, Items: items}, nil
		case zipRHS:
			return zipComparison(node, left, rhs)
		case knownRHS:
			return &ast.IsKnown{Field: left, Unknown: rhs.unknown}, nil
		case lengthRHS:
			return lengthComparison(node, left, rhs)
		}
	}
	return nil, errorAt(node, "malformed comparison")
}

// valueComparison builds "field op value". A legacy list compared with =
// means the field holds all listed values.
func valueComparison(node *Node, field ast.Path, op ast.Operator, lit literal) (ast.Expr, error) {
	if !lit.list {
		return &ast.Comparison{Field: field, Op: op, Value: lit.values[0]}, nil
	}
	if op != ast.OpEq {
		return nil, errorAt(node, "a value list can only be compared with =")
	}
	items := make([]ast.Item, len(lit.values))
	for i, v := range lit.values {
		items[i] = ast.Item{Op: ast.OpEq, Value: v}
	}
	return &ast.SetComparison{Field: field, Quantifier: ast.HasAll, Items: items}, nil
}

func expandItems(items []listItem) []ast.Item {
	var out []ast.Item
	for _, it := range items {
		for _, v := range it.value.values {
			out = append(out, ast.Item{Op: it.op, Value: v})
		}
	}
	return out
}

func zipComparison(node *Node, first ast.Path, rhs zipRHS) (ast.Expr, error) {
	fields := append([]ast.Path{first}, rhs.fields...)
	tuples := make([][]ast.Item, len(rhs.tuples))
	for i, tuple := range rhs.tuples {
		if len(tuple) != len(fields) {
			return nil, errorAt(node, "correlated value has %d components, want %d", len(tuple), len(fields))
		}
		row := make([]ast.Item, len(tuple))
		for j, it := range tuple {
			if it.value.list {
				return nil, errorAt(node, "value lists cannot be used in correlated HAS")
			}
			row[j] = ast.Item{Op: it.op, Value: it.value.values[0]}
		}
		tuples[i] = row
	}
	return &ast.ZipComparison{Fields: fields, Quantifier: rhs.quantifier, Tuples: tuples}, nil
}

func lengthComparison(node *Node, field ast.Path, rhs lengthRHS) (ast.Expr, error) {
	if rhs.value.list || rhs.value.values[0].Kind() != ast.KindInt {
		return nil, newSyntaxError("", rhs.value.pos, "", "LENGTH requires an integer")
	}
	return &ast.LengthComparison{Field: field, Op: rhs.op, Value: rhs.value.values[0]}, nil
}

func phrase(children []any) ast.Expr {
	negate := false
	var inner ast.Expr
	for _, c := range children {
		switch c := c.(type) {
		case *Token:
			if c.is("NOT") {
				negate = true
			}
		case ast.Expr:
			inner = c
		}
	}
	if negate {
		return &ast.Not{Inner: inner}
	}
	return inner
}

// fold joins the operands of an n-ary chain left to right.
func fold(children []any, join func(l, r ast.Expr) ast.Expr) ast.Expr {
	var out ast.Expr
	for _, c := range children {
		e, ok := c.(ast.Expr)
		if !ok {
			continue
		}
		if out == nil {
			out = e
		} else {
			out = join(out, e)
		}
	}
	return out
}
