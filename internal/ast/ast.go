// Package ast defines the normalized, backend independent representation of
// an OPTIMADE filter. The node set is closed: every transformer implements
// Visitor for all node kinds.
package ast

import "strings"

// Expr is a node of a normalized filter tree.
type Expr interface {
	exprNode()
}

// Operator is a comparison operator.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var operatorText = [...]string{
	OpEq: "=",
	OpNe: "!=",
	OpLt: "<",
	OpLe: "<=",
	OpGt: ">",
	OpGe: ">=",
}

func (o Operator) String() string {
	if int(o) < len(operatorText) {
		return operatorText[o]
	}
	return "?"
}

// Flip returns the operator that keeps the comparison true when its operands
// are swapped, e.g. "1 < x" is "x > 1".
func (o Operator) Flip() Operator {
	switch o {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return o
}

// ParseOperator maps the textual operator to an Operator.
func ParseOperator(s string) (Operator, bool) {
	for i, text := range operatorText {
		if text == s {
			return Operator(i), true
		}
	}
	return 0, false
}

// Quantifier selects the HAS family variant.
type Quantifier int

const (
	Has Quantifier = iota
	HasAll
	HasAny
	HasOnly
)

func (q Quantifier) String() string {
	switch q {
	case Has:
		return "HAS"
	case HasAll:
		return "HAS ALL"
	case HasAny:
		return "HAS ANY"
	case HasOnly:
		return "HAS ONLY"
	}
	return "HAS ?"
}

// StringKind selects the fuzzy string predicate.
type StringKind int

const (
	Contains StringKind = iota
	StartsWith
	EndsWith
)

func (k StringKind) String() string {
	switch k {
	case Contains:
		return "CONTAINS"
	case StartsWith:
		return "STARTS WITH"
	case EndsWith:
		return "ENDS WITH"
	}
	return "?"
}

// Path is a dotted property reference, e.g. structure_features or
// _exmpl_info.source.
type Path []string

// ParsePath splits a dotted property name.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "."))
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Item is one element of a HAS value list: an operator and its operand.
type Item struct {
	Op    Operator
	Value Value
}

// And is a binary conjunction.
type And struct {
	Left  Expr
	Right Expr
}

// Or is a binary disjunction.
type Or struct {
	Left  Expr
	Right Expr
}

// Not negates Inner. Nested negations are kept as written.
type Not struct {
	Inner Expr
}

// Comparison is "Field Op Value".
type Comparison struct {
	Field Path
	Op    Operator
	Value Value
}

// SetComparison is "Field HAS [ALL|ANY|ONLY] items".
type SetComparison struct {
	Field      Path
	Quantifier Quantifier
	Items      []Item
}

// Values returns the operands of the set comparison in order.
func (n *SetComparison) Values() []Value {
	out := make([]Value, len(n.Items))
	for i, it := range n.Items {
		out[i] = it.Value
	}
	return out
}

// UsesOperators reports whether any item carries an operator other than =.
func (n *SetComparison) UsesOperators() bool {
	for _, it := range n.Items {
		if it.Op != OpEq {
			return true
		}
	}
	return false
}

// ZipComparison is the correlated form "f1:f2 HAS [ALL|ANY|ONLY] v1:v2, ...".
type ZipComparison struct {
	Fields     []Path
	Quantifier Quantifier
	Tuples     [][]Item
}

// LengthComparison is "Field LENGTH Op Value".
type LengthComparison struct {
	Field Path
	Op    Operator
	Value Value
}

// StringPredicate is "Field CONTAINS|STARTS WITH|ENDS WITH Value".
type StringPredicate struct {
	Field Path
	Kind  StringKind
	Value Value
}

// IsKnown is "Field IS KNOWN", or "Field IS UNKNOWN" when Unknown is set.
type IsKnown struct {
	Field   Path
	Unknown bool
}

func (*And) exprNode()              {}
func (*Or) exprNode()               {}
func (*Not) exprNode()              {}
func (*Comparison) exprNode()       {}
func (*SetComparison) exprNode()    {}
func (*ZipComparison) exprNode()    {}
func (*LengthComparison) exprNode() {}
func (*StringPredicate) exprNode()  {}
func (*IsKnown) exprNode()          {}

// Inspect traverses e in depth-first pre-order, calling fn for each node.
// Children are skipped when fn returns false.
func Inspect(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *And:
		Inspect(n.Left, fn)
		Inspect(n.Right, fn)
	case *Or:
		Inspect(n.Left, fn)
		Inspect(n.Right, fn)
	case *Not:
		Inspect(n.Inner, fn)
	}
}

// Fields returns every property referenced by e, in order of appearance.
// Duplicates are removed.
func Fields(e Expr) []Path {
	var out []Path
	seen := make(map[string]bool)
	add := func(p Path) {
		key := p.String()
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, p)
	}

	Inspect(e, func(n Expr) bool {
		switch n := n.(type) {
		case *Comparison:
			add(n.Field)
			if n.Value.Kind() == KindProperty {
				add(n.Value.Path())
			}
		case *SetComparison:
			add(n.Field)
		case *ZipComparison:
			for _, f := range n.Fields {
				add(f)
			}
		case *LengthComparison:
			add(n.Field)
		case *StringPredicate:
			add(n.Field)
		case *IsKnown:
			add(n.Field)
		}
		return true
	})
	return out
}
