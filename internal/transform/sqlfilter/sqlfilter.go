// Package sqlfilter lowers filters into SQL WHERE fragments over the
// relational entry schema: an entries table holding id and type, and one
// attribute table per value kind with (entry_id, key, position, value)
// rows. List attributes have one row per element.
package sqlfilter

import (
	"fmt"
	"strings"

	"github.com/nlstn/go-optimade/internal/ast"
	"github.com/nlstn/go-optimade/internal/transform"
)

// Table names of the relational schema.
const (
	EntriesTable = "entries"
	StringTable  = "string_attributes"
	IntegerTable = "integer_attributes"
	FloatTable   = "float_attributes"
)

// Condition is a parameterised WHERE fragment, ready for db.Where.
type Condition struct {
	SQL  string
	Args []any
}

var (
	matchAll = Condition{SQL: "1 = 1"}
	noMatch  = Condition{SQL: "1 = 0"}
)

var sqlOps = map[ast.Operator]string{
	ast.OpEq: "=",
	ast.OpNe: "<>",
	ast.OpLt: "<",
	ast.OpLe: "<=",
	ast.OpGt: ">",
	ast.OpGe: ">=",
}

// Transformer implements ast.Visitor[Condition].
type Transformer struct {
	resolver *transform.Resolver
}

var _ ast.Visitor[Condition] = (*Transformer)(nil)

// New returns a transformer resolving fields through r.
func New(r *transform.Resolver) *Transformer {
	return &Transformer{resolver: r}
}

// Transform lowers e. A nil expression matches every entry.
func Transform(e ast.Expr, r *transform.Resolver) (Condition, error) {
	if e == nil {
		return matchAll, nil
	}
	return transform.Lower[Condition](e, New(r))
}

// quoteIdent quotes identifiers portably for sqlite and postgres. Embedded
// double quotes are doubled.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func entryColumn(name string) string {
	return quoteIdent(EntriesTable) + "." + quoteIdent(name)
}

// tablesFor returns the attribute tables that may hold f. Undeclared fields
// compared with a number are searched in both numeric tables.
func tablesFor(f transform.Field, v *ast.Value) []string {
	if f.Declared {
		switch f.Spec.Kind {
		case transform.KindInt:
			return []string{IntegerTable}
		case transform.KindFloat:
			return []string{FloatTable}
		}
		return []string{StringTable}
	}
	switch {
	case v == nil:
		return []string{StringTable, IntegerTable, FloatTable}
	case v.IsNumber():
		return []string{IntegerTable, FloatTable}
	}
	return []string{StringTable}
}

// exists renders an EXISTS subquery over the rows of f in table, narrowed
// by an optional value predicate on column a.value.
func exists(table string, f transform.Field, valuePredicate string, args ...any) Condition {
	var b strings.Builder
	fmt.Fprintf(&b, "EXISTS (SELECT 1 FROM %s a WHERE a.%s = %s AND a.%s = ?",
		quoteIdent(table), quoteIdent("entry_id"), entryColumn("id"), quoteIdent("key"))
	if valuePredicate != "" {
		b.WriteString(" AND a.")
		b.WriteString(quoteIdent("value"))
		b.WriteByte(' ')
		b.WriteString(valuePredicate)
	}
	b.WriteByte(')')
	return Condition{SQL: b.String(), Args: append([]any{f.Storage}, args...)}
}

// anyOf ORs one EXISTS per table.
func anyOf(tables []string, build func(table string) Condition) Condition {
	conds := make([]Condition, len(tables))
	for i, table := range tables {
		conds[i] = build(table)
	}
	return join("OR", conds...)
}

// join combines conditions as "(c1) OP (c2) ...".
func join(op string, conds ...Condition) Condition {
	if len(conds) == 1 {
		return conds[0]
	}
	parts := make([]string, len(conds))
	var args []any
	for i, c := range conds {
		parts[i] = "(" + c.SQL + ")"
		args = append(args, c.Args...)
	}
	return Condition{SQL: strings.Join(parts, " "+op+" "), Args: args}
}

func (t *Transformer) binary(op string, l, r ast.Expr) (Condition, error) {
	left, err := ast.Accept[Condition](l, t)
	if err != nil {
		return Condition{}, err
	}
	right, err := ast.Accept[Condition](r, t)
	if err != nil {
		return Condition{}, err
	}
	return join(op, left, right), nil
}

func (t *Transformer) VisitAnd(n *ast.And) (Condition, error) {
	return t.binary("AND", n.Left, n.Right)
}

func (t *Transformer) VisitOr(n *ast.Or) (Condition, error) {
	return t.binary("OR", n.Left, n.Right)
}

func (t *Transformer) VisitNot(n *ast.Not) (Condition, error) {
	inner, err := ast.Accept[Condition](n.Inner, t)
	if err != nil {
		return Condition{}, err
	}
	return Condition{SQL: "NOT (" + inner.SQL + ")", Args: inner.Args}, nil
}

func (t *Transformer) VisitComparison(n *ast.Comparison) (Condition, error) {
	v, err := transform.ScalarOperand(n)
	if err != nil {
		return Condition{}, err
	}
	f, ok, err := t.resolver.Resolve(n.Field)
	if err != nil {
		return Condition{}, err
	}
	if !ok {
		return noMatch, nil
	}
	if err := transform.CheckKind(n, f, v); err != nil {
		return Condition{}, err
	}
	return compare(f, n.Op, v), nil
}

// compare renders "f op v". Builtin fields compare the entry column
// directly; attributes compare any stored row, so != only matches known
// values.
func compare(f transform.Field, op ast.Operator, v ast.Value) Condition {
	if f.Builtin() {
		return Condition{SQL: fmt.Sprintf("%s %s ?", entryColumn(f.Public), sqlOps[op]), Args: []any{v.Interface()}}
	}
	return anyOf(tablesFor(f, &v), func(table string) Condition {
		return exists(table, f, sqlOps[op]+" ?", v.Interface())
	})
}

func (t *Transformer) VisitSetComparison(n *ast.SetComparison) (Condition, error) {
	values, err := transform.SetOperands(n)
	if err != nil {
		return Condition{}, err
	}
	f, ok, err := t.resolver.Resolve(n.Field)
	if err != nil {
		return Condition{}, err
	}
	if !ok {
		return noMatch, nil
	}
	for _, v := range values {
		if err := transform.CheckKind(n, f, v); err != nil {
			return Condition{}, err
		}
	}

	has := make([]Condition, len(values))
	for i, v := range values {
		has[i] = compare(f, ast.OpEq, v)
	}

	switch n.Quantifier {
	case ast.Has, ast.HasAll:
		return join("AND", has...), nil
	case ast.HasAny:
		return join("OR", has...), nil
	case ast.HasOnly:
		if f.Builtin() {
			// a column holds exactly one value
			if distinct := transform.Distinct(values); len(distinct) == 1 {
				return compare(f, ast.OpEq, distinct[0]), nil
			}
			return noMatch, nil
		}
		return join("AND", append(has, onlyValues(f, values))...), nil
	}
	return Condition{}, transform.NotImplemented(n, "unknown quantifier")
}

// onlyValues asserts that no stored row of f holds a value outside values.
func onlyValues(f transform.Field, values []ast.Value) Condition {
	others := anyOf(tablesFor(f, nil), func(table string) Condition {
		var args []any
		for _, v := range values {
			if v.IsNumber() == (table != StringTable) {
				args = append(args, v.Interface())
			}
		}
		if len(args) == 0 {
			return exists(table, f, "")
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
		return exists(table, f, "NOT IN ("+placeholders+")", args...)
	})
	return Condition{SQL: "NOT (" + others.SQL + ")", Args: others.Args}
}

func (t *Transformer) VisitZipComparison(n *ast.ZipComparison) (Condition, error) {
	return Condition{}, transform.Correlated(n)
}

func (t *Transformer) VisitLengthComparison(n *ast.LengthComparison) (Condition, error) {
	_, ok, err := t.resolver.Resolve(n.Field)
	if err != nil {
		return Condition{}, err
	}
	if !ok {
		return noMatch, nil
	}
	length, err := transform.LengthOperand(n, t.resolver)
	if err != nil {
		return Condition{}, err
	}
	return compare(length, n.Op, n.Value), nil
}

func (t *Transformer) VisitStringPredicate(n *ast.StringPredicate) (Condition, error) {
	s, err := transform.StringOperand(n)
	if err != nil {
		return Condition{}, err
	}
	f, ok, err := t.resolver.Resolve(n.Field)
	if err != nil {
		return Condition{}, err
	}
	if !ok {
		return noMatch, nil
	}
	if f.Declared && f.Spec.IsNumeric() {
		return Condition{}, transform.InvalidArgument(n, "field %s holds numbers", f.Public)
	}

	pattern := escapeLikePattern(s)
	switch n.Kind {
	case ast.Contains:
		pattern = "%" + pattern + "%"
	case ast.StartsWith:
		pattern += "%"
	case ast.EndsWith:
		pattern = "%" + pattern
	}

	if f.Builtin() {
		return Condition{SQL: fmt.Sprintf("%s LIKE ? %s", entryColumn(f.Public), likeEscapeClause), Args: []any{pattern}}, nil
	}
	return exists(StringTable, f, "LIKE ? "+likeEscapeClause, pattern), nil
}

func (t *Transformer) VisitIsKnown(n *ast.IsKnown) (Condition, error) {
	f, ok, err := t.resolver.Resolve(n.Field)
	if err != nil {
		return Condition{}, err
	}
	if !ok {
		if n.Unknown {
			return matchAll, nil
		}
		return noMatch, nil
	}

	var known Condition
	if f.Builtin() {
		known = Condition{SQL: entryColumn(f.Public) + " IS NOT NULL"}
	} else {
		known = anyOf(tablesFor(f, nil), func(table string) Condition {
			return exists(table, f, "")
		})
	}
	if n.Unknown {
		return Condition{SQL: "NOT (" + known.SQL + ")", Args: known.Args}, nil
	}
	return known, nil
}
