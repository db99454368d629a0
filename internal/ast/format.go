package ast

import "strings"

// Format renders e as a canonical filter string. Binary connectives are
// fully parenthesised, so parsing the result yields a tree equal to e.
func Format(e Expr) string {
	var b strings.Builder
	format(&b, e)
	return b.String()
}

func format(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case *And:
		formatBinary(b, n.Left, "AND", n.Right)
	case *Or:
		formatBinary(b, n.Left, "OR", n.Right)
	case *Not:
		b.WriteString("NOT ")
		switch n.Inner.(type) {
		case *And, *Or:
			format(b, n.Inner)
		default:
			b.WriteByte('(')
			format(b, n.Inner)
			b.WriteByte(')')
		}
	case *Comparison:
		b.WriteString(n.Field.String())
		b.WriteByte(' ')
		b.WriteString(n.Op.String())
		b.WriteByte(' ')
		b.WriteString(n.Value.String())
	case *SetComparison:
		b.WriteString(n.Field.String())
		b.WriteByte(' ')
		b.WriteString(n.Quantifier.String())
		b.WriteByte(' ')
		formatItems(b, n.Items, ", ")
	case *ZipComparison:
		for i, f := range n.Fields {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(f.String())
		}
		b.WriteByte(' ')
		b.WriteString(n.Quantifier.String())
		b.WriteByte(' ')
		for i, tuple := range n.Tuples {
			if i > 0 {
				b.WriteString(", ")
			}
			formatItems(b, tuple, ":")
		}
	case *LengthComparison:
		b.WriteString(n.Field.String())
		b.WriteString(" LENGTH ")
		b.WriteString(n.Op.String())
		b.WriteByte(' ')
		b.WriteString(n.Value.String())
	case *StringPredicate:
		b.WriteString(n.Field.String())
		b.WriteByte(' ')
		b.WriteString(n.Kind.String())
		b.WriteByte(' ')
		b.WriteString(n.Value.String())
	case *IsKnown:
		b.WriteString(n.Field.String())
		if n.Unknown {
			b.WriteString(" IS UNKNOWN")
		} else {
			b.WriteString(" IS KNOWN")
		}
	default:
		b.WriteString("<invalid>")
	}
}

func formatBinary(b *strings.Builder, left Expr, op string, right Expr) {
	b.WriteByte('(')
	format(b, left)
	b.WriteByte(' ')
	b.WriteString(op)
	b.WriteByte(' ')
	format(b, right)
	b.WriteByte(')')
}

func formatItems(b *strings.Builder, items []Item, sep string) {
	for i, it := range items {
		if i > 0 {
			b.WriteString(sep)
		}
		if it.Op != OpEq {
			b.WriteString(it.Op.String())
			b.WriteByte(' ')
		}
		b.WriteString(it.Value.String())
	}
}
