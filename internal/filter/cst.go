package filter

import "strings"

// Rule names the grammar production a CST node was built from.
type Rule string

const (
	RuleFilter           Rule = "filter"
	RuleExpression       Rule = "expression"
	RuleClause           Rule = "expression_clause"
	RulePhrase           Rule = "expression_phrase"
	RuleComparison       Rule = "comparison"
	RuleValueOpRHS       Rule = "value_op_rhs"
	RuleFuzzyStringOpRHS Rule = "fuzzy_string_op_rhs"
	RuleSetOpRHS         Rule = "set_op_rhs"
	RuleSetZipOpRHS      Rule = "set_zip_op_rhs"
	RuleKnownOpRHS       Rule = "known_op_rhs"
	RuleLengthOpRHS      Rule = "length_op_rhs"
	RuleLengthComparison Rule = "length_comparison"
	RuleValueList        Rule = "value_list"
	RuleValueZip         Rule = "value_zip"
	RuleValueZipList     Rule = "value_zip_list"
	RuleOperator         Rule = "operator"
	RuleProperty         Rule = "property"
	RuleValue            Rule = "value"
	RuleToken            Rule = "token"
)

// Node is a concrete syntax tree node. Leaves carry the token they were
// built from; interior nodes carry their children in source order,
// including keyword and punctuation tokens.
type Node struct {
	Rule     Rule
	Token    *Token
	Children []*Node
	Pos      int
}

func tokenNode(tok *Token) *Node {
	return &Node{Rule: RuleToken, Token: tok, Pos: tok.Pos}
}

// String renders the tree as an s-expression, e.g.
// (filter (expression (expression_clause ...))).
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	if n.Rule == RuleToken {
		switch n.Token.Type {
		case TokenString:
			b.WriteString(`"` + n.Token.Value + `"`)
		case TokenLegacyString:
			b.WriteString(`'` + n.Token.Value + `'`)
		default:
			b.WriteString(n.Token.Value)
		}
		return
	}
	b.WriteByte('(')
	b.WriteString(string(n.Rule))
	for _, c := range n.Children {
		b.WriteByte(' ')
		c.write(b)
	}
	b.WriteByte(')')
}
