package filter

import (
	"github.com/nlstn/go-optimade/internal/grammar"
)

// parser builds a CST from a token stream. A parser is used for a single
// filter string.
type parser struct {
	input    string
	tokens   []*Token
	current  int
	grammar  *grammar.Grammar
	depth    int
	maxDepth int
}

func (p *parser) currentToken() *Token {
	if p.current < len(p.tokens) {
		return p.tokens[p.current]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *parser) advance() *Token {
	tok := p.currentToken()
	if p.current < len(p.tokens)-1 {
		p.current++
	}
	return tok
}

func (p *parser) errorf(tok *Token, format string, args ...any) error {
	return newSyntaxError(p.input, tok.Pos, tok.describe(), format, args...)
}

func (p *parser) expect(tt TokenType) (*Token, error) {
	tok := p.currentToken()
	if tok.Type != tt {
		return nil, p.errorf(tok, "expected %s", tt)
	}
	return p.advance(), nil
}

// require fails with a syntax error when the active grammar does not
// enable f.
func (p *parser) require(f grammar.Feature, tok *Token, construct string) error {
	if p.grammar.Supports(f) {
		return nil
	}
	return p.errorf(tok, "%s is not part of filter grammar %s", construct, p.grammar.Version())
}

// filter = [ expression ]
func (p *parser) parseFilter() (*Node, error) {
	root := &Node{Rule: RuleFilter}
	if p.currentToken().Type == TokenEOF {
		return root, nil
	}

	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if tok := p.currentToken(); tok.Type != TokenEOF {
		return nil, p.errorf(tok, "expected AND, OR or end of filter")
	}
	root.Children = []*Node{expr}
	return root, nil
}

// expression = expression_clause { OR expression_clause }
func (p *parser) parseExpression() (*Node, error) {
	node := &Node{Rule: RuleExpression, Pos: p.currentToken().Pos}
	for {
		clause, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, clause)
		if !p.currentToken().is("OR") {
			return node, nil
		}
		node.Children = append(node.Children, tokenNode(p.advance()))
	}
}

// expression_clause = expression_phrase { AND expression_phrase }
func (p *parser) parseClause() (*Node, error) {
	node := &Node{Rule: RuleClause, Pos: p.currentToken().Pos}
	for {
		phrase, err := p.parsePhrase()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, phrase)
		if !p.currentToken().is("AND") {
			return node, nil
		}
		node.Children = append(node.Children, tokenNode(p.advance()))
	}
}

// expression_phrase = [ NOT ] ( comparison | "(" expression ")" )
func (p *parser) parsePhrase() (*Node, error) {
	node := &Node{Rule: RulePhrase, Pos: p.currentToken().Pos}
	if p.currentToken().is("NOT") {
		node.Children = append(node.Children, tokenNode(p.advance()))
	}

	tok := p.currentToken()
	if tok.Type != TokenLParen {
		cmp, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, cmp)
		return node, nil
	}

	p.depth++
	if p.depth > p.maxDepth {
		return nil, p.errorf(tok, "parentheses nested deeper than %d levels", p.maxDepth)
	}
	lparen := p.advance()
	inner, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	rparen, err := p.expect(TokenRParen)
	if err != nil {
		return nil, err
	}
	p.depth--

	node.Children = append(node.Children, tokenNode(lparen), inner, tokenNode(rparen))
	return node, nil
}

func (p *parser) parseComparison() (*Node, error) {
	tok := p.currentToken()
	node := &Node{Rule: RuleComparison, Pos: tok.Pos}

	switch {
	case tok.is("LENGTH"):
		if err := p.require(grammar.FeatureLengthPrefix, tok, "LENGTH before a property"); err != nil {
			return nil, err
		}
		lc, err := p.parseLengthComparison()
		if err != nil {
			return nil, err
		}
		node.Children = []*Node{lc}

	case tok.Type == TokenIdentifier:
		prop := p.parseProperty()
		rhs, err := p.parsePropertyRHS()
		if err != nil {
			return nil, err
		}
		node.Children = []*Node{prop, rhs}

	case isConstant(tok):
		if err := p.require(grammar.FeatureRightHandComparisons, tok, "a constant left of the operator"); err != nil {
			return nil, err
		}
		left, err := p.parseConstant()
		if err != nil {
			return nil, err
		}
		rhs, err := p.parseConstantRHS()
		if err != nil {
			return nil, err
		}
		node.Children = []*Node{left, rhs}

	default:
		return nil, p.errorf(tok, "expected a property or constant")
	}
	return node, nil
}

// parseConstantRHS parses "operator property" after a leading constant.
// Comparing two constants is rejected.
func (p *parser) parseConstantRHS() (*Node, error) {
	tok := p.currentToken()
	if tok.Type != TokenOperator {
		return nil, p.errorf(tok, "expected a comparison operator")
	}
	node := &Node{Rule: RuleValueOpRHS, Pos: tok.Pos}
	node.Children = append(node.Children, p.parseOperator())

	propTok := p.currentToken()
	if propTok.Type != TokenIdentifier {
		return nil, p.errorf(propTok, "expected a property; comparing two constants is not allowed")
	}
	value := &Node{Rule: RuleValue, Pos: propTok.Pos, Children: []*Node{p.parseProperty()}}
	node.Children = append(node.Children, value)
	return node, nil
}

func (p *parser) parsePropertyRHS() (*Node, error) {
	tok := p.currentToken()
	switch {
	case tok.Type == TokenOperator:
		return p.parseValueOpRHS()
	case tok.is("CONTAINS"), tok.is("STARTS"), tok.is("ENDS"):
		return p.parseFuzzyStringOpRHS()
	case tok.is("HAS"):
		return p.parseSetOpRHS()
	case tok.Type == TokenColon:
		if err := p.require(grammar.FeatureCorrelatedSetOps, tok, "correlated HAS"); err != nil {
			return nil, err
		}
		return p.parseSetZipOpRHS()
	case tok.is("IS"):
		if err := p.require(grammar.FeatureIsKnown, tok, "IS KNOWN"); err != nil {
			return nil, err
		}
		return p.parseKnownOpRHS()
	case tok.is("LENGTH"):
		if err := p.require(grammar.FeatureLength, tok, "LENGTH"); err != nil {
			return nil, err
		}
		return p.parseLengthOpRHS()
	}
	return nil, p.errorf(tok, "expected an operator after the property")
}

// value_op_rhs = operator value
func (p *parser) parseValueOpRHS() (*Node, error) {
	node := &Node{Rule: RuleValueOpRHS, Pos: p.currentToken().Pos}
	node.Children = append(node.Children, p.parseOperator())
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, value)
	return node, nil
}

// fuzzy_string_op_rhs = CONTAINS value | STARTS [ WITH ] value | ENDS [ WITH ] value
func (p *parser) parseFuzzyStringOpRHS() (*Node, error) {
	kw := p.advance()
	node := &Node{Rule: RuleFuzzyStringOpRHS, Pos: kw.Pos, Children: []*Node{tokenNode(kw)}}

	if kw.Value != "CONTAINS" {
		tok := p.currentToken()
		if tok.is("WITH") {
			node.Children = append(node.Children, tokenNode(p.advance()))
		} else if err := p.require(grammar.FeatureOptionalWith, tok, kw.Value+" without WITH"); err != nil {
			return nil, err
		}
	}

	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, value)
	return node, nil
}

// set_op_rhs = HAS ( [ operator ] value | ALL value_list | ANY value_list | ONLY value_list )
func (p *parser) parseSetOpRHS() (*Node, error) {
	has := p.advance()
	node := &Node{Rule: RuleSetOpRHS, Pos: has.Pos, Children: []*Node{tokenNode(has)}}

	tok := p.currentToken()
	if tok.is("ALL") || tok.is("ANY") || tok.is("ONLY") {
		node.Children = append(node.Children, tokenNode(p.advance()))
		list, err := p.parseValueList()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, list)
		return node, nil
	}

	items, err := p.parseListItem()
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, items...)
	return node, nil
}

// value_list = [ operator ] value { "," [ operator ] value }
func (p *parser) parseValueList() (*Node, error) {
	node := &Node{Rule: RuleValueList, Pos: p.currentToken().Pos}
	for {
		item, err := p.parseListItem()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, item...)
		if p.currentToken().Type != TokenComma {
			return node, nil
		}
		node.Children = append(node.Children, tokenNode(p.advance()))
	}
}

// parseListItem parses "[ operator ] value" and returns its nodes.
func (p *parser) parseListItem() ([]*Node, error) {
	var out []*Node
	if tok := p.currentToken(); tok.Type == TokenOperator {
		if err := p.require(grammar.FeatureSetOperators, tok, "an operator inside HAS"); err != nil {
			return nil, err
		}
		out = append(out, p.parseOperator())
	}
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return append(out, value), nil
}

// set_zip_op_rhs = property_zip_addon HAS ( value_zip | ALL value_zip_list |
// ANY value_zip_list | ONLY value_zip_list )
func (p *parser) parseSetZipOpRHS() (*Node, error) {
	node := &Node{Rule: RuleSetZipOpRHS, Pos: p.currentToken().Pos}
	arity := 1
	for p.currentToken().Type == TokenColon {
		node.Children = append(node.Children, tokenNode(p.advance()))
		if tok := p.currentToken(); tok.Type != TokenIdentifier {
			return nil, p.errorf(tok, "expected a property after ':'")
		}
		node.Children = append(node.Children, p.parseProperty())
		arity++
	}

	tok := p.currentToken()
	if !tok.is("HAS") {
		return nil, p.errorf(tok, "expected HAS after correlated properties")
	}
	node.Children = append(node.Children, tokenNode(p.advance()))

	tok = p.currentToken()
	if !(tok.is("ALL") || tok.is("ANY") || tok.is("ONLY")) {
		zip, err := p.parseValueZip(arity)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, zip)
		return node, nil
	}

	node.Children = append(node.Children, tokenNode(p.advance()))
	list := &Node{Rule: RuleValueZipList, Pos: p.currentToken().Pos}
	for {
		zip, err := p.parseValueZip(arity)
		if err != nil {
			return nil, err
		}
		list.Children = append(list.Children, zip)
		if p.currentToken().Type != TokenComma {
			break
		}
		list.Children = append(list.Children, tokenNode(p.advance()))
	}
	node.Children = append(node.Children, list)
	return node, nil
}

// value_zip = [ operator ] value ":" [ operator ] value { ":" [ operator ] value }
func (p *parser) parseValueZip(arity int) (*Node, error) {
	node := &Node{Rule: RuleValueZip, Pos: p.currentToken().Pos}
	for i := 0; i < arity; i++ {
		if i > 0 {
			tok, err := p.expect(TokenColon)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, tokenNode(tok))
		}
		item, err := p.parseListItem()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, item...)
	}
	if tok := p.currentToken(); tok.Type == TokenColon {
		return nil, p.errorf(tok, "correlated value has more than %d components", arity)
	}
	return node, nil
}

// known_op_rhs = IS ( KNOWN | UNKNOWN )
func (p *parser) parseKnownOpRHS() (*Node, error) {
	is := p.advance()
	tok := p.currentToken()
	if !tok.is("KNOWN") && !tok.is("UNKNOWN") {
		return nil, p.errorf(tok, "expected KNOWN or UNKNOWN after IS")
	}
	return &Node{
		Rule:     RuleKnownOpRHS,
		Pos:      is.Pos,
		Children: []*Node{tokenNode(is), tokenNode(p.advance())},
	}, nil
}

// length_op_rhs = LENGTH [ operator ] value
func (p *parser) parseLengthOpRHS() (*Node, error) {
	kw := p.advance()
	node := &Node{Rule: RuleLengthOpRHS, Pos: kw.Pos, Children: []*Node{tokenNode(kw)}}
	if p.currentToken().Type == TokenOperator {
		node.Children = append(node.Children, p.parseOperator())
	}
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, value)
	return node, nil
}

// length_comparison = LENGTH property [ operator ] value
func (p *parser) parseLengthComparison() (*Node, error) {
	kw := p.advance()
	node := &Node{Rule: RuleLengthComparison, Pos: kw.Pos, Children: []*Node{tokenNode(kw)}}

	if tok := p.currentToken(); tok.Type != TokenIdentifier {
		return nil, p.errorf(tok, "expected a property after LENGTH")
	}
	node.Children = append(node.Children, p.parseProperty())
	if p.currentToken().Type == TokenOperator {
		node.Children = append(node.Children, p.parseOperator())
	}
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, value)
	return node, nil
}

func (p *parser) parseOperator() *Node {
	tok := p.advance()
	return &Node{Rule: RuleOperator, Pos: tok.Pos, Children: []*Node{tokenNode(tok)}}
}

func (p *parser) parseProperty() *Node {
	tok := p.advance()
	return &Node{Rule: RuleProperty, Pos: tok.Pos, Children: []*Node{tokenNode(tok)}}
}

// value = string | number | property
func (p *parser) parseValue() (*Node, error) {
	tok := p.currentToken()
	if tok.Type == TokenIdentifier {
		return &Node{Rule: RuleValue, Pos: tok.Pos, Children: []*Node{p.parseProperty()}}, nil
	}
	if !isConstant(tok) {
		return nil, p.errorf(tok, "expected a value")
	}
	return p.parseConstant()
}

func (p *parser) parseConstant() (*Node, error) {
	tok := p.currentToken()
	if tok.Type == TokenLegacyString {
		if err := p.require(grammar.FeatureQuotedValueLists, tok, "a single-quoted string"); err != nil {
			return nil, err
		}
	}
	p.advance()
	return &Node{Rule: RuleValue, Pos: tok.Pos, Children: []*Node{tokenNode(tok)}}, nil
}

func isConstant(tok *Token) bool {
	switch tok.Type {
	case TokenString, TokenLegacyString, TokenNumber:
		return true
	}
	return false
}
