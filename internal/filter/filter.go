// Package filter parses OPTIMADE filter strings. Parsing happens in two
// stages: the tokens are arranged into a concrete syntax tree whose nodes
// are tagged with grammar rule names, and the tree is then normalized into
// the closed expression set of package ast.
package filter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nlstn/go-optimade/internal/ast"
	"github.com/nlstn/go-optimade/internal/grammar"
)

// DefaultMaxDepth limits how deeply parentheses may nest.
const DefaultMaxDepth = 64

// Parser parses filters against one grammar version. It holds no per-call
// state and is safe for concurrent use.
type Parser struct {
	grammar  *grammar.Grammar
	maxDepth int
}

type options struct {
	version  string
	maxDepth int
}

// Option configures a Parser.
type Option func(*options)

// WithGrammar selects the grammar version, e.g. "1.0.0" or "1.2.0.strict".
// The latest grammar is used when no version is given.
func WithGrammar(version string) Option {
	return func(o *options) {
		o.version = version
	}
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = depth
	}
}

// NewParser returns a parser for a grammar in reg. A nil registry selects
// the embedded grammars.
func NewParser(reg *grammar.Registry, opts ...Option) (*Parser, error) {
	o := options{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxDepth <= 0 {
		return nil, fmt.Errorf("max depth must be positive, got %d", o.maxDepth)
	}

	if reg == nil {
		var err error
		if reg, err = grammar.LoadEmbedded(); err != nil {
			return nil, err
		}
	}
	g, err := reg.LookupString(o.version)
	if err != nil {
		return nil, err
	}
	return &Parser{grammar: g, maxDepth: o.maxDepth}, nil
}

// Grammar returns the grammar the parser accepts.
func (p *Parser) Grammar() *grammar.Grammar {
	return p.grammar
}

// ParseCST parses filter into a concrete syntax tree. Every failure is
// reported as a *SyntaxError.
func (p *Parser) ParseCST(filter string) (root *Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			root, err = nil, newSyntaxError(filter, 0, "", "unparseable filter: %v", r)
		}
	}()

	tokens, err := NewTokenizer(filter).TokenizeAll()
	if err != nil {
		return nil, err
	}

	ps := &parser{
		input:    filter,
		tokens:   tokens,
		grammar:  p.grammar,
		maxDepth: p.maxDepth,
	}
	return ps.parseFilter()
}

// Parse parses and normalizes filter. An empty or blank filter yields a nil
// expression and no error.
func (p *Parser) Parse(filter string) (expr ast.Expr, err error) {
	root, err := p.ParseCST(filter)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			expr, err = nil, newSyntaxError(filter, 0, "", "unparseable filter: %v", r)
		}
	}()

	expr, err = Normalize(root)
	if err != nil {
		var se *SyntaxError
		if errors.As(err, &se) && se.Filter == "" {
			se.Filter = filter
		}
		return nil, err
	}
	return expr, nil
}

// Validate reports whether filter parses under the parser's grammar.
func (p *Parser) Validate(filter string) error {
	_, err := p.Parse(filter)
	return err
}

var defaultParser = sync.OnceValues(func() (*Parser, error) {
	return NewParser(nil)
})

// Parse parses filter with the latest embedded grammar.
func Parse(filter string) (ast.Expr, error) {
	p, err := defaultParser()
	if err != nil {
		return nil, err
	}
	return p.Parse(filter)
}

// Validate checks filter against the latest embedded grammar.
func Validate(filter string) error {
	_, err := Parse(filter)
	return err
}
