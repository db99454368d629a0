package filter

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdentifier
	TokenString
	TokenLegacyString
	TokenNumber
	TokenKeyword
	TokenOperator
	TokenLParen
	TokenRParen
	TokenComma
	TokenColon
)

var tokenTypeNames = [...]string{
	TokenEOF:          "end of filter",
	TokenIdentifier:   "property",
	TokenString:       "string",
	TokenLegacyString: "string",
	TokenNumber:       "number",
	TokenKeyword:      "keyword",
	TokenOperator:     "operator",
	TokenLParen:       "'('",
	TokenRParen:       "')'",
	TokenComma:        "','",
	TokenColon:        "':'",
}

func (t TokenType) String() string {
	if int(t) < len(tokenTypeNames) {
		return tokenTypeNames[t]
	}
	return "token"
}

// Token represents a single lexical unit of a filter. Value holds the
// unescaped text for strings and the upper-cased word for keywords.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

func (t *Token) describe() string {
	switch t.Type {
	case TokenEOF:
		return "end of filter"
	case TokenString:
		return "string \"" + t.Value + "\""
	case TokenLegacyString:
		return "string '" + t.Value + "'"
	case TokenKeyword:
		return "keyword " + t.Value
	case TokenIdentifier:
		return "property " + t.Value
	}
	return "'" + t.Value + "'"
}

// is reports whether the token is the given keyword.
func (t *Token) is(keyword string) bool {
	return t.Type == TokenKeyword && t.Value == keyword
}

var keywords = map[string]bool{
	"AND":      true,
	"OR":       true,
	"NOT":      true,
	"HAS":      true,
	"ALL":      true,
	"ANY":      true,
	"ONLY":     true,
	"CONTAINS": true,
	"STARTS":   true,
	"ENDS":     true,
	"WITH":     true,
	"IS":       true,
	"KNOWN":    true,
	"UNKNOWN":  true,
	"LENGTH":   true,
}

// Tokenizer tokenizes OPTIMADE filter strings
type Tokenizer struct {
	input string
	pos   int
	ch    rune
	width int
}

// NewTokenizer creates a new tokenizer
func NewTokenizer(input string) *Tokenizer {
	t := &Tokenizer{input: input}
	t.decode()
	return t
}

func (t *Tokenizer) decode() {
	if t.pos >= len(t.input) {
		t.ch, t.width = 0, 0
		return
	}
	t.ch, t.width = utf8.DecodeRuneInString(t.input[t.pos:])
}

// advance moves to the next character
func (t *Tokenizer) advance() {
	t.pos += t.width
	t.decode()
}

// peek looks ahead one character without advancing
func (t *Tokenizer) peek() rune {
	next := t.pos + t.width
	if next >= len(t.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(t.input[next:])
	return r
}

func (t *Tokenizer) atEnd() bool {
	return t.pos >= len(t.input)
}

func (t *Tokenizer) skipWhitespace() {
	for !t.atEnd() && unicode.IsSpace(t.ch) {
		t.advance()
	}
}

func (t *Tokenizer) errorf(pos int, format string, args ...any) error {
	return newSyntaxError(t.input, pos, "", format, args...)
}

// NextToken returns the next token
func (t *Tokenizer) NextToken() (*Token, error) {
	t.skipWhitespace()

	if t.atEnd() {
		return &Token{Type: TokenEOF, Pos: t.pos}, nil
	}

	pos := t.pos
	switch {
	case t.ch == '"' || t.ch == '\'':
		return t.readString(pos)
	case isDigit(t.ch),
		t.ch == '.' && isDigit(t.peek()),
		(t.ch == '+' || t.ch == '-') && (isDigit(t.peek()) || t.peek() == '.'):
		return t.readNumber(pos)
	case isIdentStart(t.ch):
		return t.readIdentifier(pos)
	}

	switch t.ch {
	case '(':
		t.advance()
		return &Token{Type: TokenLParen, Value: "(", Pos: pos}, nil
	case ')':
		t.advance()
		return &Token{Type: TokenRParen, Value: ")", Pos: pos}, nil
	case ',':
		t.advance()
		return &Token{Type: TokenComma, Value: ",", Pos: pos}, nil
	case ':':
		t.advance()
		return &Token{Type: TokenColon, Value: ":", Pos: pos}, nil
	case '=':
		t.advance()
		return &Token{Type: TokenOperator, Value: "=", Pos: pos}, nil
	case '!':
		if t.peek() == '=' {
			t.advance()
			t.advance()
			return &Token{Type: TokenOperator, Value: "!=", Pos: pos}, nil
		}
	case '<', '>':
		op := string(t.ch)
		t.advance()
		if t.ch == '=' {
			op += "="
			t.advance()
		}
		return &Token{Type: TokenOperator, Value: op, Pos: pos}, nil
	}

	return nil, t.errorf(pos, "unexpected character %q", t.ch)
}

// readString reads a quoted string. Only the quote character and the
// backslash can be escaped; any other backslash is kept literally.
func (t *Tokenizer) readString(pos int) (*Token, error) {
	quote := t.ch
	t.advance()

	var b strings.Builder
	for {
		if t.atEnd() {
			return nil, t.errorf(pos, "unterminated string")
		}
		if t.ch == quote {
			t.advance()
			break
		}
		if t.ch == '\\' && (t.peek() == quote || t.peek() == '\\') {
			t.advance()
		}
		if t.ch == utf8.RuneError && t.width == 1 {
			return nil, t.errorf(t.pos, "invalid UTF-8 byte %#x in string", t.input[t.pos])
		}
		b.WriteRune(t.ch)
		t.advance()
	}

	typ := TokenString
	if quote == '\'' {
		typ = TokenLegacyString
	}
	return &Token{Type: typ, Value: b.String(), Pos: pos}, nil
}

// readNumber reads a signed integer, decimal or scientific literal such as
// -2E-100, 1. or .5; the value is converted later by parseNumber.
func (t *Tokenizer) readNumber(pos int) (*Token, error) {
	start := t.pos
	if t.ch == '+' || t.ch == '-' {
		t.advance()
	}

	digits := 0
	for isDigit(t.ch) {
		digits++
		t.advance()
	}
	if t.ch == '.' {
		t.advance()
		for isDigit(t.ch) {
			digits++
			t.advance()
		}
	}
	if digits == 0 {
		return nil, t.errorf(pos, "malformed number")
	}

	if t.ch == 'e' || t.ch == 'E' {
		t.advance()
		if t.ch == '+' || t.ch == '-' {
			t.advance()
		}
		if !isDigit(t.ch) {
			return nil, t.errorf(pos, "malformed number exponent")
		}
		for isDigit(t.ch) {
			t.advance()
		}
	}

	if isIdentStart(t.ch) || t.ch == '.' {
		return nil, t.errorf(t.pos, "unexpected character %q after number", t.ch)
	}

	return &Token{Type: TokenNumber, Value: t.input[start:t.pos], Pos: pos}, nil
}

// readIdentifier reads a dotted property name or a keyword. Keywords are
// matched case-insensitively and only for undotted words.
func (t *Tokenizer) readIdentifier(pos int) (*Token, error) {
	start := t.pos
	for {
		for isIdentPart(t.ch) {
			t.advance()
		}
		if t.ch == '.' && isIdentStart(t.peek()) {
			t.advance()
			continue
		}
		break
	}

	word := t.input[start:t.pos]
	if upper := strings.ToUpper(word); keywords[upper] {
		return &Token{Type: TokenKeyword, Value: upper, Pos: pos}, nil
	}
	return &Token{Type: TokenIdentifier, Value: word, Pos: pos}, nil
}

// TokenizeAll returns all tokens from the input, ending with TokenEOF.
func (t *Tokenizer) TokenizeAll() ([]*Token, error) {
	var tokens []*Token
	for {
		token, err := t.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
		if token.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || isDigit(r)
}
