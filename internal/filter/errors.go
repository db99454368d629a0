package filter

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrSyntax is matched by every *SyntaxError via errors.Is.
var ErrSyntax = errors.New("invalid filter")

// SyntaxError describes why a filter string could not be parsed. Pos is the
// byte offset into Filter where the problem was detected.
type SyntaxError struct {
	Filter string
	Pos    int
	Token  string
	Msg    string
}

func newSyntaxError(filter string, pos int, token string, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Filter: filter,
		Pos:    pos,
		Token:  token,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// Column returns the 1-based character column of Pos.
func (e *SyntaxError) Column() int {
	pos := min(max(e.Pos, 0), len(e.Filter))
	return utf8.RuneCountInString(e.Filter[:pos]) + 1
}

func (e *SyntaxError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid filter at column %d: %s", e.Column(), e.Msg)
	if e.Token != "" {
		fmt.Fprintf(&b, " (found %s)", e.Token)
	}
	if e.Filter != "" && !strings.ContainsAny(e.Filter, "\n\r") {
		b.WriteString("\n  ")
		b.WriteString(e.Filter)
		b.WriteString("\n  ")
		b.WriteString(strings.Repeat(" ", e.Column()-1))
		b.WriteByte('^')
	}
	return b.String()
}

// Is reports ErrSyntax as the sentinel of every syntax error.
func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}
