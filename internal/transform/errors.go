package transform

import (
	"errors"
	"fmt"

	"github.com/nlstn/go-optimade/internal/ast"
)

var (
	// ErrNotImplemented is matched by *NotImplementedError.
	ErrNotImplemented = errors.New("not implemented")
	// ErrInvalidArgument is matched by *ArgumentError.
	ErrInvalidArgument = errors.New("invalid filter argument")
	// ErrUnknownField is matched by *UnknownFieldError.
	ErrUnknownField = errors.New("unknown field")
)

// NotImplementedError reports a valid construct the dialect cannot lower.
// Expr is the canonical text of the offending sub-expression.
type NotImplementedError struct {
	Expr   string
	Reason string
}

// NotImplemented builds a *NotImplementedError for e.
func NotImplemented(e ast.Expr, format string, args ...any) *NotImplementedError {
	return &NotImplementedError{Expr: ast.Format(e), Reason: fmt.Sprintf(format, args...)}
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s: %s is not implemented: %s", ErrNotImplemented, e.Expr, e.Reason)
}

func (e *NotImplementedError) Is(target error) bool {
	return target == ErrNotImplemented
}

// ArgumentError reports a literal of the wrong type, such as a number
// passed to CONTAINS.
type ArgumentError struct {
	Expr   string
	Reason string
}

// InvalidArgument builds an *ArgumentError for e.
func InvalidArgument(e ast.Expr, format string, args ...any) *ArgumentError {
	return &ArgumentError{Expr: ast.Format(e), Reason: fmt.Sprintf(format, args...)}
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s in %s: %s", ErrInvalidArgument, e.Expr, e.Reason)
}

func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// UnknownFieldError is returned under UnknownFieldsError for undeclared
// fields.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%s %q", ErrUnknownField, e.Field)
}

func (e *UnknownFieldError) Is(target error) bool {
	return target == ErrUnknownField
}
