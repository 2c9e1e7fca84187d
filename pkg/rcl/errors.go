package rcl

import "fmt"

// ParseError describes a syntax error found while compiling an expression.
type ParseError struct {
	// Expression is the source text being compiled.
	Expression string

	// Pos is the zero-based byte offset of the error in the expression.
	Pos int

	// Message describes what went wrong.
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d in %q: %s", e.Pos, e.Expression, e.Message)
}

// ConditionError describes an evaluation failure: a type mismatch, division
// by zero, or an operator applied to incompatible operands. Callers are
// expected to treat a ConditionError as fail-closed (guard failed, gate
// closed) rather than propagating it.
type ConditionError struct {
	// Expression is the source text of the failing expression, when known.
	Expression string

	// Message describes what went wrong.
	Message string
}

// Error implements the error interface.
func (e *ConditionError) Error() string {
	if e.Expression == "" {
		return fmt.Sprintf("condition error: %s", e.Message)
	}
	return fmt.Sprintf("condition error in %q: %s", e.Expression, e.Message)
}

// newConditionError creates a ConditionError without source attribution.
// The compiled expression attaches its source text before returning it.
func newConditionError(format string, args ...any) *ConditionError {
	return &ConditionError{Message: fmt.Sprintf(format, args...)}
}
