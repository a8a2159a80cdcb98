package literal

import (
	"errors"
	"fmt"
)

var (
	ErrUndefined      = errors.New("undefined")
	ErrUnsupported    = errors.New("unsupported expression")
	ErrInvalidKey     = errors.New("invalid data key")
	ErrReservedKey    = errors.New("reserved data key")
	ErrStoreBound     = errors.New("data store already bound")
	ErrAlreadyStarted = errors.New("observer already started")
)

// ParseError is a malformed template. Pos is a byte offset into the template.
type ParseError struct {
	Template string
	Pos      int
	Msg      string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at position %d: %s: %v", e.Pos, e.Msg, e.Err)
	}
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// EvalError is a failure evaluating one ${...} expression.
type EvalError struct {
	Expr string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluation error for expression '%s': %v", e.Expr, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}
