// Package errors implements Lavendeux's error model (spec.md §7): six
// typed, located errors that unwind the VM's call stack to the top (or
// to a THRW-aware match/ternary guard the compiler emitted as a JMPF).
//
// Adapted from the teacher's SentraError (typed ErrorType + SourceLocation
// + CallStack + source-line rendering); generalized to Lavendeux's kinds.
// An error raised over an underlying Go error (ArithmeticError, IndexError)
// wraps that cause through github.com/pkg/errors; a THRW-raised UserError
// carries only its message. Error() prints the plain located-message
// format below either way.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind is one of the six error kinds from spec.md §7.
type Kind string

const (
	LoadError      Kind = "LoadError"
	TypeErr        Kind = "TypeError"
	ArithmeticErr  Kind = "ArithmeticError"
	IndexErr       Kind = "IndexError"
	UserErr        Kind = "UserError"
	IterationErr   Kind = "IterationError"

	// RecursionErr is not one of spec.md §7's six named kinds; it is an
	// ambient addition for the VM's configurable call-depth limit
	// (Design Notes: "impose a configurable depth limit rather than
	// relying on host stack size").
	RecursionErr Kind = "RecursionError"
)

// Location is a source position, present only when the image carries
// debug info (§4.1's -D flag).
type Location struct {
	Function string
	IP       int
	Line     int
	Column   int
	File     string
}

func (l Location) String() string {
	if l.Function == "" && l.Line == 0 {
		return fmt.Sprintf("ip=%d", l.IP)
	}
	return fmt.Sprintf("%s:%d:%d (ip=%d)", l.Function, l.Line, l.Column, l.IP)
}

// StackFrame is one call-stack entry captured at the point an error
// unwound through it.
type StackFrame struct {
	Function string
	IP       int
}

// LavError is the typed, located error every component in this repo
// raises. cause, when present, is the underlying Go error wrapped with
// github.com/pkg/errors so %+v prints a full stack trace during
// --trace/PRNTM diagnostics.
type LavError struct {
	Kind      Kind
	Message   string
	Loc       Location
	CallStack []StackFrame
	cause     error
}

func (e *LavError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Loc.IP != 0 || e.Loc.Function != "" {
		sb.WriteString(fmt.Sprintf(" (at %s)", e.Loc))
	}
	for _, f := range e.CallStack {
		sb.WriteString(fmt.Sprintf("\n  at %s (ip=%d)", f.Function, f.IP))
	}
	return sb.String()
}

// Unwrap exposes the wrapped cause to errors.As/errors.Is.
func (e *LavError) Unwrap() error { return e.cause }

// Cause returns the deepest pkg/errors-wrapped cause, or e itself when
// the error has no underlying cause.
func (e *LavError) Cause() error {
	if e.cause == nil {
		return e
	}
	return errors.Cause(e.cause)
}

func newf(kind Kind, cause error, format string, args ...interface{}) *LavError {
	msg := fmt.Sprintf(format, args...)
	var wrapped error
	if cause != nil {
		wrapped = errors.Wrap(cause, msg)
	}
	return &LavError{Kind: kind, Message: msg, cause: wrapped}
}

func NewLoadError(format string, args ...interface{}) *LavError {
	return newf(LoadError, nil, format, args...)
}

func NewTypeError(format string, args ...interface{}) *LavError {
	return newf(TypeErr, nil, format, args...)
}

func NewArithmeticError(cause error, format string, args ...interface{}) *LavError {
	return newf(ArithmeticErr, cause, format, args...)
}

func NewIndexError(cause error, format string, args ...interface{}) *LavError {
	return newf(IndexErr, cause, format, args...)
}

func NewUserError(message string) *LavError {
	return &LavError{Kind: UserErr, Message: message}
}

func NewIterationError(format string, args ...interface{}) *LavError {
	return newf(IterationErr, nil, format, args...)
}

func NewRecursionError(format string, args ...interface{}) *LavError {
	return newf(RecursionErr, nil, format, args...)
}

// WithLocation attaches the source position the error unwound from.
func (e *LavError) WithLocation(loc Location) *LavError {
	e.Loc = loc
	return e
}

// WithFrame appends a call-stack frame as the error unwinds through it.
func (e *LavError) WithFrame(function string, ip int) *LavError {
	e.CallStack = append(e.CallStack, StackFrame{Function: function, IP: ip})
	return e
}
