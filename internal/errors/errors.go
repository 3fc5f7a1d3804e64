// Package errors provides service-level errors that carry a stack trace,
// plus HTTP middleware that turns panics and failed requests into logs.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// Error is a service error with context and the stack at creation.
type Error struct {
	// Err is the underlying cause, if any.
	Err error
	// Message describes what failed.
	Message string
	// Operation names the action in progress, e.g. "run".
	Operation string
	// Component names the owning package or subsystem.
	Component string
	// Stack holds one "function\n\tfile:line" entry per frame.
	Stack []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Operation != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString("operation=")
		b.WriteString(e.Operation)
	}
	if e.Component != "" {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString("component=")
		b.WriteString(e.Component)
	}
	if e.Err != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithOperation sets the operation.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithComponent sets the component.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// StackTrace returns the captured stack.
func (e *Error) StackTrace() []string {
	return e.Stack
}

// New creates an error with a message.
func New(msg string) *Error {
	return &Error{Message: msg, Stack: stackTrace(3)}
}

// Errorf creates an error with a formatted message.
func Errorf(format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Stack: stackTrace(3)}
}

// Wrap wraps err with a message. It returns nil for a nil err. Wrapping
// never mutates err, even when it already is an *Error.
func Wrap(err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Err: err, Message: msg, Stack: stackTrace(3)}
}

// Wrapf wraps err with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Err: err, Message: fmt.Sprintf(format, args...), Stack: stackTrace(3)}
}

// FromPanic converts a recovered panic value into an error. The stack is
// taken from the deferred call site, which still includes the panicking
// frames.
func FromPanic(rec interface{}) *Error {
	e := &Error{Message: "panic", Stack: stackTrace(3)}
	if err, ok := rec.(error); ok {
		e.Err = err
	} else {
		e.Err = fmt.Errorf("%v", rec)
	}
	return e
}

func stackTrace(skip int) []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(skip, pcs[:])
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]string, 0, n)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") && !strings.Contains(frame.File, "internal/errors") {
			stack = append(stack, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return stack
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the error wrapped by err, or nil.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}
