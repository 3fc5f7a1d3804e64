package optimization

import (
	"errors"
	"fmt"
)

// Kind classifies an optimization error so that callers can decide how to
// surface it without matching on messages.
type Kind string

const (
	// KindUnknown is used for errors that did not originate in this module.
	KindUnknown Kind = ""
	// KindParse marks a malformed objective expression or variable list.
	KindParse Kind = "ParseError"
	// KindFormat marks a malformed vector literal.
	KindFormat Kind = "FormatError"
	// KindEvaluation marks an objective or gradient that is undefined at a point.
	KindEvaluation Kind = "EvaluationError"
	// KindConfig marks settings rejected before a run starts.
	KindConfig Kind = "ConfigError"
	// KindNumericDegeneracy marks a numerically degenerate update, such as a
	// vanishing BFGS secant denominator.
	KindNumericDegeneracy Kind = "NumericDegeneracy"
	// KindCancelled marks a run stopped through its context.
	KindCancelled Kind = "Cancelled"
)

// Error represents an optimization error with context
// that can be wrapped with additional information.
type Error struct {
	// Kind classifies the failure.
	Kind Kind
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// NewError creates a new optimization error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// NewErrorf creates a new optimization error with formatted message.
func NewErrorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with a kind and additional context.
// If err is nil, WrapError returns nil.
func WrapError(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// WrapErrorf wraps an existing error with additional formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(err error, kind Kind, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsOptimizationError checks if an error chain contains an *Error.
// If so, it returns the outermost one and true.
func IsOptimizationError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the outermost *Error in err's chain that carries
// a kind, or KindUnknown.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind != KindUnknown {
			return e.Kind
		}
		err = errors.Unwrap(err)
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
