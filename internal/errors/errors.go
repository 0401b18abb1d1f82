package errors

import "errors"

// Error is the classified failure type carried through command execution and
// surfaced to clients. Handlers return it rather than panicking, keeping
// failure paths visible in signatures.
type Error struct {
	Code Code
	// Message is free-form and safe for the wire; it never carries
	// credentials or stack traces.
	Message string
	// Attributes carry structured context for machine consumption.
	Attributes map[string]string
	// Remediation optionally hints at how the caller can recover.
	Remediation string
	// Cause is the wrapped underlying error, kept server-side.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status implied by the error code.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// Blame returns the blame classification implied by the error code.
func (e *Error) Blame() Blame {
	return e.Code.Blame()
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error that preserves an underlying cause. The original
// message is kept available through Unwrap for diagnostics.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithAttributes attaches structured context to a copy of the error.
func (e *Error) WithAttributes(attributes map[string]string) *Error {
	dup := *e
	dup.Attributes = attributes
	return &dup
}

// WithRemediation attaches a remediation hint to a copy of the error.
func (e *Error) WithRemediation(hint string) *Error {
	dup := *e
	dup.Remediation = hint
	return &dup
}

// GetCode extracts the code from any error, defaulting unknown failures to
// IO_ERROR with server blame.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeIOError
}

// As converts any error to the classified form. Unclassified errors are
// wrapped as IO_ERROR with the original message preserved.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(CodeIOError, err.Error(), err)
}

// IsCode reports whether the error carries the given code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}
