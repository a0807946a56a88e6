package validation

import (
	"errors"
	"fmt"
)

// ErrInvalidInput matches every *ValidationError through errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError is the single error kind raised by the validator and the
// session store. Err carries the underlying cause (I/O, decode) when there is one.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Invalid builds a ValidationError without an underlying cause.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Invalidf is Invalid with a formatted reason.
func Invalidf(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Wrap builds a ValidationError that preserves cause for errors.Is/As.
func Wrap(field, reason string, cause error) error {
	return &ValidationError{Field: field, Reason: reason, Err: cause}
}
