// Package errcode attaches stable machine-readable codes to pipeline errors.
//
// Gate failures are never errors. Errors carry one of the codes below and
// surface at the CLI as "CODE: message" on stderr with exit status 1.
package errcode

import (
	"errors"
	"fmt"
)

// Stable error codes.
const (
	BadInput          = "E_BAD_INPUT"
	BadTrace          = "E_BAD_TRACE"
	MissingDependency = "E_MISSING_DEPENDENCY"
	QualityGateFailed = "E_QUALITY_GATE_FAILED"
	CollectorFailed   = "E_COLLECTOR_FAILED"
	DriftFailed       = "E_DRIFT_FAILED"
	Unknown           = "E_UNKNOWN"
)

// Error wraps an error with a code and the operation that produced it.
type Error struct {
	Code string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a coded error with a formatted message.
func New(code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a code and operation to err. A nil err stays nil.
func Wrap(code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

// BadInputf is shorthand for New(BadInput, ...).
func BadInputf(format string, args ...any) *Error {
	return New(BadInput, format, args...)
}

// Code returns the code of the outermost coded error in err's chain,
// or Unknown when none is present.
func Code(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return Unknown
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && Code(err) == code
}
