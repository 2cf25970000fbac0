// Package poserr defines the error kinds shared by the point-of-sale domain.
//
// Each package keeps its own sentinel errors; these types classify them so
// callers (HTTP handlers, terminals) can decide between "fix the input",
// "wrong moment" and "try again later" without knowing every sentinel.
package poserr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ValidationError indicates rejected input. The rejected operation has no effect.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid returns a ValidationError for field wrapping the sentinel err.
func Invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Reason: err.Error(), Err: err}
}

// StateError indicates an operation that is not allowed in the current
// lifecycle state. The rejected operation has no effect.
type StateError struct {
	Op    string
	State string
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s: %v", e.Op, e.State, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// ExternalError indicates that a collaborator (ledger, catalog, rate source)
// failed or did not answer in time. The operation may be retried as is.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: external dependency: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// Retryable reports whether the failed call can be repeated safely.
func (e *ExternalError) Retryable() bool { return true }

// External wraps err as an ExternalError for op.
func External(op string, err error) *ExternalError {
	return &ExternalError{Op: op, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsState reports whether err is (or wraps) a StateError.
func IsState(err error) bool {
	var s *StateError
	return errors.As(err, &s)
}

// IsRetryable reports whether err is (or wraps) a retryable ExternalError.
func IsRetryable(err error) bool {
	var x *ExternalError
	return errors.As(err, &x) && x.Retryable()
}
