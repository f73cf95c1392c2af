// Package failure defines the error taxonomy shared by the record, the lock
// monitor and the session manager.
package failure

import (
	"errors"
	"fmt"
)

// Codes carried by Failure.
const (
	CodeInvalidArgument   = "invalid_argument"
	CodeUnavailable       = "unavailable"
	CodeFault             = "fault"
	CodeInvalidState      = "invalid_state"
	CodeContractViolation = "contract_violation"
)

// Failure captures a typed operation error. Two failures match under
// errors.Is when their codes are equal, so callers compare against the
// exported sentinels.
type Failure struct {
	Code   string
	Detail string
	Err    error
}

// Sentinels for errors.Is.
var (
	ErrInvalidArgument   = Failure{Code: CodeInvalidArgument}
	ErrUnavailable       = Failure{Code: CodeUnavailable}
	ErrFault             = Failure{Code: CodeFault}
	ErrInvalidState      = Failure{Code: CodeInvalidState}
	ErrContractViolation = Failure{Code: CodeContractViolation}
)

func (f Failure) Error() string {
	switch {
	case f.Detail != "" && f.Err != nil:
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Detail, f.Err)
	case f.Detail != "":
		return fmt.Sprintf("%s: %s", f.Code, f.Detail)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Code, f.Err)
	}
	return f.Code
}

// Unwrap exposes the underlying cause, if any.
func (f Failure) Unwrap() error {
	return f.Err
}

// Is reports whether target is a Failure with the same code.
func (f Failure) Is(target error) bool {
	var other Failure
	switch t := target.(type) {
	case Failure:
		other = t
	case *Failure:
		if t == nil {
			return false
		}
		other = *t
	default:
		return false
	}
	return other.Code == f.Code
}

// InvalidArgument builds an invalid_argument failure.
func InvalidArgument(format string, args ...any) error {
	return Failure{Code: CodeInvalidArgument, Detail: fmt.Sprintf(format, args...)}
}

// Unavailable builds an unavailable failure.
func Unavailable(detail string) error {
	return Failure{Code: CodeUnavailable, Detail: detail}
}

// Fault wraps a copy error into a fault failure.
func Fault(detail string, err error) error {
	return Failure{Code: CodeFault, Detail: detail, Err: err}
}

// InvalidState builds an invalid_state failure.
func InvalidState(detail string) error {
	return Failure{Code: CodeInvalidState, Detail: detail}
}

// CodeOf returns the failure code carried by err, or "" when err is not a
// Failure.
func CodeOf(err error) string {
	var f Failure
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}
