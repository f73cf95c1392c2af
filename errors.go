package secretd

import "pkt.systems/secretd/internal/failure"

// Error codes, usable with errors.Is.
var (
	ErrInvalidArgument   = failure.ErrInvalidArgument
	ErrUnavailable       = failure.ErrUnavailable
	ErrFault             = failure.ErrFault
	ErrInvalidState      = failure.ErrInvalidState
	ErrContractViolation = failure.ErrContractViolation
)

// ErrorCode returns the failure code carried by err, or "" when err is not a
// secretd failure.
func ErrorCode(err error) string {
	return failure.CodeOf(err)
}
