// Package clock supplies the time source used to time critical sections and
// to park injected suspensions, so tests can drive both deterministically.
package clock

import "time"

// Clock abstracts the time functions the lock monitor and fault injector use.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Sleep(d time.Duration)
}

// Real implements Clock with the runtime's monotonic clock.
type Real struct{}

// Now returns the current time. The monotonic reading is kept so Since stays
// immune to wall clock steps.
func (Real) Now() time.Time {
	return time.Now()
}

// Since mirrors time.Since.
func (Real) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// Sleep parks the calling goroutine for at least d.
func (Real) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Ensure returns c when non-nil, otherwise Real.
func Ensure(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}
