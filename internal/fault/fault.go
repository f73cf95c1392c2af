// Package fault deliberately breaks the critical-section contract so that
// the locking monitor can be shown to catch it. It is a test and
// demonstration aid and must stay off in normal operation.
package fault

import (
	"time"

	"pkt.systems/secretd/internal/locking"
)

// DefaultDelay is how long an enabled injector suspends the holder.
const DefaultDelay = time.Second

// Injector suspends the holder of a critical section for Delay.
type Injector struct {
	Enabled bool
	Delay   time.Duration
}

// New returns an injector; a non-positive delay selects DefaultDelay.
func New(enabled bool, delay time.Duration) *Injector {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Injector{Enabled: enabled, Delay: delay}
}

// Hook suspends the goroutine holding sec. Under a spin guard the returned
// error is the contract violation the monitor records; under a mutex guard
// it is nil. The sleep uses the monitor's clock.
func (i *Injector) Hook(sec *locking.Section) error {
	if i == nil || !i.Enabled {
		return nil
	}
	delay := i.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	return sec.Suspend("fault.inject", delay)
}
