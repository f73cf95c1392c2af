package locking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"

	"pkt.systems/secretd/internal/clock"
	"pkt.systems/secretd/internal/failure"
	"pkt.systems/secretd/internal/loggingutil"
)

// DefaultMaxSpinHold bounds how long a spin section may be held before the
// monitor flags it.
const DefaultMaxSpinHold = 20 * time.Millisecond

// Policy decides what happens after a violation has been recorded.
type Policy string

const (
	// PolicyLog records and logs violations and lets the caller continue.
	PolicyLog Policy = "log"
	// PolicyPanic panics with the violation once the offending section has
	// released its lock.
	PolicyPanic Policy = "panic"
)

// ParsePolicy maps a configured name onto a Policy.
func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyLog:
		return PolicyLog, nil
	case PolicyPanic:
		return PolicyPanic, nil
	}
	return PolicyLog, fmt.Errorf("locking: unknown violation policy %q (options: log, panic)", raw)
}

// Reason classifies a violation.
type Reason string

const (
	// ReasonSuspend marks a suspending operation declared inside a spin section.
	ReasonSuspend Reason = "suspend_while_spinning"
	// ReasonHoldBound marks a spin section held longer than the bound.
	ReasonHoldBound Reason = "spin_hold_exceeded"
)

// Violation describes one breach of the critical-section contract.
type Violation struct {
	Guard  string
	Kind   Kind
	Op     string
	Reason Reason
	Held   time.Duration
	Bound  time.Duration
	At     time.Time
}

func (v Violation) String() string {
	switch v.Reason {
	case ReasonHoldBound:
		return fmt.Sprintf("%s guard %q held for %s (bound %s)", v.Kind, v.Guard, v.Held, v.Bound)
	default:
		return fmt.Sprintf("%q may suspend while holding %s guard %q", v.Op, v.Kind, v.Guard)
	}
}

// Err returns the violation as a contract_violation failure.
func (v Violation) Err() error {
	return failure.Failure{Code: failure.CodeContractViolation, Detail: v.String()}
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Policy      Policy
	MaxSpinHold time.Duration
	Clock       clock.Clock
	Logger      pslog.Logger
	// OnViolation, when set, is invoked for every recorded violation after
	// the lock involved has been released.
	OnViolation func(Violation)
}

// Monitor records contract violations raised by guard sections.
type Monitor struct {
	policy      Policy
	bound       time.Duration
	clock       clock.Clock
	logger      pslog.Logger
	onViolation func(Violation)
	metrics     *lockMetrics

	mu         sync.Mutex
	violations []Violation
}

// NewMonitor constructs a Monitor. A zero MaxSpinHold selects
// DefaultMaxSpinHold and a negative one disables the hold check.
func NewMonitor(cfg MonitorConfig) *Monitor {
	logger := loggingutil.WithSubsystem(cfg.Logger, "locking", "monitor")
	bound := cfg.MaxSpinHold
	if bound == 0 {
		bound = DefaultMaxSpinHold
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyLog
	}
	return &Monitor{
		policy:      policy,
		bound:       bound,
		clock:       clock.Ensure(cfg.Clock),
		logger:      logger,
		onViolation: cfg.OnViolation,
		metrics:     newLockMetrics(logger),
	}
}

// Bound returns the spin hold bound, or a non-positive value when disabled.
func (m *Monitor) Bound() time.Duration {
	return m.bound
}

// Clock returns the clock used for timing sections.
func (m *Monitor) Clock() clock.Clock {
	return m.clock
}

// Policy returns the configured violation policy.
func (m *Monitor) Policy() Policy {
	return m.policy
}

// Violations returns a copy of every violation recorded so far.
func (m *Monitor) Violations() []Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Violation, len(m.violations))
	copy(out, m.violations)
	return out
}

// Count returns the number of recorded violations.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.violations)
}

// Reset forgets recorded violations.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.violations = nil
	m.mu.Unlock()
}

// report must be called without any spin guard held: it locks, logs and may
// panic.
func (m *Monitor) report(ctx context.Context, v Violation) {
	m.mu.Lock()
	m.violations = append(m.violations, v)
	m.mu.Unlock()

	m.metrics.recordViolation(ctx, v)
	m.logger.Error("locking.violation",
		"guard", v.Guard,
		"kind", v.Kind.String(),
		"reason", string(v.Reason),
		"op", v.Op,
		"held", v.Held,
		"bound", v.Bound,
	)
	if m.onViolation != nil {
		m.onViolation(v)
	}
	if m.policy == PolicyPanic {
		panic(v.Err())
	}
}
