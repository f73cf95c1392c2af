package locking

import (
	"fmt"
	"strings"
)

// Strategy selects how the record and the counters are synchronized.
type Strategy uint8

const (
	// Blocking protects state with sleeping mutexes.
	Blocking Strategy = iota
	// SpinOnly protects state with busy-wait spin locks.
	SpinOnly
	// Atomic mutates counters with atomic operations and guards the secret
	// buffer with a spin lock.
	Atomic
)

// DefaultStrategy is used when none is configured.
const DefaultStrategy = Blocking

// Strategies lists every supported strategy in declaration order.
func Strategies() []Strategy {
	return []Strategy{Blocking, SpinOnly, Atomic}
}

// StrategyNames returns the canonical names of every strategy.
func StrategyNames() []string {
	names := make([]string, 0, 3)
	for _, s := range Strategies() {
		names = append(names, s.String())
	}
	return names
}

func (s Strategy) String() string {
	switch s {
	case Blocking:
		return "blocking"
	case SpinOnly:
		return "spin"
	case Atomic:
		return "atomic"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// ParseStrategy maps a user supplied name onto a Strategy.
func ParseStrategy(raw string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "blocking", "mutex":
		return Blocking, nil
	case "spin", "spinonly", "spin-only", "spinlock":
		return SpinOnly, nil
	case "atomic":
		return Atomic, nil
	}
	return Blocking, fmt.Errorf("locking: unknown strategy %q (options: %s)", raw, strings.Join(StrategyNames(), ", "))
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// RecordKind is the guard kind protecting the shared record's secret buffer.
func (s Strategy) RecordKind() Kind {
	if s == Blocking {
		return KindMutex
	}
	return KindSpin
}

// CounterKind is the guard kind protecting the session counters. ok is false
// for Atomic, where the counters carry no lock at all.
func (s Strategy) CounterKind() (kind Kind, ok bool) {
	switch s {
	case Blocking:
		return KindMutex, true
	case SpinOnly:
		return KindSpin, true
	}
	return 0, false
}

// AtomicCounters reports whether single-word counters are updated with atomic
// operations instead of under a guard.
func (s Strategy) AtomicCounters() bool {
	return s == Atomic
}

// Kind classifies a lock by whether its holder may suspend.
type Kind uint8

const (
	// KindMutex locks park waiters and tolerate suspension while held.
	KindMutex Kind = iota
	// KindSpin locks busy-wait and forbid suspension while held.
	KindSpin
)

func (k Kind) String() string {
	if k == KindSpin {
		return "spin"
	}
	return "mutex"
}

// MaySuspend reports whether a holder of this kind of lock may suspend.
func (k Kind) MaySuspend() bool {
	return k == KindMutex
}
