package locking

import (
	"context"
	"sync"
	"time"
)

// Guard couples a lock with the monitor that polices its critical sections.
type Guard struct {
	name    string
	kind    Kind
	mutex   sync.Mutex
	spin    SpinLock
	monitor *Monitor
}

// NewGuard builds a guard of the requested kind. A nil monitor gets a default
// one that only logs.
func NewGuard(name string, kind Kind, monitor *Monitor) *Guard {
	if monitor == nil {
		monitor = NewMonitor(MonitorConfig{})
	}
	return &Guard{name: name, kind: kind, monitor: monitor}
}

// Name returns the guard name used in logs and metrics.
func (g *Guard) Name() string {
	return g.name
}

// Kind returns the guard's lock kind.
func (g *Guard) Kind() Kind {
	return g.kind
}

// Locker exposes the underlying lock.
func (g *Guard) Locker() Locker {
	if g.kind == KindSpin {
		return &g.spin
	}
	return &g.mutex
}

// Spins returns the accumulated busy-wait polls for spin guards.
func (g *Guard) Spins() uint64 {
	return g.spin.Spins()
}

// Enter acquires the guard and opens a critical section. The caller must call
// Exit from the same goroutine.
func (g *Guard) Enter(ctx context.Context) *Section {
	s := &Section{ctx: ctx, guard: g}
	if g.kind == KindSpin {
		s.spins = g.spin.lock()
	} else {
		g.mutex.Lock()
	}
	s.start = g.monitor.clock.Now()
	return s
}

// TryEnter opens a section only if the guard is free.
func (g *Guard) TryEnter(ctx context.Context) (*Section, bool) {
	s := &Section{ctx: ctx, guard: g}
	if !g.Locker().TryLock() {
		return nil, false
	}
	s.start = g.monitor.clock.Now()
	return s, true
}

// Section is a held critical section. Nothing inside it is recorded to
// metrics or logs until Exit has released the lock.
type Section struct {
	ctx     context.Context
	guard   *Guard
	spins   uint64
	start   time.Time
	pending []Violation
	exited  bool
}

// Kind returns the kind of the held guard.
func (s *Section) Kind() Kind {
	return s.guard.kind
}

// MaySuspend declares that the holder is about to run op, which can suspend
// the goroutine. Under a spin guard it returns a contract_violation error and
// queues the violation for reporting at Exit; under a mutex guard it returns
// nil.
func (s *Section) MaySuspend(op string) error {
	if s.guard.kind.MaySuspend() {
		return nil
	}
	v := Violation{
		Guard:  s.guard.name,
		Kind:   s.guard.kind,
		Op:     op,
		Reason: ReasonSuspend,
		Held:   s.guard.monitor.clock.Since(s.start),
		Bound:  s.guard.monitor.bound,
		At:     s.guard.monitor.clock.Now(),
	}
	s.pending = append(s.pending, v)
	return v.Err()
}

// Suspend declares op as suspending and then parks the goroutine for d on
// the monitor's clock while the section stays held.
func (s *Section) Suspend(op string, d time.Duration) error {
	err := s.MaySuspend(op)
	s.guard.monitor.clock.Sleep(d)
	return err
}

// Held returns how long the section has been held so far.
func (s *Section) Held() time.Duration {
	return s.guard.monitor.clock.Since(s.start)
}

// Exit releases the guard, then reports queued violations and, for spin
// guards, a breach of the hold bound. Calling Exit twice is a no-op.
func (s *Section) Exit() {
	if s.exited {
		return
	}
	s.exited = true
	g := s.guard
	m := g.monitor
	held := m.clock.Since(s.start)
	g.Locker().Unlock()

	m.metrics.recordSection(s.ctx, g, s.spins, held)
	pending := s.pending
	if g.kind == KindSpin && m.bound > 0 && held > m.bound {
		pending = append(pending, Violation{
			Guard:  g.name,
			Kind:   g.kind,
			Reason: ReasonHoldBound,
			Held:   held,
			Bound:  m.bound,
			At:     m.clock.Now(),
		})
	}
	for _, v := range pending {
		m.report(s.ctx, v)
	}
}
