// Package counter holds the process-wide ga/gb session counter pair.
//
// Every open moves one unit from gb to ga and every close moves it back, so
// ga+gb stays at its initial value (1) whenever no open or close is in
// flight. The pair is protected according to the configured strategy: one
// mutex or one spin guard around both fields, or two independent atomics.
package counter

import (
	"context"
	"sync/atomic"

	"pkt.systems/secretd/internal/locking"
)

const (
	// InitialA is the starting value of ga.
	InitialA = 0
	// InitialB is the starting value of gb.
	InitialB = 1
)

// Pair is the guarded ga/gb counter pair.
type Pair struct {
	strategy locking.Strategy
	guard    *locking.Guard

	// ga and gb are only touched while guard is held.
	ga, gb int64

	atomicA atomic.Int64
	atomicB atomic.Int64
}

// NewPair constructs the pair for strategy, reporting section violations to
// monitor.
func NewPair(strategy locking.Strategy, monitor *locking.Monitor) *Pair {
	p := &Pair{strategy: strategy, ga: InitialA, gb: InitialB}
	if kind, ok := strategy.CounterKind(); ok {
		p.guard = locking.NewGuard("counters", kind, monitor)
	}
	p.atomicA.Store(InitialA)
	p.atomicB.Store(InitialB)
	return p
}

// Strategy returns the strategy protecting the pair.
func (p *Pair) Strategy() locking.Strategy {
	return p.strategy
}

// Open records a session open: ga += 1, gb -= 1.
func (p *Pair) Open(ctx context.Context) (ga, gb int64) {
	return p.shift(ctx, 1)
}

// Close records a session close: ga -= 1, gb += 1.
func (p *Pair) Close(ctx context.Context) (ga, gb int64) {
	return p.shift(ctx, -1)
}

func (p *Pair) shift(ctx context.Context, delta int64) (int64, int64) {
	if p.guard == nil {
		ga := p.atomicA.Add(delta)
		gb := p.atomicB.Add(-delta)
		return ga, gb
	}
	sec := p.guard.Enter(ctx)
	p.ga += delta
	p.gb -= delta
	ga, gb := p.ga, p.gb
	sec.Exit()
	return ga, gb
}

// Snapshot returns the current values. Under the atomic strategy the two
// loads are independent, so the sum is only guaranteed at quiescent points.
func (p *Pair) Snapshot(ctx context.Context) (ga, gb int64) {
	if p.guard == nil {
		return p.atomicA.Load(), p.atomicB.Load()
	}
	sec := p.guard.Enter(ctx)
	ga, gb = p.ga, p.gb
	sec.Exit()
	return ga, gb
}
