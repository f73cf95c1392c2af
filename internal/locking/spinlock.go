package locking

import (
	"sync"
	"sync/atomic"
)

// Locker is the capability set every strategy lock offers.
type Locker interface {
	Lock()
	Unlock()
	TryLock() bool
}

var (
	_ Locker = (*sync.Mutex)(nil)
	_ Locker = (*SpinLock)(nil)
)

// SpinLock is a test-and-test-and-set lock that busy-waits until it is free.
// It never parks or yields the processor. The zero value is unlocked.
type SpinLock struct {
	state atomic.Uint32
	spins atomic.Uint64
}

// Lock acquires the lock, spinning until it is available.
func (l *SpinLock) Lock() {
	l.lock()
}

// lock acquires the lock and returns how many times the caller polled a held
// lock before getting it.
func (l *SpinLock) lock() uint64 {
	var spins uint64
	for {
		if l.state.CompareAndSwap(0, 1) {
			if spins > 0 {
				l.spins.Add(spins)
			}
			return spins
		}
		for l.state.Load() != 0 {
			spins++
		}
	}
}

// TryLock acquires the lock only if it is free and never waits.
func (l *SpinLock) TryLock() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Unlock releases the lock. Unlocking an unlocked SpinLock panics, like
// sync.Mutex.
func (l *SpinLock) Unlock() {
	if l.state.Swap(0) == 0 {
		panic("locking: unlock of unlocked SpinLock")
	}
}

// Spins returns the total number of busy-wait polls observed by Lock.
func (l *SpinLock) Spins() uint64 {
	return l.spins.Load()
}
