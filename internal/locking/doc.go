// Package locking implements the synchronization strategies that protect the
// shared record and the session counters.
//
// Three strategies are supported:
//
//   - Blocking: a sync.Mutex. Holders may perform operations that suspend the
//     goroutine (copying to caller-owned writers, sleeping).
//   - SpinOnly: a SpinLock that busy-waits without yielding. Holders must never
//     suspend while the lock is held.
//   - Atomic: single-word counters are mutated with atomic read-modify-write
//     operations. Multi-field state such as the secret buffer still needs a
//     guard and uses the spin lock.
//
// Critical sections are entered through a Guard, which hands back a Section.
// A holder that is about to do something that may suspend declares it with
// Section.MaySuspend; under a spin guard that declaration is a contract
// violation and is reported to the Monitor when the section exits. The Monitor
// also flags spin sections held longer than the configured bound, which is how
// the injected suspend-while-spinning fault is caught even when the holder does
// not declare it.
package locking
