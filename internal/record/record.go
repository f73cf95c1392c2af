// Package record implements the shared secret record: a bounded byte buffer
// plus transfer and error counters, guarded according to the configured
// locking strategy.
//
// Copies to and from caller-owned readers and writers may suspend, so they
// happen outside spin sections. Only the blocking strategy copies out while
// holding its (mutex) guard.
package record

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"pkt.systems/pslog"

	"pkt.systems/secretd/internal/failure"
	"pkt.systems/secretd/internal/locking"
	"pkt.systems/secretd/internal/loggingutil"
)

// DefaultCapacity is the secret buffer size used when none is configured.
const DefaultCapacity = 128

// Hook runs inside the write critical section, after the new secret has been
// assigned and before the guard is released.
type Hook func(sec *locking.Section) error

// Config configures a Record.
type Config struct {
	Capacity      int
	Strategy      locking.Strategy
	InitialSecret string
	Monitor       *locking.Monitor
	Hook          Hook
	Logger        pslog.Logger
}

// Stats is a consistent snapshot of the record.
type Stats struct {
	Capacity      int
	SecretLen     int
	BytesSent     uint64
	BytesReceived uint64
	Errors        uint64
}

// Record is the shared secret record.
type Record struct {
	capacity int
	strategy locking.Strategy
	guard    *locking.Guard
	hook     Hook
	logger   pslog.Logger
	metrics  *recordMetrics
	atomics  bool

	// Guarded by guard. secret never grows beyond capacity-1 bytes and its
	// backing array is allocated once.
	secret   []byte
	sent     uint64
	received uint64
	errs     uint64

	// Used instead of the guarded counters under the atomic strategy.
	atomicSent     atomic.Uint64
	atomicReceived atomic.Uint64
	atomicErrs     atomic.Uint64
}

// New constructs a Record. The initial secret, if any, is stored with the
// same termination and truncation rules as a write.
func New(cfg Config) (*Record, error) {
	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if capacity < 2 {
		return nil, fmt.Errorf("record: capacity must be at least 2 bytes (got %d)", capacity)
	}
	switch cfg.Strategy {
	case locking.Blocking, locking.SpinOnly, locking.Atomic:
	default:
		return nil, fmt.Errorf("record: unknown strategy %d", int(cfg.Strategy))
	}
	r := &Record{
		capacity: capacity,
		strategy: cfg.Strategy,
		guard:    locking.NewGuard("record", cfg.Strategy.RecordKind(), cfg.Monitor),
		hook:     cfg.Hook,
		logger:   loggingutil.WithSubsystem(cfg.Logger, "record"),
		atomics:  cfg.Strategy.AtomicCounters(),
		secret:   make([]byte, 0, capacity),
	}
	r.metrics = newRecordMetrics(r.logger)
	// No session can exist yet, so the seed needs no lock.
	r.secret = append(r.secret, r.terminate([]byte(cfg.InitialSecret))...)
	return r, nil
}

// Capacity returns C, the secret buffer size.
func (r *Record) Capacity() int {
	return r.capacity
}

// Strategy returns the record's locking strategy.
func (r *Record) Strategy() locking.Strategy {
	return r.strategy
}

// terminate applies the terminated-string convention: content ends at the
// first NUL and keeps at most capacity-1 bytes.
func (r *Record) terminate(data []byte) []byte {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	if len(data) > r.capacity-1 {
		data = data[:r.capacity-1]
	}
	return data
}

// ReadTo copies the current secret to dst and returns the number of bytes
// written. requested must be at least the record capacity. On a fault dst may
// have received a partial copy, which callers must discard.
func (r *Record) ReadTo(ctx context.Context, dst io.Writer, requested int) (int, error) {
	if requested < r.capacity {
		r.countError(ctx)
		return r.fail(ctx, "read", failure.InvalidArgument("requested length %d is below capacity %d", requested, r.capacity))
	}
	if dst == nil {
		r.countError(ctx)
		return r.fail(ctx, "read", failure.Fault("copy out", errors.New("nil destination")))
	}
	if r.guard.Kind() == locking.KindMutex {
		return r.readHeld(ctx, dst)
	}
	return r.readSnapshot(ctx, dst)
}

// readHeld copies out while holding the mutex guard.
func (r *Record) readHeld(ctx context.Context, dst io.Writer) (int, error) {
	sec := r.guard.Enter(ctx)
	if len(r.secret) == 0 {
		r.errs++
		sec.Exit()
		return r.fail(ctx, "read", failure.Unavailable("secret is empty"))
	}
	_ = sec.MaySuspend("copy_out")
	n, err := dst.Write(r.secret)
	if err == nil && n < len(r.secret) {
		err = io.ErrShortWrite
	}
	if err != nil {
		r.errs++
		sec.Exit()
		return r.fail(ctx, "read", failure.Fault("copy out", err))
	}
	r.sent += uint64(n)
	sec.Exit()
	r.metrics.recordSent(ctx, n)
	r.logger.Debug("record.read", "bytes", n)
	return n, nil
}

// readSnapshot copies the secret into private staging under the spin guard
// and writes it to dst after releasing it.
func (r *Record) readSnapshot(ctx context.Context, dst io.Writer) (int, error) {
	staging := make([]byte, r.capacity)
	sec := r.guard.Enter(ctx)
	size := copy(staging, r.secret)
	if size == 0 && !r.atomics {
		r.errs++
	}
	sec.Exit()
	if size == 0 {
		if r.atomics {
			r.atomicErrs.Add(1)
		}
		return r.fail(ctx, "read", failure.Unavailable("secret is empty"))
	}
	n, err := dst.Write(staging[:size])
	if err == nil && n < size {
		err = io.ErrShortWrite
	}
	if err != nil {
		r.countError(ctx)
		return r.fail(ctx, "read", failure.Fault("copy out", err))
	}
	r.addSent(ctx, n)
	r.metrics.recordSent(ctx, n)
	r.logger.Debug("record.read", "bytes", n)
	return n, nil
}

// Read returns a copy of the current secret. It never returns partial data.
func (r *Record) Read(ctx context.Context, requested int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(r.capacity)
	if _, err := r.ReadTo(ctx, &buf, requested); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFrom reads exactly n bytes from src into private staging, then
// replaces the secret with them. It returns n even when the stored content
// was terminated or truncated.
func (r *Record) WriteFrom(ctx context.Context, src io.Reader, n int) (int, error) {
	if n < 0 || n > r.capacity {
		r.countError(ctx)
		return r.fail(ctx, "write", failure.InvalidArgument("write length %d outside [0, %d]", n, r.capacity))
	}
	if src == nil && n > 0 {
		r.countError(ctx)
		return r.fail(ctx, "write", failure.Fault("copy in", errors.New("nil source")))
	}
	staging := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(src, staging); err != nil {
			r.countError(ctx)
			return r.fail(ctx, "write", failure.Fault("copy in", err))
		}
	}
	content := r.terminate(staging)
	r.logger.Debug("record.write.staged", "requested", n, "stored", len(content))

	var hookErr error
	sec := r.guard.Enter(ctx)
	r.secret = append(r.secret[:0], content...)
	if r.atomics {
		r.atomicReceived.Add(uint64(n))
	} else {
		r.received += uint64(n)
	}
	if r.hook != nil {
		hookErr = r.hook(sec)
	}
	sec.Exit()

	r.metrics.recordReceived(ctx, n)
	if hookErr != nil {
		r.logger.Warn("record.write.hook", "error", hookErr)
	}
	r.logger.Debug("record.write.committed", "bytes", n)
	return n, nil
}

// Write replaces the secret with data.
func (r *Record) Write(ctx context.Context, data []byte) (int, error) {
	return r.WriteFrom(ctx, bytes.NewReader(data), len(data))
}

// Stats returns a snapshot of the record. Under the guarded strategies all
// fields are read in one section. Under the atomic strategy each counter is
// loaded independently.
func (r *Record) Stats(ctx context.Context) Stats {
	st := Stats{Capacity: r.capacity}
	sec := r.guard.Enter(ctx)
	st.SecretLen = len(r.secret)
	if !r.atomics {
		st.BytesSent, st.BytesReceived, st.Errors = r.sent, r.received, r.errs
	}
	sec.Exit()
	if r.atomics {
		st.BytesSent = r.atomicSent.Load()
		st.BytesReceived = r.atomicReceived.Load()
		st.Errors = r.atomicErrs.Load()
	}
	return st
}

func (r *Record) countError(ctx context.Context) {
	if r.atomics {
		r.atomicErrs.Add(1)
		return
	}
	sec := r.guard.Enter(ctx)
	r.errs++
	sec.Exit()
}

func (r *Record) addSent(ctx context.Context, n int) {
	if r.atomics {
		r.atomicSent.Add(uint64(n))
		return
	}
	sec := r.guard.Enter(ctx)
	r.sent += uint64(n)
	sec.Exit()
}

// fail is called with no guard held.
func (r *Record) fail(ctx context.Context, op string, err error) (int, error) {
	code := failure.CodeOf(err)
	r.metrics.recordError(ctx, op, code)
	r.logger.Debug("record."+op+".failed", "code", code, "error", err)
	return 0, err
}
