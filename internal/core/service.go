// Package core implements the session manager: the open/read/write/close
// protocol layered over the shared record and the session counter pair.
package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/xid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"pkt.systems/pslog"

	"pkt.systems/secretd/internal/counter"
	"pkt.systems/secretd/internal/failure"
	"pkt.systems/secretd/internal/locking"
	"pkt.systems/secretd/internal/loggingutil"
	"pkt.systems/secretd/internal/record"
)

// Service is the session manager. It is the only component that mutates the
// record and the counters.
type Service struct {
	strategy locking.Strategy
	record   *record.Record
	counters *counter.Pair
	monitor  *locking.Monitor
	logger   pslog.Logger
	tracer   trace.Tracer
	metrics  *sessionMetrics

	mu       sync.Mutex
	sessions map[xid.ID]struct{}
}

// New constructs a Service.
func New(cfg Config) (*Service, error) {
	logger := loggingutil.WithSubsystem(cfg.Logger, "core", "session")
	monitor := cfg.Monitor
	if monitor == nil {
		monitor = locking.NewMonitor(locking.MonitorConfig{Logger: cfg.Logger})
	}
	rec := cfg.Record
	if rec == nil {
		var err error
		rec, err = record.New(record.Config{Strategy: cfg.Strategy, Monitor: monitor, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
	} else if rec.Strategy() != cfg.Strategy {
		return nil, fmt.Errorf("core: record strategy %s does not match %s", rec.Strategy(), cfg.Strategy)
	}
	counters := cfg.Counter
	if counters == nil {
		counters = counter.NewPair(cfg.Strategy, monitor)
	} else if counters.Strategy() != cfg.Strategy {
		return nil, fmt.Errorf("core: counter strategy %s does not match %s", counters.Strategy(), cfg.Strategy)
	}
	s := &Service{
		strategy: cfg.Strategy,
		record:   rec,
		counters: counters,
		monitor:  monitor,
		logger:   logger,
		tracer:   otel.Tracer("pkt.systems/secretd/core"),
		sessions: make(map[xid.ID]struct{}),
	}
	s.metrics = newSessionMetrics(logger, counter.InitialA, counter.InitialB)
	return s, nil
}

// Strategy returns the active locking strategy.
func (s *Service) Strategy() locking.Strategy {
	return s.strategy
}

// Monitor returns the monitor policing the service's guards.
func (s *Service) Monitor() *locking.Monitor {
	return s.monitor
}

// Capacity returns the record capacity.
func (s *Service) Capacity() int {
	return s.record.Capacity()
}

// Open starts a session. It always succeeds.
func (s *Service) Open(ctx context.Context) Handle {
	h := Handle{id: xid.New(), svc: s}
	ctx, span, logger, finish := s.start(ctx, "open", h)
	defer span.End()

	ga, gb := s.counters.Open(ctx)
	s.mu.Lock()
	s.sessions[h.id] = struct{}{}
	open := len(s.sessions)
	s.mu.Unlock()

	s.metrics.observeCounters(ga, gb, int64(open))
	finish(nil)
	logger.Debug("session.open", "ga", ga, "gb", gb, "open_sessions", open)
	s.logStats(ctx, logger)
	return h
}

// Close ends a session. Closing an unknown, foreign or already closed handle
// is a no-op.
func (s *Service) Close(ctx context.Context, h Handle) error {
	ctx, span, logger, finish := s.start(ctx, "close", h)
	defer span.End()

	s.mu.Lock()
	_, ok := s.sessions[h.id]
	if ok && h.svc == s {
		delete(s.sessions, h.id)
	} else {
		ok = false
	}
	open := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		finish(nil)
		logger.Debug("session.close.noop")
		return nil
	}

	ga, gb := s.counters.Close(ctx)
	s.metrics.observeCounters(ga, gb, int64(open))
	finish(nil)
	logger.Debug("session.close", "ga", ga, "gb", gb, "open_sessions", open)
	s.logStats(ctx, logger)
	return nil
}

// Read returns a copy of the secret. requested must be at least the record
// capacity.
func (s *Service) Read(ctx context.Context, h Handle, requested int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(s.record.Capacity())
	if _, err := s.ReadTo(ctx, h, &buf, requested); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadTo copies the secret to dst. On a fault dst may hold a partial copy
// that must be discarded.
func (s *Service) ReadTo(ctx context.Context, h Handle, dst io.Writer, requested int) (int, error) {
	ctx, span, logger, finish := s.start(ctx, "read", h)
	defer span.End()

	if err := s.validate(h); err != nil {
		return s.fail(ctx, logger, finish, err)
	}
	n, err := s.record.ReadTo(ctx, dst, requested)
	if err != nil {
		return s.fail(ctx, logger, finish, err)
	}
	finish(nil)
	logger.Debug("session.read", "requested", requested, "bytes", n)
	return n, nil
}

// Write replaces the secret with data.
func (s *Service) Write(ctx context.Context, h Handle, data []byte) (int, error) {
	return s.WriteFrom(ctx, h, bytes.NewReader(data), len(data))
}

// WriteFrom replaces the secret with exactly n bytes read from src.
func (s *Service) WriteFrom(ctx context.Context, h Handle, src io.Reader, n int) (int, error) {
	ctx, span, logger, finish := s.start(ctx, "write", h)
	defer span.End()

	if err := s.validate(h); err != nil {
		return s.fail(ctx, logger, finish, err)
	}
	written, err := s.record.WriteFrom(ctx, src, n)
	if err != nil {
		return s.fail(ctx, logger, finish, err)
	}
	finish(nil)
	logger.Debug("session.write", "bytes", written)
	return written, nil
}

// Stats returns the merged view of record, counters and sessions.
func (s *Service) Stats(ctx context.Context) Stats {
	ga, gb := s.counters.Snapshot(ctx)
	s.mu.Lock()
	open := len(s.sessions)
	s.mu.Unlock()
	return Stats{
		Strategy:     s.strategy,
		Record:       s.record.Stats(ctx),
		GA:           ga,
		GB:           gb,
		OpenSessions: open,
		Violations:   s.monitor.Count(),
	}
}

// Violations returns every contract violation recorded so far.
func (s *Service) Violations() []locking.Violation {
	return s.monitor.Violations()
}

func (s *Service) validate(h Handle) error {
	if h.IsZero() {
		return failure.InvalidState("session was never opened")
	}
	if h.svc != s {
		return failure.InvalidState("session belongs to another service")
	}
	s.mu.Lock()
	_, ok := s.sessions[h.id]
	s.mu.Unlock()
	if !ok {
		return failure.InvalidState("session is closed")
	}
	return nil
}

func (s *Service) fail(ctx context.Context, logger pslog.Logger, finish func(error), err error) (int, error) {
	finish(err)
	logger.Debug("session.failed", "code", failure.CodeOf(err), "error", err)
	s.logStats(ctx, logger)
	return 0, err
}

// logStats emits the display_stats line.
func (s *Service) logStats(ctx context.Context, logger pslog.Logger) {
	st := s.Stats(ctx)
	logger.Debug("session.stats",
		"strategy", st.Strategy.String(),
		"secret_len", st.Record.SecretLen,
		"tx", st.Record.BytesSent,
		"rx", st.Record.BytesReceived,
		"errors", st.Record.Errors,
		"ga", st.GA,
		"gb", st.GB,
		"open_sessions", st.OpenSessions,
		"violations", st.Violations,
	)
}
