package secretd

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"pkt.systems/pslog"

	"pkt.systems/secretd/internal/clock"
	"pkt.systems/secretd/internal/core"
	"pkt.systems/secretd/internal/counter"
	"pkt.systems/secretd/internal/fault"
	"pkt.systems/secretd/internal/locking"
	"pkt.systems/secretd/internal/loggingutil"
	"pkt.systems/secretd/internal/record"
)

type (
	// Handle is an open session returned by Server.Open.
	Handle = core.Handle
	// Stats merges record, counter and session state.
	Stats = core.Stats
	// RecordStats describes the shared record.
	RecordStats = record.Stats
	// Violation describes a breach of the critical-section contract.
	Violation = locking.Violation
)

// Server owns the shared record, the session counters and the session
// manager for the lifetime of the process.
type Server struct {
	cfg        Config
	logger     pslog.Logger
	instanceID string
	monitor    *locking.Monitor
	service    *core.Service
	telemetry  *telemetryBundle

	mu       sync.Mutex
	shutdown bool
}

// Option configures server instances.
type Option func(*options)

type options struct {
	Logger      pslog.Logger
	Clock       clock.Clock
	OnViolation func(Violation)
}

// WithLogger supplies a custom logger.
func WithLogger(l pslog.Logger) Option {
	return func(o *options) {
		o.Logger = l
	}
}

// WithClock injects the clock used to time critical sections and injected
// faults.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.Clock = c
	}
}

// WithViolationHook registers fn to be called for every contract violation,
// after the offending lock has been released.
func WithViolationHook(fn func(Violation)) Option {
	return func(o *options) {
		o.OnViolation = fn
	}
}

// NewServer constructs a server according to cfg.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	instanceID := uuid.Must(uuid.NewV7()).String()
	logger := loggingutil.EnsureLogger(o.Logger).With("instance", instanceID)
	srvLogger := loggingutil.WithSubsystem(logger, "server")

	telemetry, err := setupTelemetry(context.Background(), cfg, instanceID, loggingutil.WithSubsystem(logger, "telemetry"))
	if err != nil {
		return nil, err
	}

	strategy := cfg.LockStrategy()
	monitor := locking.NewMonitor(locking.MonitorConfig{
		Policy:      cfg.policy,
		MaxSpinHold: cfg.MaxSpinHold,
		Clock:       o.Clock,
		Logger:      logger,
		OnViolation: o.OnViolation,
	})
	var hook record.Hook
	if cfg.InjectFault {
		hook = fault.New(true, cfg.FaultDelay).Hook
		srvLogger.Warn("server.fault_injection.enabled",
			"strategy", strategy.String(),
			"delay", cfg.FaultDelay,
			"impact", "every write suspends while holding the record guard",
		)
	}
	rec, err := record.New(record.Config{
		Capacity:      cfg.Capacity,
		Strategy:      strategy,
		InitialSecret: cfg.InitialSecret,
		Monitor:       monitor,
		Hook:          hook,
		Logger:        logger,
	})
	if err != nil {
		_ = telemetry.Shutdown(context.Background())
		return nil, err
	}
	svc, err := core.New(core.Config{
		Strategy: strategy,
		Record:   rec,
		Counter:  counter.NewPair(strategy, monitor),
		Monitor:  monitor,
		Logger:   logger,
	})
	if err != nil {
		_ = telemetry.Shutdown(context.Background())
		return nil, err
	}
	srvLogger.Info("server.ready",
		"strategy", strategy.String(),
		"capacity", cfg.Capacity,
		"max_spin_hold", monitor.Bound(),
		"violation_policy", string(monitor.Policy()),
	)
	return &Server{
		cfg:        cfg,
		logger:     srvLogger,
		instanceID: instanceID,
		monitor:    monitor,
		service:    svc,
		telemetry:  telemetry,
	}, nil
}

// Config returns the validated configuration.
func (s *Server) Config() Config {
	return s.cfg
}

// InstanceID returns the UUIDv7 assigned to this server.
func (s *Server) InstanceID() string {
	return s.instanceID
}

// Strategy returns the active locking strategy.
func (s *Server) Strategy() Strategy {
	return s.service.Strategy()
}

// Capacity returns the record capacity in bytes.
func (s *Server) Capacity() int {
	return s.service.Capacity()
}

// Open starts a session.
func (s *Server) Open(ctx context.Context) Handle {
	return s.service.Open(ctx)
}

// Read returns a copy of the secret; requested must be at least Capacity.
func (s *Server) Read(ctx context.Context, h Handle, requested int) ([]byte, error) {
	return s.service.Read(ctx, h, requested)
}

// ReadTo copies the secret to dst. On ErrFault dst may hold a partial copy
// that must be discarded.
func (s *Server) ReadTo(ctx context.Context, h Handle, dst io.Writer, requested int) (int, error) {
	return s.service.ReadTo(ctx, h, dst, requested)
}

// Write replaces the secret with data.
func (s *Server) Write(ctx context.Context, h Handle, data []byte) (int, error) {
	return s.service.Write(ctx, h, data)
}

// WriteFrom replaces the secret with exactly n bytes read from src.
func (s *Server) WriteFrom(ctx context.Context, h Handle, src io.Reader, n int) (int, error) {
	return s.service.WriteFrom(ctx, h, src, n)
}

// Close ends a session. Closing twice is a no-op.
func (s *Server) Close(ctx context.Context, h Handle) error {
	return s.service.Close(ctx, h)
}

// Stats returns the merged record, counter and session view.
func (s *Server) Stats(ctx context.Context) Stats {
	return s.service.Stats(ctx)
}

// Violations returns every contract violation recorded so far.
func (s *Server) Violations() []Violation {
	return s.monitor.Violations()
}

// Shutdown logs the final stats and stops the telemetry surfaces. It is safe
// to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	st := s.service.Stats(ctx)
	s.logger.Info("server.shutdown",
		"ga", st.GA,
		"gb", st.GB,
		"tx", st.Record.BytesSent,
		"rx", st.Record.BytesReceived,
		"errors", st.Record.Errors,
		"open_sessions", st.OpenSessions,
		"violations", st.Violations,
	)
	return s.telemetry.Shutdown(ctx)
}
