package core

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pkt.systems/pslog"

	"pkt.systems/secretd/internal/correlation"
	"pkt.systems/secretd/internal/failure"
	"pkt.systems/secretd/internal/loggingutil"
)

// start opens a span for op and returns a logger carrying the session and
// caller context. finish closes out the span status and records metrics.
func (s *Service) start(ctx context.Context, op string, h Handle) (context.Context, trace.Span, pslog.Logger, func(error)) {
	if ctx == nil {
		ctx = context.Background()
	}
	begin := time.Now()
	ctx, span := s.tracer.Start(ctx, "secretd.session."+op, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("secretd.session.operation", op),
		attribute.String("secretd.strategy", s.strategy.String()),
	)
	logger := s.logger
	if ctxLogger := pslog.LoggerFromContext(ctx); ctxLogger != nil {
		logger = loggingutil.WithSubsystem(ctxLogger, "core", "session")
	}
	if runID := correlation.ID(ctx); runID != "" {
		span.SetAttributes(attribute.String("secretd.run.id", runID))
		logger = logger.With("run_id", runID)
	}
	if !h.IsZero() {
		span.SetAttributes(attribute.String("secretd.session.id", h.id.String()))
		logger = logger.With("session", h.id.String())
	}
	logger = logger.With(loggingutil.CallerFields()...)
	ctx = pslog.ContextWithLogger(ctx, logger)

	return ctx, span, logger, func(err error) {
		elapsed := time.Since(begin)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, failure.CodeOf(err))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		s.metrics.recordOp(ctx, op, s.strategy.String(), elapsed, err)
	}
}
