package core

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"

	"pkt.systems/secretd/internal/failure"
)

type sessionMetrics struct {
	opCount      metric.Int64Counter
	opDuration   metric.Float64Histogram
	openGauge    metric.Int64ObservableGauge
	counterGauge metric.Int64ObservableGauge

	open atomic.Int64
	ga   atomic.Int64
	gb   atomic.Int64
}

func newSessionMetrics(logger pslog.Logger, ga, gb int64) *sessionMetrics {
	meter := otel.Meter("pkt.systems/secretd/session")
	m := &sessionMetrics{}
	m.ga.Store(ga)
	m.gb.Store(gb)
	var err error

	m.opCount, err = meter.Int64Counter(
		"secretd.session.ops",
		metric.WithDescription("Session operations"),
	)
	logMetricInitError(logger, "secretd.session.ops", err)

	m.opDuration, err = meter.Float64Histogram(
		"secretd.session.op.duration_us",
		metric.WithDescription("Session operation duration"),
		metric.WithUnit("us"),
	)
	logMetricInitError(logger, "secretd.session.op.duration_us", err)

	m.openGauge, err = meter.Int64ObservableGauge(
		"secretd.session.open",
		metric.WithDescription("Open sessions"),
	)
	logMetricInitError(logger, "secretd.session.open", err)

	m.counterGauge, err = meter.Int64ObservableGauge(
		"secretd.session.counters",
		metric.WithDescription("Last observed ga/gb counter values"),
	)
	logMetricInitError(logger, "secretd.session.counters", err)

	if _, err := meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		m.observe(o)
		return nil
	}, m.openGauge, m.counterGauge); err != nil && logger != nil {
		logger.Warn("telemetry.metric.callback_failed", "name", "secretd.session.open", "error", err)
	}
	return m
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err != nil && logger != nil {
		logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
	}
}

func metricResultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return failure.CodeOf(err)
}

func (m *sessionMetrics) observe(o metric.Observer) {
	if m == nil {
		return
	}
	if m.openGauge != nil {
		o.ObserveInt64(m.openGauge, m.open.Load())
	}
	if m.counterGauge != nil {
		o.ObserveInt64(m.counterGauge, m.ga.Load(), metric.WithAttributes(attribute.String("secretd.counter", "ga")))
		o.ObserveInt64(m.counterGauge, m.gb.Load(), metric.WithAttributes(attribute.String("secretd.counter", "gb")))
	}
}

func (m *sessionMetrics) observeCounters(ga, gb, open int64) {
	if m == nil {
		return
	}
	m.ga.Store(ga)
	m.gb.Store(gb)
	m.open.Store(open)
}

func (m *sessionMetrics) recordOp(ctx context.Context, op, strategy string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	ctx = metricContext(ctx)
	attrs := metric.WithAttributes(
		attribute.String("secretd.session.operation", op),
		attribute.String("secretd.strategy", strategy),
		attribute.String("secretd.session.result", metricResultLabel(err)),
	)
	if m.opCount != nil {
		m.opCount.Add(ctx, 1, attrs)
	}
	if m.opDuration != nil {
		m.opDuration.Record(ctx, float64(elapsed)/float64(time.Microsecond), attrs)
	}
}

func metricContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
