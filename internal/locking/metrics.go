package locking

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
)

type lockMetrics struct {
	acquireCount metric.Int64Counter
	spinCount    metric.Int64Counter
	holdDuration metric.Float64Histogram
	violations   metric.Int64Counter
}

func newLockMetrics(logger pslog.Logger) *lockMetrics {
	meter := otel.Meter("pkt.systems/secretd/locking")
	m := &lockMetrics{}
	var err error

	m.acquireCount, err = meter.Int64Counter(
		"secretd.locking.acquire",
		metric.WithDescription("Critical section entries"),
	)
	logMetricInitError(logger, "secretd.locking.acquire", err)

	m.spinCount, err = meter.Int64Counter(
		"secretd.locking.spins",
		metric.WithDescription("Busy-wait polls spent acquiring spin guards"),
	)
	logMetricInitError(logger, "secretd.locking.spins", err)

	m.holdDuration, err = meter.Float64Histogram(
		"secretd.locking.hold.duration_us",
		metric.WithDescription("Critical section hold time"),
		metric.WithUnit("us"),
	)
	logMetricInitError(logger, "secretd.locking.hold.duration_us", err)

	m.violations, err = meter.Int64Counter(
		"secretd.locking.violations",
		metric.WithDescription("Critical-section contract violations"),
	)
	logMetricInitError(logger, "secretd.locking.violations", err)

	return m
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err != nil && logger != nil {
		logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
	}
}

func guardAttrs(g *Guard) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("secretd.guard", g.name),
		attribute.String("secretd.guard.kind", g.kind.String()),
	)
}

func (m *lockMetrics) recordSection(ctx context.Context, g *Guard, spins uint64, held time.Duration) {
	if m == nil {
		return
	}
	ctx = metricContext(ctx)
	attrs := guardAttrs(g)
	if m.acquireCount != nil {
		m.acquireCount.Add(ctx, 1, attrs)
	}
	if spins > 0 && m.spinCount != nil {
		m.spinCount.Add(ctx, int64(spins), attrs)
	}
	if m.holdDuration != nil {
		m.holdDuration.Record(ctx, float64(held)/float64(time.Microsecond), attrs)
	}
}

func (m *lockMetrics) recordViolation(ctx context.Context, v Violation) {
	if m == nil || m.violations == nil {
		return
	}
	m.violations.Add(metricContext(ctx), 1, metric.WithAttributes(
		attribute.String("secretd.guard", v.Guard),
		attribute.String("secretd.violation.reason", string(v.Reason)),
	))
}

func metricContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
