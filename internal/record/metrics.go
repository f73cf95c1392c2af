package record

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
)

type recordMetrics struct {
	bytesSent     metric.Int64Counter
	bytesReceived metric.Int64Counter
	errorCount    metric.Int64Counter
}

func newRecordMetrics(logger pslog.Logger) *recordMetrics {
	meter := otel.Meter("pkt.systems/secretd/record")
	m := &recordMetrics{}
	var err error

	m.bytesSent, err = meter.Int64Counter(
		"secretd.record.bytes_sent",
		metric.WithDescription("Bytes copied out of the secret record"),
		metric.WithUnit("By"),
	)
	logMetricInitError(logger, "secretd.record.bytes_sent", err)

	m.bytesReceived, err = meter.Int64Counter(
		"secretd.record.bytes_received",
		metric.WithDescription("Bytes requested by writes to the secret record"),
		metric.WithUnit("By"),
	)
	logMetricInitError(logger, "secretd.record.bytes_received", err)

	m.errorCount, err = meter.Int64Counter(
		"secretd.record.errors",
		metric.WithDescription("Failed record operations"),
	)
	logMetricInitError(logger, "secretd.record.errors", err)

	return m
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err != nil && logger != nil {
		logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
	}
}

func (m *recordMetrics) recordSent(ctx context.Context, n int) {
	if m == nil || m.bytesSent == nil {
		return
	}
	m.bytesSent.Add(metricContext(ctx), int64(n))
}

func (m *recordMetrics) recordReceived(ctx context.Context, n int) {
	if m == nil || m.bytesReceived == nil {
		return
	}
	m.bytesReceived.Add(metricContext(ctx), int64(n))
}

func (m *recordMetrics) recordError(ctx context.Context, op, code string) {
	if m == nil || m.errorCount == nil {
		return
	}
	m.errorCount.Add(metricContext(ctx), 1, metric.WithAttributes(
		attribute.String("secretd.op", op),
		attribute.String("secretd.error.code", code),
	))
}

func metricContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
