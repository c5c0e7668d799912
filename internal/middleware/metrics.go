package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/intent/internal/engine"
)

// Metrics returns middleware that records dispatch metrics with the
// global MeterProvider.
//
// Instruments:
//   - intent.dispatch.duration (Float64Histogram, seconds)
//   - intent.dispatch.count (Int64Counter)
//
// Both carry the attributes intent and status ("ok" or "error").
func Metrics() engine.Middleware {
	return MetricsWithMeter(otel.Meter(instrumentationName))
}

// MetricsWithMeter returns metrics middleware using meter.
func MetricsWithMeter(meter metric.Meter) engine.Middleware {
	// The metric API returns noop instruments alongside any error.
	duration, _ := meter.Float64Histogram(
		"intent.dispatch.duration",
		metric.WithDescription("Duration of intent dispatch in seconds"),
		metric.WithUnit("s"),
	)
	count, _ := meter.Int64Counter(
		"intent.dispatch.count",
		metric.WithDescription("Total number of intent dispatches"),
		metric.WithUnit("{dispatch}"),
	)

	return func(ctx context.Context, in engine.Intent, next engine.Next) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("intent", in.Type),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		count.Add(ctx, 1, attrs)

		return err
	}
}
