package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/intent/internal/engine"
)

// instrumentationName is the scope name for tracing and metrics.
const instrumentationName = "github.com/roach88/intent"

// Tracing returns middleware that wraps each dispatch in an OpenTelemetry
// span using the global TracerProvider. With no provider configured the
// noop tracer makes this a pass-through.
func Tracing() engine.Middleware {
	return TracingWithTracer(otel.Tracer(instrumentationName))
}

// TracingWithTracer returns tracing middleware using tracer.
//
// Span attributes: intent.type, intent.dispatch_id, intent.depth.
// Nested emissions become child spans of the emitting dispatch.
func TracingWithTracer(tracer trace.Tracer) engine.Middleware {
	return func(ctx context.Context, in engine.Intent, next engine.Next) error {
		id, _ := engine.DispatchIDFrom(ctx)
		ctx, span := tracer.Start(ctx, "intent.dispatch",
			trace.WithAttributes(
				attribute.String("intent.type", in.Type),
				attribute.String("intent.dispatch_id", id),
				attribute.Int("intent.depth", engine.DepthFrom(ctx)),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
