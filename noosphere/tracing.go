package noosphere

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/bitfsorg/libnoosphere-go/noosphere"

// startSpan opens a span on the current global tracer provider.
func startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "noosphere."+op, trace.WithAttributes(attrs...))
}

// finish normalizes err, records it on span and ends the span.
func finish(span trace.Span, err error) error {
	err = normalize(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Int("noosphere.error.code", int(CodeOf(err))))
	}
	span.End()
	return err
}
