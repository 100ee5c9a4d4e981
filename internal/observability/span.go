package observability

import (
	"context"

	"jewelry-backend/internal/apperr"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func tracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}

// StartSpan opens an internal span. Close it with EndSpan.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span and ends it. Domain errors are expected
// outcomes, so they are tagged but do not mark the span failed.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("error.code", apperr.Code(err)))
		if apperr.Status(err) >= 500 {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
