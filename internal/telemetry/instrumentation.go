package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes stay bounded: operation names and components are small
// fixed sets. Dataset ids, URLs and error strings belong in logs, not in
// metric or span attributes.

// InstrumentOperation wraps fn in a span and records a per-component
// operation counter. component is the fetcher scheme or subsystem name.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn func(ctx context.Context) error) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	ctx, span := t.tracer.Start(ctx, operationName)
	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, operationName+" failed")
	}

	t.RecordFetch(component, status)

	return err
}
