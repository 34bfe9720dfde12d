// Package telemetry wires OpenTelemetry tracing for the proxy's backend
// spawn and session-pump lifecycle.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// NewTracerProvider builds a TracerProvider that writes spans to stdout,
// matching the teacher's stdout-exporter posture for its OSS tier. The
// returned shutdown func must be called to flush pending spans before exit.
func NewTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: create stdout exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp, tp.Shutdown, nil
}

// Tracer returns the named tracer from the global TracerProvider. Components
// call this instead of holding a reference to the provider directly.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
