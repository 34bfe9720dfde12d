package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// NewMeterProvider builds a MeterProvider that periodically writes
// aggregated metrics to stdout, mirroring NewTracerProvider's posture for
// metrics. This is additive observability alongside the /metrics Prometheus
// endpoint: Prometheus is pulled by an operator's scraper, this is pushed to
// stdout for environments with no scrape target (e.g. local runs, CI). The
// returned shutdown func must be called to flush pending exports.
func NewMeterProvider(ctx context.Context, serviceName string) (*sdkmetric.MeterProvider, func(context.Context) error, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithoutTimestamps())
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: create stdout metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(30*time.Second))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return mp, mp.Shutdown, nil
}

// Meter returns the named meter from the global MeterProvider. Components
// call this instead of holding a reference to the provider directly.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}
