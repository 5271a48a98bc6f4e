// Package telemetry installs the OpenTelemetry tracer provider and the W3C
// propagators used to stitch the run report message to its crawl run.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// ServiceName identifies the tracker in trace resources.
const ServiceName = "storefront-rank-tracker"

// InitTracerProvider initializes the global trace provider and propagator.
// No span exporter is attached; spans still carry trace IDs that end up in
// the logs and the published run report attributes.
func InitTracerProvider(ctx context.Context, serviceName, version string) (*sdktrace.TracerProvider, error) {
	if serviceName == "" {
		serviceName = ServiceName
	}
	kvs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if version != "" {
		kvs = append(kvs, semconv.ServiceVersion(version))
	}
	res, err := resource.New(ctx, resource.WithAttributes(kvs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
