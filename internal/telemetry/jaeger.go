package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

/*
LEARNING: JAEGER INTEGRATION FOR DISTRIBUTED TRACING

  annoclient / annobroker → OpenTelemetry SDK → Jaeger Exporter → Jaeger Collector → Jaeger UI

A STOMP request shows up twice: once as Annotation.Publish in the client and
once as Broker.ProcessFrame in the broker. Without an endpoint nothing is
exported and the global provider stays a no-op.
*/

// ShutdownFunc flushes pending spans
type ShutdownFunc func(context.Context) error

// InitJaeger installs a tracer provider exporting to a Jaeger collector.
// An empty endpoint disables tracing.
func InitJaeger(serviceName, jaegerEndpoint string) (ShutdownFunc, error) {
	if jaegerEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)

	log.Printf("✓ Jaeger tracing initialized for %s: %s", serviceName, jaegerEndpoint)
	return tp.Shutdown, nil
}
