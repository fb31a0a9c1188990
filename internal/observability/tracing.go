// Package observability wires tracing and metrics for the chat
// service. Tracing uses OpenTelemetry with a stdout exporter for local
// runs; metrics are Prometheus collectors exposed on /metrics.
package observability

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const DefaultServiceName = "fraudflow"

var (
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
)

// TracingConfig controls how the tracer provider is set up.
type TracingConfig struct {
	// ServiceName names the service in exported spans.
	ServiceName string

	// Exporter selects the span exporter: "stdout" or "none".
	Exporter string
}

// InitTracing installs the global tracer provider. With Exporter
// "none" spans are still created but never exported, which keeps the
// span helpers cheap in tests.
func InitTracing(config TracingConfig) error {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}

	if config.Exporter == "" || config.Exporter == "none" {
		tracer = otel.GetTracerProvider().Tracer(config.ServiceName)
		return nil
	}
	if config.Exporter != "stdout" {
		return fmt.Errorf("unknown trace exporter %q", config.Exporter)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = tracerProvider.Tracer(config.ServiceName)

	log.Printf("Tracing initialized with stdout exporter (service: %s)", config.ServiceName)
	return nil
}

// ShutdownTracing flushes pending spans and shuts the provider down.
func ShutdownTracing(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return tracerProvider.Shutdown(ctx)
}

// StartSpan creates a span under the service tracer. Safe to call
// before InitTracing; it falls back to the global provider.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	tr := tracer
	if tr == nil {
		tr = otel.GetTracerProvider().Tracer(DefaultServiceName)
	}
	return tr.Start(ctx, name, opts...)
}
