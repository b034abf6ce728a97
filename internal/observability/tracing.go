package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracing is the tracer provider chosen by SetupTracing and its shutdown hook.
type Tracing struct {
	Provider trace.TracerProvider
	Shutdown func(context.Context) error
}

// Tracer returns a named tracer from the provider.
func (t Tracing) Tracer(name string) trace.Tracer {
	if t.Provider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return t.Provider.Tracer(name)
}

// SetupTracing exports spans to cfg.OTelEndpoint. Without an endpoint it
// returns a no-op provider and registers nothing globally.
func SetupTracing(ctx context.Context, cfg Config) (Tracing, error) {
	disabled := Tracing{
		Provider: noop.NewTracerProvider(),
		Shutdown: func(context.Context) error { return nil },
	}
	if cfg.OTelEndpoint == "" {
		return disabled, nil
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "counter-attack"
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.OTelEndpoint))
	if err != nil {
		return disabled, fmt.Errorf("create otlp exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return disabled, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return Tracing{Provider: tp, Shutdown: tp.Shutdown}, nil
}
