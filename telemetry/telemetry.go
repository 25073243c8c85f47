// Package telemetry wires OpenTelemetry tracing for the decision runtime.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName is reported when Options.ServiceName is empty.
const DefaultServiceName = "decisionmesh"

// Options configures Setup.
type Options struct {
	ServiceName string
	// Endpoint is the OTLP/HTTP collector URL. Empty disables tracing.
	Endpoint string
	// Environment is attached as deployment.environment.
	Environment string
}

// Setup installs a global tracer provider exporting to Options.Endpoint.
//
// Tracing is opt-in: with an empty endpoint Setup returns a no-op shutdown
// function and leaves the global provider untouched. The returned shutdown
// flushes pending spans and should be deferred by the caller.
func Setup(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if opts.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(opts.Endpoint))
	if err != nil {
		return noop, err
	}

	tp, err := NewTracerProvider(ctx, opts, sdktrace.WithBatcher(exporter))
	if err != nil {
		return noop, err
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// NewTracerProvider builds a provider carrying the service resource. Extra
// options (exporters, span processors) are appended.
func NewTracerProvider(ctx context.Context, opts Options, extra ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	name := opts.ServiceName
	if name == "" {
		name = DefaultServiceName
	}

	attrs := resource.WithAttributes(semconv.ServiceName(name))
	if opts.Environment != "" {
		attrs = resource.WithAttributes(semconv.ServiceName(name), semconv.DeploymentEnvironment(opts.Environment))
	}

	res, err := resource.New(ctx, attrs)
	if err != nil {
		return nil, err
	}

	tpOpts := append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}, extra...)

	return sdktrace.NewTracerProvider(tpOpts...), nil
}
