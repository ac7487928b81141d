package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/host"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config tunes the OTLP exporters. An empty Endpoint disables telemetry
// entirely; InitOTel then returns a no-op shutdown func.
type Config struct {
	Endpoint    string
	ServiceName string
	Environment string
}

// Tracer is the tracer used for dispatch spans.
var Tracer trace.Tracer = otel.Tracer("qdc")

// InitOTel configures tracing and metrics exporters against cfg.Endpoint.
// Returns a shutdown func that flushes and tears down providers.
func InitOTel(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	trExp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("init trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(trExp),
		sdktrace.WithResource(res),
	)

	mExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("init metric exporter: %w", err)
	}
	reader := metric.NewPeriodicReader(mExp, metric.WithInterval(10*time.Second))
	mp := metric.NewMeterProvider(metric.WithReader(reader), metric.WithResource(res))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	Tracer = tp.Tracer("qdc")

	if err := host.Start(host.WithMeterProvider(mp)); err != nil {
		return nil, fmt.Errorf("start host metrics: %w", err)
	}

	return func(shutdownCtx context.Context) error {
		var first error
		if err := mp.Shutdown(shutdownCtx); err != nil {
			first = err
		}
		if err := tp.Shutdown(shutdownCtx); err != nil && first == nil {
			first = err
		}
		return first
	}, nil
}

// StartSpan starts a child span named name under the tracer configured by
// InitOTel (or the no-op global tracer if telemetry is disabled).
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError records err on span if non-nil, leaving span status untouched
// for context.Canceled since cancellation is not itself an error condition.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		span.AddEvent("cancelled")
		return
	}
	span.RecordError(err)
}
