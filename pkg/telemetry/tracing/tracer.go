package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"mercator-hq/spendcap/pkg/config"
)

// Tracer owns the tracer provider for the process.
type Tracer struct {
	provider trace.TracerProvider
	sdk      *sdktrace.TracerProvider
	enabled  bool
}

// New creates a Tracer from the tracing configuration.
//
// When tracing is disabled a noop provider is returned. Otherwise an OTLP
// gRPC exporter is created and the provider is installed as the global
// provider along with the W3C trace context propagator. The gRPC
// connection is established lazily, so an unreachable collector does not
// prevent startup.
//
// The tracer must be shut down to flush pending spans:
//
//	defer tracer.Shutdown(context.Background())
func New(cfg config.TracingConfig, version string) (*Tracer, error) {
	if !cfg.Enabled {
		return &Tracer{provider: noop.NewTracerProvider()}, nil
	}

	sampler, err := newSampler(cfg.SampleRatio)
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler: %w", err)
	}

	exporter, err := newOTLPExporter(cfg, version)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = config.DefaultTracingServiceName
	}
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return &Tracer{provider: provider, sdk: provider, enabled: true}, nil
}

// newOTLPExporter creates an OTLP gRPC span exporter.
func newOTLPExporter(cfg config.TracingConfig, version string) (sdktrace.SpanExporter, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = config.DefaultTracingEndpoint
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent("spendcap/" + version)),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}

	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exporter, nil
}

// Tracer returns a named tracer from the provider.
func (t *Tracer) Tracer(name string) trace.Tracer {
	return t.provider.Tracer(name)
}

// Provider returns the underlying tracer provider.
func (t *Tracer) Provider() trace.TracerProvider {
	return t.provider
}

// Enabled returns whether spans are exported.
func (t *Tracer) Enabled() bool {
	return t.enabled
}

// Shutdown flushes pending spans and stops the exporter.
// It is a no-op when tracing is disabled.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.sdk == nil {
		return nil
	}
	return t.sdk.Shutdown(ctx)
}

// TraceID returns the trace ID from the context, or "" without a valid span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// SpanID returns the span ID from the context, or "" without a valid span.
func SpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.SpanID().String()
}

// SetStatus records err on the span and marks it failed.
// A nil err leaves the status unset.
func SetStatus(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
