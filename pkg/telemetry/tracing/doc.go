// Package tracing configures OpenTelemetry tracing for spendcap.
//
// Spans are exported over OTLP gRPC to a collector. When tracing is
// disabled every span is a noop, so instrumented code never needs to
// branch on whether tracing is on.
//
// # Usage
//
//	tracer, err := tracing.New(cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctrl := limits.NewController(limits.Config{
//	    Tracer: tracer.Tracer("mercator-hq/spendcap/pkg/limits"),
//	})
//
// # Propagation
//
// Incoming HTTP requests carry W3C traceparent headers; HTTPMiddleware
// extracts them so server spans join the caller's trace. Spend events
// carry the same context in Kafka message headers.
//
// # Sampling
//
// Sampling is parent based: a sampled caller always yields sampled spans.
// Root spans are sampled by trace ID at the configured ratio.
package tracing
