// Package telemetry groups the observability packages used by spendcap.
//
//   - logging: slog construction, context fields and secret redaction
//   - metrics: the process Prometheus registry and HTTP request metrics
//   - tracing: OpenTelemetry provider setup and W3C propagation
//   - health: liveness and readiness probes
//
// The limits engine and the retention sweeper define their own metrics
// and register them on the registry owned by metrics.Collector.
package telemetry
