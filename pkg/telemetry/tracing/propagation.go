package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Propagator returns the global text map propagator.
func Propagator() propagation.TextMapPropagator {
	return otel.GetTextMapPropagator()
}

// Extract returns ctx with the trace context found in headers, if any.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return Propagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// InjectToMap writes the trace context from ctx into a string map.
// Used for carriers that are not HTTP headers, such as message headers.
func InjectToMap(ctx context.Context, carrier map[string]string) {
	Propagator().Inject(ctx, propagation.MapCarrier(carrier))
}

// ExtractFromMap returns ctx with the trace context found in carrier.
func ExtractFromMap(ctx context.Context, carrier map[string]string) context.Context {
	return Propagator().Extract(ctx, propagation.MapCarrier(carrier))
}

// HTTPMiddleware extracts the caller's trace context from request headers
// and echoes the trace ID in the X-Trace-ID response header.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := Extract(r.Context(), r.Header)

		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			w.Header().Set("X-Trace-ID", sc.TraceID().String())
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
