package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// ResourceIDKey is the context key for the API key a request acts on.
	ResourceIDKey contextKey = "resource_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithResourceID adds a resource ID to the context.
func WithResourceID(ctx context.Context, resourceID string) context.Context {
	return context.WithValue(ctx, ResourceIDKey, resourceID)
}

// GetResourceID retrieves the resource ID from the context.
func GetResourceID(ctx context.Context) string {
	if resourceID, ok := ctx.Value(ResourceIDKey).(string); ok {
		return resourceID
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
func extractContextFields(ctx context.Context) []slog.Attr {
	var fields []slog.Attr

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, slog.String("request_id", requestID))
	}
	if resourceID := GetResourceID(ctx); resourceID != "" {
		fields = append(fields, slog.String("resource_id", resourceID))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	return fields
}

// ContextHandler is a slog.Handler that adds context fields to each record.
// Fields already present on the record are not duplicated.
type ContextHandler struct {
	next slog.Handler
}

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{next: next}
}

// Enabled implements slog.Handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		fields := extractContextFields(ctx)
		if len(fields) > 0 {
			present := make(map[string]bool, r.NumAttrs())
			r.Attrs(func(a slog.Attr) bool {
				present[a.Key] = true
				return true
			})
			for _, f := range fields {
				if !present[f.Key] {
					r.AddAttrs(f)
				}
			}
		}
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}
