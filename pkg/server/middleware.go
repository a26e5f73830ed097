package server

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/spendcap/pkg/security/auth"
	sectls "mercator-hq/spendcap/pkg/security/tls"
	"mercator-hq/spendcap/pkg/telemetry/logging"
	"mercator-hq/spendcap/pkg/telemetry/metrics"
	"mercator-hq/spendcap/pkg/telemetry/tracing"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client-supplied request IDs.
const maxRequestIDLength = 128

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.written {
		rw.status = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// requestIDMiddleware propagates the caller's X-Request-ID or generates
// one, and stores it in the context for logging.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := logging.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs each completed request. Query strings are not
// logged since they carry resource identifiers. Callers authenticated by
// client certificate are logged by identity.
func loggingMiddleware(logger *slog.Logger, identitySource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newStatusRecorder(w)

			next.ServeHTTP(rw, r)

			level := slog.LevelInfo
			if rw.status >= 500 {
				level = slog.LevelError
			} else if rw.status >= 400 {
				level = slog.LevelWarn
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"latency_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			}
			if client := sectls.ClientIdentity(r, identitySource); client != "" {
				attrs = append(attrs, "client", client)
			}
			logger.Log(r.Context(), level, "request completed", attrs...)
		})
	}
}

// recoveryMiddleware turns handler panics into 500 responses.
func recoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.ErrorContext(r.Context(), "panic in handler",
						"error", err,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					writeErrorBody(w, http.StatusInternalServerError, codeInternal, "internal error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// writeAuthError renders an auth rejection in the API error format.
func writeAuthError(w http.ResponseWriter, _ *http.Request, err error) {
	msg := "invalid internal auth secret"
	if errors.Is(err, auth.ErrMissingCredential) {
		msg = "missing internal auth header"
	}
	writeErrorBody(w, http.StatusUnauthorized, codeUnauthorized, msg)
}

// instrument wraps a route handler with a server span and request metrics
// labelled by route pattern.
func instrument(route string, tracer trace.Tracer, collector *metrics.Collector, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx, span := tracer.Start(r.Context(), route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(tracing.AttrRoute.String(route)),
		)
		defer span.End()

		if collector != nil {
			done := collector.RequestStarted()
			defer done()
		}

		rw := newStatusRecorder(w)
		next.ServeHTTP(rw, r.WithContext(ctx))

		span.SetAttributes(tracing.AttrStatusCode.Int(rw.status))
		if collector != nil {
			collector.RecordRequest(route, rw.status, time.Since(start))
		}
	})
}
