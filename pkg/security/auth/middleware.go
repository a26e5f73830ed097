package auth

import (
	"log/slog"
	"net/http"
)

// DeniedFunc writes the response for a rejected request.
type DeniedFunc func(w http.ResponseWriter, r *http.Request, err error)

// Middleware rejects requests that fail Authenticate. When the validator is
// disabled the handler is returned unwrapped. A nil denied writes a plain
// 401.
func (s *SharedSecret) Middleware(denied DeniedFunc) func(http.Handler) http.Handler {
	if denied == nil {
		denied = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		}
	}

	return func(next http.Handler) http.Handler {
		if !s.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := s.Authenticate(r); err != nil {
				slog.WarnContext(r.Context(), "internal auth rejected",
					"error", err,
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				denied(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
