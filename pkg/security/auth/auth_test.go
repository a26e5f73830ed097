package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSharedSecret_Authenticate(t *testing.T) {
	guard := NewSharedSecret("X-Internal-Auth", "primary", "secondary")

	tests := []struct {
		name    string
		value   string
		wantErr error
	}{
		{"primary", "primary", nil},
		{"secondary", "secondary", nil},
		{"missing", "", ErrMissingCredential},
		{"wrong", "guess", ErrInvalidCredential},
		{"prefix of secret", "prim", ErrInvalidCredential},
		{"secret with suffix", "primaryx", ErrInvalidCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.value != "" {
				req.Header.Set("X-Internal-Auth", tt.value)
			}
			if err := guard.Authenticate(req); !errors.Is(err, tt.wantErr) {
				t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSharedSecret_Disabled(t *testing.T) {
	guard := NewSharedSecret("X-Internal-Auth", "", "")
	if guard.Enabled() {
		t.Fatal("validator with only empty secrets should be disabled")
	}
	if err := guard.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil)); err != nil {
		t.Errorf("disabled validator rejected request: %v", err)
	}

	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	wrapped := guard.Middleware(nil)(next)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rec.Code)
	}
}

func TestSharedSecret_Middleware(t *testing.T) {
	guard := NewSharedSecret("X-Internal-Auth", "s3cret")

	var deniedErr error
	handler := guard.Middleware(func(w http.ResponseWriter, _ *http.Request, err error) {
		deniedErr = err
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if !errors.Is(deniedErr, ErrMissingCredential) {
		t.Errorf("denied error = %v, want ErrMissingCredential", deniedErr)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(guard.Header(), "s3cret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestSharedSecret_DefaultDenied(t *testing.T) {
	guard := NewSharedSecret("X-Internal-Auth", "s3cret")
	handler := guard.Middleware(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler reached without credential")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
