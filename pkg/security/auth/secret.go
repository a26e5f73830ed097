package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
)

var (
	// ErrMissingCredential is returned when the auth header is absent.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidCredential is returned when the header matches no secret.
	ErrInvalidCredential = errors.New("invalid credential")
)

// SharedSecret validates a header value against one or more secrets.
type SharedSecret struct {
	header  string
	secrets [][]byte
}

// NewSharedSecret creates a validator for header. Empty secrets are
// ignored; with none left the validator is disabled and accepts every
// request.
func NewSharedSecret(header string, secrets ...string) *SharedSecret {
	s := &SharedSecret{header: header}
	for _, secret := range secrets {
		if secret != "" {
			s.secrets = append(s.secrets, []byte(secret))
		}
	}
	return s
}

// Enabled reports whether at least one secret is configured.
func (s *SharedSecret) Enabled() bool {
	return len(s.secrets) > 0
}

// Header returns the name of the header carrying the secret.
func (s *SharedSecret) Header() string {
	return s.header
}

// Verify reports whether presented matches any configured secret. Every
// secret is compared so timing does not reveal which one matched.
func (s *SharedSecret) Verify(presented string) bool {
	got := []byte(presented)
	match := 0
	for _, want := range s.secrets {
		match |= subtle.ConstantTimeCompare(got, want)
	}
	return match == 1
}

// Authenticate checks the request's auth header.
func (s *SharedSecret) Authenticate(r *http.Request) error {
	if !s.Enabled() {
		return nil
	}
	presented := r.Header.Get(s.header)
	if presented == "" {
		return ErrMissingCredential
	}
	if !s.Verify(presented) {
		return ErrInvalidCredential
	}
	return nil
}
