package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a provider that has no value for a name.
var ErrNotFound = errors.New("secret not found")

// Provider retrieves secrets from one source.
type Provider interface {
	// GetSecret returns the value for name, or an error wrapping
	// ErrNotFound when the provider does not hold it.
	GetSecret(ctx context.Context, name string) (string, error)

	// Name identifies the provider in errors and logs.
	Name() string
}
