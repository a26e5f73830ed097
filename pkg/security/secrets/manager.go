package secrets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// refPattern matches ${secret:name}.
var refPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager resolves secrets through an ordered list of providers.
type Manager struct {
	providers []Provider
}

// NewManager creates a manager trying providers in order.
func NewManager(providers ...Provider) *Manager {
	return &Manager{providers: providers}
}

// GetSecret returns the value from the first provider holding name. A
// provider error other than ErrNotFound stops the search.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	for _, p := range m.providers {
		value, err := p.GetSecret(ctx, name)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%s provider: %w", p.Name(), err)
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// HasReference reports whether s contains a ${secret:name} reference.
func HasReference(s string) bool {
	return refPattern.MatchString(s)
}

// Resolve replaces every reference in input with its secret value. All
// unresolved references are reported together.
func (m *Manager) Resolve(ctx context.Context, input string) (string, error) {
	var errs []error
	output := refPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := refPattern.FindStringSubmatch(match)[1]
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return value
	})
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return output, nil
}

// ResolveAll resolves each field in place. Fields without references are
// left untouched.
func (m *Manager) ResolveAll(ctx context.Context, fields ...*string) error {
	var errs []error
	for _, f := range fields {
		if f == nil || !HasReference(*f) {
			continue
		}
		value, err := m.Resolve(ctx, *f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f = value
	}
	return errors.Join(errs...)
}
