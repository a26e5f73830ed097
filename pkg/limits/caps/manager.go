// Package caps manages per-resource spend cap configuration.
//
// Cap rows are sparse: a resource has a row only while at least one of its
// four window caps is set. Every removal path collapses an all-unset row
// back to "no row" within the same storage operation.
package caps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mercator-hq/spendcap/pkg/limits/storage"
	"mercator-hq/spendcap/pkg/limits/window"
)

// ErrInvalidLimit is returned when a cap value is zero or negative.
var ErrInvalidLimit = errors.New("limit must be positive")

// Manager reads and mutates spend caps through a storage backend.
// It is safe for concurrent use.
type Manager struct {
	store  storage.Backend
	logger *slog.Logger
}

// NewManager creates a cap manager. A nil logger falls back to slog.Default.
func NewManager(store storage.Backend, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		logger: logger.With("component", "limits.caps"),
	}
}

// Get returns the caps for a resource. A resource without a row yields an
// empty cap with every window unset, never nil.
func (m *Manager) Get(ctx context.Context, resourceID string) (*storage.SpendCap, error) {
	if err := storage.ValidateResourceID(resourceID); err != nil {
		return nil, err
	}

	c, err := m.store.GetCap(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return &storage.SpendCap{ResourceID: resourceID}, nil
	}
	return c, nil
}

// Set upserts the cap for one window, leaving the other windows untouched.
func (m *Manager) Set(ctx context.Context, resourceID string, w window.Window, sats int64) error {
	if err := storage.ValidateResourceID(resourceID); err != nil {
		return err
	}
	if !w.Valid() {
		return fmt.Errorf("%w: %d", window.ErrUnknown, int(w))
	}
	if sats <= 0 {
		return fmt.Errorf("%w: %s cap %d", ErrInvalidLimit, w, sats)
	}

	if err := m.store.SetCapField(ctx, resourceID, w, sats); err != nil {
		return err
	}

	m.logger.Debug("cap set",
		"resource_id", resourceID,
		"window", w.String(),
		"limit_sats", sats,
	)
	return nil
}

// SetDaily sets the 24h cap.
func (m *Manager) SetDaily(ctx context.Context, resourceID string, sats int64) error {
	return m.Set(ctx, resourceID, window.Daily, sats)
}

// SetWeekly sets the 7d cap.
func (m *Manager) SetWeekly(ctx context.Context, resourceID string, sats int64) error {
	return m.Set(ctx, resourceID, window.Weekly, sats)
}

// SetMonthly sets the 30d cap.
func (m *Manager) SetMonthly(ctx context.Context, resourceID string, sats int64) error {
	return m.Set(ctx, resourceID, window.Monthly, sats)
}

// SetAnnual sets the 365d cap.
func (m *Manager) SetAnnual(ctx context.Context, resourceID string, sats int64) error {
	return m.Set(ctx, resourceID, window.Annual, sats)
}

// Remove clears the cap for one window. When no window remains capped the
// row is deleted. Removing from a resource without caps is a no-op.
func (m *Manager) Remove(ctx context.Context, resourceID string, w window.Window) error {
	if err := storage.ValidateResourceID(resourceID); err != nil {
		return err
	}
	if !w.Valid() {
		return fmt.Errorf("%w: %d", window.ErrUnknown, int(w))
	}

	if err := m.store.ClearCapField(ctx, resourceID, w); err != nil {
		return err
	}

	m.logger.Debug("cap removed", "resource_id", resourceID, "window", w.String())
	return nil
}

// RemoveDaily clears the 24h cap.
func (m *Manager) RemoveDaily(ctx context.Context, resourceID string) error {
	return m.Remove(ctx, resourceID, window.Daily)
}

// RemoveWeekly clears the 7d cap.
func (m *Manager) RemoveWeekly(ctx context.Context, resourceID string) error {
	return m.Remove(ctx, resourceID, window.Weekly)
}

// RemoveMonthly clears the 30d cap.
func (m *Manager) RemoveMonthly(ctx context.Context, resourceID string) error {
	return m.Remove(ctx, resourceID, window.Monthly)
}

// RemoveAnnual clears the 365d cap.
func (m *Manager) RemoveAnnual(ctx context.Context, resourceID string) error {
	return m.Remove(ctx, resourceID, window.Annual)
}

// RemoveAll deletes every cap for a resource. Idempotent.
func (m *Manager) RemoveAll(ctx context.Context, resourceID string) error {
	if err := storage.ValidateResourceID(resourceID); err != nil {
		return err
	}
	if err := m.store.DeleteCap(ctx, resourceID); err != nil {
		return err
	}

	m.logger.Debug("all caps removed", "resource_id", resourceID)
	return nil
}

// Apply reconciles a resource to exactly the caps in desired: set windows
// are written, unset windows are cleared. An all-unset desired cap deletes
// the row. Fields already matching are left alone.
func (m *Manager) Apply(ctx context.Context, resourceID string, desired storage.SpendCap) error {
	if err := storage.ValidateResourceID(resourceID); err != nil {
		return err
	}
	for _, w := range desired.Configured() {
		if sats := desired.Get(w).Sats; sats <= 0 {
			return fmt.Errorf("%w: %s cap %d", ErrInvalidLimit, w, sats)
		}
	}

	if desired.IsEmpty() {
		return m.RemoveAll(ctx, resourceID)
	}

	current, err := m.Get(ctx, resourceID)
	if err != nil {
		return err
	}

	// Set before clearing so a partially applied update never passes
	// through the empty state and drops the row.
	for _, w := range window.All() {
		want := desired.Get(w)
		if want.Valid && current.Get(w) != want {
			if err := m.store.SetCapField(ctx, resourceID, w, want.Sats); err != nil {
				return err
			}
		}
	}
	for _, w := range window.All() {
		if !desired.Get(w).Valid && current.Get(w).Valid {
			if err := m.store.ClearCapField(ctx, resourceID, w); err != nil {
				return err
			}
		}
	}

	m.logger.Debug("caps applied",
		"resource_id", resourceID,
		"windows", len(desired.Configured()),
	)
	return nil
}
