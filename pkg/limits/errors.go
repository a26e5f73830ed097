package limits

import (
	"errors"
	"fmt"

	"mercator-hq/spendcap/pkg/limits/budget"
	"mercator-hq/spendcap/pkg/limits/caps"
	"mercator-hq/spendcap/pkg/limits/storage"
	"mercator-hq/spendcap/pkg/limits/window"
)

// Validation errors. All are returned before any storage access.
var (
	// ErrInvalidAmount is returned by Check for a negative amount.
	ErrInvalidAmount = errors.New("amount cannot be negative")

	// ErrNonPositiveAmount is returned by Record for a zero or negative amount.
	ErrNonPositiveAmount = errors.New("amount must be positive")

	// ErrInvalidLimit is returned when a cap value is zero or negative.
	ErrInvalidLimit = caps.ErrInvalidLimit

	// ErrInvalidResourceID is returned for empty or oversized resource IDs.
	ErrInvalidResourceID = storage.ErrInvalidResourceID

	// ErrUnknownWindow is returned for window values outside the four windows.
	ErrUnknownWindow = window.ErrUnknown

	// ErrInvalidDuration is returned for non-positive aggregation durations.
	ErrInvalidDuration = budget.ErrInvalidDuration
)

// ErrStore matches every StoreError with errors.Is.
var ErrStore = errors.New("limit store unavailable")

// StoreError reports a failed storage operation. The caller decides whether
// to fail open or closed; the engine never retries.
type StoreError struct {
	Operation string // Controller operation ("check", "record", ...)
	Err       error  // Underlying error, usually *storage.StorageError
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("limits %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrStore.
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

// IsValidationError reports whether err is one of the input validation errors.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrInvalidLimit) ||
		errors.Is(err, ErrInvalidResourceID) ||
		errors.Is(err, ErrUnknownWindow) ||
		errors.Is(err, ErrInvalidDuration)
}
