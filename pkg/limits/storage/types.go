package storage

import (
	"context"
	"errors"
	"math"
	"time"

	"mercator-hq/spendcap/pkg/limits/window"
)

// Backend defines the persistence contract for spend caps and the spend ledger.
// Implementations must be thread-safe and support concurrent access.
//
// Caps are sparse: a cap row exists only while at least one of its four
// window fields is set. Ledger entries are append-only and are removed only
// by DeleteEntriesBefore.
type Backend interface {
	// GetCap returns the cap row for a resource.
	// Returns nil (and no error) when the resource has no caps configured.
	GetCap(ctx context.Context, resourceID string) (*SpendCap, error)

	// SetCapField creates the cap row if absent, otherwise updates only the
	// field for the given window. The other fields are left untouched.
	SetCapField(ctx context.Context, resourceID string, w window.Window, sats int64) error

	// ClearCapField unsets the field for the given window and, in the same
	// operation, deletes the row if no field remains set.
	// No-op if the row doesn't exist.
	ClearCapField(ctx context.Context, resourceID string, w window.Window) error

	// DeleteCap removes the cap row. No-op if the row doesn't exist.
	DeleteCap(ctx context.Context, resourceID string) error

	// InsertEntry appends a ledger entry. If entry.CreatedAt is zero the
	// backend stamps it with the current time before writing.
	InsertEntry(ctx context.Context, entry *LedgerEntry) error

	// InsertEntryIfWithin atomically evaluates the given window caps against
	// the ledger and appends the entry only if every cap leaves room for
	// entry.AmountSats. Returns whether the entry was written.
	InsertEntryIfWithin(ctx context.Context, entry *LedgerEntry, caps []WindowCap) (bool, error)

	// Aggregate sums ledger amounts and counts entries for a resource over
	// several lower time bounds in a single pass. The result has one
	// WindowTotal per element of since, in the same order. Entries with
	// CreatedAt >= since[i] are included in result i.
	Aggregate(ctx context.Context, resourceID string, since []time.Time) ([]WindowTotal, error)

	// DeleteEntriesBefore removes every ledger entry with CreatedAt < cutoff,
	// across all resources, and returns the number of entries removed.
	DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the backend.
	// The backend should not be used after calling Close.
	Close() error
}

// Limit is an optional cap value in satoshis.
// The zero value is "unset", meaning the window is unlimited.
type Limit struct {
	// Sats is the cap in satoshis. Meaningful only when Valid is true.
	Sats int64

	// Valid reports whether the cap is set.
	Valid bool
}

// LimitOf returns a set Limit with the given value.
func LimitOf(sats int64) Limit {
	return Limit{Sats: sats, Valid: true}
}

// Get returns the cap value and whether it is set.
func (l Limit) Get() (int64, bool) {
	return l.Sats, l.Valid
}

// Ptr returns the cap as a pointer, nil when unset.
// Useful for JSON encoding where unset caps are omitted.
func (l Limit) Ptr() *int64 {
	if !l.Valid {
		return nil
	}
	v := l.Sats
	return &v
}

// SpendCap is the sparse per-resource cap record.
type SpendCap struct {
	// ResourceID identifies the API key the caps apply to.
	ResourceID string

	// Daily caps spend over the trailing 24 hours.
	Daily Limit

	// Weekly caps spend over the trailing 7 days.
	Weekly Limit

	// Monthly caps spend over the trailing 30 days.
	Monthly Limit

	// Annual caps spend over the trailing 365 days.
	Annual Limit

	// CreatedAt is when the row was first created.
	CreatedAt time.Time

	// UpdatedAt is when any field was last modified.
	UpdatedAt time.Time
}

// Get returns the cap for a window. Unknown windows are always unset.
func (c *SpendCap) Get(w window.Window) Limit {
	if c == nil {
		return Limit{}
	}
	switch w {
	case window.Daily:
		return c.Daily
	case window.Weekly:
		return c.Weekly
	case window.Monthly:
		return c.Monthly
	case window.Annual:
		return c.Annual
	default:
		return Limit{}
	}
}

// Set replaces the cap for a window. Unknown windows are ignored.
func (c *SpendCap) Set(w window.Window, l Limit) {
	switch w {
	case window.Daily:
		c.Daily = l
	case window.Weekly:
		c.Weekly = l
	case window.Monthly:
		c.Monthly = l
	case window.Annual:
		c.Annual = l
	}
}

// IsEmpty reports whether no window has a cap. A nil cap is empty.
func (c *SpendCap) IsEmpty() bool {
	return len(c.Configured()) == 0
}

// Configured returns the windows that have a cap, shortest first.
func (c *SpendCap) Configured() []window.Window {
	if c == nil {
		return nil
	}
	var out []window.Window
	for _, w := range window.All() {
		if c.Get(w).Valid {
			out = append(out, w)
		}
	}
	return out
}

// LedgerEntry is an immutable record of committed expenditure.
type LedgerEntry struct {
	// ID uniquely identifies the entry.
	ID string

	// ResourceID is the API key the spend is attributed to.
	ResourceID string

	// AmountSats is the spent amount in satoshis. Always positive.
	AmountSats int64

	// ExternalRef is an optional caller-supplied transaction reference.
	ExternalRef string

	// CreatedAt is the commit timestamp.
	CreatedAt time.Time
}

// WindowTotal is the aggregated ledger spend from a lower bound to now.
type WindowTotal struct {
	// Since is the inclusive lower time bound.
	Since time.Time

	// SpentSats is the sum of entry amounts at or after Since.
	SpentSats int64

	// Count is the number of entries at or after Since.
	Count int64
}

// WindowCap is a single cap evaluated by InsertEntryIfWithin.
type WindowCap struct {
	// Since is the inclusive lower time bound of the window.
	Since time.Time

	// CapSats is the configured cap for the window.
	CapSats int64
}

// MaxResourceIDLength is the longest accepted resource identifier, in bytes.
const MaxResourceIDLength = 255

// ErrInvalidResourceID is returned for empty or oversized resource identifiers.
var ErrInvalidResourceID = errors.New("invalid resource id")

// ValidateResourceID checks that a resource identifier can be used as a key.
func ValidateResourceID(resourceID string) error {
	if resourceID == "" || len(resourceID) > MaxResourceIDLength {
		return ErrInvalidResourceID
	}
	return nil
}

// fits reports whether amount can be added to spent without exceeding capSats.
// Written as a subtraction so that large values never overflow.
func fits(capSats, spent, amount int64) bool {
	return capSats-spent >= amount
}

// addSats adds two non-negative amounts, saturating at math.MaxInt64.
// A saturated total is still above every cap, so admission stays denied.
func addSats(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// joinSats rebuilds a total from the sums of the high and low 32-bit halves
// of each amount, saturating at math.MaxInt64.
func joinSats(hi, lo int64) int64 {
	if hi > math.MaxInt64>>32 {
		return math.MaxInt64
	}
	return addSats(hi<<32, lo)
}

// earliest returns the smallest time in ts. ts must not be empty.
func earliest(ts []time.Time) time.Time {
	min := ts[0]
	for _, t := range ts[1:] {
		if t.Before(min) {
			min = t
		}
	}
	return min
}
