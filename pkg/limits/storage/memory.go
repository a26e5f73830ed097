package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/spendcap/pkg/limits/window"
)

// MemoryBackend implements Backend using in-memory storage.
// This is the default backend and provides fast access with no persistence.
// All data is lost when the process exits.
//
// MemoryBackend is thread-safe and supports concurrent access using sync.RWMutex.
type MemoryBackend struct {
	// caps maps resource ID to its sparse cap row.
	caps map[string]*SpendCap

	// ledger maps resource ID to its entries ordered by CreatedAt.
	ledger map[string][]LedgerEntry

	// mu protects caps and ledger.
	mu sync.RWMutex

	// now is the clock used to stamp rows.
	now func() time.Time

	closed bool
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithMemoryClock overrides the clock used to stamp caps and entries.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryBackend) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	m := &MemoryBackend{
		caps:   make(map[string]*SpendCap),
		ledger: make(map[string][]LedgerEntry),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetCap returns a copy of the cap row for a resource, or nil.
func (m *MemoryBackend) GetCap(ctx context.Context, resourceID string) (*SpendCap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewStorageError("memory", "get_cap", ErrClosed)
	}

	c, ok := m.caps[resourceID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// SetCapField upserts a single window field.
func (m *MemoryBackend) SetCapField(ctx context.Context, resourceID string, w window.Window, sats int64) error {
	if !w.Valid() {
		return NewStorageError("memory", "set_cap", window.ErrUnknown)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewStorageError("memory", "set_cap", ErrClosed)
	}

	now := m.now()
	c, ok := m.caps[resourceID]
	if !ok {
		c = &SpendCap{ResourceID: resourceID, CreatedAt: now}
		m.caps[resourceID] = c
	}
	c.Set(w, LimitOf(sats))
	c.UpdatedAt = now
	return nil
}

// ClearCapField unsets a single window field and drops the row when it becomes empty.
func (m *MemoryBackend) ClearCapField(ctx context.Context, resourceID string, w window.Window) error {
	if !w.Valid() {
		return NewStorageError("memory", "clear_cap", window.ErrUnknown)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewStorageError("memory", "clear_cap", ErrClosed)
	}

	c, ok := m.caps[resourceID]
	if !ok {
		return nil
	}
	c.Set(w, Limit{})
	c.UpdatedAt = m.now()
	if c.IsEmpty() {
		delete(m.caps, resourceID)
	}
	return nil
}

// DeleteCap removes the cap row for a resource.
func (m *MemoryBackend) DeleteCap(ctx context.Context, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewStorageError("memory", "delete_cap", ErrClosed)
	}

	delete(m.caps, resourceID)
	return nil
}

// InsertEntry appends a ledger entry.
func (m *MemoryBackend) InsertEntry(ctx context.Context, entry *LedgerEntry) error {
	if entry == nil {
		return NewStorageError("memory", "insert_entry", ErrNilEntry)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewStorageError("memory", "insert_entry", ErrClosed)
	}

	m.appendLocked(entry)
	return nil
}

// InsertEntryIfWithin appends the entry only if every cap leaves room for it.
// The check and the append happen under the same write lock.
func (m *MemoryBackend) InsertEntryIfWithin(ctx context.Context, entry *LedgerEntry, caps []WindowCap) (bool, error) {
	if entry == nil {
		return false, NewStorageError("memory", "insert_entry_fenced", ErrNilEntry)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, NewStorageError("memory", "insert_entry_fenced", ErrClosed)
	}

	if len(caps) > 0 {
		since := make([]time.Time, len(caps))
		for i, c := range caps {
			since[i] = c.Since
		}
		totals := m.aggregateLocked(entry.ResourceID, since)
		for i, c := range caps {
			if !fits(c.CapSats, totals[i].SpentSats, entry.AmountSats) {
				return false, nil
			}
		}
	}

	m.appendLocked(entry)
	return true, nil
}

// Aggregate computes sums and counts over each lower bound.
func (m *MemoryBackend) Aggregate(ctx context.Context, resourceID string, since []time.Time) ([]WindowTotal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewStorageError("memory", "aggregate", ErrClosed)
	}

	return m.aggregateLocked(resourceID, since), nil
}

// DeleteEntriesBefore drops ledger entries older than cutoff.
func (m *MemoryBackend) DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, NewStorageError("memory", "delete_entries", ErrClosed)
	}

	var deleted int64
	for id, entries := range m.ledger {
		// entries are sorted, so the survivors are a suffix
		i := sort.Search(len(entries), func(i int) bool {
			return !entries[i].CreatedAt.Before(cutoff)
		})
		if i == 0 {
			continue
		}
		deleted += int64(i)
		if i == len(entries) {
			delete(m.ledger, id)
			continue
		}
		m.ledger[id] = append([]LedgerEntry(nil), entries[i:]...)
	}
	return deleted, nil
}

// Ping reports whether the backend is open.
func (m *MemoryBackend) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return NewStorageError("memory", "ping", ErrClosed)
	}
	return nil
}

// Close marks the backend closed. Close is idempotent.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Size returns the number of cap rows and ledger entries currently stored.
// This is useful for monitoring and testing.
func (m *MemoryBackend) Size() (caps int, entries int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.ledger {
		entries += len(e)
	}
	return len(m.caps), entries
}

// appendLocked stamps and inserts entry keeping the slice sorted by CreatedAt.
// Caller must hold write lock.
func (m *MemoryBackend) appendLocked(entry *LedgerEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}

	entries := m.ledger[entry.ResourceID]
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].CreatedAt.After(entry.CreatedAt)
	})
	entries = append(entries, LedgerEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = *entry
	m.ledger[entry.ResourceID] = entries
}

// aggregateLocked walks the resource's entries once and fills every total.
// Caller must hold at least a read lock.
func (m *MemoryBackend) aggregateLocked(resourceID string, since []time.Time) []WindowTotal {
	totals := make([]WindowTotal, len(since))
	for i, s := range since {
		totals[i].Since = s
	}
	for _, e := range m.ledger[resourceID] {
		for i, s := range since {
			if !e.CreatedAt.Before(s) {
				totals[i].SpentSats = addSats(totals[i].SpentSats, e.AmountSats)
				totals[i].Count++
			}
		}
	}
	return totals
}
