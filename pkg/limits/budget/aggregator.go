package budget

import (
	"context"
	"fmt"
	"time"

	"mercator-hq/spendcap/pkg/limits/storage"
	"mercator-hq/spendcap/pkg/limits/window"
)

// Aggregator computes rolling-window spend from a storage backend.
//
// Aggregator holds no mutable state of its own and is safe for concurrent
// use. All windows requested in one call share a single "now" and are
// resolved with a single Backend.Aggregate round trip.
type Aggregator struct {
	store storage.Backend
	now   func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the clock used to anchor windows. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAggregator creates an Aggregator reading from store.
func NewAggregator(store storage.Backend, opts ...Option) *Aggregator {
	a := &Aggregator{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Now returns the aggregator's current time.
func (a *Aggregator) Now() time.Time {
	return a.now()
}

// Spend returns the total and count of entries created within the last d.
func (a *Aggregator) Spend(ctx context.Context, resourceID string, d time.Duration) (Spend, error) {
	spends, err := a.SpendDurations(ctx, resourceID, d)
	if err != nil {
		return Spend{}, err
	}
	return spends[0], nil
}

// SpendDurations returns one Spend per duration, in argument order, using a
// single aggregation.
func (a *Aggregator) SpendDurations(ctx context.Context, resourceID string, durations ...time.Duration) ([]Spend, error) {
	if len(durations) == 0 {
		return nil, nil
	}

	now := a.now()
	since := make([]time.Time, len(durations))
	for i, d := range durations {
		if d <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidDuration, d)
		}
		since[i] = now.Add(-d)
	}

	totals, err := a.store.Aggregate(ctx, resourceID, since)
	if err != nil {
		return nil, err
	}
	if len(totals) != len(since) {
		return nil, fmt.Errorf("aggregate returned %d totals for %d windows", len(totals), len(since))
	}

	spends := make([]Spend, len(totals))
	for i, t := range totals {
		spends[i] = Spend{Since: since[i], SpentSats: t.SpentSats, Count: t.Count}
	}
	return spends, nil
}

// SpendWindows aggregates the given canonical windows in one call.
// With no windows, every window is aggregated.
func (a *Aggregator) SpendWindows(ctx context.Context, resourceID string, windows ...window.Window) (map[window.Window]WindowSpend, error) {
	if len(windows) == 0 {
		windows = window.All()
	}

	durations := make([]time.Duration, len(windows))
	for i, w := range windows {
		if !w.Valid() {
			return nil, fmt.Errorf("%w: %d", window.ErrUnknown, int(w))
		}
		durations[i] = w.Duration()
	}

	spends, err := a.SpendDurations(ctx, resourceID, durations...)
	if err != nil {
		return nil, err
	}

	out := make(map[window.Window]WindowSpend, len(windows))
	for i, w := range windows {
		out[w] = WindowSpend{Window: w, Spend: spends[i]}
	}
	return out, nil
}
