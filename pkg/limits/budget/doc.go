// Package budget computes spend over trailing windows from the ledger.
//
// # Overview
//
// The Aggregator answers "how much did this resource spend in the last d"
// by summing ledger entries in (now - d, now]. Windows are recomputed on
// every call from the injected clock; there are no buckets or cached
// counters, so a result is always exact with respect to committed entries.
//
// # Rolling Windows
//
// Unlike fixed time windows, rolling windows provide smooth budget enforcement:
//
//   - Daily: Last 24 hours (not the current calendar day)
//   - Weekly: Last 7 days
//   - Monthly: Last 30 days (not the current calendar month)
//   - Annual: Last 365 days
//
// This prevents "reset spikes" where callers can double-spend at window boundaries.
//
// # Usage
//
//	agg := budget.NewAggregator(backend)
//
//	// Single window
//	spend, err := agg.Spend(ctx, "key-123", 24*time.Hour)
//
//	// Several windows, one storage round trip
//	spends, err := agg.SpendWindows(ctx, "key-123", window.Daily, window.Monthly)
//
// # Monotonicity
//
// Entries are appended atomically by the storage backend, so no entry is
// visible before its insert commits and appending can only increase a later
// result for any window covering the new entry.
package budget
