// Package storage provides persistence backends for spend caps and the spend ledger.
//
// # Overview
//
// The storage package defines the Backend interface used by the admission
// engine and provides four implementations:
//
//   - Memory: In-process maps, no persistence (tests, single-shot CLI runs)
//   - SQLite: File-based persistence, pure Go (modernc) or cgo (mattn) driver
//   - PostgreSQL: Production-grade persistence via lib/pq
//   - Redis: Shared low-latency store; caps in hashes, ledger in sorted sets
//
// # Data Model
//
// Caps are sparse rows with four nullable fields (daily, weekly, monthly,
// annual). Clearing the last field deletes the row in the same operation,
// so "no row" is the only representation of an uncapped resource.
//
// Ledger entries are append-only. Aggregate computes sums and counts for
// several trailing windows in a single query, and DeleteEntriesBefore is the
// only way entries are removed.
//
// # Usage
//
//	backend, err := storage.NewSQLiteBackend("data/spendcap.db")
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	err = backend.SetCapField(ctx, "key-123", window.Daily, 50_000)
//	totals, err := backend.Aggregate(ctx, "key-123", []time.Time{now.Add(-24 * time.Hour)})
//
// # Thread Safety
//
// All storage backends are thread-safe and support concurrent access
// from multiple goroutines. Locking is handled internally by each backend.
package storage
