// Package limits provides rolling-window spend admission control for API keys.
//
// # Overview
//
// The limits package decides whether a resource (an API key) may spend a
// satoshi amount given its configured caps, records committed spend in an
// append-only ledger, and reports spend per window. It supports:
//
//   - Sparse per-resource caps over four rolling windows (24h, 7d, 30d, 365d)
//   - Read-only admission checks ("check"), which never reserve budget
//   - Unconditional spend recording ("record") after the caller commits
//   - An optional fenced check-and-record for callers that cannot tolerate
//     the check/record race
//
// # Architecture
//
// The package is organized into sub-packages:
//
//   - window: The four canonical windows and their durations
//   - storage: Persistence backends (memory, SQLite, PostgreSQL, Redis)
//   - budget: Rolling-window spend aggregation over the ledger
//   - caps: Cap configuration with the sparse-row invariant
//   - retention: Scheduled deletion of expired ledger entries
//   - provision: Declarative cap files applied at startup and on change
//
// # Usage
//
//	ctrl := limits.NewController(limits.Config{Storage: backend})
//
//	// Quote: is this spend within every configured cap?
//	decision, err := ctrl.Check(ctx, "key-123", 2_500)
//	if err != nil {
//	    return err
//	}
//	if !decision.Allowed {
//	    return fmt.Errorf("spend denied: %s", decision.Reason)
//	}
//
//	// Commit: record the spend after the payment settles
//	err = ctrl.Record(ctx, "key-123", 2_500, "payment-hash")
//
// # Check and Record Are Not Fenced
//
// Check is advisory. Two concurrent checks can both be allowed and both
// records then succeed, overshooting a cap by up to one in-flight amount per
// concurrent caller. Use CheckAndRecord when that is unacceptable.
//
// # Thread Safety
//
// Controller holds no per-resource state in memory; all state lives in the
// storage backend. All operations are safe for concurrent use.
package limits
