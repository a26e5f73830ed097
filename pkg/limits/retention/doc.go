// Package retention bounds ledger growth.
//
// # Overview
//
// Ledger entries older than the longest rolling window can never affect an
// admission decision. The Sweeper deletes entries older than a horizon that
// is strictly longer than the annual window, and the Scheduler runs it on a
// cron schedule.
//
// # Configuration
//
//	retention:
//	  enabled: true
//	  schedule: "0 3 * * *"   # daily at 3 AM
//	  horizon: 9600h          # 400 days, must exceed 366 days
//	  run_on_start: false
//
// # Safety
//
// NewSweeper rejects horizons shorter than 366 days, so a sweep never removes
// an entry that some window could still count.
package retention
