// Spendcap is a rolling-window spend admission controller.
//
// It keeps per-resource spend caps over trailing 24 hour, 7 day, 30 day and
// 365 day windows, an append-only ledger of committed spend, and answers
// whether a new amount fits every configured cap.
//
// Usage:
//
//	# Serve the internal REST API with retention and provisioning
//	spendcap run --config /etc/spendcap/config.yaml
//
//	# Manage caps
//	spendcap limits set key-123 daily 50000
//	spendcap limits remove key-123 daily
//
//	# Check and record spend
//	spendcap check key-123 1200
//	spendcap record key-123 1200 --ref tx-42
//
//	# Report spend per window
//	spendcap summary key-123 --output json
//
//	# Delete ledger entries past the retention horizon
//	spendcap sweep
package main

import (
	"fmt"
	"os"

	"mercator-hq/spendcap/pkg/cli"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
