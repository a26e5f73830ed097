package main

import (
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/spendcap/pkg/cli"
	"mercator-hq/spendcap/pkg/limits/retention"
)

var sweepFlags struct {
	horizon time.Duration
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete ledger entries older than the retention horizon",
	Long: `Run one retention sweep immediately.

Entries older than the horizon can no longer affect any window. The
horizon defaults to the configured retention.horizon and must be at least
366 days.`,
	Example: `  spendcap sweep
  spendcap sweep --horizon 9600h`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepFlags.horizon, "horizon", 0, "override the retention horizon")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	eng, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	horizon := eng.cfg.Retention.Horizon
	if sweepFlags.horizon != 0 {
		horizon = sweepFlags.horizon
	}

	sweeper, err := retention.NewSweeper(eng.store, horizon, retention.WithLogger(eng.logger))
	if err != nil {
		return cli.NewConfigError("horizon", err.Error())
	}

	cutoff := sweeper.Cutoff()
	deleted, err := sweeper.Sweep(cmd.Context())
	if err != nil {
		return cli.NewCommandError("sweep", err)
	}
	return render(cmd, sweepView{Cutoff: cutoff.UTC().Format(time.RFC3339), Deleted: deleted})
}
