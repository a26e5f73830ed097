package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/spendcap/pkg/cli"
	"mercator-hq/spendcap/pkg/limits"
)

var recordFlags struct {
	ref    string
	fenced bool
}

var checkCmd = &cobra.Command{
	Use:   "check <resource-id> <amount-sats>",
	Short: "Check whether an amount fits every configured cap",
	Long: `Check whether spending amount-sats fits within every configured cap of
the resource. Nothing is recorded.

The command exits with status 3 when the amount is denied.`,
	Example: `  spendcap check key-123 1200
  spendcap check key-123 0 --output json`,
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

var recordCmd = &cobra.Command{
	Use:   "record <resource-id> <amount-sats>",
	Short: "Record committed spend in the ledger",
	Long: `Append a ledger entry for spend that has already been committed.

Caps are not re-checked unless --fenced is given, in which case the check
and the insert happen atomically and a denied amount is not recorded.`,
	Example: `  spendcap record key-123 1200 --ref tx-42
  spendcap record key-123 1200 --fenced`,
	Args: cobra.ExactArgs(2),
	RunE: runRecord,
}

var summaryCmd = &cobra.Command{
	Use:   "summary <resource-id>",
	Short: "Report caps and spend for every window",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func init() {
	recordCmd.Flags().StringVar(&recordFlags.ref, "ref", "", "external reference such as a payment hash")
	recordCmd.Flags().BoolVar(&recordFlags.fenced, "fenced", false, "reject the amount if it would exceed a cap")

	rootCmd.AddCommand(checkCmd, recordCmd, summaryCmd)
}

func parseAmount(arg string) (int64, error) {
	sats, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a whole number of satoshis", limits.ErrInvalidAmount, arg)
	}
	return sats, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	amount, err := parseAmount(args[1])
	if err != nil {
		return err
	}

	eng, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	decision, err := eng.limits.Check(cmd.Context(), args[0], amount)
	if err != nil {
		return err
	}
	return renderDecision(cmd, decision)
}

func runRecord(cmd *cobra.Command, args []string) error {
	amount, err := parseAmount(args[1])
	if err != nil {
		return err
	}

	eng, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	if !recordFlags.fenced {
		if err := eng.limits.Record(cmd.Context(), args[0], amount, recordFlags.ref); err != nil {
			return err
		}
		printf(cmd, "Recorded %d sats for %s\n", amount, args[0])
		return nil
	}

	decision, err := eng.limits.CheckAndRecord(cmd.Context(), args[0], amount, recordFlags.ref)
	if err != nil {
		return err
	}
	return renderDecision(cmd, decision)
}

func runSummary(cmd *cobra.Command, args []string) error {
	eng, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	summary, err := eng.limits.Summary(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return render(cmd, newSummaryView(summary))
}

// renderDecision prints the decision and returns cli.ErrDenied when the
// amount was not allowed.
func renderDecision(cmd *cobra.Command, d *limits.Decision) error {
	view := newDecisionView(d)
	printf(cmd, "%s\n", view.Verdict())
	if len(view.Windows) > 0 || !textOutput() {
		if err := render(cmd, view); err != nil {
			return err
		}
	}
	if !d.Allowed {
		return fmt.Errorf("%w: %s", cli.ErrDenied, d.Reason)
	}
	return nil
}
