package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/spendcap/pkg/cli"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "spendcap",
	Short: "Spendcap - rolling-window spend admission control",
	Long: `Spendcap enforces per-resource spend caps over rolling windows.

Each resource (typically an API key) may carry caps for the trailing
24 hours, 7 days, 30 days and 365 days. Spend is checked against every
configured cap before payment and recorded in an append-only ledger once
the payment commits.

Configuration is read from the file given by --config and can be
overridden with SPENDCAP_* environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and environment only when empty)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", string(cli.FormatText), "output format: text, json, csv")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// render writes v to the command's output in the selected format.
func render(cmd *cobra.Command, v any) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(outputFormat))
	if err != nil {
		return err
	}
	return formatter.FormatTo(cmd.OutOrStdout(), v)
}

// textOutput reports whether results are printed as plain text.
func textOutput() bool {
	return outputFormat == "" || outputFormat == string(cli.FormatText)
}

// printf writes a human-readable line when the output format is text.
func printf(cmd *cobra.Command, format string, args ...any) {
	if textOutput() {
		fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	}
}
