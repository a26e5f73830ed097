/*
Package cli provides helpers shared by the spendcap commands.

Output Formatting:

Command results are printed as aligned text tables, JSON or CSV:

	formatter, err := cli.NewFormatter(cli.FormatText)
	if err != nil {
		return err
	}
	return formatter.FormatTo(os.Stdout, view)

Values that implement Tabular render as tables in text and CSV output;
JSON output always encodes the value itself.

Exit Codes:

ExitCode maps command errors to process exit statuses so scripts can tell
a denied spend check apart from an unreachable store:

	0  success
	1  unexpected failure
	2  invalid configuration or arguments
	3  spend denied by a limit
	4  limit store unavailable

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
