package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/spendcap/pkg/limits"
	"mercator-hq/spendcap/pkg/limits/provision"
	"mercator-hq/spendcap/pkg/limits/window"
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Manage per-resource spend caps",
	Long: `Manage the spend caps of a resource.

Windows are daily (24h), weekly (7d), monthly (30d) and annual (365d).
A window without a cap is unlimited.`,
}

var limitsGetCmd = &cobra.Command{
	Use:   "get <resource-id>",
	Short: "Show the caps of a resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.Close()

		capRow, err := eng.limits.GetLimits(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd, newCapView(args[0], capRow))
	},
}

var limitsSetCmd = &cobra.Command{
	Use:     "set <resource-id> <window> <limit-sats>",
	Short:   "Set the cap for one window",
	Example: `  spendcap limits set key-123 daily 50000`,
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := window.Parse(args[1])
		if err != nil {
			return err
		}
		sats, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %q is not a whole number of satoshis", limits.ErrInvalidLimit, args[2])
		}

		eng, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.limits.SetLimit(cmd.Context(), args[0], w, sats); err != nil {
			return err
		}
		printf(cmd, "Set %s cap of %s to %d sats\n", w.String(), args[0], sats)
		return nil
	},
}

var limitsRemoveCmd = &cobra.Command{
	Use:   "remove <resource-id> <window>",
	Short: "Remove the cap for one window",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := window.Parse(args[1])
		if err != nil {
			return err
		}

		eng, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.limits.RemoveLimit(cmd.Context(), args[0], w); err != nil {
			return err
		}
		printf(cmd, "Removed %s cap of %s\n", w.String(), args[0])
		return nil
	},
}

var limitsClearCmd = &cobra.Command{
	Use:   "clear <resource-id>",
	Short: "Remove every cap of a resource",
	Long:  `Remove every cap of a resource. Ledger entries are kept.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.limits.RemoveAllLimits(cmd.Context(), args[0]); err != nil {
			return err
		}
		printf(cmd, "Removed all caps of %s\n", args[0])
		return nil
	},
}

var limitsApplyCmd = &cobra.Command{
	Use:   "apply <file>",
	Short: "Apply caps from a provisioning file",
	Long: `Reconcile the caps of every resource listed in a provisioning file.

Resources not listed in the file are left untouched. With --state, the
resources applied from the file are recorded there, and resources later
dropped from the file have their caps cleared.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.Close()

		var opts []provision.Option
		if limitsApplyState != "" {
			opts = append(opts, provision.WithStateFile(limitsApplyState))
		}
		prov := provision.NewProvisioner(eng.limits.Caps(), args[0], eng.logger, opts...)
		res, err := prov.Apply(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, applyView{File: args[0], Applied: res.Applied, Removed: res.Removed})
	},
}

var limitsApplyState string

func init() {
	limitsApplyCmd.Flags().StringVar(&limitsApplyState, "state", "", "file recording the resources this file manages")
	limitsCmd.AddCommand(limitsGetCmd, limitsSetCmd, limitsRemoveCmd, limitsClearCmd, limitsApplyCmd)
	rootCmd.AddCommand(limitsCmd)
}
