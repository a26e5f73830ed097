package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file and environment overrides",
	Long: `Validate the configuration without opening storage.

Every invalid field is reported at once. The command exits with status 2
when the configuration is invalid.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		if _, err := newLogger(cfg); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg.Redacted()); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
