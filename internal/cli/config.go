package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/eco-monitor/internal/config"
)

var configPath string

func init() {
	configCmd.PersistentFlags().StringVar(&configPath, "file", config.DefaultPath, "path to config file")
	configCmd.AddCommand(configShowCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the daemon configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration, defaults included",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOrDefault(configPath)
		if err != nil {
			return fmt.Errorf("load %s: %w", configPath, err)
		}
		return config.Encode(cmd.OutOrStdout(), cfg)
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file for errors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(configPath); err != nil {
			return fmt.Errorf("%s: %w", configPath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", configPath)
		return nil
	},
}
