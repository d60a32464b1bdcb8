package main

import (
	"github.com/spf13/cobra"

	"github.com/pthm/relmodel/internal/cli"
)

var configShowSource bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration utilities",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Long: `Show the effective configuration after merging defaults, config file, and
environment variables, followed by the dialects it compiles for and the
manifest each one is written to.`,
	Example: `  # Show effective configuration
  relmodel config show

  # Include the config file that was loaded
  relmodel config show --source`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ShowConfig(cmd.OutOrStdout(), cfg, configPath, configShowSource)
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&configShowSource, "source", false, "show config file source")
	configCmd.AddCommand(configShowCmd)
}
