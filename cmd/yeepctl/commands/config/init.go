package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with default values",
	Long: `Write a configuration file populated with the default values.

The file is created at $XDG_CONFIG_HOME/yeep/config.yaml unless --config
selects another path. An existing file is only replaced with --force.

Examples:
  # Create the default config file
  yeepctl config init

  # Overwrite an existing file
  yeepctl config init --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath()
	if err := config.InitConfigToPath(path, initForce); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}
