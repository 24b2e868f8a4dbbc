// Package config implements configuration subcommands for yeepctl.
package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/pkg/config"
)

// Cmd is the config subcommand.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the yeepctl configuration file",
	Long: `Manage the yeepctl configuration file.

The configuration holds logging, telemetry, metrics and client runtime
settings. Server URLs and credentials are kept per context instead; see
'yeepctl context'.

Subcommands:
  init      Create a configuration file with default values
  show      Print the effective configuration
  validate  Validate the configuration file
  edit      Open the configuration file in an editor
  schema    Generate the JSON schema of the configuration`,
}

func init() {
	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(editCmd)
	Cmd.AddCommand(schemaCmd)
}

// configPath returns the file selected by --config, or the default one.
func configPath() string {
	if cmdutil.Flags.ConfigFile != "" {
		return cmdutil.Flags.ConfigFile
	}
	return config.GetDefaultConfigPath()
}
