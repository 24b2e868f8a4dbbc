package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/internal/cli/output"
	"github.com/marmos91/yeep/pkg/config"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults and YEEP_* environment
overrides are applied.

The table format prints YAML.

Examples:
  # Show the configuration
  yeepctl config show

  # As JSON
  yeepctl config show -o json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmdutil.Flags.ConfigFile)
	if err != nil {
		return err
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	}
	return output.PrintYAML(cmd.OutOrStdout(), cfg)
}
