package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the yeepctl configuration file.

Checks for syntax errors and invalid values. Every invalid field is
reported.

Examples:
  # Validate default config
  yeepctl config validate

  # Validate specific config file
  yeepctl config validate --config ./yeep.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s\n\n"+
			"Create it first with:\n"+
			"  yeepctl config init", path)
	}

	cfg, err := config.Load(cmdutil.Flags.ConfigFile)
	if err != nil {
		return err
	}

	var warnings []string
	if cfg.Telemetry.Enabled && cfg.Telemetry.Insecure {
		warnings = append(warnings, "telemetry is exported without TLS")
	}
	if cfg.Client.Retry.Jitter == 0 {
		warnings = append(warnings, "retry jitter is 0 - clients sharing a server will renew in lockstep")
	}
	if cfg.Client.RefreshMargin >= cfg.Client.Timeout*10 {
		warnings = append(warnings, "refresh margin is much larger than the request timeout")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file: %s\n", path)
	fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	fmt.Fprintf(out, "\nConfiguration summary:\n")
	fmt.Fprintf(out, "  Auth type:       %s\n", cfg.Client.AuthType)
	fmt.Fprintf(out, "  Request timeout: %s\n", cfg.Client.Timeout)
	fmt.Fprintf(out, "  Schema path:     %s\n", cfg.Client.SchemaPath)
	fmt.Fprintf(out, "  Refresh margin:  %s\n", cfg.Client.RefreshMargin)
	fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  Telemetry:       %s\n", cmdutil.BoolToYesNo(cfg.Telemetry.Enabled))

	return nil
}
