// Package commands implements the CLI commands for yeepctl.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	configcmd "github.com/marmos91/yeep/cmd/yeepctl/commands/config"
	ctxcmd "github.com/marmos91/yeep/cmd/yeepctl/commands/context"
	sessioncmd "github.com/marmos91/yeep/cmd/yeepctl/commands/session"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "yeepctl",
	Short: "yeep - schema-driven service client",
	Long: `yeepctl talks to a service that publishes its operations as a schema
document. Operations are discovered at runtime and invoked by name.

Sessions are kept per context, either as a bearer token that is renewed
before it expires or as a session cookie.

Use "yeepctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Sync flags to cmdutil.Flags for subcommands
		cmdutil.Flags.ServerURL, _ = cmd.Flags().GetString("server")
		cmdutil.Flags.ConfigFile, _ = cmd.Flags().GetString("config")
		cmdutil.Flags.Context, _ = cmd.Flags().GetString("context")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		cmdutil.Flags.Verbose, _ = cmd.Flags().GetBool("verbose")
		cmdutil.Version = Version
	},
}

// Execute runs the root command. ctx is canceled on SIGINT/SIGTERM.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().String("server", "", "Server URL (overrides the stored context)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/yeep/config.yaml)")
	rootCmd.PersistentFlags().String("context", "", "Context to use instead of the current one")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(opsCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(keepaliveCmd)
	rootCmd.AddCommand(ctxcmd.Cmd)
	rootCmd.AddCommand(sessioncmd.Cmd)
	rootCmd.AddCommand(configcmd.Cmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
