// Package session implements session inspection subcommands for yeepctl.
package session

import (
	"github.com/spf13/cobra"
)

// Cmd is the session subcommand.
var Cmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and renew the stored session",
	Long: `Inspect and renew the session stored in a context.

Subcommands:
  status   Show the stored session and when it expires
  refresh  Renew the session now`,
}

func init() {
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(refreshCmd)
}
