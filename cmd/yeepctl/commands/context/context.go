// Package context implements the yeepctl context subcommands.
package context

import (
	"github.com/spf13/cobra"
)

// Cmd is the context subcommand.
var Cmd = &cobra.Command{
	Use:     "context",
	Aliases: []string{"ctx"},
	Short:   "Manage stored server contexts",
	Long: `A context pairs a server URL with the session stored for it: the user,
the session type (bearer or cookie) and the token or cookies. Commands use
the current context unless --context or --server is given.`,
}

func init() {
	Cmd.AddCommand(listCmd, useCmd, currentCmd, renameCmd, deleteCmd)
}
