package context

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/internal/cli/credentials"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a context",
	Long: `Delete a server context.

This removes the saved configuration and credentials for the context.
The session is not ended on the service; use 'yeepctl logout' first for
that.

Examples:
  # Delete context named "staging"
  yeepctl context delete staging

  # Delete without confirmation
  yeepctl context delete staging --force`,
	Args: cobra.ExactArgs(1),
	RunE: runContextDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation")
}

func runContextDelete(cmd *cobra.Command, args []string) error {
	contextName := args[0]

	store, err := cmdutil.OpenStore()
	if err != nil {
		return err
	}

	stored, err := store.GetContext(contextName)
	if errors.Is(err, credentials.ErrContextNotFound) {
		return fmt.Errorf("context '%s' not found", contextName)
	} else if err != nil {
		return fmt.Errorf("failed to get context: %w", err)
	}

	wasCurrent := store.GetCurrentContextName() == contextName
	err = cmdutil.RunDeleteWithConfirmation("Context", contextName, deleteForce, func() error {
		return store.DeleteContext(contextName)
	})
	if err != nil {
		return err
	}
	if _, err := store.GetContext(contextName); err == nil {
		return nil // aborted
	}

	out := cmd.OutOrStdout()
	if stored.HasSession() {
		fmt.Fprintln(out, "Note: the stored session was not ended on the service")
	}
	if wasCurrent {
		fmt.Fprintln(out, "No current context; select one with 'yeepctl context use'")
	}
	return nil
}
