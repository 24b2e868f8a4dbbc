package context

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/internal/cli/credentials"
)

var renameCmd = &cobra.Command{
	Use:   "rename <old-name> <new-name>",
	Short: "Rename a context",
	Long: `Rename an existing server context.

Examples:
  # Rename context from "localhost:8080" to "dev"
  yeepctl context rename localhost:8080 dev`,
	Args: cobra.ExactArgs(2),
	RunE: runContextRename,
}

func runContextRename(cmd *cobra.Command, args []string) error {
	oldName := args[0]
	newName := args[1]

	store, err := cmdutil.OpenStore()
	if err != nil {
		return err
	}

	if err := store.RenameContext(oldName, newName); err != nil {
		if errors.Is(err, credentials.ErrContextNotFound) {
			return fmt.Errorf("context '%s' not found", oldName)
		}
		return fmt.Errorf("failed to rename context: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Context renamed: %s -> %s\n", oldName, newName)
	return nil
}
