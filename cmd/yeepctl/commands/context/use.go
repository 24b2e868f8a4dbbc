package context

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/internal/cli/credentials"
	"github.com/marmos91/yeep/internal/cli/prompt"
)

var useCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Switch to a different context",
	Long: `Switch to a different server context.

This changes the active context used for subsequent commands. Without a
name, the context is picked interactively.

Examples:
  # Switch to context named "production"
  yeepctl context use production

  # Pick from a list
  yeepctl context use`,
	Args: cobra.MaximumNArgs(1),
	RunE: runContextUse,
}

func runContextUse(cmd *cobra.Command, args []string) error {
	store, err := cmdutil.OpenStore()
	if err != nil {
		return err
	}

	var contextName string
	if len(args) == 1 {
		contextName = args[0]
	} else {
		contextName, err = selectContext(store)
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	if err := store.UseContext(contextName); err != nil {
		if errors.Is(err, credentials.ErrContextNotFound) {
			return fmt.Errorf("context '%s' not found\n\n"+
				"List available contexts:\n"+
				"  yeepctl context list", contextName)
		}
		return fmt.Errorf("failed to switch context: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Switched to context: %s\n", contextName)
	return nil
}

func selectContext(store *credentials.Store) (string, error) {
	names := store.ListContexts()
	if len(names) == 0 {
		return "", errors.New("no contexts configured. Use 'yeepctl login --server <url>' to create one")
	}

	options := make([]prompt.SelectOption, 0, len(names))
	for _, name := range names {
		option := prompt.SelectOption{Label: name, Value: name}
		if ctx, err := store.GetContext(name); err == nil {
			option.Description = ctx.ServerURL
		}
		options = append(options, option)
	}
	return prompt.Select("Select context", options)
}
