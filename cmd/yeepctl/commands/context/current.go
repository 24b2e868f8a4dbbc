package context

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
)

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show current context",
	Long: `Display information about the current active context.

Examples:
  # Show current context
  yeepctl context current

  # Show as JSON
  yeepctl context current -o json`,
	RunE: runContextCurrent,
}

func runContextCurrent(cmd *cobra.Command, args []string) error {
	store, err := cmdutil.OpenStore()
	if err != nil {
		return err
	}

	contextName := store.GetCurrentContextName()
	if contextName == "" {
		return fmt.Errorf("no current context set\n\n" +
			"Login to a server first:\n" +
			"  yeepctl login --server http://localhost:8080")
	}

	ctx, err := store.GetContext(contextName)
	if err != nil {
		return fmt.Errorf("failed to get context: %w", err)
	}

	info := newContextInfo(contextName, true, ctx)
	status := "Not logged in"
	if info.LoggedIn {
		status = "Logged in"
	}
	return cmdutil.PrintPairs(cmd.OutOrStdout(), info, [][2]string{
		{"Current context", contextName},
		{"Server", ctx.ServerURL},
		{"User", cmdutil.EmptyOr(ctx.Username, "-")},
		{"Auth type", cmdutil.EmptyOr(ctx.AuthType, "-")},
		{"Status", status},
	})
}
