package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/internal/cli/credentials"
	"github.com/marmos91/yeep/internal/logger"
	"github.com/marmos91/yeep/pkg/config"
)

var logoutLocal bool

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and clear stored credentials",
	Long: `End the session on the service and clear stored credentials.

The stored token or cookie is cleared even when the service cannot be
reached. The server URL and context configuration are kept for easy
re-login.

Examples:
  # Logout from current context
  yeepctl logout

  # Only forget local credentials
  yeepctl logout --local`,
	RunE: runLogout,
}

func init() {
	logoutCmd.Flags().BoolVar(&logoutLocal, "local", false, "Do not notify the service")
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}

	store, err := cmdutil.OpenStore()
	if err != nil {
		return err
	}
	contextName, stored, err := cmdutil.ResolveContext(store)
	if err != nil {
		return fmt.Errorf("not logged in - no current context")
	}

	out := cmd.OutOrStdout()
	if !stored.HasSession() {
		fmt.Fprintf(out, "Already logged out from context: %s\n", contextName)
		return nil
	}

	if !logoutLocal {
		if err := remoteLogout(cmd, cfg); err != nil {
			logger.Warn("Remote logout failed, clearing local credentials", logger.Err(err))
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", cmdutil.DescribeError(err))
		}
	}

	// The store may have been rewritten while the session was open.
	if err := store.Reload(); err != nil {
		return err
	}
	if err := store.ClearContext(contextName); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	fmt.Fprintf(out, "Logged out from context: %s\n", contextName)
	return nil
}

func remoteLogout(cmd *cobra.Command, cfg *config.Config) error {
	s, err := cmdutil.OpenSession(cmd.Context(), cfg)
	if err != nil {
		if errors.Is(err, cmdutil.ErrSessionExpired) || errors.Is(err, credentials.ErrNotLoggedIn) {
			return nil
		}
		return err
	}
	defer s.Close()
	return s.Client.Session().Logout(cmd.Context())
}
