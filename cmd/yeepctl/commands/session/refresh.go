package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/internal/cli/timeutil"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Renew the stored session now",
	Long: `Renew the session of the current context and store the result.

A bearer token is exchanged for a new one; a cookie session is extended.

Examples:
  # Renew the current session
  yeepctl session refresh`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	s, err := cmdutil.OpenSession(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Client.Session().Refresh(cmd.Context()); err != nil {
		return errors.New(cmdutil.DescribeError(err))
	}
	if err := s.Save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session renewed for context: %s\n", s.ContextName)
	if expiresAt := s.Client.Session().State().ExpiresAt; !expiresAt.IsZero() {
		fmt.Fprintf(out, "Token expires %s\n", timeutil.FormatExpiry(expiresAt, time.Now()))
	}
	return nil
}
