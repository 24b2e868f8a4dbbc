package session

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/internal/cli/credentials"
	"github.com/marmos91/yeep/internal/cli/timeutil"
	"github.com/marmos91/yeep/pkg/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	Long: `Display the session stored in the current context without contacting
the service.

For bearer sessions the token expiry and the time at which a running
session renews it are shown.

Examples:
  # Show the current session
  yeepctl session status

  # Show another context as JSON
  yeepctl session status --context staging -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// Status describes a stored session.
type Status struct {
	Context   string     `json:"context" yaml:"context"`
	Server    string     `json:"server" yaml:"server"`
	Username  string     `json:"username,omitempty" yaml:"username,omitempty"`
	AuthType  string     `json:"auth_type" yaml:"auth_type"`
	LoggedIn  bool       `json:"logged_in" yaml:"logged_in"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	RenewsAt  *time.Time `json:"renews_at,omitempty" yaml:"renews_at,omitempty"`
	Cookies   []string   `json:"cookies,omitempty" yaml:"cookies,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	store, err := cmdutil.OpenStore()
	if err != nil {
		return err
	}
	name, stored, err := cmdutil.ResolveContext(store)
	if err != nil {
		return err
	}

	status := buildStatus(name, stored, cfg)
	return cmdutil.PrintPairs(cmd.OutOrStdout(), status, status.pairs(time.Now()))
}

func buildStatus(name string, stored *credentials.Context, cfg *config.Config) Status {
	status := Status{
		Context:  name,
		Server:   stored.ServerURL,
		Username: stored.Username,
		AuthType: cmdutil.EmptyOr(stored.AuthType, cfg.Client.AuthType),
		LoggedIn: stored.HasSession(),
	}
	for _, c := range stored.Cookies {
		status.Cookies = append(status.Cookies, c.Name)
	}
	if stored.HasToken() && !stored.ExpiresAt.IsZero() {
		expiresAt := stored.ExpiresAt
		renewsAt := expiresAt.Add(-cfg.Client.RefreshMargin)
		status.ExpiresAt = &expiresAt
		status.RenewsAt = &renewsAt
	}
	return status
}

func (s Status) pairs(now time.Time) [][2]string {
	pairs := [][2]string{
		{"Context", s.Context},
		{"Server", s.Server},
		{"User", cmdutil.EmptyOr(s.Username, "-")},
		{"Auth type", s.AuthType},
		{"Logged in", cmdutil.BoolToYesNo(s.LoggedIn)},
	}
	if s.ExpiresAt != nil {
		pairs = append(pairs,
			[2]string{"Token expires", timeutil.FormatExpiry(*s.ExpiresAt, now)},
			[2]string{"Renewal due", timeutil.FormatTime(*s.RenewsAt)},
		)
	}
	if len(s.Cookies) > 0 {
		pairs = append(pairs, [2]string{"Cookies", strings.Join(s.Cookies, ", ")})
	}
	return pairs
}
