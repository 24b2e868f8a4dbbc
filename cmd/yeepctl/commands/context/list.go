package context

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/internal/cli/credentials"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configured contexts",
	Long: `List all configured server contexts.

Shows the context name, server URL, username and session type for each
saved context. The current context is marked with an asterisk (*).

Examples:
  # List contexts as table
  yeepctl context list

  # List as JSON
  yeepctl context list -o json`,
	RunE: runContextList,
}

// ContextInfo represents context information for output.
type ContextInfo struct {
	Name      string `json:"name" yaml:"name"`
	Current   bool   `json:"current" yaml:"current"`
	ServerURL string `json:"server_url" yaml:"server_url"`
	Username  string `json:"username,omitempty" yaml:"username,omitempty"`
	AuthType  string `json:"auth_type,omitempty" yaml:"auth_type,omitempty"`
	LoggedIn  bool   `json:"logged_in" yaml:"logged_in"`
}

// ContextList is a list of contexts for table rendering.
type ContextList []ContextInfo

// Headers implements TableRenderer.
func (cl ContextList) Headers() []string {
	return []string{"", "NAME", "SERVER", "USER", "AUTH", "LOGGED IN"}
}

// Rows implements TableRenderer.
func (cl ContextList) Rows() [][]string {
	rows := make([][]string, 0, len(cl))
	for _, c := range cl {
		current := ""
		if c.Current {
			current = "*"
		}
		rows = append(rows, []string{
			current,
			c.Name,
			c.ServerURL,
			cmdutil.EmptyOr(c.Username, "-"),
			cmdutil.EmptyOr(c.AuthType, "-"),
			cmdutil.BoolToYesNo(c.LoggedIn),
		})
	}
	return rows
}

func newContextInfo(name string, current bool, ctx *credentials.Context) ContextInfo {
	return ContextInfo{
		Name:      name,
		Current:   current,
		ServerURL: ctx.ServerURL,
		Username:  ctx.Username,
		AuthType:  ctx.AuthType,
		LoggedIn:  ctx.HasSession(),
	}
}

func runContextList(cmd *cobra.Command, args []string) error {
	store, err := cmdutil.OpenStore()
	if err != nil {
		return err
	}

	contextNames := store.ListContexts()
	currentContext := store.GetCurrentContextName()

	contexts := make(ContextList, 0, len(contextNames))
	for _, name := range contextNames {
		ctx, err := store.GetContext(name)
		if err != nil {
			continue
		}
		contexts = append(contexts, newContextInfo(name, name == currentContext, ctx))
	}

	return cmdutil.PrintOutput(cmd.OutOrStdout(), contexts, len(contexts) == 0, "No contexts configured. Use 'yeepctl login --server <url>' to create one.", contexts)
}
