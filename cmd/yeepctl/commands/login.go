package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/internal/cli/credentials"
	"github.com/marmos91/yeep/internal/cli/prompt"
	"github.com/marmos91/yeep/pkg/session"
)

var (
	loginUsername string
	loginPassword string
	loginAuthType string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with a yeep service",
	Long: `Authenticate with a service and store the session.

On first login, you must specify the server URL with --server. Subsequent
logins reuse the server of the current context. Logging in to a different
server creates a new context named after its host unless --context is set.

With bearer authentication the issued token is stored and renewed by
commands that keep a session open. With cookie authentication the session
cookie is stored instead.

Examples:
  # First login to a server
  yeepctl login --server http://localhost:8080 --username alice

  # Login with password on command line (less secure)
  yeepctl login --server http://localhost:8080 -u alice -p secret

  # Use cookie sessions
  yeepctl login --server http://localhost:8080 --auth-type cookie

  # Re-login to stored server
  yeepctl login`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password")
	loginCmd.Flags().StringVar(&loginAuthType, "auth-type", "", "Session type (bearer|cookie)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}

	store, err := cmdutil.OpenStore()
	if err != nil {
		return err
	}

	contextName := cmdutil.Flags.Context
	if contextName == "" {
		contextName = store.GetCurrentContextName()
	}
	var existing *credentials.Context
	if contextName != "" {
		existing, _ = store.GetContext(contextName)
	}

	// Determine server URL
	serverURL := cmdutil.Flags.ServerURL
	if serverURL == "" && existing != nil {
		serverURL = existing.ServerURL
	}
	if serverURL == "" {
		return fmt.Errorf("no server URL specified and no saved context found\n\n" +
			"Specify server URL:\n" +
			"  yeepctl login --server http://localhost:8080")
	}
	if serverURL, err = cmdutil.NormalizeServerURL(serverURL); err != nil {
		return err
	}

	if cmdutil.Flags.Context == "" && (existing == nil || existing.ServerURL != serverURL) {
		contextName = credentials.GenerateContextName(serverURL)
		existing, _ = store.GetContext(contextName)
	}

	authType := loginAuthType
	if authType == "" && existing != nil {
		authType = existing.AuthType
	}

	username := loginUsername
	if username == "" {
		defaultUser := ""
		if existing != nil {
			defaultUser = existing.Username
		}
		username, err = prompt.Input("Username", defaultUser)
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	password := loginPassword
	if password == "" {
		password, err = prompt.Password("Password")
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	client, jar, err := cmdutil.NewClient(cfg, serverURL, authType, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Logging in to %s as %s...\n", serverURL, username)

	creds := session.Credentials{User: username, Password: password}
	if _, err := client.Session().Login(cmd.Context(), creds); err != nil {
		return fmt.Errorf("login failed: %s", cmdutil.DescribeError(err))
	}

	if err := store.SetContext(contextName, &credentials.Context{
		ServerURL: serverURL,
		Username:  username,
		AuthType:  string(client.Config().AuthType),
	}); err != nil {
		return fmt.Errorf("failed to save context: %w", err)
	}
	if err := cmdutil.NewSession(client, jar, store, contextName).Save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	if err := store.UseContext(contextName); err != nil {
		return fmt.Errorf("failed to set current context: %w", err)
	}

	fmt.Fprintf(out, "Logged in successfully as %s\n", username)
	fmt.Fprintf(out, "Context: %s\n", contextName)
	fmt.Fprintf(out, "Credentials saved to: %s\n", store.ConfigPath())
	return nil
}
