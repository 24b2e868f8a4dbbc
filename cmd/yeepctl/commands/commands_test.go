package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/internal/cli/credentials"
	"github.com/marmos91/yeep/internal/yeeptest"
)

// isolate points config and credentials at a temp dir.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	saved := *cmdutil.Flags
	t.Cleanup(func() { *cmdutil.Flags = saved })
}

// resetFlags restores every flag of cmd and its children to its default,
// since cobra keeps values between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// run executes yeepctl with args and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := GetRootCmd()
	resetFlags(root)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func login(t *testing.T, srv *yeeptest.Server, extra ...string) {
	t.Helper()
	args := append([]string{"login", "--server", srv.URL,
		"-u", yeeptest.DefaultUser, "-p", yeeptest.DefaultPassword}, extra...)
	out, err := run(t, args...)
	require.NoError(t, err, out)
	require.Contains(t, out, "Logged in successfully as alice")
}

func currentContext(t *testing.T) (string, *credentials.Context) {
	t.Helper()
	store, err := credentials.NewStore()
	require.NoError(t, err)
	ctx, err := store.GetCurrentContext()
	require.NoError(t, err)
	return store.GetCurrentContextName(), ctx
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestLoginBearer(t *testing.T) {
	isolate(t)
	srv := yeeptest.New()
	defer srv.Close()

	login(t, srv)

	name, ctx := currentContext(t)
	assert.Equal(t, credentials.GenerateContextName(srv.URL), name)
	assert.Equal(t, srv.URL, ctx.ServerURL)
	assert.Equal(t, "alice", ctx.Username)
	assert.Equal(t, "bearer", ctx.AuthType)
	assert.NotEmpty(t, ctx.Token)
	assert.False(t, ctx.ExpiresAt.IsZero())
	assert.Equal(t, 1, srv.Hits("session.issueToken"))
}

func TestLoginWrongPassword(t *testing.T) {
	isolate(t)
	srv := yeeptest.New()
	defer srv.Close()

	_, err := run(t, "login", "--server", srv.URL, "-u", "alice", "-p", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")

	store, err := credentials.NewStore()
	require.NoError(t, err)
	assert.Empty(t, store.ListContexts())
}

func TestLoginCookie(t *testing.T) {
	isolate(t)
	srv := yeeptest.New()
	defer srv.Close()

	login(t, srv, "--auth-type", "cookie")

	_, ctx := currentContext(t)
	assert.Equal(t, "cookie", ctx.AuthType)
	assert.Empty(t, ctx.Token)
	require.Len(t, ctx.Cookies, 1)
	assert.Equal(t, yeeptest.SessionCookie, ctx.Cookies[0].Name)

	out, err := run(t, "call", "widget.list", "-o", "json")
	require.NoError(t, err, out)
	assert.Contains(t, out, "widget w1")
}

func TestCall(t *testing.T) {
	isolate(t)
	srv := yeeptest.New()
	defer srv.Close()
	login(t, srv)

	out, err := run(t, "call", "widget.info", "id=w1", "-o", "json")
	require.NoError(t, err, out)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "w1", payload["id"])
	assert.Equal(t, "alice", payload["owner"])
}

func TestCallServiceError(t *testing.T) {
	isolate(t)
	srv := yeeptest.New()
	defer srv.Close()
	login(t, srv)

	srv.Fail("widget.info", 404, "no such widget", 1)
	_, err := run(t, "call", "widget.info", "id=w9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service error 404: no such widget")
}

func TestCallUnknownOperation(t *testing.T) {
	isolate(t)
	srv := yeeptest.New()
	defer srv.Close()
	login(t, srv)

	_, err := run(t, "call", "widget.nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "widget.nope")
}

func TestCallNotLoggedIn(t *testing.T) {
	isolate(t)

	_, err := run(t, "call", "widget.list")
	assert.ErrorIs(t, err, credentials.ErrNotLoggedIn)
}

func TestOps(t *testing.T) {
	isolate(t)
	srv := yeeptest.New(yeeptest.WithVersion("2.1.0"))
	defer srv.Close()

	out, err := run(t, "ops", "widget.", "--server", srv.URL, "-o", "json")
	require.NoError(t, err, out)

	var list OperationList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Equal(t, "2.1.0", list.Version)
	require.NotEmpty(t, list.Operations)
	for _, op := range list.Operations {
		assert.True(t, strings.HasPrefix(op.ID, "widget."), op.ID)
	}
}

func TestPing(t *testing.T) {
	isolate(t)
	srv := yeeptest.New()
	defer srv.Close()

	out, err := run(t, "ping", "--server", srv.URL, "-o", "json")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"status": "healthy"`)

	srv.Break(yeeptest.DocsOperation, 500, 1)
	_, err = run(t, "ping", "--server", srv.URL)
	assert.EqualError(t, err, "service is unhealthy")
}

func TestLogout(t *testing.T) {
	isolate(t)
	srv := yeeptest.New()
	defer srv.Close()
	login(t, srv)
	require.Equal(t, 1, srv.ActiveTokens())

	out, err := run(t, "logout")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Logged out from context")
	assert.Equal(t, 1, srv.Hits("session.destroyToken"))
	assert.Zero(t, srv.ActiveTokens())

	_, ctx := currentContext(t)
	assert.False(t, ctx.HasSession())
	assert.Equal(t, srv.URL, ctx.ServerURL)

	out, err = run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Already logged out")
}

func TestLogoutLocal(t *testing.T) {
	isolate(t)
	srv := yeeptest.New()
	defer srv.Close()
	login(t, srv)

	_, err := run(t, "logout", "--local")
	require.NoError(t, err)
	assert.Zero(t, srv.Hits("session.destroyToken"))

	_, ctx := currentContext(t)
	assert.False(t, ctx.HasSession())
}

func TestLogoutServiceDown(t *testing.T) {
	isolate(t)
	srv := yeeptest.New()
	login(t, srv)
	srv.Close()

	out, err := run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Warning:")

	_, ctx := currentContext(t)
	assert.False(t, ctx.HasSession())
}

func TestCompletion(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			out, err := run(t, "completion", shell)
			require.NoError(t, err)
			assert.Contains(t, out, "yeepctl")
		})
	}

	_, err := run(t, "completion", "tcsh")
	assert.Error(t, err)
}

func TestContextDelete(t *testing.T) {
	isolate(t)
	srv := yeeptest.New()
	defer srv.Close()
	login(t, srv)
	name, _ := currentContext(t)

	out, err := run(t, "context", "delete", name, "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "stored session was not ended")
	assert.Contains(t, out, "No current context")

	_, err = run(t, "context", "delete", name, "--force")
	assert.EqualError(t, err, "context '"+name+"' not found")
}
