package cmdutil

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/yeep/internal/cli/credentials"
	"github.com/marmos91/yeep/internal/clock"
	"github.com/marmos91/yeep/internal/yeeptest"
	"github.com/marmos91/yeep/pkg/config"
	"github.com/marmos91/yeep/pkg/session"
	"github.com/marmos91/yeep/pkg/yeep"
)

// setupStore points the credential store at a temp dir and resets the
// global flags.
func setupStore(t *testing.T) *credentials.Store {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	saved := *Flags
	t.Cleanup(func() { *Flags = saved })
	*Flags = GlobalFlags{}

	store, err := OpenStore()
	require.NoError(t, err)
	return store
}

// tick advances clk by zero until stop is closed, firing due refreshes.
func tick(clk *clock.Fake, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		clk.Advance(0)
		time.Sleep(time.Millisecond)
	}
}

func TestResolveContext(t *testing.T) {
	store := setupStore(t)

	_, _, err := ResolveContext(store)
	assert.ErrorIs(t, err, credentials.ErrNotLoggedIn)

	require.NoError(t, store.SetContext("a", &credentials.Context{ServerURL: "http://a"}))
	require.NoError(t, store.SetContext("b", &credentials.Context{ServerURL: "http://b"}))
	require.NoError(t, store.UseContext("a"))

	name, ctx, err := ResolveContext(store)
	require.NoError(t, err)
	assert.Equal(t, "a", name)
	assert.Equal(t, "http://a", ctx.ServerURL)

	Flags.Context = "b"
	name, ctx, err = ResolveContext(store)
	require.NoError(t, err)
	assert.Equal(t, "b", name)
	assert.Equal(t, "http://b", ctx.ServerURL)

	Flags.Context = "missing"
	_, _, err = ResolveContext(store)
	assert.ErrorIs(t, err, credentials.ErrContextNotFound)
}

func TestOpenSessionRequiresCredentials(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, store.SetContext("a", &credentials.Context{ServerURL: "http://a"}))
	require.NoError(t, store.UseContext("a"))

	_, err := OpenSession(context.Background(), config.GetDefaultConfig())
	assert.ErrorIs(t, err, credentials.ErrNotLoggedIn)
}

func TestOpenSessionBearer(t *testing.T) {
	srv := yeeptest.New()
	defer srv.Close()
	store := setupStore(t)

	token, exp, err := srv.IssueToken(yeeptest.DefaultUser)
	require.NoError(t, err)
	require.NoError(t, store.SetContext("test", &credentials.Context{
		ServerURL: srv.URL,
		AuthType:  "bearer",
		Token:     token,
		ExpiresAt: exp,
	}))
	require.NoError(t, store.UseContext("test"))

	s, err := OpenSession(context.Background(), config.GetDefaultConfig())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "test", s.ContextName)
	assert.Equal(t, token, s.Client.Session().State().Token)
	_, pending := s.Client.Session().NextRefresh()
	assert.True(t, pending)

	payload, err := s.Client.Call(context.Background(), "widget.info", map[string]string{"id": "w1"})
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"owner":"alice"`)
	assert.Equal(t, "Bearer "+token, srv.LastHeader("widget.info").Get("Authorization"))
	assert.Equal(t, "yeepctl/"+Version, srv.LastHeader("widget.info").Get("User-Agent"))
}

func TestOpenSessionServerOverride(t *testing.T) {
	srv := yeeptest.New()
	defer srv.Close()
	store := setupStore(t)

	token, exp, err := srv.IssueToken(yeeptest.DefaultUser)
	require.NoError(t, err)
	require.NoError(t, store.SetContext("test", &credentials.Context{
		ServerURL: "http://127.0.0.1:1",
		Token:     token,
		ExpiresAt: exp,
	}))
	require.NoError(t, store.UseContext("test"))
	Flags.ServerURL = srv.URL + "/"

	s, err := OpenSession(context.Background(), config.GetDefaultConfig())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, srv.URL, s.Client.Config().BaseURL)
	_, err = s.Client.Call(context.Background(), "widget.list", nil)
	assert.NoError(t, err)
}

// expiredSession stores a token the client clock sees as expired while
// the server still accepts it for refresh.
func expiredSession(t *testing.T, opts ...yeeptest.Option) (*yeeptest.Server, *clock.Fake) {
	t.Helper()
	t0 := time.Now()
	srvClock := clock.NewFake(t0)
	srv := yeeptest.New(append([]yeeptest.Option{
		yeeptest.WithNow(srvClock.Now),
		yeeptest.WithTokenTTL(15 * time.Minute),
	}, opts...)...)
	t.Cleanup(srv.Close)

	store := setupStore(t)
	token, exp, err := srv.IssueToken(yeeptest.DefaultUser)
	require.NoError(t, err)
	require.NoError(t, store.SetContext("test", &credentials.Context{
		ServerURL: srv.URL,
		AuthType:  "bearer",
		Token:     token,
		ExpiresAt: exp,
	}))
	require.NoError(t, store.UseContext("test"))

	// Refreshed tokens expire at t0+29m, well after the client's now.
	srvClock.Advance(14 * time.Minute)
	return srv, clock.NewFake(t0.Add(16 * time.Minute))
}

func TestOpenSessionRenewsExpiredToken(t *testing.T) {
	srv, clientClock := expiredSession(t)
	stale, err := credentials.NewStore()
	require.NoError(t, err)
	staleCtx, err := stale.GetContext("test")
	require.NoError(t, err)

	stop := make(chan struct{})
	go tick(clientClock, stop)
	s, err := OpenSession(context.Background(), config.GetDefaultConfig(), yeep.WithClock(clientClock))
	close(stop)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 1, srv.Hits("session.refreshToken"))
	renewed := s.Client.Session().State().Token
	assert.NotEqual(t, staleCtx.Token, renewed)

	// The renewed token was written back.
	store, err := credentials.NewStore()
	require.NoError(t, err)
	saved, err := store.GetContext("test")
	require.NoError(t, err)
	assert.Equal(t, renewed, saved.Token)
	assert.True(t, saved.ExpiresAt.After(staleCtx.ExpiresAt))
}

func TestOpenSessionExpiredTokenRejected(t *testing.T) {
	srv, clientClock := expiredSession(t)
	srv.Fail("session.refreshToken", http.StatusUnauthorized, "token revoked", 1)

	stop := make(chan struct{})
	go tick(clientClock, stop)
	_, err := OpenSession(context.Background(), config.GetDefaultConfig(), yeep.WithClock(clientClock))
	close(stop)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Contains(t, err.Error(), "token revoked")
}

func TestNewTransportKeepsConnectionPool(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	cfg := yeep.DefaultConfig("http://127.0.0.1:1")
	tr := newTransport(cfg, jar)
	hc := tr.HTTPClient()
	assert.Same(t, jar, hc.Jar)
	assert.Equal(t, cfg.Timeout, hc.Timeout)
	_, ok := hc.Transport.(*http.Transport)
	assert.True(t, ok)
}

func TestSessionSaveCookies(t *testing.T) {
	srv := yeeptest.New()
	defer srv.Close()
	store := setupStore(t)

	cfg := config.GetDefaultConfig()
	client, jar, err := NewClient(cfg, srv.URL, "cookie", nil)
	require.NoError(t, err)
	_, err = client.Session().Login(context.Background(), session.Credentials{
		User:     yeeptest.DefaultUser,
		Password: yeeptest.DefaultPassword,
	})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	s := NewSession(client, jar, store, "test")
	require.NoError(t, store.SetContext("test", &credentials.Context{ServerURL: srv.URL, AuthType: "cookie"}))
	require.NoError(t, s.Save())

	saved, err := store.GetContext("test")
	require.NoError(t, err)
	require.Len(t, saved.Cookies, 1)
	assert.Equal(t, yeeptest.SessionCookie, saved.Cookies[0].Name)
	require.NoError(t, store.UseContext("test"))

	// A new process restores the cookie session from the store.
	restored, err := OpenSession(context.Background(), cfg)
	require.NoError(t, err)
	defer restored.Close()
	payload, err := restored.Client.Call(context.Background(), "widget.list", nil)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "widget w1")
}

func TestSessionSaveRenewedAfterLogout(t *testing.T) {
	srv := yeeptest.New()
	defer srv.Close()
	store := setupStore(t)

	token, exp, err := srv.IssueToken(yeeptest.DefaultUser)
	require.NoError(t, err)
	require.NoError(t, store.SetContext("test", &credentials.Context{ServerURL: srv.URL, Token: token, ExpiresAt: exp}))
	require.NoError(t, store.UseContext("test"))

	s, err := OpenSession(context.Background(), config.GetDefaultConfig())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.SaveRenewed())

	// Another process logs out.
	other, err := credentials.NewStore()
	require.NoError(t, err)
	require.NoError(t, other.ClearContext("test"))

	assert.ErrorIs(t, s.SaveRenewed(), ErrLoggedOut)
	require.NoError(t, store.Reload())
	saved, err := store.GetContext("test")
	require.NoError(t, err)
	assert.False(t, saved.HasSession())
}
