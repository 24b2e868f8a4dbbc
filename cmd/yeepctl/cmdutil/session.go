package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/marmos91/yeep/internal/cli/credentials"
	"github.com/marmos91/yeep/pkg/apiclient"
	"github.com/marmos91/yeep/pkg/config"
	"github.com/marmos91/yeep/pkg/session"
	"github.com/marmos91/yeep/pkg/yeep"
)

// ErrSessionExpired is returned when a stored session can no longer be
// renewed.
var ErrSessionExpired = errors.New("session expired - run 'yeepctl login' to re-authenticate")

// ErrLoggedOut is returned by SaveRenewed when the stored context was
// logged out while the session was open.
var ErrLoggedOut = errors.New("session was logged out")

// Session is a client bound to a stored context. Tokens and cookies issued
// while it is open are written back by Save.
type Session struct {
	Client      *yeep.Client
	Store       *credentials.Store
	Context     *credentials.Context
	ContextName string

	jar     http.CookieJar
	baseURL *url.URL
}

// OpenStore opens the credential store.
func OpenStore() (*credentials.Store, error) {
	store, err := credentials.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}
	return store, nil
}

// NormalizeServerURL defaults the scheme to http and drops trailing slashes.
func NormalizeServerURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("server URL is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// ResolveContext returns the context selected by --context, or the
// current one.
func ResolveContext(store *credentials.Store) (string, *credentials.Context, error) {
	name := Flags.Context
	if name == "" {
		name = store.GetCurrentContextName()
	}
	if name == "" {
		return "", nil, credentials.ErrNotLoggedIn
	}
	ctx, err := store.GetContext(name)
	if err != nil {
		return "", nil, fmt.Errorf("context %q: %w", name, err)
	}
	return name, ctx, nil
}

// NewClient builds a client for serverURL with a cookie jar seeded from
// cookies. authType may be empty to use the configured default.
func NewClient(cfg *config.Config, serverURL, authType string, cookies []*http.Cookie, opts ...yeep.Option) (*yeep.Client, http.CookieJar, error) {
	clientCfg, err := cfg.ClientConfigFor(serverURL, authType)
	if err != nil {
		return nil, nil, err
	}
	if clientCfg.UserAgent == "" {
		clientCfg.UserAgent = UserAgent()
	}

	base, err := url.Parse(clientCfg.BaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid server URL: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, nil, err
	}
	if len(cookies) > 0 {
		jar.SetCookies(base, cookies)
	}

	client, err := yeep.New(clientCfg, append([]yeep.Option{yeep.WithTransport(newTransport(clientCfg, jar))}, opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return client, jar, nil
}

func newTransport(cfg yeep.Config, jar http.CookieJar) *apiclient.HTTPTransport {
	return apiclient.NewHTTPTransport(cfg.BaseURL,
		apiclient.WithCookieJar(jar),
		apiclient.WithTimeout(cfg.Timeout),
		apiclient.WithUserAgent(cfg.UserAgent),
	)
}

// OpenClient builds a client for --server, or for the server of the
// selected context. No stored session is restored.
func OpenClient(cfg *config.Config, opts ...yeep.Option) (*yeep.Client, error) {
	serverURL, authType := Flags.ServerURL, ""
	if serverURL == "" {
		store, err := OpenStore()
		if err != nil {
			return nil, err
		}
		_, stored, err := ResolveContext(store)
		if err != nil {
			return nil, fmt.Errorf("no server specified: use --server or 'yeepctl login': %w", err)
		}
		serverURL, authType = stored.ServerURL, stored.AuthType
	}

	serverURL, err := NormalizeServerURL(serverURL)
	if err != nil {
		return nil, err
	}
	client, _, err := NewClient(cfg, serverURL, authType, nil, opts...)
	return client, err
}

// NewSession binds client to the named context. Nothing is restored;
// Save records whatever session the client later establishes.
func NewSession(client *yeep.Client, jar http.CookieJar, store *credentials.Store, name string) *Session {
	base, _ := url.Parse(client.Config().BaseURL)
	return &Session{
		Client:      client,
		Store:       store,
		ContextName: name,
		jar:         jar,
		baseURL:     base,
	}
}

// OpenSession builds a client for the selected context and restores its
// stored session. --server overrides the stored server URL.
//
// A bearer token that has already expired is renewed before returning;
// ErrSessionExpired is returned if the service refuses.
func OpenSession(ctx context.Context, cfg *config.Config, opts ...yeep.Option) (*Session, error) {
	store, err := OpenStore()
	if err != nil {
		return nil, err
	}
	name, stored, err := ResolveContext(store)
	if err != nil {
		return nil, err
	}
	if !stored.HasSession() {
		return nil, credentials.ErrNotLoggedIn
	}

	serverURL := stored.ServerURL
	if Flags.ServerURL != "" {
		if serverURL, err = NormalizeServerURL(Flags.ServerURL); err != nil {
			return nil, err
		}
	}

	client, jar, err := NewClient(cfg, serverURL, stored.AuthType, stored.HTTPCookies(), opts...)
	if err != nil {
		return nil, err
	}
	s := NewSession(client, jar, store, name)
	s.Context = stored

	if stored.HasToken() && client.Config().AuthType == session.AuthBearer {
		if err := s.restoreBearer(ctx, stored.Token); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return s, nil
}

// restoreBearer hydrates the manager with token. An expired token makes
// the manager refresh at once; the outcome of that refresh is awaited.
func (s *Session) restoreBearer(ctx context.Context, token string) error {
	manager := s.Client.Session()
	outcome := make(chan session.Event, 1)
	unsubscribe := manager.Subscribe(func(e session.Event) {
		if e.Type != session.EventRefresh && e.Type != session.EventError {
			return
		}
		select {
		case outcome <- e:
		default:
		}
	})
	defer unsubscribe()

	if err := manager.Hydrate(session.HydrateRequest{Token: token}); err != nil {
		return fmt.Errorf("stored token is unusable: %w", err)
	}

	if d, pending := manager.NextRefresh(); pending && d > 0 {
		select {
		case e := <-outcome:
			return s.settle(e)
		default:
			return nil
		}
	}

	select {
	case e := <-outcome:
		return s.settle(e)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) settle(e session.Event) error {
	if e.Type == session.EventError {
		return fmt.Errorf("%w: %v", ErrSessionExpired, e.Err)
	}
	return s.Save()
}

// Save writes the current token or cookies back to the context. Changes
// made to other contexts since the store was opened are preserved.
func (s *Session) Save() error {
	return s.save(false)
}

// SaveRenewed is Save for a session renewed in the background. It does
// not bring back credentials cleared by a logout elsewhere.
func (s *Session) SaveRenewed() error {
	return s.save(true)
}

func (s *Session) save(renewal bool) error {
	if err := s.Store.Reload(); err != nil {
		return err
	}
	stored, err := s.Store.GetContext(s.ContextName)
	if err != nil {
		return err
	}
	if renewal && !stored.HasSession() {
		return ErrLoggedOut
	}

	if s.Client.Config().AuthType == session.AuthCookie {
		stored.Cookies = nil
		for _, c := range s.Cookies() {
			stored.Cookies = append(stored.Cookies, credentials.Cookie{Name: c.Name, Value: c.Value})
		}
	} else {
		state := s.Client.Session().State()
		stored.Token = state.Token
		stored.ExpiresAt = state.ExpiresAt
	}

	s.Context = stored
	return s.Store.SetContext(s.ContextName, stored)
}

// Cookies returns the cookies the jar holds for the server.
func (s *Session) Cookies() []*http.Cookie {
	return s.jar.Cookies(s.baseURL)
}

// Close stops the session's refresh timer.
func (s *Session) Close() error {
	return s.Client.Close()
}
