package session

import (
	"context"
	"sync"

	"github.com/marmos91/yeep/pkg/apiclient"
)

// Cookie relies on a session cookie set by the service. The transport's
// cookie jar carries it; nothing is injected into requests and expiry is
// owned by the service.
type Cookie struct {
	caller apiclient.Caller

	mu     sync.RWMutex
	active bool
}

// NewCookie creates a cookie strategy.
func NewCookie(caller apiclient.Caller) *Cookie {
	return &Cookie{caller: caller}
}

// Type implements Strategy.
func (c *Cookie) Type() AuthType { return AuthCookie }

// Login asks the service to set a session cookie and returns the user
// record it replies with.
func (c *Cookie) Login(ctx context.Context, creds Credentials) (Payload, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	payload, err := apiclient.Invoke[Payload](ctx, c.caller, OpSetCookie, creds)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.active = true
	c.mu.Unlock()
	return *payload, nil
}

// Logout asks the service to destroy the session cookie.
func (c *Cookie) Logout(ctx context.Context) error {
	if err := apiclient.Exec(ctx, c.caller, OpDestroyCookie, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
	return nil
}

// Refresh extends the cookie session.
func (c *Cookie) Refresh(ctx context.Context) error {
	if err := apiclient.Exec(ctx, c.caller, OpRefreshCookie, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.active = true
	c.mu.Unlock()
	return nil
}

// Hydrate is not available: there is no client-side token to restore.
func (c *Cookie) Hydrate(HydrateRequest) error {
	return &apiclient.StateError{
		Op:     "hydrate",
		Err:    apiclient.ErrUnsupported,
		Reason: "cookie sessions live server-side",
	}
}

// State returns StateCookie after a successful login or refresh.
func (c *Cookie) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active {
		return State{Kind: StateCookie}
	}
	return State{Kind: StateUnauthenticated}
}

// AuthHeader implements apiclient.HeaderProvider; cookies need no header.
func (c *Cookie) AuthHeader() (string, bool) {
	return "", false
}
