package session

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/yeep/pkg/apiclient"
)

// Bearer keeps a JWT issued by the service and sends it as
// "Authorization: Bearer <token>" on every call.
type Bearer struct {
	caller apiclient.Caller

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewBearer creates an unauthenticated bearer strategy.
func NewBearer(caller apiclient.Caller) *Bearer {
	return &Bearer{caller: caller}
}

// Type implements Strategy.
func (b *Bearer) Type() AuthType { return AuthBearer }

// Login issues a new token. It fails before any network call if the
// credentials are incomplete or a token is already held. Returns the
// token's claims.
func (b *Bearer) Login(ctx context.Context, creds Credentials) (Payload, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if b.hasToken() {
		return nil, &apiclient.StateError{
			Op:     "login",
			Err:    apiclient.ErrAlreadyAuthenticated,
			Reason: "call Logout first",
		}
	}

	resp, err := apiclient.Invoke[tokenResponse](ctx, b.caller, OpIssueToken, creds)
	if err != nil {
		return nil, err
	}
	claims, expiresAt, err := decodeIssued(resp)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token != "" {
		return nil, &apiclient.StateError{Op: "login", Err: apiclient.ErrAlreadyAuthenticated}
	}
	b.token = resp.Token
	b.expiresAt = expiresAt
	return claims, nil
}

// Logout destroys the token remotely. State is cleared only after the
// service confirmed, so a failed logout can be retried. A token that
// replaced the destroyed one while the call was in flight is destroyed
// too.
func (b *Bearer) Logout(ctx context.Context) error {
	b.mu.RLock()
	token := b.token
	b.mu.RUnlock()
	if token == "" {
		return &apiclient.StateError{
			Op:     "logout",
			Err:    apiclient.ErrNotAuthenticated,
			Reason: "nothing to destroy",
		}
	}

	for {
		if err := apiclient.Exec(ctx, b.caller, OpDestroyToken, map[string]string{"token": token}); err != nil {
			return err
		}

		b.mu.Lock()
		if b.token == token || b.token == "" {
			b.token = ""
			b.expiresAt = time.Time{}
			b.mu.Unlock()
			return nil
		}
		token = b.token
		b.mu.Unlock()
	}
}

// Hydrate adopts a persisted token without contacting the service.
func (b *Bearer) Hydrate(req HydrateRequest) error {
	if b.hasToken() {
		return &apiclient.StateError{
			Op:     "hydrate",
			Err:    apiclient.ErrAlreadyAuthenticated,
			Reason: "hydrate only bootstraps an idle client",
		}
	}
	if err := req.Validate(); err != nil {
		return err
	}

	claims, err := parseClaims(req.Token)
	if err != nil {
		return err
	}
	expiresAt, err := claimsExpiry(claims)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token != "" {
		return &apiclient.StateError{Op: "hydrate", Err: apiclient.ErrAlreadyAuthenticated}
	}
	b.token = req.Token
	b.expiresAt = expiresAt
	return nil
}

// Refresh exchanges the current token for a new one. The new token is
// dropped if the session changed while the call was in flight.
func (b *Bearer) Refresh(ctx context.Context) error {
	b.mu.RLock()
	token := b.token
	b.mu.RUnlock()
	if token == "" {
		return notAuthenticated("refresh")
	}

	resp, err := apiclient.Invoke[tokenResponse](ctx, b.caller, OpRefreshToken, map[string]string{"token": token})
	if err != nil {
		return err
	}
	_, expiresAt, err := decodeIssued(resp)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token != token {
		return &apiclient.StateError{
			Op:     "refresh",
			Err:    apiclient.ErrNotAuthenticated,
			Reason: "session changed while refreshing",
		}
	}
	b.token = resp.Token
	b.expiresAt = expiresAt
	return nil
}

// State returns a snapshot of the session.
func (b *Bearer) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.token == "" {
		return State{Kind: StateUnauthenticated}
	}
	return State{Kind: StateBearer, Token: b.token, ExpiresAt: b.expiresAt}
}

// AuthHeader implements apiclient.HeaderProvider.
func (b *Bearer) AuthHeader() (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.token == "" {
		return "", false
	}
	return "Bearer " + b.token, true
}

func (b *Bearer) hasToken() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.token != ""
}
