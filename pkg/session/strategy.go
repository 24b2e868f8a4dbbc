package session

import (
	"context"
	"fmt"

	"github.com/marmos91/yeep/pkg/apiclient"
)

// Remote operations used by the strategies.
const (
	OpIssueToken    = "session.issueToken"
	OpDestroyToken  = "session.destroyToken"
	OpRefreshToken  = "session.refreshToken"
	OpSetCookie     = "session.setCookie"
	OpDestroyCookie = "session.destroyCookie"
	OpRefreshCookie = "session.refreshCookie"
)

// Strategy is the capability set shared by the bearer and cookie session
// variants. Implementations are safe for concurrent use.
type Strategy interface {
	apiclient.HeaderProvider

	Type() AuthType
	Login(ctx context.Context, creds Credentials) (Payload, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) error
	Hydrate(req HydrateRequest) error
	State() State
}

// NewStrategy returns the strategy for authType calling through caller.
func NewStrategy(authType AuthType, caller apiclient.Caller) (Strategy, error) {
	switch authType {
	case AuthBearer, "":
		return NewBearer(caller), nil
	case AuthCookie:
		return NewCookie(caller), nil
	default:
		return nil, fmt.Errorf("unknown auth type %q", authType)
	}
}

func notAuthenticated(op string) error {
	return &apiclient.StateError{
		Op:     op,
		Err:    apiclient.ErrNotAuthenticated,
		Reason: "login or hydrate first",
	}
}
