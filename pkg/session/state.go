// Package session manages an authenticated yeep session: acquiring a
// token or cookie, hydrating from a persisted token, refreshing it before
// it expires and retrying failed refreshes with exponential backoff.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/yeep/pkg/apiclient"
)

// AuthType selects the session strategy.
type AuthType string

const (
	AuthBearer AuthType = "bearer"
	AuthCookie AuthType = "cookie"
)

// ParseAuthType parses a strategy name; empty selects bearer.
func ParseAuthType(s string) (AuthType, error) {
	switch AuthType(strings.ToLower(strings.TrimSpace(s))) {
	case "", AuthBearer:
		return AuthBearer, nil
	case AuthCookie:
		return AuthCookie, nil
	default:
		return "", fmt.Errorf("unknown auth type %q (valid: bearer, cookie)", s)
	}
}

// Kind tags the live session state.
type Kind int

const (
	StateUnauthenticated Kind = iota
	StateBearer
	StateCookie
)

func (k Kind) String() string {
	switch k {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateBearer:
		return "bearer"
	case StateCookie:
		return "cookie"
	default:
		return "unknown"
	}
}

// State is a snapshot of the session. Token and ExpiresAt are only set
// for StateBearer.
type State struct {
	Kind      Kind
	Token     string
	ExpiresAt time.Time
}

// Authenticated reports whether a session is established.
func (s State) Authenticated() bool {
	return s.Kind != StateUnauthenticated
}

// Credentials identify the user logging in.
type Credentials struct {
	User     string `json:"user" validate:"required"`
	Password string `json:"password" validate:"required"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks user, then password, and reports the first failure as
// *apiclient.ValidationError.
func (c Credentials) Validate() error {
	return validateStruct(c)
}

// HydrateRequest carries an externally persisted bearer token.
type HydrateRequest struct {
	Token string `json:"token" validate:"required"`
}

// Validate checks that a token is present.
func (r HydrateRequest) Validate() error {
	return validateStruct(r)
}

func validateStruct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := "is " + fe.Tag()
		if fe.Tag() == "required" {
			reason = "expected non-empty string"
		}
		return &apiclient.ValidationError{Field: fe.Field(), Reason: reason}
	}
	return err
}

// Payload is the decoded body returned by a login: the token claims for
// bearer sessions, the service's user record for cookie sessions.
type Payload map[string]any

// Timestamp decodes an expiry sent either as an RFC 3339 string or as
// milliseconds since the Unix epoch.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}
	var ms json.Number
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	n, err := ms.Float64()
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	t.Time = time.UnixMilli(int64(n))
	return nil
}

// MarshalJSON implements json.Marshaler using RFC 3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}
