package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marmos91/yeep/pkg/apiclient"
)

var errNoExpiry = errors.New("token has no exp claim")

// tokenResponse is the payload of issueToken and refreshToken.
type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt Timestamp `json:"expiresAt"`
}

// parseClaims decodes the claims of a JWT without verifying its signature.
// The service signs tokens; the client only needs to read their expiry.
func parseClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, &apiclient.DecodeError{Err: err}
	}
	return claims, nil
}

// claimsExpiry returns the exp claim.
func claimsExpiry(claims jwt.MapClaims) (time.Time, error) {
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, &apiclient.DecodeError{Err: err}
	}
	if exp == nil {
		return time.Time{}, &apiclient.DecodeError{Err: errNoExpiry}
	}
	return exp.Time, nil
}

// decodeIssued reads the claims of a freshly issued token. The expiry sent
// alongside the token wins over the exp claim.
func decodeIssued(resp *tokenResponse) (Payload, time.Time, error) {
	if resp.Token == "" {
		return nil, time.Time{}, &apiclient.DecodeError{Err: errors.New("response carries no token")}
	}
	claims, err := parseClaims(resp.Token)
	if err != nil {
		return nil, time.Time{}, err
	}
	if !resp.ExpiresAt.IsZero() {
		return Payload(claims), resp.ExpiresAt.Time, nil
	}
	exp, err := claimsExpiry(claims)
	if err != nil {
		return nil, time.Time{}, err
	}
	return Payload(claims), exp, nil
}
