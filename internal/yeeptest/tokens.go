package yeeptest

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errInvalidToken = errors.New("invalid token")
	errExpiredToken = errors.New("token has expired")
)

// Claims are the claims carried by issued tokens.
type Claims struct {
	jwt.RegisteredClaims
	User string `json:"user"`
}

// tokenService signs and validates HS256 tokens against the server clock.
type tokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	seq    atomic.Uint64
}

func (s *tokenService) issue(user string) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			// Two tokens issued within the same second must still differ.
			ID: strconv.FormatUint(s.seq.Add(1), 10),
		},
		User: user,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

func (s *tokenService) validate(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errExpiredToken
		}
		return nil, errInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}
