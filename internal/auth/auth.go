// Package auth verifies the bearer token presented at the WebSocket
// handshake. Account management lives in an external service; this package
// only maps tokens to user ids.
package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized reports a missing, invalid, or expired token.
var ErrUnauthorized = errors.New("unauthorized")

// Verifier maps a bearer token to a user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// JWT verifies HS256 tokens signed with a shared secret and takes the user
// id from the subject claim.
type JWT struct {
	secret []byte
}

// NewJWT returns a Verifier for tokens signed with secret.
func NewJWT(secret []byte) *JWT {
	return &JWT{secret: secret}
}

func (j *JWT) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return j.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return "", ErrUnauthorized
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrUnauthorized
	}
	return sub, nil
}

// Static maps fixed tokens to user ids. Development and tests only.
type Static map[string]string

func (s Static) Verify(ctx context.Context, token string) (string, error) {
	userID, ok := s[token]
	if !ok {
		return "", ErrUnauthorized
	}
	return userID, nil
}

// Insecure accepts any non-empty token as the user id itself. It exists so
// a dev server can run without an auth deployment; never enable it in
// production.
type Insecure struct{}

func (Insecure) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	return token, nil
}
