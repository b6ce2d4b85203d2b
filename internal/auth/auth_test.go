package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret []byte, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestJWTVerify(t *testing.T) {
	ctx := context.Background()
	secret := []byte("test-secret")
	v := NewJWT(secret)

	token := signToken(t, secret, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	userID, err := v.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestJWTVerifyRejections(t *testing.T) {
	ctx := context.Background()
	secret := []byte("test-secret")
	v := NewJWT(secret)

	expired := signToken(t, secret, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	wrongSecret := signToken(t, []byte("other-secret"), jwt.RegisteredClaims{Subject: "alice"})
	noSubject := signToken(t, secret, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"expired":      expired,
		"wrong secret": wrongSecret,
		"no subject":   noSubject,
		"alg none":     unsigned,
	} {
		_, err := v.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrUnauthorized, name)
	}
}

func TestStaticVerify(t *testing.T) {
	ctx := context.Background()
	v := Static{"tok-alice": "alice"}

	userID, err := v.Verify(ctx, "tok-alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)

	_, err = v.Verify(ctx, "unknown")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestInsecureVerify(t *testing.T) {
	ctx := context.Background()
	v := Insecure{}

	userID, err := v.Verify(ctx, "whoever")
	require.NoError(t, err)
	assert.Equal(t, "whoever", userID)

	_, err = v.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
