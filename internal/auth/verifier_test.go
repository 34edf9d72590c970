package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestVerifyLocalJWT(t *testing.T) {
	v := NewServiceVerifier("", testSecret, zap.NewNop())

	token := signToken(t, jwt.MapClaims{
		"sub":      "u1",
		"username": "ada",
		"avatar":   "a.png",
	})

	principal, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", principal.UserID)
	assert.Equal(t, "ada", principal.Username)
	assert.Equal(t, "a.png", principal.Avatar)
}

func TestVerifyAcceptsAlternateClaimKeys(t *testing.T) {
	v := NewServiceVerifier("", testSecret, zap.NewNop())

	token := signToken(t, jwt.MapClaims{"userId": "u2", "name": "bob"})

	principal, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u2", principal.UserID)
	assert.Equal(t, "bob", principal.Username)
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	v := NewServiceVerifier("", testSecret, zap.NewNop())

	_, err := v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	v := NewServiceVerifier("", "other-secret", zap.NewNop())

	token := signToken(t, jwt.MapClaims{"sub": "u1"})

	_, err := v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyRejectsTokenWithoutSubject(t *testing.T) {
	v := NewServiceVerifier("", testSecret, zap.NewNop())

	token := signToken(t, jwt.MapClaims{"username": "ada"})

	_, err := v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyPrefersAuthService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/validate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"userId":"remote-user","username":"remote-ada"}`))
	}))
	defer srv.Close()

	v := NewServiceVerifier(srv.URL, testSecret, zap.NewNop())

	principal, err := v.Verify(context.Background(), "opaque-session-token")
	require.NoError(t, err)
	assert.Equal(t, "remote-user", principal.UserID)
	assert.Equal(t, "remote-ada", principal.Username)
}

func TestVerifyFallsBackToLocalWhenServiceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	v := NewServiceVerifier(srv.URL, testSecret, zap.NewNop())

	token := signToken(t, jwt.MapClaims{"sub": "u1", "username": "ada"})
	principal, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", principal.UserID)
}

func TestVerifyServiceRejectionIsFinal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	// No secret configured and the service says no. A token signed over
	// the empty key must not sneak past via the local fallback.
	v := NewServiceVerifier(srv.URL, "", zap.NewNop())

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "attacker"})
	signed, err := forged.SignedString([]byte(""))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), signed)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyServiceErrorDoesNotFallBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v := NewServiceVerifier(srv.URL, testSecret, zap.NewNop())

	// The token would pass local verification, but the service answered,
	// so its verdict is final.
	token := signToken(t, jwt.MapClaims{"sub": "u1"})
	_, err := v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyRejectsWithoutConfiguredSecret(t *testing.T) {
	v := NewServiceVerifier("", "", zap.NewNop())

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "attacker"})
	signed, err := forged.SignedString([]byte(""))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), signed)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
