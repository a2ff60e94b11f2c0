package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTokenReusedWhileValid(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "password", body["grant_type"])
		assert.Equal(t, "user@example.com", body["username"])

		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_in":   3600.0,
			"userId":       "acct-1",
		})
	}))
	defer srv.Close()

	m := NewTokenManager(srv.URL, Credentials{
		Email:    "user@example.com",
		Password: "hunter2",
	}, testLogger())

	ctx := context.Background()
	first, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", first.BearerToken)
	assert.Equal(t, "acct-1", first.AccountID)

	second, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.BearerToken, second.BearerToken)
	assert.Equal(t, int32(1), calls.Load(), "second Token call must not re-authenticate")
}

func TestTokenRefreshedInsideExpiryBuffer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			// 60s is inside the refresh buffer, so the first token is
			// already stale when handed back.
			"access_token": map[int32]string{1: "tok-1", 2: "tok-2"}[n],
			"expires_in":   60.0,
			"userId":       "acct-1",
		})
	}))
	defer srv.Close()

	m := NewTokenManager(srv.URL, Credentials{Email: "a", Password: "b"}, testLogger())

	ctx := context.Background()
	_, err := m.Token(ctx)
	require.NoError(t, err)

	tok, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok.BearerToken)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAuthenticateDecodesMislabeledContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// The auth service labels its JSON responses inconsistently.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, `{"access_token": "tok-1", "expires_in": 3600, "userId": "acct-1"}`)
	}))
	defer srv.Close()

	m := NewTokenManager(srv.URL, Credentials{Email: "a", Password: "b"}, testLogger())

	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.BearerToken)
}

func TestAuthErrorOnRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewTokenManager(srv.URL, Credentials{Email: "a", Password: "wrong"}, testLogger())

	_, err := m.Token(context.Background())
	require.Error(t, err)

	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, http.StatusUnauthorized, aerr.StatusCode)
}

func TestAuthErrorOnMissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"expires_in": 3600.0})
	}))
	defer srv.Close()

	m := NewTokenManager(srv.URL, Credentials{Email: "a", Password: "b"}, testLogger())

	_, err := m.Token(context.Background())
	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
}

func TestTokenValid(t *testing.T) {
	now := time.Now()
	assert.False(t, Token{}.Valid(now))
	assert.False(t, Token{BearerToken: "t", ExpiresAt: now.Add(tokenBuffer / 2)}.Valid(now))
	assert.True(t, Token{BearerToken: "t", ExpiresAt: now.Add(tokenBuffer * 2)}.Valid(now))
}
