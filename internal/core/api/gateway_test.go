package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trymwestin/eightsleep/internal/core/auth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newAuthServer serves tokens "tok-1", "tok-2", ... on successive calls.
func newAuthServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-" + string(rune('0'+n)),
			"expires_in":   3600.0,
			"userId":       "acct-1",
		})
	}))
}

func newGateway(t *testing.T, authURL string) *Gateway {
	t.Helper()
	tokens := auth.NewTokenManager(authURL, auth.Credentials{
		Email:    "user@example.com",
		Password: "pw",
	}, testLogger())
	return NewGateway(tokens, testLogger())
}

func TestGetDecodesPayload(t *testing.T) {
	var authCalls atomic.Int32
	authSrv := newAuthServer(t, &authCalls)
	defer authSrv.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "okhttp/4.9.3", r.Header.Get("User-Agent"))
		assert.Equal(t, "42", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(map[string]string{"hello": "world"})
	}))
	defer srv.Close()

	g := newGateway(t, authSrv.URL)

	var out map[string]string
	err := g.Get(context.Background(), srv.URL, map[string]string{"limit": "42"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "world", out["hello"])
}

func TestGetDecodesMislabeledContentType(t *testing.T) {
	var authCalls atomic.Int32
	authSrv := newAuthServer(t, &authCalls)
	defer authSrv.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Valid JSON served without a JSON content type, as several vendor
		// endpoints do.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, `{"result": "ok"}`)
	}))
	defer srv.Close()

	g := newGateway(t, authSrv.URL)

	var out map[string]string
	require.NoError(t, g.Get(context.Background(), srv.URL, nil, &out))
	assert.Equal(t, "ok", out["result"])
}

func TestUnauthorizedTriggersSingleRefreshAndRetry(t *testing.T) {
	var authCalls, apiCalls atomic.Int32
	authSrv := newAuthServer(t, &authCalls)
	defer authSrv.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch apiCalls.Add(1) {
		case 1:
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
		default:
			assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
		}
	}))
	defer srv.Close()

	g := newGateway(t, authSrv.URL)

	var out map[string]string
	err := g.Get(context.Background(), srv.URL, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "yes", out["ok"])
	assert.Equal(t, int32(2), apiCalls.Load())
	assert.Equal(t, int32(2), authCalls.Load(), "initial auth plus one refresh")
}

func TestUnauthorizedRetriedOnlyOnce(t *testing.T) {
	var authCalls, apiCalls atomic.Int32
	authSrv := newAuthServer(t, &authCalls)
	defer authSrv.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apiCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := newGateway(t, authSrv.URL)

	err := g.Get(context.Background(), srv.URL, nil, nil)
	require.Error(t, err)

	var rerr *RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusUnauthorized, rerr.StatusCode)
	assert.Equal(t, int32(2), apiCalls.Load(), "no third attempt after the retry fails")
}

func TestServerErrorWrappedAsRequestError(t *testing.T) {
	var authCalls atomic.Int32
	authSrv := newAuthServer(t, &authCalls)
	defer authSrv.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := newGateway(t, authSrv.URL)

	err := g.Put(context.Background(), srv.URL, map[string]int{"v": 1}, nil)
	var rerr *RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusInternalServerError, rerr.StatusCode)
	assert.Equal(t, http.MethodPut, rerr.Method)
	assert.Contains(t, rerr.Body, "boom")
}

func TestPostSendsJSONBody(t *testing.T) {
	var authCalls atomic.Int32
	authSrv := newAuthServer(t, &authCalls)
	defer authSrv.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rePriming", body["task"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newGateway(t, authSrv.URL)
	err := g.Post(context.Background(), srv.URL, map[string]string{"task": "rePriming"}, nil)
	require.NoError(t, err)
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "side", Value: "middle"}
	assert.Equal(t, `api: invalid side: "middle"`, err.Error())
}
