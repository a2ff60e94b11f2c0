package poller

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trymwestin/eightsleep/internal/core/api"
	"github.com/trymwestin/eightsleep/internal/core/auth"
	"github.com/trymwestin/eightsleep/internal/core/eight"
	"github.com/trymwestin/eightsleep/internal/core/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T) *eight.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok", "expires_in": 3600.0, "userId": "acct",
		})
	})
	mux.HandleFunc("GET /users/me", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"user": map[string]any{
			"userId": "acct", "devices": []string{"dev-1"},
		}})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"result": {}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	tokens := auth.NewTokenManager(srv.URL+"/auth", auth.Credentials{
		Email: "u@example.com", Password: "pw",
	}, testLogger())
	gateway := api.NewGateway(tokens, testLogger())
	bus := state.NewEventBus(testLogger())
	client := eight.NewClient(gateway, bus, eight.Options{
		ClientAPIURL: srv.URL, AppAPIURL: srv.URL,
	}, testLogger())
	require.NoError(t, client.Start(context.Background()))
	t.Cleanup(client.Close)
	return client
}

func TestIntervalDefaults(t *testing.T) {
	iv := Intervals{}.withDefaults()
	assert.Equal(t, 60*time.Second, iv.Device)
	assert.Equal(t, 30*time.Second, iv.User)
	assert.Equal(t, 60*time.Second, iv.Base)
	assert.Equal(t, 60*time.Second, iv.Speaker)

	iv = Intervals{Device: 5 * time.Second}.withDefaults()
	assert.Equal(t, 5*time.Second, iv.Device)
	assert.Equal(t, 30*time.Second, iv.User)
}

func TestStartTwiceErrors(t *testing.T) {
	p := New(newTestClient(t), Intervals{Device: time.Hour, User: time.Hour}, testLogger())
	ctx := context.Background()

	require.NoError(t, p.Start(ctx))
	defer p.Stop(ctx)

	assert.Error(t, p.Start(ctx))
}

func TestStopIsIdempotent(t *testing.T) {
	p := New(newTestClient(t), Intervals{Device: time.Hour, User: time.Hour}, testLogger())
	ctx := context.Background()

	require.NoError(t, p.Stop(ctx), "stop before start is a no-op")

	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Stop(ctx))
	require.NoError(t, p.Stop(ctx))

	// Restartable after a clean stop.
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Stop(ctx))
}
