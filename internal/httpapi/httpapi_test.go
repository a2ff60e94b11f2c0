package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
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

// newTestServer wires a full client against a minimal fake vendor and
// returns the API server plus its bus.
func newTestServer(t *testing.T) (*httptest.Server, *eight.Client, *state.EventBus) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok", "expires_in": 3600.0, "userId": "acct",
		})
	})
	mux.HandleFunc("GET /users/me", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"user": map[string]any{
			"userId": "acct", "devices": []string{"dev-1"}, "features": []string{"cooling"},
		}})
	})
	mux.HandleFunc("GET /devices/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("filter") != "" {
			json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{
				"leftUserId": "user-l",
			}})
			return
		}
		io.WriteString(w, `{"result": {"leftHeatingLevel": 20, "hasWater": true}}`)
	})
	mux.HandleFunc("GET /users/{uid}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"user": map[string]any{
			"userId": r.PathValue("uid"), "firstName": "Lena",
			"currentDevice": map[string]any{"id": "dev-1", "side": "left"},
		}})
	})
	mux.HandleFunc("PUT /v1/users/{uid}/temperature", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	vendor := httptest.NewServer(mux)
	t.Cleanup(vendor.Close)

	tokens := auth.NewTokenManager(vendor.URL+"/auth", auth.Credentials{
		Email: "u@example.com", Password: "pw",
	}, testLogger())
	gateway := api.NewGateway(tokens, testLogger())
	bus := state.NewEventBus(testLogger())
	client := eight.NewClient(gateway, bus, eight.Options{
		ClientAPIURL: vendor.URL, AppAPIURL: vendor.URL,
	}, testLogger())
	require.NoError(t, client.Start(context.Background()))
	t.Cleanup(client.Close)

	srv := httptest.NewServer(NewServer(client, bus, testLogger()).Handler())
	t.Cleanup(srv.Close)
	return srv, client, bus
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var got struct {
		DeviceID       string   `json:"device_id"`
		CoolingCapable bool     `json:"cooling_capable"`
		Occupants      []string `json:"occupants"`
	}
	resp := getJSON(t, srv.URL+"/api/status", &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "dev-1", got.DeviceID)
	assert.True(t, got.CoolingCapable)
	assert.Equal(t, []string{"user-l"}, got.Occupants)
}

func TestDeviceEndpointIncludesTelemetry(t *testing.T) {
	srv, client, _ := newTestServer(t)
	require.NoError(t, client.RefreshTelemetry(context.Background()))

	var got map[string]any
	getJSON(t, srv.URL+"/api/device", &got)
	assert.Equal(t, true, got["has_water"])
	assert.NotNil(t, got["telemetry"])
}

func TestOccupantLookupBySideAndID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var byID map[string]any
	resp := getJSON(t, srv.URL+"/api/occupants/user-l", &byID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "user-l", byID["user_id"])

	var bySide map[string]any
	getJSON(t, srv.URL+"/api/occupants/left", &bySide)
	assert.Equal(t, "user-l", bySide["user_id"])

	resp = getJSON(t, srv.URL+"/api/occupants/nobody", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetLevelEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/occupants/user-l/level", "application/json",
		strings.NewReader(`{"level": 30}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAwayEndpointRejectsBadAction(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/occupants/user-l/away", "application/json",
		strings.NewReader(`{"action": "pause"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "away-mode action")
}

func TestEventsWebsocketStreamsBusEvents(t *testing.T) {
	srv, _, bus := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	bus.Publish(state.Event{Type: state.EventPresenceUpdate, UserID: "user-l", Data: true})

	var evt state.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, state.EventPresenceUpdate, evt.Type)
	assert.Equal(t, "user-l", evt.UserID)
	assert.Equal(t, true, evt.Data)
}
