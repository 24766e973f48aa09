package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabremote/relay-server/internal/events"
)

func TestRoot(t *testing.T) {
	upgraded := false
	gateway := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgraded = true
		w.WriteHeader(http.StatusSwitchingProtocols)
	})
	h := Root(gateway)

	t.Run("plain GET returns OK", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
		assert.False(t, upgraded)
	})

	t.Run("upgrade request goes to the gateway", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		assert.True(t, upgraded)
	})
}

func TestHealthHandler(t *testing.T) {
	broker := events.NewBroker(nil, "relay:events")
	defer broker.Close()
	broker.Subscribe()
	broker.Subscribe()

	h := NewHealthHandler(staticStats{Connections: 4, Sessions: 1, Remotes: 3}, broker)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Status           string `json:"status"`
		EventSubscribers int    `json:"eventSubscribers"`
		Relay            struct {
			Connections int `json:"connections"`
			Sessions    int `json:"sessions"`
			Remotes     int `json:"remotes"`
		} `json:"relay"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 4, body.Relay.Connections)
	assert.Equal(t, 3, body.Relay.Remotes)
	assert.Equal(t, 2, body.EventSubscribers)
}
