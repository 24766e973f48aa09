package handler

import (
	"net/http"
	"time"

	"github.com/tabremote/relay-server/internal/middleware"
	"github.com/tabremote/relay-server/internal/relay"
)

type StatsProvider interface {
	Stats() relay.Stats
}

type SubscriberCounter interface {
	SubscriberCount() int
}

type HealthHandler struct {
	stats       StatsProvider
	subscribers SubscriberCounter
	startedAt   time.Time
}

func NewHealthHandler(stats StatsProvider, subscribers SubscriberCounter) *HealthHandler {
	return &HealthHandler{stats: stats, subscribers: subscribers, startedAt: time.Now()}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"timestamp":        time.Now().UnixMilli(),
		"uptimeSeconds":    int64(time.Since(h.startedAt).Seconds()),
		"relay":            h.stats.Stats(),
		"eventSubscribers": h.subscribers.SubscriberCount(),
	})
}

// Root serves the liveness probe body "OK" and hands websocket upgrades on
// the same path to the gateway.
func Root(gateway http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if middleware.IsWebSocketUpgrade(r) {
			gateway.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}
