package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tabremote/relay-server/internal/config"
	apperrors "github.com/tabremote/relay-server/internal/errors"
	"github.com/tabremote/relay-server/internal/events"
	"github.com/tabremote/relay-server/internal/httputil"
)

// EventsHandler streams relay lifecycle events to operators over SSE.
type EventsHandler struct {
	broker *events.Broker
	stats  StatsProvider
}

func NewEventsHandler(broker *events.Broker, stats StatsProvider) *EventsHandler {
	return &EventsHandler{broker: broker, stats: stats}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.broker.Subscribe()
	defer h.broker.Unsubscribe(sub)

	ctx := r.Context()
	log.Info().Str("remoteAddr", r.RemoteAddr).Msg("event stream opened")

	if err := h.sendEvent(w, flusher, "connected", h.stats.Stats()); err != nil {
		return
	}

	heartbeat := time.NewTicker(config.EventStreamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("remoteAddr", r.RemoteAddr).Msg("event stream closed by client")
			return

		case <-sub.Done:
			log.Info().Str("remoteAddr", r.RemoteAddr).Msg("event stream closed by broker")
			return

		case event := <-sub.Events:
			if err := h.sendEvent(w, flusher, string(event.Type), event); err != nil {
				log.Debug().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Msg("heartbeat failed, closing event stream")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return h.sendRawEvent(w, flusher, eventType, jsonData)
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
