package audit

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tabremote/relay-server/internal/events"
)

// Log writes a pairing lifecycle event as a structured audit record.
// Details must already be masked; pair codes and tokens are never logged raw.
func Log(event events.Event, details map[string]any) {
	logger := log.With().
		Str("audit", "pairing").
		Str("event_type", string(event.Type)).
		Time("timestamp", event.At).
		Logger()

	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.RemoteID != "" {
		logger = logger.With().Str("remote_id", event.RemoteID).Logger()
	}
	if event.DeviceID != "" {
		logger = logger.With().Str("device_id", event.DeviceID).Logger()
	}
	if event.ConnID != "" {
		logger = logger.With().Str("conn_id", event.ConnID).Logger()
	}
	if event.Reason != "" {
		logger = logger.With().Str("reason", event.Reason).Logger()
	}

	logEvent := logger.Info()
	switch event.Type {
	case events.EventPairFailed, events.EventSessionInvalid:
		logEvent = logger.Warn()
	}
	for k, v := range details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("pairing audit event")
}

func addField(e *zerolog.Event, key string, value any) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
