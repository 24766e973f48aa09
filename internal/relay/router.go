package relay

import (
	"encoding/json"

	apperrors "github.com/tabremote/relay-server/internal/errors"
	"github.com/tabremote/relay-server/internal/metrics"
	"github.com/tabremote/relay-server/internal/model"
)

func (r *Relay) handleRelayed(c *Conn, raw []byte) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		r.dropped(c, apperrors.Protocol("relayed message is not an object").WithCause(err))
		return
	}

	out := &outbox{}

	r.mu.Lock()
	err := r.route(c, raw, fields, out)
	r.mu.Unlock()

	if err != nil {
		r.dropped(c, err)
	} else {
		r.metrics.Message(metrics.ResultRouted)
	}
	r.flush(out)
}

// route forwards an authenticated message. Callers hold r.mu.
func (r *Relay) route(c *Conn, raw []byte, fields map[string]json.RawMessage, out *outbox) *apperrors.AppError {
	if c.cleaned {
		return apperrors.Auth("connection closed")
	}
	if !c.state.Authenticated() {
		return apperrors.Auth("relayed message before authentication")
	}
	if !c.limiter.Allow(r.now()) {
		return apperrors.RateLimited()
	}

	session, ok := r.sessions.FindByID(c.state.SessionID())
	if !ok {
		return apperrors.HostNotFound()
	}

	switch c.state.Role {
	case model.RoleRemote:
		return r.routeToHost(c, session, fields, out)
	case model.RoleHost:
		return r.routeToRemotes(session, raw, fields, out)
	}
	return apperrors.Auth("unroutable role")
}

// routeToHost forwards with remoteId overwritten by the sender's own id.
func (r *Relay) routeToHost(c *Conn, session *model.Session, fields map[string]json.RawMessage, out *outbox) *apperrors.AppError {
	host := r.conns[session.HostConnID]
	if !host.open() {
		return apperrors.HostNotFound()
	}

	stamped, err := json.Marshal(c.state.RemoteID())
	if err != nil {
		return apperrors.Internal("stamp remote id").WithCause(err)
	}
	fields[model.RemoteIDField] = stamped

	data, err := json.Marshal(fields)
	if err != nil {
		return apperrors.Protocol("re-encode relayed message").WithCause(err)
	}

	out.sendRaw(host, data)
	return nil
}

// routeToRemotes delivers the frame unmodified to the addressed remote, or to
// every remote when no remoteId is given.
func (r *Relay) routeToRemotes(session *model.Session, raw []byte, fields map[string]json.RawMessage, out *outbox) *apperrors.AppError {
	target, addressed, err := targetRemoteID(fields)
	if err != nil {
		return err
	}

	if addressed {
		for connID := range session.Remotes {
			remote := r.conns[connID]
			if remote.open() && remote.state.RemoteID() == target {
				out.sendRaw(remote, raw)
				return nil
			}
		}
		return apperrors.NotFound("remote")
	}

	delivered := 0
	for connID := range session.Remotes {
		if remote := r.conns[connID]; remote.open() {
			out.sendRaw(remote, raw)
			delivered++
		}
	}
	if delivered == 0 {
		return apperrors.NotFound("remote")
	}
	return nil
}

// targetRemoteID reports the addressed remote id. A missing, null or empty
// remoteId means broadcast; a non-string value matches nothing.
func targetRemoteID(fields map[string]json.RawMessage) (string, bool, *apperrors.AppError) {
	raw, ok := fields[model.RemoteIDField]
	if !ok {
		return "", false, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false, apperrors.Protocol("invalid remoteId").WithCause(err)
	}

	switch id := v.(type) {
	case nil:
		return "", false, nil
	case string:
		if id == "" {
			return "", false, nil
		}
		return id, true, nil
	default:
		return "", false, apperrors.Protocol("non-string remoteId")
	}
}
