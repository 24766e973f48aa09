package relay

import (
	"github.com/rs/zerolog/log"

	"github.com/tabremote/relay-server/internal/events"
	"github.com/tabremote/relay-server/internal/model"
)

// Disconnect runs the cleanup cascade for a closed or failed socket. It is
// safe to call more than once for the same connection.
func (r *Relay) Disconnect(c *Conn) {
	out := &outbox{}

	r.mu.Lock()
	if c.cleaned {
		r.mu.Unlock()
		return
	}
	r.cleanup(c, out)
	r.updateSizes()
	r.mu.Unlock()

	r.flush(out)
	log.Debug().Str("connId", c.ID).Msg("connection closed")
}

// cleanup removes c and everything it owns. Callers hold r.mu.
func (r *Relay) cleanup(c *Conn, out *outbox) {
	c.cleaned = true
	delete(r.conns, c.ID)

	switch c.state.Role {
	case model.RoleHost:
		r.dropSession(c, out)
	case model.RoleRemote:
		r.detachRemote(c, out)
	}
}

// dropSession tears down the host's session. Remotes are told and closed and
// every trust token of the session is revoked. The pair code is left for the
// sweep.
func (r *Relay) dropSession(c *Conn, out *outbox) {
	sessionID := c.state.SessionID()
	session, ok := r.sessions.FindByID(sessionID)
	if !ok {
		return
	}

	notified := 0
	for connID := range session.Remotes {
		remote := r.conns[connID]
		if !remote.open() {
			continue
		}
		out.send(remote, model.HostDisconnected{Type: model.TypeHostDisconnected})
		out.close(remote)
		notified++
	}

	revoked := r.tokens.RevokeBySessionID(sessionID)
	r.sessions.Delete(sessionID)

	out.notify(
		r.event(events.EventHostDisconnected, sessionID, "", "", c.ID, ""),
		map[string]any{"remotes": notified, "revoked_tokens": revoked},
	)
}

// detachRemote removes c from its session's remote set. The session and the
// device's trust token stay.
func (r *Relay) detachRemote(c *Conn, out *outbox) {
	remote := c.state.Remote
	if remote == nil {
		return
	}

	session, ok := r.sessions.FindByID(remote.SessionID)
	if !ok {
		return
	}
	if _, member := session.Remotes[c.ID]; !member {
		return
	}
	delete(session.Remotes, c.ID)

	out.notify(
		r.event(events.EventRemoteLeft, session.ID, remote.RemoteID, remote.DeviceID, c.ID, ""),
		map[string]any{"remotes": len(session.Remotes)},
	)
}
