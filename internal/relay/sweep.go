package relay

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/tabremote/relay-server/internal/events"
	"github.com/tabremote/relay-server/internal/metrics"
	"github.com/tabremote/relay-server/internal/model"
)

// SweepResult counts what one sweep did.
type SweepResult struct {
	Terminated  int
	Pinged      int
	PairCodes   int
	TrustTokens int
}

// Sweep runs one liveness pass. Connections that did not answer the previous
// ping are terminated; the rest are marked not-alive and pinged again. Stale
// pair codes and trust tokens are removed. Pings complete in the background
// and Sweep does not wait for them.
func (r *Relay) Sweep(ctx context.Context) SweepResult {
	out := &outbox{}
	var dead, live []*Conn

	r.mu.Lock()
	now := r.now()

	for _, c := range r.conns {
		if c.alive {
			c.alive = false
			live = append(live, c)
			continue
		}
		dead = append(dead, c)
	}

	for _, c := range dead {
		sessionID, remoteID := c.state.SessionID(), c.state.RemoteID()
		r.cleanup(c, out)
		out.notify(
			r.event(events.EventConnectionReaped, sessionID, remoteID, "", c.ID, "no pong"),
			map[string]any{"role": string(c.state.Role)},
		)
	}

	codes := r.codes.DeleteWhere(func(pc model.PairCode) bool {
		session, ok := r.sessions.FindByID(pc.SessionID)
		if !ok {
			return true
		}
		if session.PairCode == pc.Code && pc.Expired(now) {
			session.ClearPairCode()
			return true
		}
		return false
	})

	tokens := r.tokens.DeleteWhere(func(t model.TrustToken) bool {
		if t.Expired(now) {
			return true
		}
		_, ok := r.sessions.FindByID(t.SessionID)
		return !ok
	})
	tokens += r.tokens.PurgeRevoked(now)

	r.updateSizes()
	r.mu.Unlock()

	for _, c := range dead {
		c.peer.Terminate()
	}
	r.flush(out)

	for _, c := range live {
		go r.ping(ctx, c)
	}

	r.metrics.Reaped(metrics.KindConnection, len(dead))
	r.metrics.Reaped(metrics.KindPairCode, codes)
	r.metrics.Reaped(metrics.KindTrustToken, tokens)

	return SweepResult{
		Terminated:  len(dead),
		Pinged:      len(live),
		PairCodes:   codes,
		TrustTokens: tokens,
	}
}

func (r *Relay) ping(ctx context.Context, c *Conn) {
	ctx, cancel := context.WithTimeout(ctx, r.pingTimeout)
	defer cancel()

	if err := c.peer.Ping(ctx); err != nil {
		log.Debug().Str("connId", c.ID).Err(err).Msg("ping failed")
		return
	}
	r.MarkAlive(c)
}
