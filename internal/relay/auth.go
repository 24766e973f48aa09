package relay

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/tabremote/relay-server/internal/errors"
	"github.com/tabremote/relay-server/internal/events"
	"github.com/tabremote/relay-server/internal/model"
	"github.com/tabremote/relay-server/internal/util"
)

// Pairing outcomes for metrics.
const (
	outcomePairSuccess    = "pair_success"
	outcomePairFailed     = "pair_failed"
	outcomeSessionValid   = "session_valid"
	outcomeSessionInvalid = "session_invalid"
)

func (r *Relay) handleHandshake(c *Conn, typ model.MessageType, raw []byte) {
	out := &outbox{}

	r.mu.Lock()
	if c.cleaned {
		r.mu.Unlock()
		return
	}

	var err *apperrors.AppError
	switch typ {
	case model.TypeRegisterHost:
		err = r.registerHost(c, out)
	case model.TypeRequestPairCode:
		err = r.requestPairCode(c, out)
	case model.TypeExchangePairCode:
		err = r.exchangePairCode(c, raw, out)
	case model.TypeValidateSession:
		err = r.validateSession(c, raw, out)
	}
	r.updateSizes()
	r.mu.Unlock()

	if err != nil {
		r.dropped(c, err)
	}
	r.flush(out)
}

func (r *Relay) registerHost(c *Conn, out *outbox) *apperrors.AppError {
	if c.state.Role != model.RoleUnauthenticated {
		return apperrors.Auth("REGISTER_HOST on authenticated connection")
	}

	sessionID := util.NewSessionID()
	for {
		if _, taken := r.sessions.FindByID(sessionID); !taken {
			break
		}
		sessionID = util.NewSessionID()
	}

	r.sessions.Create(model.NewSession(sessionID, c.ID, r.now()))
	c.state = model.AsHost(sessionID)

	out.send(c, model.HostRegistered{Type: model.TypeHostRegistered, SessionID: sessionID})
	out.notify(r.event(events.EventHostRegistered, sessionID, "", "", c.ID, ""), nil)
	return nil
}

func (r *Relay) requestPairCode(c *Conn, out *outbox) *apperrors.AppError {
	if c.state.Role != model.RoleHost {
		return apperrors.Auth("REQUEST_PAIR_CODE from non-host")
	}

	session, ok := r.sessions.FindByID(c.state.SessionID())
	if !ok {
		return apperrors.Auth("host session missing")
	}

	if session.PairCode != "" {
		r.codes.Delete(session.PairCode)
		session.ClearPairCode()
	}

	code, genErr := r.newPairCode()
	if genErr != nil {
		log.Error().Err(genErr).Str("sessionId", session.ID).Msg("failed to generate pair code")
		return apperrors.Internal("pair code generation failed").WithCause(genErr)
	}

	expiresAt := r.now().Add(r.pairCodeTTL)
	r.codes.Create(model.PairCode{Code: code, SessionID: session.ID, ExpiresAt: expiresAt})
	session.PairCode = code
	session.PairCodeExpiresAt = expiresAt

	out.send(c, model.PairCodeIssued{
		Type: model.TypePairCode,
		Code: code,
		TTL:  r.pairCodeTTL.Milliseconds(),
	})
	out.notify(
		r.event(events.EventPairCodeIssued, session.ID, "", "", c.ID, ""),
		map[string]any{"code": util.MaskCode(code)},
	)
	return nil
}

func (r *Relay) exchangePairCode(c *Conn, raw []byte, out *outbox) *apperrors.AppError {
	var req model.ExchangePairCodeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return apperrors.Protocol("malformed EXCHANGE_PAIR_CODE").WithCause(err)
	}
	if c.state.Role == model.RoleHost {
		return apperrors.Auth("EXCHANGE_PAIR_CODE from host")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	now := r.now()

	pc, ok := r.codes.FindByCode(code)
	if !ok {
		r.pairFailed(c, apperrors.InvalidCode(), "", code, out)
		return nil
	}

	session, sessionOK := r.sessions.FindByID(pc.SessionID)

	if pc.Expired(now) {
		r.codes.Delete(code)
		if sessionOK && session.PairCode == code {
			session.ClearPairCode()
		}
		r.pairFailed(c, apperrors.InvalidCode(), pc.SessionID, code, out)
		return nil
	}

	if !sessionOK {
		r.codes.Delete(code)
		r.pairFailed(c, apperrors.HostNotFound(), pc.SessionID, code, out)
		return nil
	}

	r.codes.Delete(code)
	session.ClearPairCode()

	token := util.NewTrustToken()
	r.tokens.Create(model.TrustToken{
		Token:     token,
		SessionID: session.ID,
		DeviceID:  req.DeviceID,
		ExpiresAt: now.Add(r.trustTokenTTL),
	})

	r.attachRemote(c, session, req.DeviceID, "pair_code", out)

	out.send(c, model.PairSuccess{
		Type:       model.TypePairSuccess,
		TrustToken: token,
		SessionID:  session.ID,
	})
	r.metrics.Pairing(outcomePairSuccess)
	return nil
}

func (r *Relay) validateSession(c *Conn, raw []byte, out *outbox) *apperrors.AppError {
	var req model.ValidateSessionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return apperrors.Protocol("malformed VALIDATE_SESSION").WithCause(err)
	}
	if c.state.Role == model.RoleHost {
		return apperrors.Auth("VALIDATE_SESSION from host")
	}

	tok, ok := r.tokens.FindByToken(req.TrustToken)
	if !ok {
		if revoked, wasRevoked := r.tokens.FindRevoked(req.TrustToken); wasRevoked {
			r.tokens.Delete(revoked.Token)
			r.sessionInvalid(c, apperrors.HostNotFound(), revoked.SessionID, req.DeviceID, req.TrustToken, out)
			return nil
		}
		r.sessionInvalid(c, apperrors.TokenNotFound(), "", req.DeviceID, req.TrustToken, out)
		return nil
	}

	if tok.Expired(r.now()) {
		r.tokens.Delete(tok.Token)
		r.sessionInvalid(c, apperrors.TokenExpired(), tok.SessionID, req.DeviceID, req.TrustToken, out)
		return nil
	}

	session, ok := r.sessions.FindByID(tok.SessionID)
	if !ok {
		r.tokens.Delete(tok.Token)
		r.sessionInvalid(c, apperrors.HostNotFound(), tok.SessionID, req.DeviceID, req.TrustToken, out)
		return nil
	}

	r.attachRemote(c, session, req.DeviceID, "trust_token", out)

	out.send(c, model.SessionValid{Type: model.TypeSessionValid, SessionID: session.ID})
	r.metrics.Pairing(outcomeSessionValid)
	return nil
}

// attachRemote makes c a remote of session with a freshly minted remote id
// and tells the host. A connection that was already a remote leaves its
// previous session first.
func (r *Relay) attachRemote(c *Conn, session *model.Session, deviceID, via string, out *outbox) {
	if c.state.Role == model.RoleRemote {
		r.detachRemote(c, out)
	}

	remoteID := util.NewRemoteID(r.now())
	c.state = model.AsRemote(session.ID, remoteID, deviceID)
	session.Remotes[c.ID] = struct{}{}

	if host := r.conns[session.HostConnID]; host.open() {
		out.send(host, model.RemoteJoined{
			Type:     model.TypeRemoteJoined,
			RemoteID: remoteID,
			DeviceID: deviceID,
		})
	}

	out.notify(
		r.event(events.EventRemoteJoined, session.ID, remoteID, deviceID, c.ID, ""),
		map[string]any{"via": via, "remotes": len(session.Remotes)},
	)
}

func (r *Relay) pairFailed(c *Conn, reason *apperrors.AppError, sessionID, code string, out *outbox) {
	out.send(c, model.PairFailed{Type: model.TypePairFailed, Reason: string(reason.Code)})
	out.notify(
		r.event(events.EventPairFailed, sessionID, "", "", c.ID, string(reason.Code)),
		map[string]any{"code": util.MaskCode(code)},
	)
	r.metrics.Pairing(outcomePairFailed)
}

func (r *Relay) sessionInvalid(c *Conn, reason *apperrors.AppError, sessionID, deviceID, token string, out *outbox) {
	out.send(c, model.SessionInvalid{Type: model.TypeSessionInvalid, Reason: string(reason.Code)})
	out.notify(
		r.event(events.EventSessionInvalid, sessionID, "", deviceID, c.ID, string(reason.Code)),
		map[string]any{"token": util.MaskToken(token)},
	)
	r.metrics.Pairing(outcomeSessionInvalid)
}

func (r *Relay) event(typ events.EventType, sessionID, remoteID, deviceID, connID, reason string) events.Event {
	return events.Event{
		Type:      typ,
		SessionID: sessionID,
		RemoteID:  remoteID,
		DeviceID:  deviceID,
		ConnID:    connID,
		Reason:    reason,
		At:        r.now().UTC(),
	}
}
