// Package relay implements the pairing relay: connection roles, pair codes,
// trust tokens, message routing between a host and its remotes, rate limiting
// and the liveness sweep.
//
// All shared state is owned by one Relay and mutated under a single mutex held
// for the duration of one protocol operation. Outbound frames, socket closes
// and lifecycle notices are collected in an outbox and flushed after the
// mutex is released.
package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tabremote/relay-server/internal/audit"
	apperrors "github.com/tabremote/relay-server/internal/errors"
	"github.com/tabremote/relay-server/internal/events"
	"github.com/tabremote/relay-server/internal/metrics"
	"github.com/tabremote/relay-server/internal/model"
	"github.com/tabremote/relay-server/internal/store"
	"github.com/tabremote/relay-server/internal/util"
)

const (
	DefaultPairCodeTTL       = 60 * time.Second
	DefaultTrustTokenTTL     = 30 * 24 * time.Hour
	DefaultRateLimitInterval = 400 * time.Millisecond
	DefaultPingTimeout       = 30 * time.Second
)

type Publisher interface {
	Publish(event events.Event)
}

type Options struct {
	PairCodeTTL       time.Duration
	TrustTokenTTL     time.Duration
	RateLimitInterval time.Duration
	PingTimeout       time.Duration
	Publisher         Publisher
	Metrics           *metrics.Metrics
	Clock             func() time.Time
}

type Relay struct {
	mu       sync.Mutex
	sessions store.SessionRepository
	codes    store.PairCodeRepository
	tokens   store.TrustTokenRepository
	conns    map[string]*Conn

	pairCodeTTL       time.Duration
	trustTokenTTL     time.Duration
	rateLimitInterval time.Duration
	pingTimeout       time.Duration
	publisher         Publisher
	metrics           *metrics.Metrics
	now               func() time.Time
}

func New(opts Options) *Relay {
	r := &Relay{
		sessions:          store.NewSessionRepository(),
		codes:             store.NewPairCodeRepository(),
		tokens:            store.NewTrustTokenRepository(),
		conns:             make(map[string]*Conn),
		pairCodeTTL:       opts.PairCodeTTL,
		trustTokenTTL:     opts.TrustTokenTTL,
		rateLimitInterval: opts.RateLimitInterval,
		pingTimeout:       opts.PingTimeout,
		publisher:         opts.Publisher,
		metrics:           opts.Metrics,
		now:               opts.Clock,
	}

	if r.pairCodeTTL <= 0 {
		r.pairCodeTTL = DefaultPairCodeTTL
	}
	if r.trustTokenTTL <= 0 {
		r.trustTokenTTL = DefaultTrustTokenTTL
	}
	if r.rateLimitInterval <= 0 {
		r.rateLimitInterval = DefaultRateLimitInterval
	}
	if r.pingTimeout <= 0 {
		r.pingTimeout = DefaultPingTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}

	return r
}

// Connect registers a freshly opened socket in the Unauthenticated role.
func (r *Relay) Connect(peer Peer) *Conn {
	r.mu.Lock()
	c := newConn(util.NewConnID(r.now()), peer, r.rateLimitInterval)
	r.conns[c.ID] = c
	r.updateSizes()
	r.mu.Unlock()

	log.Debug().Str("connId", c.ID).Msg("connection opened")
	return c
}

// HandleMessage processes one inbound frame. Frames from one connection must
// be passed in receipt order.
func (r *Relay) HandleMessage(c *Conn, raw []byte) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.dropped(c, apperrors.Protocol("malformed message").WithCause(err))
		return
	}

	switch {
	case env.Type.IsHandshake():
		r.handleHandshake(c, env.Type, raw)
	case env.Type.IsRelayed():
		r.handleRelayed(c, raw)
	default:
		r.dropped(c, apperrors.Protocol("unknown message type").WithDetails(string(env.Type)))
	}
}

// MarkAlive records a pong from the peer.
func (r *Relay) MarkAlive(c *Conn) {
	r.mu.Lock()
	if !c.cleaned {
		c.alive = true
	}
	r.mu.Unlock()
}

// Stats is a point-in-time view of the relay tables.
type Stats struct {
	Connections int `json:"connections"`
	Sessions    int `json:"sessions"`
	Remotes     int `json:"remotes"`
	PairCodes   int `json:"pairCodes"`
	TrustTokens int `json:"trustTokens"`
}

func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		Connections: len(r.conns),
		Sessions:    r.sessions.Count(),
		Remotes:     r.remoteCount(),
		PairCodes:   r.codes.Count(),
		TrustTokens: r.tokens.Count(),
	}
}

func (r *Relay) remoteCount() int {
	n := 0
	r.sessions.Each(func(s *model.Session) {
		n += len(s.Remotes)
	})
	return n
}

// updateSizes refreshes gauges. Callers hold r.mu.
func (r *Relay) updateSizes() {
	r.metrics.SetSizes(len(r.conns), r.sessions.Count(), r.remoteCount())
}

func (r *Relay) dropped(c *Conn, err *apperrors.AppError) {
	switch err.Code {
	case apperrors.ErrCodeProtocol:
		r.metrics.Message(metrics.ResultProtocolError)
	case apperrors.ErrCodeAuth:
		r.metrics.Message(metrics.ResultAuthError)
	case apperrors.ErrCodeRateLimited:
		r.metrics.Message(metrics.ResultRateLimited)
	default:
		r.metrics.Message(metrics.ResultDropped)
	}

	log.Debug().
		Str("connId", c.ID).
		Str("code", string(err.Code)).
		Err(err).
		Msg("message dropped")
}

type frame struct {
	conn *Conn
	data []byte
}

type notice struct {
	event   events.Event
	details map[string]any
}

type outbox struct {
	frames  []frame
	closes  []*Conn
	notices []notice
}

func (o *outbox) send(c *Conn, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("connId", c.ID).Msg("failed to marshal outbound message")
		return
	}
	o.frames = append(o.frames, frame{conn: c, data: data})
}

func (o *outbox) sendRaw(c *Conn, data []byte) {
	o.frames = append(o.frames, frame{conn: c, data: data})
}

func (o *outbox) close(c *Conn) {
	o.closes = append(o.closes, c)
}

func (o *outbox) notify(event events.Event, details map[string]any) {
	o.notices = append(o.notices, notice{event: event, details: details})
}

// flush performs the I/O collected during one operation. Must be called
// without r.mu held. A frame that cannot be queued is handled exactly like a
// closed socket.
func (r *Relay) flush(o *outbox) {
	var failed []*Conn
	for _, f := range o.frames {
		if err := f.conn.peer.Send(f.data); err != nil {
			r.metrics.SendFailure()
			log.Debug().
				Str("connId", f.conn.ID).
				Err(apperrors.Transport(err)).
				Msg("send failed, closing connection")
			failed = append(failed, f.conn)
		}
	}

	for _, c := range o.closes {
		c.peer.Close("host disconnected")
	}

	for _, n := range o.notices {
		audit.Log(n.event, n.details)
		if r.publisher != nil {
			r.publisher.Publish(n.event)
		}
	}

	for _, c := range failed {
		c.peer.Terminate()
		r.Disconnect(c)
	}
}
