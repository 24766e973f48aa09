package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tabremote/relay-server/internal/config"
	apperrors "github.com/tabremote/relay-server/internal/errors"
	"github.com/tabremote/relay-server/internal/relay"
)

var errPeerClosed = errors.New("peer closed")

type GatewayOptions struct {
	OriginPatterns  []string
	MaxMessageBytes int64
	SendQueueSize   int
	WriteTimeout    time.Duration
}

// Gateway accepts websocket connections and feeds their frames to the relay.
type Gateway struct {
	relay  *relay.Relay
	opts   GatewayOptions
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGateway(r *relay.Relay, opts GatewayOptions) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		relay:  r,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.opts.OriginPatterns,
		InsecureSkipVerify: len(g.opts.OriginPatterns) == 0,
	})
	if err != nil {
		log.Warn().Err(err).Str("remoteAddr", r.RemoteAddr).Msg("websocket accept failed")
		return
	}
	conn.SetReadLimit(g.opts.MaxMessageBytes)

	g.wg.Add(1)
	defer g.wg.Done()

	ctx, cancel := context.WithCancel(g.ctx)
	defer cancel()

	peer := newWSPeer(ctx, conn, g.opts.SendQueueSize, g.opts.WriteTimeout)
	c := g.relay.Connect(peer)

	log.Info().
		Str("connId", c.ID).
		Str("remoteAddr", r.RemoteAddr).
		Msg("websocket connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			logReadEnd(c.ID, err)
			break
		}
		g.relay.HandleMessage(c, data)
	}

	g.relay.Disconnect(c)
	peer.wait()
}

// Shutdown closes every open socket and waits for their handlers to return.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func logReadEnd(connID string, err error) {
	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		log.Info().Str("connId", connID).Int("status", int(status)).Msg("websocket closed")
	case errors.Is(err, context.Canceled):
		log.Info().Str("connId", connID).Msg("websocket closed by server")
	default:
		log.Info().Str("connId", connID).Err(apperrors.Transport(err)).Msg("websocket closed")
	}
}

// wsPeer owns the write side of one socket. Frames go through a bounded queue
// drained by a single writer goroutine.
type wsPeer struct {
	conn         *websocket.Conn
	send         chan []byte
	closing      chan struct{}
	done         chan struct{}
	writeTimeout time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	termOnce  sync.Once
	reason    string
}

func newWSPeer(parent context.Context, conn *websocket.Conn, queueSize int, writeTimeout time.Duration) *wsPeer {
	ctx, cancel := context.WithCancel(parent)
	p := &wsPeer{
		conn:         conn,
		send:         make(chan []byte, queueSize),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	go p.writeLoop()
	return p
}

func (p *wsPeer) Send(data []byte) error {
	select {
	case <-p.closing:
		return errPeerClosed
	case <-p.ctx.Done():
		return errPeerClosed
	default:
	}

	select {
	case p.send <- data:
		return nil
	default:
		return apperrors.Backpressure()
	}
}

func (p *wsPeer) Ping(ctx context.Context) error {
	return p.conn.Ping(ctx)
}

func (p *wsPeer) Close(reason string) {
	p.closeOnce.Do(func() {
		p.reason = reason
		close(p.closing)
	})
}

func (p *wsPeer) Terminate() {
	p.termOnce.Do(func() {
		p.cancel()
		p.conn.CloseNow()
	})
}

// wait blocks until the writer has exited, then makes sure the socket is gone.
func (p *wsPeer) wait() {
	p.cancel()
	<-p.done
	p.conn.CloseNow()
}

func (p *wsPeer) writeLoop() {
	defer close(p.done)

	for {
		select {
		case <-p.ctx.Done():
			return
		case data := <-p.send:
			if err := p.write(p.ctx, data); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				p.conn.CloseNow()
				return
			}
		case <-p.closing:
			p.flushAndClose()
			return
		}
	}
}

func (p *wsPeer) write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()
	return p.conn.Write(ctx, websocket.MessageText, data)
}

// flushAndClose writes what is already queued, bounded by CloseFlushTimeout,
// then performs the close handshake.
func (p *wsPeer) flushAndClose() {
	ctx, cancel := context.WithTimeout(p.ctx, config.CloseFlushTimeout)
	defer cancel()

	for {
		select {
		case data := <-p.send:
			if err := p.write(ctx, data); err != nil {
				p.conn.CloseNow()
				return
			}
		default:
			p.conn.Close(websocket.StatusNormalClosure, p.reason)
			return
		}
	}
}
