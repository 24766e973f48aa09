package relay

import (
	"context"
	"time"

	"github.com/tabremote/relay-server/internal/model"
)

// Peer is the transport side of one socket.
type Peer interface {
	// Send queues one frame without blocking. An error means the frame will
	// never be delivered and the socket must be treated as closed.
	Send(data []byte) error
	// Ping blocks until the peer answers or ctx ends.
	Ping(ctx context.Context) error
	// Close flushes already queued frames, then closes the socket.
	Close(reason string)
	// Terminate drops the socket immediately.
	Terminate()
}

// Conn is the relay's record of one live socket. Every field except ID and
// peer is guarded by Relay.mu.
type Conn struct {
	ID   string
	peer Peer

	state   model.ConnectionState
	alive   bool
	cleaned bool
	limiter *rateLimiter
}

func newConn(id string, peer Peer, interval time.Duration) *Conn {
	return &Conn{
		ID:      id,
		peer:    peer,
		state:   model.Unauthenticated(),
		alive:   true,
		limiter: newRateLimiter(interval),
	}
}

func (c *Conn) open() bool {
	return c != nil && !c.cleaned
}
