package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tabremote/relay-server/internal/errors"
	"github.com/tabremote/relay-server/internal/relay"
)

func newRelayServer(t *testing.T, origins []string) (*httptest.Server, *relay.Relay) {
	t.Helper()
	r := relay.New(relay.Options{})
	gw := NewGateway(r, GatewayOptions{
		OriginPatterns:  origins,
		MaxMessageBytes: 64 * 1024,
		SendQueueSize:   16,
		WriteTimeout:    time.Second,
	})

	mux := http.NewServeMux()
	mux.Handle("/", Root(gw))
	mux.Handle("/ws", gw)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		gw.Shutdown(ctx)
		srv.Close()
	})
	return srv, r
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

func receive(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var msg map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func TestGateway_PairAndRelay(t *testing.T) {
	srv, r := newRelayServer(t, nil)

	host := dial(t, srv, "/")
	send(t, host, map[string]any{"type": "REGISTER_HOST"})
	registered := receive(t, host)
	require.Equal(t, "HOST_REGISTERED", registered["type"])

	send(t, host, map[string]any{"type": "REQUEST_PAIR_CODE"})
	issued := receive(t, host)
	require.Equal(t, "PAIR_CODE", issued["type"])

	remote := dial(t, srv, "/ws")
	send(t, remote, map[string]any{"type": "EXCHANGE_PAIR_CODE", "code": issued["code"], "deviceId": "dev-1"})

	success := receive(t, remote)
	require.Equal(t, "PAIR_SUCCESS", success["type"])
	assert.Equal(t, registered["sessionId"], success["sessionId"])

	joined := receive(t, host)
	require.Equal(t, "REMOTE_JOINED", joined["type"])

	send(t, remote, map[string]any{"type": "control.state_update", "state": "PLAYING"})
	update := receive(t, host)
	assert.Equal(t, "PLAYING", update["state"])
	assert.Equal(t, joined["remoteId"], update["remoteId"])

	send(t, host, map[string]any{"type": "control.toggle_playback", "remoteId": joined["remoteId"]})
	assert.Equal(t, "control.toggle_playback", receive(t, remote)["type"])

	assert.Equal(t, 2, r.Stats().Connections)

	require.NoError(t, host.Close(websocket.StatusNormalClosure, "bye"))

	assert.Equal(t, "HOST_DISCONNECTED", receive(t, remote)["type"])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := remote.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))

	require.Eventually(t, func() bool {
		s := r.Stats()
		return s.Connections == 0 && s.Sessions == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestGateway_MalformedFramesAreIgnored(t *testing.T) {
	srv, _ := newRelayServer(t, nil)
	conn := dial(t, srv, "/")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
	send(t, conn, map[string]any{"type": "NOPE"})

	send(t, conn, map[string]any{"type": "REGISTER_HOST"})
	assert.Equal(t, "HOST_REGISTERED", receive(t, conn)["type"])
}

func TestGateway_RejectsForeignOrigin(t *testing.T) {
	srv, _ := newRelayServer(t, []string{"app.example.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example.org"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGateway_ShutdownClosesSockets(t *testing.T) {
	r := relay.New(relay.Options{})
	gw := NewGateway(r, GatewayOptions{MaxMessageBytes: 4096, SendQueueSize: 4, WriteTimeout: time.Second})
	srv := httptest.NewServer(gw)
	defer srv.Close()

	conn := dial(t, srv, "")
	send(t, conn, map[string]any{"type": "REGISTER_HOST"})
	receive(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, gw.Shutdown(ctx))

	assert.Equal(t, 0, r.Stats().Sessions)
}

func TestGateway_SweepTerminatesSilentClient(t *testing.T) {
	const pingTimeout = 200 * time.Millisecond

	r := relay.New(relay.Options{PingTimeout: pingTimeout})
	gw := NewGateway(r, GatewayOptions{MaxMessageBytes: 4096, SendQueueSize: 4, WriteTimeout: time.Second})
	srv := httptest.NewServer(gw)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		gw.Shutdown(ctx)
		srv.Close()
	})

	responsive := dial(t, srv, "")
	send(t, responsive, map[string]any{"type": "REGISTER_HOST"})
	require.Equal(t, "HOST_REGISTERED", receive(t, responsive)["type"])

	readCtx, stopReading := context.WithCancel(context.Background())
	defer stopReading()
	// Pongs are only written while something reads the socket.
	responsive.CloseRead(readCtx)

	silent := dial(t, srv, "")
	send(t, silent, map[string]any{"type": "REGISTER_HOST"})
	require.Equal(t, "HOST_REGISTERED", receive(t, silent)["type"])

	first := r.Sweep(context.Background())
	assert.Equal(t, relay.SweepResult{Pinged: 2}, first)

	time.Sleep(2 * pingTimeout)

	second := r.Sweep(context.Background())
	assert.Equal(t, 1, second.Terminated)
	assert.Equal(t, 1, second.Pinged)

	stats := r.Stats()
	assert.Equal(t, 1, stats.Connections)
	assert.Equal(t, 1, stats.Sessions)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := silent.Read(ctx)
	require.Error(t, err)

	time.Sleep(2 * pingTimeout)

	third := r.Sweep(context.Background())
	assert.Equal(t, relay.SweepResult{Pinged: 1}, third)
	assert.Equal(t, 1, r.Stats().Connections)
}

func TestWSPeer_Send(t *testing.T) {
	newQueuedPeer := func(size int) *wsPeer {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		// No writer goroutine, so the queue only fills.
		return &wsPeer{
			send:    make(chan []byte, size),
			closing: make(chan struct{}),
			done:    make(chan struct{}),
			ctx:     ctx,
			cancel:  cancel,
		}
	}

	t.Run("full queue reports backpressure", func(t *testing.T) {
		p := newQueuedPeer(2)
		require.NoError(t, p.Send([]byte(`{"n":1}`)))
		require.NoError(t, p.Send([]byte(`{"n":2}`)))

		err := p.Send([]byte(`{"n":3}`))
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeBackpressure, appErr.Code)
		assert.Len(t, p.send, 2)
	})

	t.Run("closing peer refuses frames", func(t *testing.T) {
		p := newQueuedPeer(2)
		p.Close("host disconnected")
		p.Close("again")

		assert.ErrorIs(t, p.Send([]byte(`{}`)), errPeerClosed)
		assert.Equal(t, "host disconnected", p.reason)
	})

	t.Run("cancelled peer refuses frames", func(t *testing.T) {
		p := newQueuedPeer(2)
		p.cancel()

		assert.ErrorIs(t, p.Send([]byte(`{}`)), errPeerClosed)
	})
}
