package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/playmatatu/battlerelay/internal/conn"
	"github.com/playmatatu/battlerelay/internal/lobby"
	"github.com/playmatatu/battlerelay/internal/protocol"
)

type capturePublisher struct {
	mu    sync.Mutex
	stats []lobby.Stats
}

func (p *capturePublisher) Publish(_ context.Context, s lobby.Stats) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = append(p.stats, s)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stats)
}

func startHub(t *testing.T, opts Options) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	hub := NewHub(zaptest.NewLogger(t), opts)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
		srv.Close()
	})
	return hub, srv, cancel
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readType(t *testing.T, c *websocket.Conn) protocol.Type {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f struct {
		Type protocol.Type `json:"type"`
	}
	require.NoError(t, c.ReadJSON(&f))
	return f.Type
}

func TestHub_ConnectPingAndStats(t *testing.T) {
	pub := &capturePublisher{}
	hub, srv, _ := startHub(t, Options{StatsInterval: 20 * time.Millisecond, Publisher: pub})

	c := dialHub(t, srv)
	assert.Equal(t, protocol.TypeConnected, readType(t, c))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"PING"}`)))
	assert.Equal(t, protocol.TypePong, readType(t, c))

	assert.Eventually(t, func() bool { return hub.Stats().Connections == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return pub.count() >= 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, srv, cancel := startHub(t, Options{})
	c := dialHub(t, srv)
	assert.Equal(t, protocol.TypeConnected, readType(t, c))

	cancel()
	<-hub.Done()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}

func TestHub_SendDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), Options{SendBuffer: 1})
	client := &Client{hub: hub, id: conn.ID("c1"), send: make(chan []byte, 1)}
	hub.clients[client.id] = client

	hub.Send("c1", protocol.Pong())
	hub.Send("c1", protocol.Pong())
	hub.Broadcast(protocol.QueueUpdate(nil))
	hub.Send("unknown", protocol.Pong())

	require.Len(t, client.send, 1)
	var f protocol.Outbound
	require.NoError(t, json.Unmarshal(<-client.send, &f))
	assert.Equal(t, protocol.TypePong, f.Type)
}

