// Package ws carries the WebSocket transport: upgrade, per-connection pumps,
// and the hub loop that feeds every connection event and housekeeping tick
// to the lobby one at a time.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/playmatatu/battlerelay/internal/conn"
	"github.com/playmatatu/battlerelay/internal/lobby"
	"github.com/playmatatu/battlerelay/internal/protocol"
)

const (
	defaultSweepInterval = 5 * time.Second
	defaultStatsInterval = 30 * time.Second
	defaultSendBuffer    = 256
	publishTimeout       = 2 * time.Second
)

// StatsPublisher ships housekeeping snapshots somewhere outside the process.
type StatsPublisher interface {
	Publish(ctx context.Context, s lobby.Stats) error
}

type Options struct {
	SweepInterval time.Duration
	StatsInterval time.Duration
	SendBuffer    int
	Publisher     StatsPublisher
	Lobby         []lobby.Option
}

type inboundFrame struct {
	client *Client
	frame  []byte
}

// Hub owns the lobby and the set of live clients. Both are touched only by
// the Run goroutine.
type Hub struct {
	lobby   *lobby.Lobby
	clients map[conn.ID]*Client
	logger  *zap.Logger

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame
	done       chan struct{}

	sweepEvery time.Duration
	statsEvery time.Duration
	sendBuffer int
	publisher  StatsPublisher

	stats atomic.Pointer[lobby.Stats]
}

func NewHub(logger *zap.Logger, opts Options) *Hub {
	h := &Hub{
		clients:    make(map[conn.ID]*Client),
		logger:     logger.Named("hub"),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame),
		done:       make(chan struct{}),
		sweepEvery: opts.SweepInterval,
		statsEvery: opts.StatsInterval,
		sendBuffer: opts.SendBuffer,
		publisher:  opts.Publisher,
	}
	if h.sweepEvery <= 0 {
		h.sweepEvery = defaultSweepInterval
	}
	if h.statsEvery <= 0 {
		h.statsEvery = defaultStatsInterval
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}
	h.lobby = lobby.New(h, logger, opts.Lobby...)
	return h
}

// Run processes connection events and housekeeping ticks until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	sweep := time.NewTicker(h.sweepEvery)
	stats := time.NewTicker(h.statsEvery)
	defer func() {
		sweep.Stop()
		stats.Stop()
		h.shutdown()
	}()

	h.recordStats(ctx)
	h.logger.Info("hub started",
		zap.Duration("sweep_interval", h.sweepEvery), zap.Duration("stats_interval", h.statsEvery))

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c.id] = c
			h.lobby.Connect(c.id)
			h.logger.Info("client connected", zap.String("conn", string(c.id)), zap.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			if cur, ok := h.clients[c.id]; ok && cur == c {
				delete(h.clients, c.id)
				close(c.send)
				h.lobby.Disconnect(c.id)
				h.logger.Info("client disconnected", zap.String("conn", string(c.id)), zap.Int("clients", len(h.clients)))
			}

		case in := <-h.inbound:
			if _, ok := h.clients[in.client.id]; !ok {
				continue
			}
			h.lobby.Handle(in.client.id, in.frame)

		case <-sweep.C:
			if n := h.lobby.Sweep(); n > 0 {
				h.logger.Info("sweep paired players", zap.Int("sessions", n))
			}

		case <-stats.C:
			h.recordStats(ctx)
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Stats returns the latest housekeeping snapshot.
func (h *Hub) Stats() lobby.Stats {
	if s := h.stats.Load(); s != nil {
		return *s
	}
	return lobby.Stats{}
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	id := conn.NewID()
	c := &Client{
		hub:    h,
		conn:   socket,
		id:     id,
		send:   make(chan []byte, h.sendBuffer),
		logger: h.logger.With(zap.String("conn", string(id))),
	}

	select {
	case h.register <- c:
	case <-h.done:
		socket.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Send queues ev for one connection. It never blocks; a full buffer drops ev.
func (h *Hub) Send(id conn.ID, ev protocol.Outbound) {
	c, ok := h.clients[id]
	if !ok {
		h.logger.Debug("send to unknown connection", zap.String("conn", string(id)), zap.String("type", string(ev.Type)))
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	h.push(c, data, ev.Type)
}

// Broadcast queues ev for every connection.
func (h *Hub) Broadcast(ev protocol.Outbound) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	for _, c := range h.clients {
		h.push(c, data, ev.Type)
	}
}

func (h *Hub) push(c *Client, data []byte, typ protocol.Type) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("send buffer full, dropping message",
			zap.String("conn", string(c.id)), zap.String("type", string(typ)))
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) deliver(c *Client, frame []byte) bool {
	select {
	case h.inbound <- inboundFrame{client: c, frame: frame}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) recordStats(ctx context.Context) {
	s := h.lobby.Stats()
	h.stats.Store(&s)
	h.logger.Info("stats",
		zap.Int("connections", s.Connections),
		zap.Int("queue_length", s.QueueLength),
		zap.Int("active_sessions", s.ActiveSessions),
		zap.Int("pending_sessions", s.PendingSessions))

	if h.publisher == nil {
		return
	}
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := h.publisher.Publish(pctx, s); err != nil {
			h.logger.Warn("publish stats failed", zap.Error(err))
		}
	}()
}

func (h *Hub) shutdown() {
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	close(h.done)
	h.logger.Info("hub stopped")
}
