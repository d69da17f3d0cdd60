// Package ws is the WebSocket transport. It owns socket lifetimes and hands
// every inbound frame to the socket dispatcher.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-notify-hub/internal/application/router"
	"github.com/go-notify-hub/internal/domain"
	"github.com/go-notify-hub/internal/pkg/id"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrSendBufferFull means the client is not draining its socket fast enough.
var ErrSendBufferFull = errors.New("send buffer full")

type dispatcher interface {
	OnConnect(connectionID string)
	HandleEvent(ctx context.Context, connectionID, event string, data json.RawMessage)
	OnDisconnect(connectionID string)
}

type Options struct {
	SendBuffer      int
	EventsPerSecond float64
	EventBurst      int
	AllowedOrigins  []string
}

// Hub tracks live sockets by connection id and implements router.Sender.
type Hub struct {
	dispatcher dispatcher
	upgrader   websocket.Upgrader
	opts       Options

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func NewHub(d dispatcher, opts Options) *Hub {
	if opts.SendBuffer < 1 {
		opts.SendBuffer = 256
	}
	if opts.EventsPerSecond <= 0 {
		opts.EventsPerSecond = 10
	}
	if opts.EventBurst < 1 {
		opts.EventBurst = 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		dispatcher: d,
		opts:       opts,
		clients:    make(map[string]*client),
		ctx:        ctx,
		cancel:     cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Send queues a frame for one connection. Frames queued for the same
// connection are written in the order Send was called.
func (h *Hub) Send(connectionID string, frame []byte) error {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return router.ErrConnectionGone
	}
	select {
	case <-c.done:
		return router.ErrConnectionGone
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Count returns the number of open sockets, authenticated or not.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and blocks until the socket closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		id:      id.New(),
		conn:    conn,
		send:    make(chan []byte, h.opts.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(h.opts.EventsPerSecond), h.opts.EventBurst),
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.dispatcher.OnConnect(c.id)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.writePump(c)
	}()
	h.readPump(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	h.wg.Add(1)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
	h.dispatcher.OnDisconnect(c.id)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
		h.wg.Done()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "connection_id", c.id, "error", err)
			}
			return
		}

		var in domain.Frame
		if err := json.Unmarshal(msg, &in); err != nil || in.Type == "" {
			h.sendError(c.id, domain.CodeBadRequest, "frame must be a JSON object with a type", "")
			continue
		}
		if !c.limiter.Allow() {
			h.sendError(c.id, domain.CodeRateLimited, "too many events", in.Type)
			continue
		}
		h.dispatcher.HandleEvent(h.ctx, c.id, in.Type, in.Data)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			h.drain(c)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// drain flushes frames that were queued before the connection was closed.
func (h *Hub) drain(c *client) {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (h *Hub) sendError(connectionID, code, msg, event string) {
	frame, err := domain.EncodeFrame(domain.EventError, domain.ErrorPayload{Code: code, Message: msg, Event: event})
	if err != nil {
		return
	}
	if err := h.Send(connectionID, frame); err != nil && !errors.Is(err, router.ErrConnectionGone) {
		slog.Warn("websocket error frame dropped", "connection_id", connectionID, "error", err)
	}
}

// Shutdown stops accepting sockets, closes every open one and waits for
// their pumps to exit or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	defer h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("websocket hub stopped", "closed_connections", len(clients))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
