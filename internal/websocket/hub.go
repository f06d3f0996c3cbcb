// Package websocket streams dispatch activity to dashboard clients.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Priya8975/hookrelay/internal/domain"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Feed message types.
const (
	TypeEventAccepted   = "event_accepted"
	TypeHandlerFinished = "handler_finished"
)

// FeedMessage is one live update sent to dashboard clients.
type FeedMessage struct {
	Type       string    `json:"type"`
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Handlers   int       `json:"handlers,omitempty"`
	Handler    string    `json:"handler,omitempty"`
	Status     string    `json:"status,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type frame struct {
	eventType string
	data      []byte
}

// Hub fans feed messages out to connected clients. Each client may narrow
// the feed to one event type with ?event_type=.
type Hub struct {
	clients    map[*client]struct{}
	mu         sync.RWMutex
	broadcast  chan frame
	register   chan *client
	unregister chan *client
	done       chan struct{}
	logger     *slog.Logger
}

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	eventType string
}

func (c *client) wants(f frame) bool {
	return c.eventType == "" || c.eventType == f.eventType
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan frame, sendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled, closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "total_clients", n, "event_type", c.eventType)

		case c := <-h.unregister:
			h.drop(c)
			h.logger.Debug("websocket client disconnected", "total_clients", h.ClientCount())

		case f := <-h.broadcast:
			h.fanOut(f)
		}
	}
}

// fanOut delivers f to every interested client. Clients whose buffers are
// full are disconnected rather than allowed to stall the hub.
func (h *Hub) fanOut(f frame) {
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(f) {
			continue
		}
		select {
		case c.send <- f.data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", "event_type", c.eventType)
		h.drop(c)
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast queues a message for every interested client. It never blocks;
// messages are dropped when the hub is backed up or has stopped.
func (h *Hub) Broadcast(msg FeedMessage) {
	select {
	case <-h.done:
		return
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", "error", err)
		return
	}

	select {
	case h.broadcast <- frame{eventType: msg.EventType, data: data}:
	default:
		h.logger.Warn("websocket broadcast channel full, dropping message", "type", msg.Type)
	}
}

// EventAccepted announces a verified event about to be dispatched.
func (h *Hub) EventAccepted(ev *domain.Event, handlers int) {
	h.Broadcast(FeedMessage{
		Type:      TypeEventAccepted,
		EventID:   ev.ID,
		EventType: ev.Type,
		Handlers:  handlers,
		Timestamp: ev.ReceivedAt,
	})
}

// HandlerFinished announces the outcome of one handler run.
func (h *Hub) HandlerFinished(run domain.HandlerRun) {
	msg := FeedMessage{
		Type:       TypeHandlerFinished,
		EventID:    run.EventID,
		EventType:  run.EventType,
		Handler:    run.Handler,
		Status:     run.Status,
		DurationMs: run.DurationMs,
		Timestamp:  run.FinishedAt,
	}
	if run.Error != nil {
		msg.Error = *run.Error
	}
	h.Broadcast(msg)
}

// HandleWebSocket upgrades the connection and subscribes it to the feed.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		eventType: r.URL.Query().Get("event_type"),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump discards client input; it exists to process pongs and notice
// disconnects.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump owns all writes to the connection.
func (c *client) writePump() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
