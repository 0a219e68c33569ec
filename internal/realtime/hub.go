// Package realtime provides WebSocket streaming of guard activity.
//
// Monitoring dashboards subscribe instead of polling: every validation
// decision and emergency-stop transition is pushed as it happens.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbd888/chainguard/internal/metrics"
	"github.com/mbd888/chainguard/internal/pattern"
)

const (
	// MaxClients is the maximum number of concurrent WebSocket connections.
	MaxClients = 1000

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024
)

// normalCloseCodes are WebSocket close codes that indicate an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Allow non-browser clients
		}
		// Browsers only get same-host connections.
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

// EventType for real-time guard events
type EventType string

const (
	EventValidation    EventType = "validation"
	EventEmergencyStop EventType = "emergency_stop"
)

// Event represents a real-time guard event
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// ValidationEvent is the payload for EventValidation.
type ValidationEvent struct {
	TxID      string            `json:"txId,omitempty"`
	Chain     string            `json:"chain"`
	IsValid   bool              `json:"isValid"`
	BlockedBy []pattern.Pattern `json:"blockedBy,omitempty"`
	Warnings  int               `json:"warnings"`
}

// Subscription filters for a client
type Subscription struct {
	AllEvents   bool        `json:"allEvents"`
	EventTypes  []EventType `json:"eventTypes"`
	Chains      []string    `json:"chains"`      // Watch specific chains
	BlockedOnly bool        `json:"blockedOnly"` // Only blocked validations
}

// matches reports whether an event passes the subscription's filters.
func (s Subscription) matches(event *Event) bool {
	if s.AllEvents {
		return true
	}
	if len(s.EventTypes) > 0 && !slices.Contains(s.EventTypes, event.Type) {
		return false
	}

	ve, ok := event.Data.(ValidationEvent)
	if !ok {
		// Chain and blocked filters only apply to validation payloads.
		return true
	}
	if len(s.Chains) > 0 && !slices.Contains(s.Chains, ve.Chain) {
		return false
	}
	if s.BlockedOnly && ve.IsValid {
		return false
	}
	return true
}

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	sub  Subscription
}

// Hub manages all WebSocket connections
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
	maxClients int

	// Stats
	totalEvents  atomic.Int64
	totalClients atomic.Int64
	peakClients  atomic.Int64
}

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
		maxClients: MaxClients,
	}
}

// Run drives the hub until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		case event := <-h.broadcast:
			h.dispatch(event)
		}
	}
}

func (h *Hub) shutdown() {
	h.logger.Info("realtime hub shutting down, closing client connections")
	h.mu.Lock()
	for client := range h.clients {
		close(client.send) // writePump sends CloseMessage on closed channel
		delete(h.clients, client)
	}
	h.mu.Unlock()
	metrics.ActiveEventClients.Set(0)
	h.logger.Info("realtime hub stopped")
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.totalClients.Add(1)
	if current := int64(len(h.clients)); current > h.peakClients.Load() {
		h.peakClients.Store(current)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.ActiveEventClients.Set(float64(n))
	h.logger.Info("client connected", "total", n)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.ActiveEventClients.Set(float64(n))
	h.logger.Info("client disconnected", "total", n)
}

// dispatch fans an event out to every subscribed client. Clients whose
// send buffer is full get dropped rather than stalling the loop.
func (h *Hub) dispatch(event *Event) {
	h.totalEvents.Add(1)
	payload, _ := json.Marshal(event)

	var slow []*Client
	h.mu.RLock()
	for client := range h.clients {
		if !h.shouldSend(client, event) {
			continue
		}
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	if len(slow) > 0 {
		h.mu.Lock()
		for _, client := range slow {
			if _, ok := h.clients[client]; ok {
				close(client.send)
				delete(h.clients, client)
			}
		}
		h.mu.Unlock()
	}
}

func (h *Hub) shouldSend(client *Client, event *Event) bool {
	client.mu.RLock()
	sub := client.sub
	client.mu.RUnlock()
	return sub.matches(event)
}

// Broadcast queues an event for delivery, dropping it if the queue is full.
func (h *Hub) Broadcast(event *Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event")
	}
}

// BroadcastValidation sends a validation decision event
func (h *Hub) BroadcastValidation(ve ValidationEvent) {
	h.Broadcast(&Event{
		Type:      EventValidation,
		Timestamp: time.Now(),
		Data:      ve,
	})
}

// BroadcastEmergencyStop sends an emergency-stop transition event
func (h *Hub) BroadcastEmergencyStop(active bool) {
	h.Broadcast(&Event{
		Type:      EventEmergencyStop,
		Timestamp: time.Now(),
		Data:      map[string]bool{"active": active},
	})
}

// Stats returns hub statistics
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"connectedClients": len(h.clients),
		"totalEvents":      h.totalEvents.Load(),
		"totalClients":     h.totalClients.Load(),
		"peakClients":      h.peakClients.Load(),
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades HTTP to WebSocket
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Reject upgrades after the hub has stopped to prevent orphaned connections.
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	if h.ClientCount() >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true}, // Default: all events
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump consumes subscription updates until the peer disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		// Any well-formed message replaces the subscription.
		var sub Subscription
		if err := json.Unmarshal(message, &sub); err == nil {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}
	}
}

// writePump delivers queued events and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
