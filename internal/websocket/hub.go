// Package notifyws pushes invoice events to connected users over websockets.
package notifyws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/saeid-a/CoachOps/internal/services"
)

// Hub fans events out to every open connection of each recipient. It
// implements services.Notifier and never blocks the caller.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan services.Event
	done       chan struct{}
	logger     *slog.Logger
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Message is the frame written to clients.
type Message struct {
	Type           string         `json:"type"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	Timestamp      string         `json:"timestamp"`
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan services.Event, 64),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

// Run owns the client registry until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for userID, set := range h.clients {
				for client := range set {
					close(client.send)
				}
				delete(h.clients, userID)
			}
			return
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.send)
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Notify queues event for delivery. A full queue drops the event.
func (h *Hub) Notify(ctx context.Context, event services.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.WarnContext(ctx, "notification dropped",
			"type", event.Type,
			"organization_id", event.OrganizationID,
		)
	}
}

func (h *Hub) deliver(event services.Event) {
	encoded, err := json.Marshal(Message{
		Type:           event.Type,
		OrganizationID: event.OrganizationID,
		Payload:        event.Payload,
		Timestamp:      formatTimestamp(event.OccurredAt),
	})
	if err != nil {
		h.logger.Error("notification hub encode event", "type", event.Type, "error", err)
		return
	}

	seen := make(map[string]struct{}, len(event.RecipientIDs))
	for _, userID := range event.RecipientIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		h.sendToUser(userID, encoded)
	}
}

func (h *Hub) sendToUser(userID string, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		select {
		case client.send <- payload:
		default:
			delete(set, client)
			close(client.send)
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

// ReadPump drains the connection until it closes. Clients only listen, so
// inbound frames are discarded.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}
