package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
)

// Message is the envelope of everything pushed to dashboard clients.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64
	log        *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		log:        log,
	}
}

// Run owns the client set until ctx is done; then every client is dropped.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for client := range h.clients {
			h.drop(client)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			h.log.Debug("websocket client registered", "remote", client.remote())

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.log.Debug("websocket client unregistered", "remote", client.remote())
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					h.log.Warn("websocket client send buffer full, removing", "remote", client.remote())
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.Send)
	h.count.Store(int64(len(h.clients)))
}

// Register adds a client. It reports false if the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Clients is the number of currently registered clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Broadcast queues a typed message for every client. It drops the message if the hub is backed up.
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	messageBytes, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		h.log.Error("marshalling broadcast", "type", msgType, "error", err)
		return
	}
	select {
	case h.broadcast <- messageBytes:
	default:
		h.log.Warn("broadcast queue full, dropping message", "type", msgType)
	}
}
