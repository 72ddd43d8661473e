package http

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// envelope frames every inbound message.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// client is one registered websocket connection. Writes go through the send
// channel so a single writer goroutine owns the conn.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks live connections and their room membership so the dispatcher can
// emit to one connection or to every connection in a room. Emission never
// blocks: a slow client's full buffer drops the frame rather than stalling
// the rest of the room.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]*client
	member  map[string]string // conn id -> room code
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),
		member:  make(map[string]string),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

// unregister removes the connection and returns the room it was in, if any.
// The send channel is closed under the lock so no concurrent emit can reach
// a closed channel.
func (h *Hub) unregister(connID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return ""
	}
	code := h.member[connID]
	h.removeFromRoomLocked(connID, code)
	delete(h.clients, connID)
	delete(h.member, connID)
	close(c.send)
	return code
}

func (h *Hub) joinRoom(connID, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if prev := h.member[connID]; prev != "" && prev != code {
		h.removeFromRoomLocked(connID, prev)
	}
	if _, ok := h.rooms[code]; !ok {
		h.rooms[code] = make(map[string]*client)
	}
	h.rooms[code][connID] = c
	h.member[connID] = code
}

func (h *Hub) leaveRoom(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	code := h.member[connID]
	h.removeFromRoomLocked(connID, code)
	delete(h.member, connID)
}

// clearRoom detaches every connection from a room (host close).
func (h *Hub) clearRoom(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for connID := range h.rooms[code] {
		delete(h.member, connID)
	}
	delete(h.rooms, code)
}

func (h *Hub) removeFromRoomLocked(connID, code string) {
	if code == "" {
		return
	}
	if members, ok := h.rooms[code]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, code)
		}
	}
}

// SendTo emits a typed event to a single connection.
func (h *Hub) SendTo(connID, eventType string, payload any) {
	frame, err := json.Marshal(outboundMessage{Type: eventType, Payload: payload})
	if err != nil {
		log.Printf("marshal %s event: %v", eventType, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// BroadcastToRoom emits a typed event to every connection in a room.
func (h *Hub) BroadcastToRoom(code, eventType string, payload any) {
	frame, err := json.Marshal(outboundMessage{Type: eventType, Payload: payload})
	if err != nil {
		log.Printf("marshal %s broadcast: %v", eventType, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[code] {
		select {
		case c.send <- frame:
		default:
		}
	}
}
