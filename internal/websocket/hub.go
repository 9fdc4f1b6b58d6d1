package websocket

import (
	"sync"

	"github.com/rs/zerolog"
)

// Client is one websocket connection as seen by the hub. Outbound frames
// are queued on a buffered channel drained by the connection's writer.
type Client struct {
	ID        string
	StudentID int

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// Outbox is drained by the connection's write pump. It is closed when the
// client is unregistered.
func (c *Client) Outbox() <-chan []byte {
	return c.send
}

// Push queues msg without blocking. It returns false when the client is
// gone or its buffer is full.
func (c *Client) Push(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub groups clients into named rooms for broadcasting.
type Hub struct {
	sendBuffer int
	log        zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	joined  map[string]map[string]struct{}
}

// NewHub creates a new Hub.
func NewHub(sendBuffer int, log zerolog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		sendBuffer: sendBuffer,
		log:        log.With().Str("component", "ws_hub").Logger(),
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		joined:     make(map[string]map[string]struct{}),
	}
}

// Register adds a client under id.
func (h *Hub) Register(id string, studentID int) *Client {
	c := &Client{ID: id, StudentID: studentID, send: make(chan []byte, h.sendBuffer)}

	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	return c
}

// Unregister removes the client from every room and closes its outbox.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, id)
	for room := range h.joined[id] {
		h.leaveLocked(room, id)
	}
	delete(h.joined, id)
	h.mu.Unlock()

	c.close()
}

// Subscribe adds a registered client to room. Unknown clients are ignored.
func (h *Hub) Subscribe(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[connID] = c

	rooms, ok := h.joined[connID]
	if !ok {
		rooms = make(map[string]struct{})
		h.joined[connID] = rooms
	}
	rooms[room] = struct{}{}
}

func (h *Hub) Unsubscribe(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(room, connID)
	delete(h.joined[connID], room)
}

// Publish sends one frame to every client of room. Clients with a full
// buffer miss the frame.
func (h *Hub) Publish(room, event string, payload any) {
	msg, err := Encode(event, nil, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("Failed to encode broadcast")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.rooms[room] {
		if !c.Push(msg) {
			h.log.Warn().Str("conn_id", id).Str("room", room).Str("event", event).Msg("Send buffer full, frame dropped")
		}
	}
}

// Close publishes a last frame to room and dissolves it. The clients stay
// registered.
func (h *Hub) Close(room, event string, payload any) {
	h.Publish(room, event, payload)

	h.mu.Lock()
	defer h.mu.Unlock()

	for id := range h.rooms[room] {
		delete(h.joined[id], room)
	}
	delete(h.rooms, room)
}

// Send queues a frame for one client.
func (h *Hub) Send(connID string, msg []byte) bool {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return c.Push(msg)
}

// RoomSize returns the number of clients subscribed to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll unregisters every client, ending their write pumps.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Unregister(id)
	}
}

// leaveLocked must be called with mu held.
func (h *Hub) leaveLocked(room, connID string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}
