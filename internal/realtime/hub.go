// Package realtime tracks live connections and the chat rooms they joined.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrNoListeners is returned by emitters when nobody in the room received the event.
var ErrNoListeners = errors.New("realtime: no listeners in room")

// Client is one live connection. Send must not block; it reports false when the
// frame could not be queued.
type Client interface {
	ID() string
	Send(frame []byte) bool
}

// Envelope is the frame written to clients.
type Envelope struct {
	Event   string          `json:"event"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub maps rooms to joined clients. Rooms exist while they have members. All
// bookkeeping happens under one mutex, so concurrent joins to the same room never
// create two rooms.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string]map[Client]struct{}
	clients map[Client]map[string]struct{}
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:   make(map[string]map[Client]struct{}),
		clients: make(map[Client]map[string]struct{}),
		logger:  logger,
	}
}

// OnConnect registers a client with no rooms.
func (h *Hub) OnConnect(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		h.clients[c] = make(map[string]struct{})
	}
}

// OnDisconnect removes the client from every room it joined.
func (h *Hub) OnDisconnect(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.clients[c] {
		h.removeLocked(c, room)
	}
	delete(h.clients, c)
}

// Join adds c to room. A client may be in many rooms.
func (h *Hub) Join(c Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}

	joined, ok := h.clients[c]
	if !ok {
		joined = make(map[string]struct{})
		h.clients[c] = joined
	}
	joined[room] = struct{}{}
}

// Leave removes c from room.
func (h *Hub) Leave(c Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, room)
	if joined, ok := h.clients[c]; ok {
		delete(joined, room)
	}
}

func (h *Hub) removeLocked(c Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Emit writes event to every client in room and returns how many accepted it.
func (h *Hub) Emit(_ context.Context, room, event string, payload any) int {
	frame, err := encode(room, event, payload)
	if err != nil {
		h.logger.Warn("encode realtime event failed", zap.String("event", event), zap.Error(err))
		return 0
	}
	return h.deliver(room, frame)
}

func (h *Hub) deliver(room string, frame []byte) int {
	h.mu.Lock()
	members := make([]Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.Unlock()

	delivered := 0
	for _, c := range members {
		if c.Send(frame) {
			delivered++
		} else {
			h.logger.Debug("client send buffer full", zap.String("client_id", c.ID()), zap.String("room", room))
		}
	}
	return delivered
}

// RoomSize returns the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Rooms lists the rooms c has joined.
func (h *Hub) Rooms(c Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms := make([]string, 0, len(h.clients[c]))
	for room := range h.clients[c] {
		rooms = append(rooms, room)
	}
	return rooms
}

func encode(room, event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Room: room, Payload: raw})
}

// LocalEmitter emits on a single hub.
type LocalEmitter struct {
	hub *Hub
}

// NewLocalEmitter wraps hub.
func NewLocalEmitter(hub *Hub) *LocalEmitter {
	return &LocalEmitter{hub: hub}
}

// Emit returns ErrNoListeners when no client in room received the event.
func (e *LocalEmitter) Emit(ctx context.Context, room, event string, payload any) error {
	if e.hub.Emit(ctx, room, event, payload) == 0 {
		return ErrNoListeners
	}
	return nil
}
