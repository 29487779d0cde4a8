// Package relay fans model events out to websocket clients grouped in
// rooms named after model plural names
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/nickmessing/firemodel/internal/orm/dispatch"
)

// ErrDropped is returned when the broadcast queue is full
var ErrDropped = errors.New("relay broadcast queue full")

type broadcast struct {
	rooms []string
	data  []byte
}

// Hub tracks connected clients and their rooms
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcast

	handlersMu   sync.RWMutex
	handlers     map[string]MessageHandler
	disconnectFn []func(*Client)

	logger *zap.Logger
	done   chan struct{}
}

// NewHub creates a hub with the ping, join and leave handlers registered
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		broadcast:  make(chan broadcast, 1024),
		handlers:   make(map[string]MessageHandler),
		logger:     logger,
		done:       make(chan struct{}),
	}
	h.RegisterHandler(TypePing, PingHandler)
	h.RegisterHandler(TypeJoin, JoinHandler)
	h.RegisterHandler(TypeLeave, LeaveHandler)
	return h
}

// RegisterHandler registers a handler for a message type
func (h *Hub) RegisterHandler(messageType string, handler MessageHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[messageType] = handler
}

// OnDisconnect registers fn to run on the hub goroutine after a client
// left the hub, including at shutdown
func (h *Hub) OnDisconnect(fn func(*Client)) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.disconnectFn = append(h.disconnectFn, fn)
}

func (h *Hub) disconnected(client *Client) {
	h.handlersMu.RLock()
	fns := h.disconnectFn
	h.handlersMu.RUnlock()
	for _, fn := range fns {
		fn(client)
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.cleanup()
			return

		case client := <-h.register:
			if client.isClosed() {
				continue
			}
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("relay client registered", zap.String("client", client.ID), zap.Int("clients", count))

		case client := <-h.unregister:
			h.remove(client)

		case b := <-h.broadcast:
			h.deliver(b)
		}
	}
}

// Done is closed once Run returned
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	for room, members := range h.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	count := len(h.clients)
	h.mu.Unlock()

	client.close()
	if ok {
		h.logger.Debug("relay client unregistered", zap.String("client", client.ID), zap.Int("clients", count))
		h.disconnected(client)
	}
}

func (h *Hub) deliver(b broadcast) {
	h.mu.RLock()
	targets := make(map[*Client]bool)
	for _, room := range b.rooms {
		for client := range h.rooms[room] {
			targets[client] = true
		}
	}
	h.mu.RUnlock()

	for client := range targets {
		if err := client.sendRaw(b.data); err != nil {
			h.logger.Debug("skipping relay client", zap.String("client", client.ID), zap.Error(err))
		}
	}
}

// Publish queues message for the clients of rooms
func (h *Hub) Publish(message *Message, rooms ...string) error {
	data, err := marshalMessage(message)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- broadcast{rooms: rooms, data: data}:
		return nil
	default:
		return ErrDropped
	}
}

// PublishEvent queues a model event for the model's room and AllRoom
func (h *Hub) PublishEvent(e dispatch.Event) error {
	return h.Publish(EventMessage(e), e.PluralName, AllRoom)
}

// Listener returns a dispatch listener publishing every event it receives
func (h *Hub) Listener() *dispatch.Listener {
	return &dispatch.Listener{
		Name: "relay",
		Fn: func(ctx context.Context, e dispatch.Event) error {
			return h.PublishEvent(e)
		},
	}
}

// JoinRoom adds a client to a room
func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
}

// LeaveRoom removes a client from a room
func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// RoomSize returns the number of clients in room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of rooms with at least one client
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// HandleMessage routes one incoming frame to its handler
func (h *Hub) HandleMessage(ctx context.Context, client *Client, data []byte) error {
	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		return err
	}

	h.handlersMu.RLock()
	handler, ok := h.handlers[message.Type]
	h.handlersMu.RUnlock()
	if !ok {
		return errors.New("unknown message type: " + message.Type)
	}
	return handler(ctx, client, &message)
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.rooms = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	h.logger.Info("relay shutting down", zap.Int("clients", len(clients)))
	for _, client := range clients {
		client.close()
		h.disconnected(client)
	}
}
