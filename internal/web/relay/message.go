package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nickmessing/firemodel/internal/orm/dispatch"
)

// Message types exchanged with clients
const (
	TypeEvent     = "event"
	TypeError     = "error"
	TypePing      = "ping"
	TypePong      = "pong"
	TypeJoin      = "join"
	TypeJoined    = "joined"
	TypeLeave     = "leave"
	TypeLeft      = "left"
	TypeWatch     = "watch"
	TypeWatching  = "watching"
	TypeUnwatch   = "unwatch"
	TypeUnwatched = "unwatched"
)

// AllRoom receives the events of every model
const AllRoom = "*"

// Message is the JSON envelope of every frame
type Message struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Payload interface{}     `json:"-"`
}

// MessageHandler handles one incoming message type
type MessageHandler func(ctx context.Context, client *Client, message *Message) error

// EventMessage wraps a model event
func EventMessage(e dispatch.Event) *Message {
	return &Message{Type: TypeEvent, Payload: e}
}

// marshalMessage encodes Payload into Data, then the envelope
func marshalMessage(message *Message) ([]byte, error) {
	if message.Payload != nil {
		data, err := json.Marshal(message.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		message.Data = data
	}
	return json.Marshal(message)
}

type roomRequest struct {
	Room string `json:"room"`
}

func decodeRoom(message *Message) (string, error) {
	var req roomRequest
	if err := json.Unmarshal(message.Data, &req); err != nil {
		return "", fmt.Errorf("invalid %s request: %w", message.Type, err)
	}
	if req.Room == "" {
		return "", fmt.Errorf("room name is required")
	}
	return req.Room, nil
}

// PingHandler answers ping with pong
func PingHandler(ctx context.Context, client *Client, message *Message) error {
	return client.SendJSON(TypePong, message.Data)
}

// JoinHandler adds the client to a room, usually a model's plural name
func JoinHandler(ctx context.Context, client *Client, message *Message) error {
	room, err := decodeRoom(message)
	if err != nil {
		return err
	}
	client.hub.JoinRoom(client, room)
	return client.SendJSON(TypeJoined, roomRequest{Room: room})
}

// LeaveHandler removes the client from a room
func LeaveHandler(ctx context.Context, client *Client, message *Message) error {
	room, err := decodeRoom(message)
	if err != nil {
		return err
	}
	client.hub.LeaveRoom(client, room)
	return client.SendJSON(TypeLeft, roomRequest{Room: room})
}
