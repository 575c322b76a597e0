// Package protocol defines the wire format shared by the server socket
// handler and the client transport: a typed event envelope plus the payloads
// carried for room, item and signaling traffic.
package protocol

import (
	"encoding/json"
	"time"
)

// EventType names one event on the room socket.
type EventType string

// Inbound events (client -> server).
const (
	EventRoomJoin    EventType = "room:join"
	EventRoomLeave   EventType = "room:leave"
	EventItemCreate  EventType = "item:create"
	EventItemUpdate  EventType = "item:update"
	EventItemDelete  EventType = "item:delete"
	EventSignalRelay EventType = "signal:relay"
	EventPing        EventType = "ping"
)

// Outbound events (server -> client).
const (
	EventRoomPeers      EventType = "room:peers"
	EventRoomPeerJoined EventType = "room:peer-joined"
	EventRoomPeerLeft   EventType = "room:peer-left"
	EventItemCreated    EventType = "item:created"
	EventItemUpdated    EventType = "item:updated"
	EventItemDeleted    EventType = "item:deleted"
	EventError          EventType = "error"
	EventPong           EventType = "pong"
)

// Event is the envelope every socket message travels in. Payload holds the
// type-specific body, still encoded, so intermediaries (the relay path in
// particular) never have to understand it.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an envelope of the given type.
func NewEvent(t EventType, payload any) (Event, error) {
	if payload == nil {
		return Event{Type: t}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, Payload: b}, nil
}

// Peer describes one presence entry as seen on the wire.
type Peer struct {
	PeerID      string    `json:"peerId"`
	DisplayName string    `json:"displayName,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// JoinPayload announces a peer on a room socket.
type JoinPayload struct {
	RoomCode    string `json:"roomCode"`
	PeerID      string `json:"peerId"`
	DisplayName string `json:"displayName,omitempty"`
	Password    string `json:"password,omitempty"`
}

// PeersPayload is the presence snapshot returned to a joining peer.
type PeersPayload struct {
	Peers []Peer `json:"peers"`
}

// PeerLeftPayload notifies the room that a peer disconnected.
type PeerLeftPayload struct {
	PeerID string `json:"peerId"`
}

// Item is the wire representation of one shared unit of content.
type Item struct {
	ID        string          `json:"id"`
	RoomCode  string          `json:"roomCode"`
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	Content   json.RawMessage `json:"content"`
	ParentID  string          `json:"parentId,omitempty"`
	CreatedBy string          `json:"createdBy,omitempty"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ItemCreatePayload carries a new item from a peer.
type ItemCreatePayload struct {
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type"`
	Name     string          `json:"name"`
	Content  json.RawMessage `json:"content"`
	ParentID string          `json:"parentId,omitempty"`
}

// ItemUpdatePayload carries replacement content for an existing item.
type ItemUpdatePayload struct {
	ID      string          `json:"id"`
	Name    string          `json:"name,omitempty"`
	Content json.RawMessage `json:"content"`
}

// ItemDeletePayload names an item to delete.
type ItemDeletePayload struct {
	ID string `json:"id"`
}

// ItemPayload wraps an authoritative item in an outbound event.
type ItemPayload struct {
	Item Item `json:"item"`
}

// ItemDeletedPayload confirms a deletion to the room.
type ItemDeletedPayload struct {
	ItemID string `json:"itemId"`
}

// SignalPayload relays an opaque signaling blob between peers. The engine
// never interprets Data. TargetPeerID empty means broadcast to the room.
type SignalPayload struct {
	Data         json.RawMessage `json:"payload"`
	TargetPeerID string          `json:"targetPeerId,omitempty"`
	FromPeerID   string          `json:"fromPeerId,omitempty"`
}

// ErrorPayload reports a request failure on the socket.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
