// Package hub holds the process-local room state: the presence table and the
// broadcast bus that fans domain events out to every live connection
// subscribed to a room. Nothing in here is persisted; a restart clears it
// and clients re-announce on reconnect.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/akarpovs/roomdrop/internal/logging"
	"github.com/akarpovs/roomdrop/internal/protocol"
)

// Conn is one live subscriber connection. TrySend must not block: it either
// accepts the event into the connection's outbound buffer or reports the
// buffer full. Kick asks the transport to drop the connection.
type Conn interface {
	TrySend(event protocol.Event) bool
	Kick()
}

type subscriber struct {
	conn Conn
	peer protocol.Peer
}

// Hub implements the Room Presence Table and the Event Broadcast Bus. All
// access to the subscriber sets happens under one mutex, so a presence
// snapshot and the events published after it never leave a gap.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[Conn]*subscriber
	conns map[Conn]string // connection -> room code, for unsubscribe-all
	log   logging.Logger
}

func New(log logging.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[Conn]*subscriber),
		conns: make(map[Conn]string),
		log:   log,
	}
}

// Subscribe registers the connection under the room, announces the peer to
// the rest of the room and returns the presence snapshot, all atomically.
// The snapshot includes the joining peer itself.
func (h *Hub) Subscribe(conn Conn, roomCode string, peerID, displayName string) []protocol.Peer {
	peer := protocol.Peer{PeerID: peerID, DisplayName: displayName, JoinedAt: time.Now().UTC()}

	h.mu.Lock()

	// A reconnect on the same Conn replaces the previous entry.
	h.removeLocked(conn, false)

	room := h.rooms[roomCode]
	if room == nil {
		room = make(map[Conn]*subscriber)
		h.rooms[roomCode] = room
	}
	room[conn] = &subscriber{conn: conn, peer: peer}
	h.conns[conn] = roomCode

	snapshot := make([]protocol.Peer, 0, len(room))
	for _, sub := range room {
		snapshot = append(snapshot, sub.peer)
	}

	joined, err := protocol.NewEvent(protocol.EventRoomPeerJoined, peer)
	var overflowed []Conn
	if err == nil {
		overflowed = h.fanoutLocked(roomCode, joined, conn)
	}
	h.mu.Unlock()

	h.kick(overflowed)
	return snapshot
}

// Unsubscribe removes the connection from whatever room it joined and
// announces the departure. Safe to call for never-subscribed connections,
// which covers abrupt disconnects during the join handshake.
func (h *Hub) Unsubscribe(conn Conn) {
	h.mu.Lock()
	overflowed := h.removeLocked(conn, true)
	h.mu.Unlock()
	h.kick(overflowed)
}

func (h *Hub) removeLocked(conn Conn, announce bool) []Conn {
	roomCode, ok := h.conns[conn]
	if !ok {
		return nil
	}
	delete(h.conns, conn)

	room := h.rooms[roomCode]
	sub, ok := room[conn]
	if !ok {
		return nil
	}
	delete(room, conn)
	if len(room) == 0 {
		delete(h.rooms, roomCode)
	}

	if !announce {
		return nil
	}
	left, err := protocol.NewEvent(protocol.EventRoomPeerLeft, protocol.PeerLeftPayload{PeerID: sub.peer.PeerID})
	if err != nil {
		return nil
	}
	return h.fanoutLocked(roomCode, left, nil)
}

// Publish fans the event out to every current subscriber of the room.
// Delivery is at-most-once per connection: a full outbound buffer drops the
// connection instead of blocking the room.
func (h *Hub) Publish(roomCode string, event protocol.Event) {
	h.PublishExcept(roomCode, event, nil)
}

// PublishExcept is Publish minus one connection, used so a socket does not
// echo an event back to its originator.
func (h *Hub) PublishExcept(roomCode string, event protocol.Event, except Conn) {
	h.mu.Lock()
	overflowed := h.fanoutLocked(roomCode, event, except)
	h.mu.Unlock()
	h.kick(overflowed)
}

// SendTo delivers an event to a single peer of the room. Returns false when
// no such peer is connected to this instance.
func (h *Hub) SendTo(roomCode, peerID string, event protocol.Event) bool {
	h.mu.Lock()
	var target *subscriber
	for _, sub := range h.rooms[roomCode] {
		if sub.peer.PeerID == peerID {
			target = sub
			break
		}
	}
	var overflowed []Conn
	delivered := false
	if target != nil {
		if target.conn.TrySend(event) {
			delivered = true
		} else {
			overflowed = []Conn{target.conn}
		}
	}
	h.mu.Unlock()
	h.kick(overflowed)
	return delivered
}

// Snapshot returns the current presence entries of the room.
func (h *Hub) Snapshot(roomCode string) []protocol.Peer {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[roomCode]
	snapshot := make([]protocol.Peer, 0, len(room))
	for _, sub := range room {
		snapshot = append(snapshot, sub.peer)
	}
	return snapshot
}

func (h *Hub) fanoutLocked(roomCode string, event protocol.Event, except Conn) []Conn {
	var overflowed []Conn
	for conn, sub := range h.rooms[roomCode] {
		if conn == except {
			continue
		}
		if !sub.conn.TrySend(event) {
			overflowed = append(overflowed, conn)
		}
	}
	return overflowed
}

// kick drops connections whose buffers overflowed, outside the hub lock.
func (h *Hub) kick(conns []Conn) {
	for _, conn := range conns {
		h.log.Warn(context.Background(), "dropping slow subscriber")
		conn.Kick()
	}
}
