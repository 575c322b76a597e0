package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/protocol"
	"github.com/akarpovs/roomdrop/internal/server/auth"
)

// outboundBuffer bounds the per-connection event queue. A subscriber that
// cannot drain this many events is dropped by the hub rather than allowed
// to stall its room.
const outboundBuffer = 64

const writeTimeout = 10 * time.Second

// wsConn adapts one websocket to the hub's Conn interface. TrySend enqueues
// without blocking; a dedicated writer goroutine owns all writes so events
// for a room reach the socket in publish order.
type wsConn struct {
	sock   *websocket.Conn
	out    chan protocol.Event
	cancel context.CancelFunc
}

func newWSConn(sock *websocket.Conn, cancel context.CancelFunc) *wsConn {
	return &wsConn{
		sock:   sock,
		out:    make(chan protocol.Event, outboundBuffer),
		cancel: cancel,
	}
}

func (c *wsConn) TrySend(event protocol.Event) bool {
	select {
	case c.out <- event:
		return true
	default:
		return false
	}
}

func (c *wsConn) Kick() {
	c.cancel()
}

func (c *wsConn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.out:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c.sock, event)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}

// handleWebSocket runs one room socket: accept, wait for room:join, then
// relay inbound events until the peer disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	sock, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := newWSConn(sock, cancel)
	go conn.writeLoop(ctx)

	defer func() {
		s.hub.Unsubscribe(conn)
		sock.Close(websocket.StatusNormalClosure, "")
	}()

	var roomCode, peerID string

	for {
		var event protocol.Event
		if err := wsjson.Read(ctx, sock, &event); err != nil {
			return
		}

		switch event.Type {
		case protocol.EventPing:
			conn.TrySend(protocol.Event{Type: protocol.EventPong})

		case protocol.EventRoomJoin:
			code, peer, err := s.handleJoin(ctx, conn, actor, event.Payload)
			if err != nil {
				s.sendError(conn, err)
				continue
			}
			roomCode, peerID = code, peer

		case protocol.EventRoomLeave:
			s.hub.Unsubscribe(conn)
			roomCode, peerID = "", ""

		case protocol.EventItemCreate, protocol.EventItemUpdate, protocol.EventItemDelete:
			if roomCode == "" {
				s.sendError(conn, common.ErrValidation)
				continue
			}
			if err := s.handleItemEvent(ctx, conn, actor, roomCode, event); err != nil {
				s.sendError(conn, err)
			}

		case protocol.EventSignalRelay:
			if roomCode == "" {
				s.sendError(conn, common.ErrValidation)
				continue
			}
			s.handleSignal(conn, roomCode, peerID, event.Payload)

		default:
			s.sendError(conn, common.ErrValidation)
		}
	}
}

// handleJoin enforces the room's access policy, subscribes the connection
// and answers with the atomically-taken presence snapshot.
func (s *Server) handleJoin(ctx context.Context, conn *wsConn, actor auth.Actor, payload json.RawMessage) (string, string, error) {
	var req protocol.JoinPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return "", "", common.ErrValidation
	}
	if req.RoomCode == "" || req.PeerID == "" {
		return "", "", common.ErrValidation
	}

	room, err := s.rooms.Join(ctx, req.RoomCode, req.Password, actor.ID)
	if err != nil {
		return "", "", err
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = actor.DisplayName
	}

	snapshot := s.hub.Subscribe(conn, room.Code, req.PeerID, displayName)

	peers, err := protocol.NewEvent(protocol.EventRoomPeers, protocol.PeersPayload{Peers: snapshot})
	if err != nil {
		return "", "", err
	}
	conn.TrySend(peers)

	return room.Code, req.PeerID, nil
}

// handleItemEvent applies an inbound mutation through the item service and
// broadcasts the authoritative result to the rest of the room.
func (s *Server) handleItemEvent(ctx context.Context, conn *wsConn, actor auth.Actor, roomCode string, event protocol.Event) error {
	room, err := s.rooms.Get(ctx, roomCode)
	if err != nil {
		return err
	}

	switch event.Type {
	case protocol.EventItemCreate:
		var req protocol.ItemCreatePayload
		if err := json.Unmarshal(event.Payload, &req); err != nil {
			return common.ErrValidation
		}
		item, err := s.items.Create(ctx, room, actor.ID, req.ID, req.Type, req.Name, req.Content, req.ParentID)
		if err != nil {
			return err
		}
		return s.replyAndBroadcast(conn, roomCode, protocol.EventItemCreated, protocol.ItemPayload{Item: toWireItem(item, roomCode)})

	case protocol.EventItemUpdate:
		var req protocol.ItemUpdatePayload
		if err := json.Unmarshal(event.Payload, &req); err != nil {
			return common.ErrValidation
		}
		item, err := s.items.Update(ctx, req.ID, actor.ID, req.Name, req.Content)
		if err != nil {
			return err
		}
		return s.replyAndBroadcast(conn, roomCode, protocol.EventItemUpdated, protocol.ItemPayload{Item: toWireItem(item, roomCode)})

	case protocol.EventItemDelete:
		var req protocol.ItemDeletePayload
		if err := json.Unmarshal(event.Payload, &req); err != nil {
			return common.ErrValidation
		}
		if _, err := s.items.Delete(ctx, req.ID); err != nil {
			return err
		}
		return s.replyAndBroadcast(conn, roomCode, protocol.EventItemDeleted, protocol.ItemDeletedPayload{ItemID: req.ID})
	}

	return common.ErrValidation
}

// replyAndBroadcast echoes the authoritative event to the originator and
// fans it out to everyone else in the room.
func (s *Server) replyAndBroadcast(conn *wsConn, roomCode string, t protocol.EventType, payload any) error {
	event, err := protocol.NewEvent(t, payload)
	if err != nil {
		return err
	}
	conn.TrySend(event)
	s.hub.PublishExcept(roomCode, event, conn)
	return nil
}

// handleSignal relays an opaque signaling payload, never inspecting it.
func (s *Server) handleSignal(conn *wsConn, roomCode, fromPeerID string, payload json.RawMessage) {
	var req protocol.SignalPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(conn, common.ErrValidation)
		return
	}
	req.FromPeerID = fromPeerID

	event, err := protocol.NewEvent(protocol.EventSignalRelay, req)
	if err != nil {
		return
	}

	if req.TargetPeerID != "" {
		if !s.hub.SendTo(roomCode, req.TargetPeerID, event) {
			s.sendError(conn, common.ErrNotFound)
		}
		return
	}
	s.hub.PublishExcept(roomCode, event, conn)
}

func (s *Server) sendError(conn *wsConn, err error) {
	_, code := classify(err)
	msg := err.Error()
	if errors.Is(err, common.ErrInternal) {
		msg = "internal error"
	}
	event, mErr := protocol.NewEvent(protocol.EventError, protocol.ErrorPayload{Code: code, Message: msg})
	if mErr != nil {
		return
	}
	conn.TrySend(event)
}
