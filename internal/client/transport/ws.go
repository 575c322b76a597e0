package transport

import (
	"context"
	"fmt"
	"strings"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/protocol"
)

// Socket is a live room event stream.
type Socket struct {
	conn *websocket.Conn
}

// Dial opens the room websocket and announces the peer with a join event.
// The returned Socket is ready to read events; the first one is the room's
// presence snapshot.
func Dial(ctx context.Context, baseURL, token string, join protocol.JoinPayload) (*Socket, error) {
	wsURL := strings.Replace(strings.TrimRight(baseURL, "/"), "http", "ws", 1) + "/ws?token=" + token

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: websocket dial: %v", common.ErrTransient, err)
	}

	event, err := protocol.NewEvent(protocol.EventRoomJoin, join)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "encode error")
		return nil, err
	}
	if err := wsjson.Write(ctx, conn, event); err != nil {
		conn.Close(websocket.StatusInternalError, "write error")
		return nil, fmt.Errorf("%w: join write: %v", common.ErrTransient, err)
	}

	return &Socket{conn: conn}, nil
}

// Read blocks until the next event arrives.
func (s *Socket) Read(ctx context.Context) (protocol.Event, error) {
	var event protocol.Event
	if err := wsjson.Read(ctx, s.conn, &event); err != nil {
		return protocol.Event{}, fmt.Errorf("%w: websocket read: %v", common.ErrTransient, err)
	}
	return event, nil
}

// Send writes an event to the room socket.
func (s *Socket) Send(ctx context.Context, event protocol.Event) error {
	if err := wsjson.Write(ctx, s.conn, event); err != nil {
		return fmt.Errorf("%w: websocket write: %v", common.ErrTransient, err)
	}
	return nil
}

// Leave announces departure and closes the socket.
func (s *Socket) Leave(ctx context.Context) error {
	event, err := protocol.NewEvent(protocol.EventRoomLeave, nil)
	if err == nil {
		_ = wsjson.Write(ctx, s.conn, event)
	}
	return s.conn.Close(websocket.StatusNormalClosure, "leaving")
}

// Close tears the socket down without a leave announcement.
func (s *Socket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
