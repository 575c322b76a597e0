package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/akarpovs/roomdrop/internal/client/sync"
	"github.com/akarpovs/roomdrop/internal/client/transport"
	"github.com/akarpovs/roomdrop/internal/protocol"
)

// Watch streams room events until the user presses Enter. Incoming item
// events are folded into the local cache so a later 'list' works offline.
func (a *App) Watch(ctx context.Context) {
	if !a.requireRoom() {
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	socket, err := transport.Dial(watchCtx, a.config.ServerAddr, a.config.Token, protocol.JoinPayload{
		RoomCode:    a.roomCode,
		PeerID:      a.config.PeerID,
		DisplayName: a.config.DisplayName,
	})
	if err != nil {
		fmt.Println("watch failed:", err)
		return
	}

	go func() {
		for {
			event, err := socket.Read(watchCtx)
			if err != nil {
				return
			}
			a.printEvent(watchCtx, event)
		}
	}()

	fmt.Println("watching (press Enter to stop)...")
	_, _ = a.reader.ReadString('\n')
	_ = socket.Leave(context.Background())
}

func (a *App) printEvent(ctx context.Context, event protocol.Event) {
	switch event.Type {

	case protocol.EventRoomPeers:
		var p protocol.PeersPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			fmt.Printf("<< %d peer(s) in room\n", len(p.Peers))
		}

	case protocol.EventRoomPeerJoined:
		var p protocol.Peer
		if json.Unmarshal(event.Payload, &p) == nil {
			fmt.Printf("<< peer joined: %s %s\n", p.PeerID, p.DisplayName)
		}

	case protocol.EventRoomPeerLeft:
		var p protocol.PeerLeftPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			fmt.Printf("<< peer left: %s\n", p.PeerID)
		}

	case protocol.EventItemCreated, protocol.EventItemUpdated:
		var p protocol.ItemPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			fmt.Printf("<< %s: %s v%d\n", event.Type, p.Item.ID, p.Item.Version)
			if err := a.repos.Cache.Upsert(ctx, sync.CachedFromWire(&p.Item)); err != nil {
				a.logger.Warn(ctx, "cache merge error", "error", err)
			}
		}

	case protocol.EventItemDeleted:
		var p protocol.ItemDeletedPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			fmt.Printf("<< item deleted: %s\n", p.ItemID)
			if err := a.repos.Cache.MarkDeleted(ctx, p.ItemID); err != nil {
				a.logger.Warn(ctx, "cache merge error", "error", err)
			}
		}

	case protocol.EventError:
		var p protocol.ErrorPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			fmt.Printf("<< error: %s %s\n", p.Code, p.Message)
		}

	default:
		fmt.Printf("<< %s\n", event.Type)
	}
}
