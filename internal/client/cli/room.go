package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/akarpovs/roomdrop/internal/client/transport"
)

// CreateRoom creates a room on the server. Usage: create [access] [password].
// Room creation is online-only; there is no meaningful offline fallback for
// acquiring a server-issued code.
func (a *App) CreateRoom(ctx context.Context, args []string) {
	access := "public"
	password := ""
	if len(args) > 0 {
		access = args[0]
	}
	if len(args) > 1 {
		password = args[1]
	}

	room, err := a.api.CreateRoom(ctx, transport.CreateRoomRequest{
		Mode:     "internet",
		Access:   access,
		Lifespan: "temporary",
		Password: password,
	})
	if err != nil {
		fmt.Println("create failed:", err)
		return
	}

	a.roomCode = room.Code
	fmt.Printf("room %s created (%s, %s)\n", room.Code, room.Access, room.Lifespan)
	if room.ExpiresAt != "" {
		fmt.Println("expires at:", room.ExpiresAt)
	}
}

// JoinRoom joins an existing room. Usage: join <code> [password].
func (a *App) JoinRoom(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: join <code> [password]")
		return
	}
	code := strings.ToUpper(args[0])
	password := ""
	if len(args) > 1 {
		password = args[1]
	}

	room, err := a.api.JoinRoom(ctx, code, password)
	if err != nil {
		fmt.Println("join failed:", err)
		return
	}

	a.roomCode = room.Code
	fmt.Printf("joined room %s\n", room.Code)
}
