package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/akarpovs/roomdrop/internal/client/models"
	"github.com/akarpovs/roomdrop/internal/client/sync"
	"github.com/akarpovs/roomdrop/internal/protocol"
)

// ListItems shows the local cache, refreshed from the server when online.
func (a *App) ListItems(ctx context.Context) {
	if !a.requireRoom() {
		return
	}

	if items, err := a.api.ListItems(ctx, a.roomCode); err == nil {
		for i := range items {
			if err := a.repos.Cache.Upsert(ctx, sync.CachedFromWire(&items[i])); err != nil {
				a.logger.Warn(ctx, "cache refresh error", "error", err)
			}
		}
	}

	cached, err := a.repos.Cache.ListByRoom(ctx, a.roomCode)
	if err != nil {
		fmt.Println("list failed:", err)
		return
	}
	if len(cached) == 0 {
		fmt.Println("no items")
		return
	}
	for _, item := range cached {
		fmt.Printf("%s  v%d  %-5s  %s  %s\n", item.ID, item.Version, item.Type, item.Name, previewContent(item.Content))
	}
}

// AddItem queues a text item for creation. Usage: add <text...>.
func (a *App) AddItem(ctx context.Context, args []string) {
	if !a.requireRoom() {
		return
	}
	if len(args) == 0 {
		fmt.Println("Usage: add <text...>")
		return
	}

	content, err := json.Marshal(strings.Join(args, " "))
	if err != nil {
		fmt.Println("add failed:", err)
		return
	}

	// The id is assigned locally so follow-up edits can queue behind the
	// create before the server has seen any of them.
	id := uuid.NewString()
	payload := protocol.ItemCreatePayload{ID: id, Type: "text", Content: content}

	op, err := a.engine.Enqueue(ctx, models.OpItemCreate, a.roomCode, id, payload)
	if err != nil {
		fmt.Println("add failed:", err)
		return
	}
	fmt.Printf("queued create %s (op %s)\n", id, op.ID)
}

// UpdateItem queues replacement content. Usage: update <id> <text...>.
func (a *App) UpdateItem(ctx context.Context, args []string) {
	if !a.requireRoom() {
		return
	}
	if len(args) < 2 {
		fmt.Println("Usage: update <id> <text...>")
		return
	}

	id := args[0]
	content, err := json.Marshal(strings.Join(args[1:], " "))
	if err != nil {
		fmt.Println("update failed:", err)
		return
	}

	payload := protocol.ItemUpdatePayload{ID: id, Content: content}
	op, err := a.engine.Enqueue(ctx, models.OpItemUpdate, a.roomCode, id, payload)
	if err != nil {
		fmt.Println("update failed:", err)
		return
	}
	fmt.Printf("queued update %s (op %s)\n", id, op.ID)
}

// DeleteItem queues a deletion. Usage: del <id>.
func (a *App) DeleteItem(ctx context.Context, args []string) {
	if !a.requireRoom() {
		return
	}
	if len(args) == 0 {
		fmt.Println("Usage: del <id>")
		return
	}

	id := args[0]
	op, err := a.engine.Enqueue(ctx, models.OpItemDelete, a.roomCode, id, protocol.ItemDeletePayload{ID: id})
	if err != nil {
		fmt.Println("delete failed:", err)
		return
	}
	fmt.Printf("queued delete %s (op %s)\n", id, op.ID)
}

// ShowHistory prints the retained version log. Usage: history <id>.
func (a *App) ShowHistory(ctx context.Context, args []string) {
	if !a.requireRoom() {
		return
	}
	if len(args) == 0 {
		fmt.Println("Usage: history <id>")
		return
	}

	versions, err := a.api.ItemVersions(ctx, a.roomCode, args[0], 0)
	if err != nil {
		fmt.Println("history failed:", err)
		return
	}
	for _, v := range versions {
		fmt.Printf("v%d  %s  %s  %s\n", v.Version, v.CreatedAt, v.Author, previewContent(v.Content))
	}
}

func previewContent(content []byte) string {
	s := string(content)
	if len(s) > 48 {
		s = s[:48] + "..."
	}
	return s
}
