package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

func (a *App) Main(ctx context.Context) {

	fmt.Println("roomdrop CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("roomdrop %s [%s] > ", a.roomCode, a.Mode)
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			fmt.Println("Rooms:  create [access] [password], join <code> [password], leave")
			fmt.Println("Items:  list, add <text...>, update <id> <text...>, del <id>, history <id>")
			fmt.Println("Files:  upload <path>")
			fmt.Println("Sync:   sync, pending, failed, retry <op-id>, discard <op-id>")
			fmt.Println("Live:   watch (Enter to stop)")
			fmt.Println("Other:  exit")

		case "create":
			a.CreateRoom(ctx, args)
		case "join":
			a.JoinRoom(ctx, args)
		case "leave":
			a.roomCode = ""

		case "list":
			a.ListItems(ctx)
		case "add":
			a.AddItem(ctx, args)
		case "update":
			a.UpdateItem(ctx, args)
		case "del":
			a.DeleteItem(ctx, args)
		case "history":
			a.ShowHistory(ctx, args)

		case "upload":
			a.UploadFile(ctx, args)

		case "sync":
			a.SyncNow(ctx)
		case "pending":
			a.ShowPending(ctx)
		case "failed":
			a.ShowFailed(ctx)
		case "retry":
			a.RetryOp(ctx, args)
		case "discard":
			a.DiscardOp(ctx, args)

		case "watch":
			a.Watch(ctx)

		case "exit", "quit":
			fmt.Println("Bye!")
			return

		default:
			fmt.Println("Unknown command:", cmd)
		}
	}
}

func (a *App) requireRoom() bool {
	if a.roomCode == "" {
		fmt.Println("Join a room first: join <code>")
		return false
	}
	return true
}
