package cli

import (
	"context"
	"fmt"
)

// SyncNow forces a drain of the pending queue.
func (a *App) SyncNow(ctx context.Context) {
	if err := a.engine.SyncNow(ctx); err != nil {
		fmt.Println("sync failed:", err)
	}
}

// ShowPending reports how many ops still await replay.
func (a *App) ShowPending(ctx context.Context) {
	n, err := a.repos.Queue.PendingCount(ctx)
	if err != nil {
		fmt.Println("pending failed:", err)
		return
	}
	fmt.Printf("%d pending operation(s)\n", n)
}

// ShowFailed lists permanently failed ops.
func (a *App) ShowFailed(ctx context.Context) {
	ops, err := a.repos.Queue.Failed(ctx)
	if err != nil {
		fmt.Println("failed:", err)
		return
	}
	if len(ops) == 0 {
		fmt.Println("no failed operations")
		return
	}
	for _, op := range ops {
		fmt.Printf("%s  %s  %s  %s\n", op.ID, op.Kind, op.ResourceID, op.LastError)
	}
}

// RetryOp moves a failed op back to pending. Usage: retry <op-id>.
func (a *App) RetryOp(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: retry <op-id>")
		return
	}
	if err := a.repos.Queue.Retry(ctx, args[0]); err != nil {
		fmt.Println("retry failed:", err)
		return
	}
	a.SyncNow(ctx)
}

// DiscardOp drops a failed op without replaying it. Usage: discard <op-id>.
func (a *App) DiscardOp(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: discard <op-id>")
		return
	}
	if err := a.repos.Queue.Discard(ctx, args[0]); err != nil {
		fmt.Println("discard failed:", err)
	}
}
