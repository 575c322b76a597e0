// Package queue persists the client's pending-operation queue in sqlite.
package queue

import (
	"context"
	"time"

	"github.com/akarpovs/roomdrop/internal/client/models"
)

// Repository is the durable queue of operations awaiting replay.
type Repository interface {
	// Enqueue appends an operation to the queue.
	Enqueue(ctx context.Context, op *models.PendingOp) error
	// Due returns pending operations whose next attempt time has passed,
	// ordered by queue position.
	Due(ctx context.Context, now time.Time, limit int) ([]models.PendingOp, error)
	// MarkSyncing transitions a pending op to syncing.
	MarkSyncing(ctx context.Context, id string) error
	// MarkDone removes a successfully replayed op from the queue.
	MarkDone(ctx context.Context, id string) error
	// MarkPending returns an interrupted in-flight op to the queue.
	MarkPending(ctx context.Context, id string) error
	// RequeueTransient reschedules an op after a transient failure.
	RequeueTransient(ctx context.Context, id string, retryCount int, nextAttempt time.Time, lastErr string) error
	// MarkFailed parks an op as permanently failed.
	MarkFailed(ctx context.Context, id string, lastErr string) error
	// Failed lists permanently failed ops for surfacing to the user.
	Failed(ctx context.Context) ([]models.PendingOp, error)
	// Retry moves a failed op back to pending with a fresh retry budget.
	Retry(ctx context.Context, id string) error
	// Discard drops a failed op without replaying it.
	Discard(ctx context.Context, id string) error
	// PendingCount reports how many ops still await replay.
	PendingCount(ctx context.Context) (int, error)
}
