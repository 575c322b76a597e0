package sync

import (
	"github.com/akarpovs/roomdrop/internal/client/models"
	"github.com/akarpovs/roomdrop/internal/protocol"
)

// Observer receives sync lifecycle signals from the drain worker.
type Observer interface {
	// SyncStarted fires when a drain begins.
	SyncStarted()
	// OpSynced fires after an op was replayed and acknowledged. item is the
	// authoritative server state, nil for deletions.
	OpSynced(op models.PendingOp, item *protocol.Item)
	// OpFailed fires when an op's replay failed. permanent reports whether
	// the op was parked (no further automatic retries).
	OpFailed(op models.PendingOp, err error, permanent bool)
	// SyncFinished fires when the drain stops, with op counts.
	SyncFinished(synced, failed int)
}

// NopObserver ignores all signals.
type NopObserver struct{}

func (NopObserver) SyncStarted() {}

func (NopObserver) OpSynced(models.PendingOp, *protocol.Item) {}

func (NopObserver) OpFailed(models.PendingOp, error, bool) {}

func (NopObserver) SyncFinished(int, int) {}
