package cli

import (
	"fmt"

	"github.com/akarpovs/roomdrop/internal/client/models"
	"github.com/akarpovs/roomdrop/internal/protocol"
)

// printObserver narrates drain progress on stdout.
type printObserver struct{}

func (printObserver) SyncStarted() {}

func (printObserver) OpSynced(op models.PendingOp, item *protocol.Item) {
	if item != nil {
		fmt.Printf("synced %s %s (v%d)\n", op.Kind, item.ID, item.Version)
	} else {
		fmt.Printf("synced %s %s\n", op.Kind, op.ResourceID)
	}
}

func (printObserver) OpFailed(op models.PendingOp, err error, permanent bool) {
	if permanent {
		fmt.Printf("FAILED %s %s: %v (use 'retry %s' or 'discard %s')\n", op.Kind, op.ResourceID, err, op.ID, op.ID)
	} else {
		fmt.Printf("retrying %s %s later: %v\n", op.Kind, op.ResourceID, err)
	}
}

func (printObserver) SyncFinished(synced, failed int) {
	if synced > 0 || failed > 0 {
		fmt.Printf("sync finished: %d ok, %d failed\n", synced, failed)
	}
}
