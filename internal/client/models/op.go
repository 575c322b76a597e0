// Package models defines client-side data models used by the roomdrop CLI.
package models

import "time"

// Operation kinds recorded in the pending queue.
const (
	OpItemCreate = "item:create"
	OpItemUpdate = "item:update"
	OpItemDelete = "item:delete"
	OpFileUpload = "file:upload"
)

// Pending-operation statuses.
const (
	OpStatusPending = "pending"
	OpStatusSyncing = "syncing"
	OpStatusFailed  = "failed"
	OpStatusDone    = "done"
)

// PendingOp is a durable record of a local mutation awaiting replay against
// the server. Ops are drained strictly in Seq order per resource.
type PendingOp struct {
	// Seq is the local, monotonically increasing queue position.
	Seq int64

	// ID is a globally unique identifier for the operation.
	ID string

	// Kind is one of the Op* constants.
	Kind string

	// RoomCode is the room the operation targets.
	RoomCode string

	// ResourceID identifies the item (or local file) the op belongs to.
	// Ops sharing a ResourceID never reorder relative to each other.
	ResourceID string

	// Payload is the JSON-encoded request body for the replay.
	Payload []byte

	// RetryCount counts transient failures so far.
	RetryCount int

	// Status is one of the OpStatus* constants.
	Status string

	// NextAttemptAt delays the op after a transient failure (backoff).
	NextAttemptAt time.Time

	// LastError records the most recent failure, for surfacing to the user.
	LastError string

	CreatedAt time.Time
}
