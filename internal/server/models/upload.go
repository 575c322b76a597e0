package models

import "time"

// Upload statuses. Completed, failed and cancelled are terminal.
const (
	UploadStatusPending   = "pending"
	UploadStatusUploading = "uploading"
	UploadStatusCompleted = "completed"
	UploadStatusFailed    = "failed"
	UploadStatusCancelled = "cancelled"
)

// Upload is the ledger record of one chunked, resumable transfer.
// The chunk rows live separately, keyed by (upload id, chunk index).
type Upload struct {
	ID          string
	RoomID      string
	UploaderID  string
	Filename    string
	MimeType    string
	Size        int64
	StorageKey  string
	MultipartID string // external multi-part-transfer id (S3)
	Encrypted   bool
	EncryptIV   []byte
	TotalChunks int
	Status      string
	ItemID      string // set once finalize materializes the item
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// TerminalStatus reports whether no further chunk acks are accepted.
func (u *Upload) TerminalStatus() bool {
	switch u.Status {
	case UploadStatusCompleted, UploadStatusFailed, UploadStatusCancelled:
		return true
	}
	return false
}

// Chunk is one addressable byte-range unit of an upload.
type Chunk struct {
	UploadID string
	Index    int
	ETag     string
	Uploaded bool
}

// Progress computes the ceiling percentage of uploaded chunks.
func Progress(uploaded, total int) int {
	if total <= 0 {
		return 0
	}
	return (100*uploaded + total - 1) / total
}
