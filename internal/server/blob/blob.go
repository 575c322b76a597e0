// Package blob stores upload bytes on an S3-compatible backend. Each chunked
// transfer maps onto one S3 multipart upload: the multipart id is the
// external transfer id kept on the ledger, chunk slots map to part numbers
// (chunk index + 1) and finalize completes the multipart with the collected
// etags.
package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the subset of object-storage operations the upload service needs.
type Store interface {
	// CreateMultipart starts a multipart upload for key and returns its id.
	CreateMultipart(ctx context.Context, key, mimeType string) (string, error)

	// PresignPart returns a temporary PUT URL for one part of the multipart.
	PresignPart(ctx context.Context, key, multipartID string, partNumber int32) (string, error)

	// CompleteMultipart assembles the object from its parts. Etags are
	// ordered by part number.
	CompleteMultipart(ctx context.Context, key, multipartID string, etags []string) error

	// AbortMultipart discards an unfinished multipart upload and its parts.
	AbortMultipart(ctx context.Context, key, multipartID string) error

	// PresignGet returns a temporary GET URL for a completed object.
	PresignGet(ctx context.Context, key string) (string, error)
}

// RandomStorageKey generates a date-sharded object key for a new upload.
func RandomStorageKey(roomID string) string {
	d := time.Now()
	return fmt.Sprintf("rooms/%s/%d/%d/%d/%v", roomID, d.Year(), d.Month(), d.Day(), uuid.New())
}
