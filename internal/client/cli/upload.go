package cli

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/akarpovs/roomdrop/internal/client/models"
	"github.com/akarpovs/roomdrop/internal/client/sync"
)

const defaultChunkSize = 5 << 20

// UploadFile queues a chunked file transfer. Usage: upload <path>. The
// actual init/put/ack/finalize round-trips run in the drain worker, so an
// upload queued offline starts as soon as the server is reachable again.
func (a *App) UploadFile(ctx context.Context, args []string) {
	if !a.requireRoom() {
		return
	}
	if len(args) == 0 {
		fmt.Println("Usage: upload <path>")
		return
	}

	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		fmt.Println("upload failed:", err)
		return
	}
	if info.IsDir() {
		fmt.Println("upload failed: directories are not supported")
		return
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	payload := sync.FileUploadPayload{
		Path:      path,
		Filename:  filepath.Base(path),
		MimeType:  mimeType,
		ChunkSize: defaultChunkSize,
	}

	op, err := a.engine.Enqueue(ctx, models.OpFileUpload, a.roomCode, path, payload)
	if err != nil {
		fmt.Println("upload failed:", err)
		return
	}
	fmt.Printf("queued upload of %s (%d bytes, op %s)\n", payload.Filename, info.Size(), op.ID)
}
