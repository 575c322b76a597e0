package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/server/models"
)

func newUploadFixture(t *testing.T) (*UploadService, *fakeRepoManager, *fakeBlobStore, *models.Room, func()) {
	t.Helper()
	db, mock := newSQLMockDB(t)
	mock.MatchExpectationsInOrder(false)
	rm := newFakeRepoManager()
	blobs := newFakeBlobStore()
	cfg := testConfig()

	items := NewItemService(db, rm, cfg)
	svc := NewUploadService(db, rm, blobs, items, cfg, testLogger())

	room := testRoom()
	require.NoError(t, rm.r.Create(context.Background(), room))

	// Services open short transactions around multi-row writes; the fakes do
	// the actual work, the mock only sees Begin/Commit.
	for i := 0; i < 16; i++ {
		expectTx(mock)
	}

	return svc, rm, blobs, room, func() { db.Close() }
}

func TestUpload_AckProgressAndFinalize(t *testing.T) {
	svc, rm, blobs, room, closeDB := newUploadFixture(t)
	defer closeDB()
	ctx := context.Background()

	result, err := svc.Init(ctx, room, "actor-1", InitParams{
		Filename:    "video.mp4",
		MimeType:    "video/mp4",
		Size:        12 << 20,
		TotalChunks: 3,
	})
	require.NoError(t, err)
	require.Len(t, result.ChunkTargets, 3)
	assert.Equal(t, models.UploadStatusPending, result.Upload.Status)

	id := result.Upload.ID

	state, err := svc.AckChunk(ctx, id, 1, "etag-1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.UploadedChunks)
	assert.Equal(t, 34, state.Progress)

	// Acknowledging the same chunk twice must not double count.
	state, err = svc.AckChunk(ctx, id, 1, "etag-1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.UploadedChunks)

	state, err = svc.AckChunk(ctx, id, 2, "etag-2")
	require.NoError(t, err)
	assert.Equal(t, 2, state.UploadedChunks)
	assert.Equal(t, 67, state.Progress)
	assert.False(t, state.Complete)

	upload, err := rm.u.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusUploading, upload.Status)

	_, err = svc.Finalize(ctx, id)
	assert.ErrorIs(t, err, common.ErrIncompleteTransfer)

	state, err = svc.AckChunk(ctx, id, 0, "etag-0")
	require.NoError(t, err)
	assert.Equal(t, 100, state.Progress)
	assert.True(t, state.Complete)

	item, err := svc.Finalize(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ItemTypeFile, item.Type)
	assert.Equal(t, "video.mp4", item.Name)
	assert.Equal(t, int64(1), item.Version)

	upload, err = rm.u.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusCompleted, upload.Status)
	assert.Equal(t, item.ID, upload.ItemID)

	// Etags are assembled in chunk order regardless of ack order.
	assert.Equal(t, []string{"etag-0", "etag-1", "etag-2"}, blobs.completed[upload.MultipartID])

	// Finalize is idempotent: the already-created item comes back.
	again, err := svc.Finalize(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, item.ID, again.ID)
}

func TestUpload_AckValidation(t *testing.T) {
	svc, _, _, room, closeDB := newUploadFixture(t)
	defer closeDB()
	ctx := context.Background()

	result, err := svc.Init(ctx, room, "actor-1", InitParams{
		Filename: "f.bin", Size: 10, TotalChunks: 2,
	})
	require.NoError(t, err)

	_, err = svc.AckChunk(ctx, result.Upload.ID, 2, "e")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.AckChunk(ctx, result.Upload.ID, -1, "e")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.AckChunk(ctx, "unknown", 0, "e")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpload_CancelIsTerminal(t *testing.T) {
	svc, _, blobs, room, closeDB := newUploadFixture(t)
	defer closeDB()
	ctx := context.Background()

	result, err := svc.Init(ctx, room, "actor-1", InitParams{
		Filename: "f.bin", Size: 10, TotalChunks: 2,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, result.Upload.ID))
	assert.Contains(t, blobs.aborted, result.Upload.MultipartID)

	_, err = svc.AckChunk(ctx, result.Upload.ID, 0, "e")
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = svc.Finalize(ctx, result.Upload.ID)
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestUpload_ExpiryAndReaper(t *testing.T) {
	svc, rm, blobs, room, closeDB := newUploadFixture(t)
	defer closeDB()
	ctx := context.Background()

	result, err := svc.Init(ctx, room, "actor-1", InitParams{
		Filename: "f.bin", Size: 10, TotalChunks: 1,
	})
	require.NoError(t, err)
	id := result.Upload.ID

	// Push the ledger past its expiry.
	rm.u.mu.Lock()
	rm.u.byID[id].ExpiresAt = time.Now().Add(-time.Minute)
	rm.u.mu.Unlock()

	_, err = svc.AckChunk(ctx, id, 0, "e")
	assert.ErrorIs(t, err, common.ErrExpired)

	_, err = svc.Finalize(ctx, id)
	assert.ErrorIs(t, err, common.ErrExpired)

	removed, err := svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Contains(t, blobs.aborted, result.Upload.MultipartID)

	// The id is unknown after the reaper; clients restart from scratch.
	_, err = svc.AckChunk(ctx, id, 0, "e")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUploadInit_Validation(t *testing.T) {
	svc, _, _, room, closeDB := newUploadFixture(t)
	defer closeDB()
	ctx := context.Background()

	cases := []struct {
		name string
		p    InitParams
	}{
		{"zero chunks", InitParams{Filename: "f", Size: 1, TotalChunks: 0}},
		{"zero size", InitParams{Filename: "f", Size: 0, TotalChunks: 1}},
		{"over room limit", InitParams{Filename: "f", Size: room.Settings.MaxFileSize + 1, TotalChunks: 1}},
		{"missing filename", InitParams{Size: 1, TotalChunks: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Init(ctx, room, "actor-1", tc.p)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestUploadInit_AllowedTypes(t *testing.T) {
	svc, _, _, room, closeDB := newUploadFixture(t)
	defer closeDB()
	ctx := context.Background()

	room.Settings.AllowedTypes = "image/*, application/pdf"

	_, err := svc.Init(ctx, room, "actor-1", InitParams{
		Filename: "a.png", MimeType: "image/png", Size: 1, TotalChunks: 1,
	})
	assert.NoError(t, err)

	_, err = svc.Init(ctx, room, "actor-1", InitParams{
		Filename: "a.pdf", MimeType: "application/pdf", Size: 1, TotalChunks: 1,
	})
	assert.NoError(t, err)

	_, err = svc.Init(ctx, room, "actor-1", InitParams{
		Filename: "a.exe", MimeType: "application/x-executable", Size: 1, TotalChunks: 1,
	})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestUpload_InitAbortsMultipartWhenLedgerFails(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	rm := newFakeRepoManager()
	blobs := newFakeBlobStore()
	cfg := testConfig()
	svc := NewUploadService(db, rm, blobs, NewItemService(db, rm, cfg), cfg, testLogger())

	room := testRoom()

	// The transaction around ledger creation fails to commit.
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("commit failed"))

	_, err := svc.Init(context.Background(), room, "actor-1", InitParams{
		Filename: "f.bin", Size: 10, TotalChunks: 1,
	})
	require.Error(t, err)
	assert.Len(t, blobs.aborted, 1)
}
