package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/dbx"
	"github.com/akarpovs/roomdrop/internal/logging"
	"github.com/akarpovs/roomdrop/internal/server/blob"
	sc "github.com/akarpovs/roomdrop/internal/server/config"
	"github.com/akarpovs/roomdrop/internal/server/models"
	"github.com/akarpovs/roomdrop/internal/server/repositories/repomanager"
)

// UploadService is the chunk ledger: it tracks chunked transfers from init
// through per-chunk acknowledgment to finalize, and reaps abandoned ones.
type UploadService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blob.Store
	items       *ItemService
	config      *sc.Config
	log         logging.Logger
}

func NewUploadService(db *sql.DB, repomanager repomanager.RepositoryManager, blobs blob.Store,
	items *ItemService, config *sc.Config, log logging.Logger) *UploadService {
	return &UploadService{db: db, repomanager: repomanager, blobs: blobs, items: items, config: config, log: log}
}

// InitParams is the caller's description of the transfer.
type InitParams struct {
	Filename    string
	MimeType    string
	Size        int64
	TotalChunks int
	Encrypted   bool
	EncryptIV   []byte
}

// InitResult returns the ledger id plus a presigned PUT target per chunk.
type InitResult struct {
	Upload       *models.Upload
	ChunkTargets []string
}

// Init creates a pending ledger with TotalChunks unfilled slots, a hard
// expiry, and one S3 multipart upload behind it.
func (s *UploadService) Init(ctx context.Context, room *models.Room, actorID string, p InitParams) (*InitResult, error) {
	if p.TotalChunks <= 0 {
		return nil, fmt.Errorf("%w: totalChunks must be positive", common.ErrValidation)
	}
	if p.Size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive", common.ErrValidation)
	}
	if p.Size > room.Settings.MaxFileSize {
		return nil, fmt.Errorf("%w: size exceeds room limit", common.ErrValidation)
	}
	if p.Filename == "" {
		return nil, fmt.Errorf("%w: filename required", common.ErrValidation)
	}
	if !typeAllowed(room.Settings.AllowedTypes, p.MimeType) {
		return nil, fmt.Errorf("%w: type %q not allowed in this room", common.ErrValidation, p.MimeType)
	}

	mimeType := p.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	key := blob.RandomStorageKey(room.ID)
	multipartID, err := s.blobs.CreateMultipart(ctx, key, mimeType)
	if err != nil {
		return nil, fmt.Errorf("blob error: %w", err)
	}

	now := time.Now().UTC()
	upload := &models.Upload{
		ID:          uuid.NewString(),
		RoomID:      room.ID,
		UploaderID:  actorID,
		Filename:    p.Filename,
		MimeType:    mimeType,
		Size:        p.Size,
		StorageKey:  key,
		MultipartID: multipartID,
		Encrypted:   p.Encrypted,
		EncryptIV:   p.EncryptIV,
		TotalChunks: p.TotalChunks,
		Status:      models.UploadStatusPending,
		ExpiresAt:   now.Add(s.config.UploadTTL),
		CreatedAt:   now,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Uploads(tx).Create(ctx, upload)
	})
	if err != nil {
		abortErr := s.blobs.AbortMultipart(ctx, key, multipartID)
		if abortErr != nil {
			s.log.Warn(ctx, "abort multipart after failed init", "uploadId", upload.ID, "error", abortErr)
		}
		return nil, fmt.Errorf("error creating upload: %w", err)
	}

	targets := make([]string, 0, p.TotalChunks)
	for i := 0; i < p.TotalChunks; i++ {
		url, err := s.blobs.PresignPart(ctx, key, multipartID, int32(i+1))
		if err != nil {
			return nil, fmt.Errorf("presign error: %w", err)
		}
		targets = append(targets, url)
	}

	return &InitResult{Upload: upload, ChunkTargets: targets}, nil
}

func typeAllowed(allowed, mimeType string) bool {
	if allowed == "" || mimeType == "" {
		return true
	}
	for _, t := range strings.Split(allowed, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if t == mimeType || (strings.HasSuffix(t, "/*") && strings.HasPrefix(mimeType, strings.TrimSuffix(t, "*"))) {
			return true
		}
	}
	return false
}

// AckState reports ledger progress after an acknowledgment.
type AckState struct {
	UploadedChunks int
	TotalChunks    int
	Progress       int
	Complete       bool
}

// AckChunk marks one chunk slot uploaded. Re-acknowledging an uploaded slot
// is a no-op. Terminal uploads reject further acks; an upload past its
// expiry is reported expired even before the reaper removes it.
func (s *UploadService) AckChunk(ctx context.Context, uploadID string, index int, etag string) (*AckState, error) {
	upload, err := s.repomanager.Uploads(s.db).GetByID(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if upload.TerminalStatus() {
		return nil, fmt.Errorf("%w: upload is %s", common.ErrConflict, upload.Status)
	}
	if !upload.ExpiresAt.After(time.Now()) {
		return nil, common.ErrExpired
	}
	if index < 0 || index >= upload.TotalChunks {
		return nil, fmt.Errorf("%w: chunk index %d out of range", common.ErrValidation, index)
	}

	repo := s.repomanager.Uploads(s.db)
	if err := repo.AckChunk(ctx, uploadID, index, etag); err != nil {
		return nil, err
	}

	if upload.Status == models.UploadStatusPending {
		err := repo.TransitionStatus(ctx, uploadID,
			[]string{models.UploadStatusPending}, models.UploadStatusUploading)
		if err != nil && !errors.Is(err, common.ErrConflict) {
			return nil, err
		}
	}

	return s.Progress(ctx, uploadID)
}

// Progress is a pure query over the ledger.
func (s *UploadService) Progress(ctx context.Context, uploadID string) (*AckState, error) {
	repo := s.repomanager.Uploads(s.db)
	upload, err := repo.GetByID(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	uploaded, err := repo.CountUploaded(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	return &AckState{
		UploadedChunks: uploaded,
		TotalChunks:    upload.TotalChunks,
		Progress:       models.Progress(uploaded, upload.TotalChunks),
		Complete:       uploaded == upload.TotalChunks,
	}, nil
}

// IsComplete reports whether every chunk has been acknowledged.
func (s *UploadService) IsComplete(ctx context.Context, uploadID string) (bool, error) {
	state, err := s.Progress(ctx, uploadID)
	if err != nil {
		return false, err
	}
	return state.Complete, nil
}

// FileContent is the JSON content payload of a file-backed item.
type FileContent struct {
	StorageKey string `json:"storageKey"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
	Encrypted  bool   `json:"encrypted,omitempty"`
	EncryptIV  []byte `json:"encryptIv,omitempty"`
}

// Finalize completes the transfer: all chunks must be acknowledged, the S3
// multipart is assembled, and the item is materialized with a version-1
// snapshot. A second finalize returns the already-created item.
func (s *UploadService) Finalize(ctx context.Context, uploadID string) (*models.Item, error) {
	repo := s.repomanager.Uploads(s.db)
	upload, err := repo.GetByID(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	if upload.Status == models.UploadStatusCompleted {
		if upload.ItemID == "" {
			return nil, fmt.Errorf("%w: completed upload has no item", common.ErrInternal)
		}
		return s.items.Get(ctx, upload.ItemID)
	}
	if upload.TerminalStatus() {
		return nil, fmt.Errorf("%w: upload is %s", common.ErrConflict, upload.Status)
	}
	if !upload.ExpiresAt.After(time.Now()) {
		return nil, common.ErrExpired
	}

	chunks, err := repo.Chunks(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	etags := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if !c.Uploaded {
			return nil, fmt.Errorf("%w: chunk %d not uploaded", common.ErrIncompleteTransfer, c.Index)
		}
		etags = append(etags, c.ETag)
	}

	if err := s.blobs.CompleteMultipart(ctx, upload.StorageKey, upload.MultipartID, etags); err != nil {
		return nil, fmt.Errorf("blob error: %w", err)
	}

	room, err := s.repomanager.Rooms(s.db).GetByID(ctx, upload.RoomID)
	if err != nil {
		return nil, err
	}

	content, err := json.Marshal(FileContent{
		StorageKey: upload.StorageKey,
		Filename:   upload.Filename,
		MimeType:   upload.MimeType,
		Size:       upload.Size,
		Encrypted:  upload.Encrypted,
		EncryptIV:  upload.EncryptIV,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal error: %w", err)
	}

	item, err := s.items.Create(ctx, room, upload.UploaderID, "", models.ItemTypeFile, upload.Filename, content, "")
	if err != nil {
		return nil, err
	}

	if err := repo.MarkCompleted(ctx, uploadID, item.ID); err != nil {
		return nil, err
	}

	return item, nil
}

// Cancel is terminal: no further chunk acks are accepted for the id, and the
// backing multipart upload is discarded.
func (s *UploadService) Cancel(ctx context.Context, uploadID string) error {
	repo := s.repomanager.Uploads(s.db)
	upload, err := repo.GetByID(ctx, uploadID)
	if err != nil {
		return err
	}

	err = repo.TransitionStatus(ctx, uploadID,
		[]string{models.UploadStatusPending, models.UploadStatusUploading}, models.UploadStatusCancelled)
	if err != nil {
		return err
	}

	if err := s.blobs.AbortMultipart(ctx, upload.StorageKey, upload.MultipartID); err != nil {
		s.log.Warn(ctx, "abort multipart on cancel", "uploadId", uploadID, "error", err)
	}
	return nil
}

// ExpireStale destroys pending/uploading ledgers whose expiry has passed.
// An expired transfer is unrecoverable; clients restart from scratch.
func (s *UploadService) ExpireStale(ctx context.Context) (int, error) {
	repo := s.repomanager.Uploads(s.db)
	expired, err := repo.SelectExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, u := range expired {
		if err := s.blobs.AbortMultipart(ctx, u.StorageKey, u.MultipartID); err != nil {
			s.log.Warn(ctx, "abort multipart on expiry", "uploadId", u.ID, "error", err)
		}
		if err := repo.Delete(ctx, u.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// DownloadURL presigns a GET for a completed file item's object.
func (s *UploadService) DownloadURL(ctx context.Context, item *models.Item) (string, error) {
	if item.Type != models.ItemTypeFile {
		return "", fmt.Errorf("%w: item is not a file", common.ErrValidation)
	}
	var content FileContent
	if err := json.Unmarshal(item.Content, &content); err != nil {
		return "", fmt.Errorf("unmarshal error: %w", err)
	}
	return s.blobs.PresignGet(ctx, content.StorageKey)
}
