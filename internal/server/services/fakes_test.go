package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/dbx"
	"github.com/akarpovs/roomdrop/internal/logging"
	"github.com/akarpovs/roomdrop/internal/server/config"
	"github.com/akarpovs/roomdrop/internal/server/models"
	"github.com/akarpovs/roomdrop/internal/server/repositories/items"
	"github.com/akarpovs/roomdrop/internal/server/repositories/repomanager"
	"github.com/akarpovs/roomdrop/internal/server/repositories/rooms"
	"github.com/akarpovs/roomdrop/internal/server/repositories/uploads"
	"github.com/akarpovs/roomdrop/internal/server/repositories/versions"
)

// -------- in-memory fakes --------

type fakeRoomsRepo struct {
	rooms.Repository
	mu      sync.Mutex
	byID    map[string]*models.Room
	touched int

	createErrs []error // shifted per Create call, nil = success
}

func newFakeRoomsRepo() *fakeRoomsRepo {
	return &fakeRoomsRepo{byID: map[string]*models.Room{}}
}

func (f *fakeRoomsRepo) Create(ctx context.Context, room *models.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}
	clone := *room
	f.byID[room.ID] = &clone
	return nil
}

func (f *fakeRoomsRepo) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.byID {
		if r.Code == code && !r.Deleted {
			clone := *r
			return &clone, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeRoomsRepo) GetByID(ctx context.Context, id string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (f *fakeRoomsRepo) TouchActivity(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched++
	if r, ok := f.byID[id]; ok {
		r.LastActivityAt = at
	}
	return nil
}

func (f *fakeRoomsRepo) SoftDelete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok || r.Deleted {
		return common.ErrNotFound
	}
	r.Deleted = true
	return nil
}

func (f *fakeRoomsRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.byID {
		if r.Deleted || r.Lifespan != models.RoomLifespanTemporary {
			continue
		}
		if r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
			r.Deleted = true
			n++
		}
	}
	return n, nil
}

type fakeItemsRepo struct {
	items.Repository
	mu   sync.Mutex
	byID map[string]*models.Item
}

func newFakeItemsRepo() *fakeItemsRepo {
	return &fakeItemsRepo{byID: map[string]*models.Item{}}
}

func (f *fakeItemsRepo) Create(ctx context.Context, item *models.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[item.ID]; ok {
		return common.ErrConflict
	}
	clone := *item
	f.byID[item.ID] = &clone
	return nil
}

func (f *fakeItemsRepo) Update(ctx context.Context, item *models.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.byID[item.ID]
	if !ok {
		return common.ErrNotFound
	}
	if existing.Deleted {
		return common.ErrConflict
	}
	clone := *item
	clone.Deleted = existing.Deleted
	f.byID[item.ID] = &clone
	return nil
}

func (f *fakeItemsRepo) GetByID(ctx context.Context, id string) (*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	clone := *item
	return &clone, nil
}

func (f *fakeItemsRepo) ListByRoom(ctx context.Context, roomID string) ([]*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.Item
	for _, item := range f.byID {
		if item.RoomID == roomID && !item.Deleted {
			clone := *item
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (f *fakeItemsRepo) CountByRoom(ctx context.Context, roomID string) (int, error) {
	list, _ := f.ListByRoom(ctx, roomID)
	return len(list), nil
}

func (f *fakeItemsRepo) SoftDelete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.byID[id]
	if !ok || item.Deleted {
		return common.ErrNotFound
	}
	item.Deleted = true
	return nil
}

type fakeVersionsRepo struct {
	versions.Repository
	mu     sync.Mutex
	byItem map[string][]*models.Version

	// conflicts injects ErrConflict for the first n Insert calls, simulating
	// a concurrent writer claiming the number first.
	conflicts int
}

func newFakeVersionsRepo() *fakeVersionsRepo {
	return &fakeVersionsRepo{byItem: map[string][]*models.Version{}}
}

func (f *fakeVersionsRepo) Insert(ctx context.Context, v *models.Version) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		return common.ErrConflict
	}
	for _, existing := range f.byItem[v.ItemID] {
		if existing.Version == v.Version {
			return common.ErrConflict
		}
	}
	clone := *v
	f.byItem[v.ItemID] = append(f.byItem[v.ItemID], &clone)
	return nil
}

func (f *fakeVersionsRepo) MaxVersion(ctx context.Context, itemID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var maxVersion int64
	for _, v := range f.byItem[itemID] {
		if v.Version > maxVersion {
			maxVersion = v.Version
		}
	}
	return maxVersion, nil
}

func (f *fakeVersionsRepo) Latest(ctx context.Context, itemID string) (*models.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.Version
	for _, v := range f.byItem[itemID] {
		if latest == nil || v.Version > latest.Version {
			latest = v
		}
	}
	if latest == nil {
		return nil, common.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (f *fakeVersionsRepo) History(ctx context.Context, itemID string, limit int) ([]*models.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := append([]*models.Version{}, f.byItem[itemID]...)
	sort.Slice(list, func(i, j int) bool { return list[i].Version > list[j].Version })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (f *fakeVersionsRepo) Prune(ctx context.Context, itemID string, keep int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var maxVersion int64
	for _, v := range f.byItem[itemID] {
		if v.Version > maxVersion {
			maxVersion = v.Version
		}
	}
	cutoff := maxVersion - int64(keep)
	var kept []*models.Version
	var removed int64
	for _, v := range f.byItem[itemID] {
		if v.Version <= cutoff {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	f.byItem[itemID] = kept
	return removed, nil
}

func (f *fakeVersionsRepo) versionsOf(itemID string) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []int64
	for _, v := range f.byItem[itemID] {
		result = append(result, v.Version)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

type fakeUploadsRepo struct {
	uploads.Repository
	mu     sync.Mutex
	byID   map[string]*models.Upload
	chunks map[string][]*models.Chunk
}

func newFakeUploadsRepo() *fakeUploadsRepo {
	return &fakeUploadsRepo{byID: map[string]*models.Upload{}, chunks: map[string][]*models.Chunk{}}
}

func (f *fakeUploadsRepo) Create(ctx context.Context, upload *models.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *upload
	f.byID[upload.ID] = &clone
	slots := make([]*models.Chunk, upload.TotalChunks)
	for i := range slots {
		slots[i] = &models.Chunk{UploadID: upload.ID, Index: i}
	}
	f.chunks[upload.ID] = slots
	return nil
}

func (f *fakeUploadsRepo) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUploadsRepo) AckChunk(ctx context.Context, uploadID string, index int, etag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	slots, ok := f.chunks[uploadID]
	if !ok || index < 0 || index >= len(slots) {
		return common.ErrNotFound
	}
	if slots[index].Uploaded {
		return nil
	}
	slots[index].Uploaded = true
	slots[index].ETag = etag
	return nil
}

func (f *fakeUploadsRepo) CountUploaded(ctx context.Context, uploadID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.chunks[uploadID] {
		if c.Uploaded {
			n++
		}
	}
	return n, nil
}

func (f *fakeUploadsRepo) Chunks(ctx context.Context, uploadID string) ([]*models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.Chunk
	for _, c := range f.chunks[uploadID] {
		clone := *c
		result = append(result, &clone)
	}
	return result, nil
}

func (f *fakeUploadsRepo) TransitionStatus(ctx context.Context, uploadID string, from []string, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[uploadID]
	if !ok {
		return common.ErrNotFound
	}
	for _, s := range from {
		if u.Status == s {
			u.Status = to
			return nil
		}
	}
	if u.Status == to {
		return nil
	}
	return common.ErrConflict
}

func (f *fakeUploadsRepo) MarkCompleted(ctx context.Context, uploadID, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[uploadID]
	if !ok {
		return common.ErrNotFound
	}
	u.Status = models.UploadStatusCompleted
	u.ItemID = itemID
	return nil
}

func (f *fakeUploadsRepo) SelectExpired(ctx context.Context, now time.Time) ([]*models.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.Upload
	for _, u := range f.byID {
		if (u.Status == models.UploadStatusPending || u.Status == models.UploadStatusUploading) && u.ExpiresAt.Before(now) {
			clone := *u
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (f *fakeUploadsRepo) Delete(ctx context.Context, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, uploadID)
	delete(f.chunks, uploadID)
	return nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	r *fakeRoomsRepo
	i *fakeItemsRepo
	v *fakeVersionsRepo
	u *fakeUploadsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		r: newFakeRoomsRepo(),
		i: newFakeItemsRepo(),
		v: newFakeVersionsRepo(),
		u: newFakeUploadsRepo(),
	}
}

func (m *fakeRepoManager) Rooms(db dbx.DBTX) rooms.Repository       { return m.r }
func (m *fakeRepoManager) Items(db dbx.DBTX) items.Repository       { return m.i }
func (m *fakeRepoManager) Versions(db dbx.DBTX) versions.Repository { return m.v }
func (m *fakeRepoManager) Uploads(db dbx.DBTX) uploads.Repository   { return m.u }

// fakeBlobStore records multipart activity in memory.
type fakeBlobStore struct {
	mu        sync.Mutex
	created   int
	completed map[string][]string // multipart id -> etags
	aborted   []string
	presigned int

	completeErr error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{completed: map[string][]string{}}
}

func (f *fakeBlobStore) CreateMultipart(ctx context.Context, key, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return fmt.Sprintf("mp-%d", f.created), nil
}

func (f *fakeBlobStore) PresignPart(ctx context.Context, key, multipartID string, partNumber int32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presigned++
	return fmt.Sprintf("https://blobs.test/%s/part/%d", multipartID, partNumber), nil
}

func (f *fakeBlobStore) CompleteMultipart(ctx context.Context, key, multipartID string, etags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed[multipartID] = append([]string{}, etags...)
	return nil
}

func (f *fakeBlobStore) AbortMultipart(ctx context.Context, key, multipartID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, multipartID)
	return nil
}

func (f *fakeBlobStore) PresignGet(ctx context.Context, key string) (string, error) {
	return "https://blobs.test/get/" + key, nil
}

// -------- helpers --------

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:        "k",
		UploadTTL:        time.Hour,
		VersionRetention: 10,
	}
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testRoom() *models.Room {
	return &models.Room{
		ID:       "room-1",
		Code:     "ABCDEFGH",
		Mode:     models.RoomModeInternet,
		Access:   models.RoomAccessPublic,
		Lifespan: models.RoomLifespanTemporary,
		Settings: models.RoomSettings{MaxItems: 100, MaxFileSize: 100 << 20},
	}
}

// expectTx queues one Begin/Commit pair on the mock.
func expectTx(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectCommit()
}
