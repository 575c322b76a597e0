package uploads

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_InsertsLedgerAndChunkSlots(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	upload := &models.Upload{
		ID:          "u1",
		RoomID:      "r1",
		UploaderID:  "a1",
		Filename:    "report.pdf",
		MimeType:    "application/pdf",
		Size:        1024,
		StorageKey:  "rooms/r1/k",
		MultipartID: "mp-1",
		TotalChunks: 3,
		Status:      models.UploadStatusPending,
		ExpiresAt:   now.Add(time.Hour),
		CreatedAt:   now,
	}

	mock.ExpectExec(`INSERT INTO uploads`).
		WithArgs("u1", "r1", "a1", "report.pdf", "application/pdf", int64(1024), "rooms/r1/k",
			"mp-1", false, []byte(nil), 3, models.UploadStatusPending, upload.ExpiresAt, upload.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	for i := 0; i < 3; i++ {
		mock.ExpectExec(`INSERT INTO upload_chunks`).
			WithArgs("u1", i).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	if err := repo.Create(context.Background(), upload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAckChunk_FirstAckRowsAffected1(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE upload_chunks SET uploaded=TRUE, etag=\$3`).
		WithArgs("u1", 2, "etag-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.AckChunk(context.Background(), "u1", 2, "etag-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAckChunk_ReAckIsNoOp(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE upload_chunks SET uploaded=TRUE, etag=\$3`).
		WithArgs("u1", 2, "etag-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(`SELECT uploaded FROM upload_chunks WHERE upload_id=\$1 AND chunk_index=\$2`).
		WithArgs("u1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"uploaded"}).AddRow(true))

	if err := repo.AckChunk(context.Background(), "u1", 2, "etag-2"); err != nil {
		t.Fatalf("re-ack should be a no-op, got %v", err)
	}
}

func TestAckChunk_UnknownSlotNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE upload_chunks SET uploaded=TRUE, etag=\$3`).
		WithArgs("nope", 0, "e").
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(`SELECT uploaded FROM upload_chunks`).
		WithArgs("nope", 0).
		WillReturnError(sql.ErrNoRows)

	err := repo.AckChunk(context.Background(), "nope", 0, "e")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestCountUploaded(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM upload_chunks WHERE upload_id=\$1 AND uploaded`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.CountUploaded(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2, got %d", n)
	}
}

func TestChunks_OrderedByIndex(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"upload_id", "chunk_index", "etag", "uploaded"}).
		AddRow("u1", 0, "e0", true).
		AddRow("u1", 1, "", false)

	mock.ExpectQuery(`SELECT upload_id, chunk_index, etag, uploaded FROM upload_chunks WHERE upload_id=\$1 ORDER BY chunk_index`).
		WithArgs("u1").
		WillReturnRows(rows)

	got, err := repo.Chunks(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 chunks, got %d", len(got))
	}
	if got[0].Index != 0 || !got[0].Uploaded || got[1].Index != 1 || got[1].Uploaded {
		t.Fatalf("unexpected chunks: %+v %+v", got[0], got[1])
	}
}

func TestTransitionStatus_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE uploads SET status=\$2 WHERE id=\$1 AND status = ANY`).
		WithArgs("u1", models.UploadStatusUploading, "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.TransitionStatus(context.Background(), "u1",
		[]string{models.UploadStatusPending}, models.UploadStatusUploading)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTransitionStatus_BenignRaceToSameStatus(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE uploads SET status=\$2`).
		WithArgs("u1", models.UploadStatusUploading, "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(`SELECT status FROM uploads WHERE id=\$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.UploadStatusUploading))

	err := repo.TransitionStatus(context.Background(), "u1",
		[]string{models.UploadStatusPending}, models.UploadStatusUploading)
	if err != nil {
		t.Fatalf("identical transition should be benign, got %v", err)
	}
}

func TestTransitionStatus_ConflictWithTerminalState(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE uploads SET status=\$2`).
		WithArgs("u1", models.UploadStatusUploading, "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(`SELECT status FROM uploads WHERE id=\$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.UploadStatusCancelled))

	err := repo.TransitionStatus(context.Background(), "u1",
		[]string{models.UploadStatusPending}, models.UploadStatusUploading)
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestMarkCompleted_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE uploads SET status=\$2, item_id=\$3 WHERE id=\$1`).
		WithArgs("nope", models.UploadStatusCompleted, "i1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkCompleted(context.Background(), "nope", "i1")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT .* FROM uploads WHERE id=\$1`)
	mock.ExpectQuery(q.String()).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "nope")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSelectExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "room_id", "uploader_id", "filename", "mime_type", "size", "storage_key",
		"multipart_id", "encrypted", "encrypt_iv", "total_chunks", "status", "item_id", "expires_at", "created_at",
	}).AddRow("u1", "r1", "a1", "f", "text/plain", int64(1), "k", "mp", false, []byte(nil), 1,
		models.UploadStatusPending, "", now.Add(-time.Hour), now.Add(-2*time.Hour))

	mock.ExpectQuery(`SELECT .* FROM uploads WHERE status IN \(\$1, \$2\) AND expires_at < \$3`).
		WithArgs(models.UploadStatusPending, models.UploadStatusUploading, now).
		WillReturnRows(rows)

	got, err := repo.SelectExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "u1" {
		t.Fatalf("unexpected result: %+v", got)
	}
}
