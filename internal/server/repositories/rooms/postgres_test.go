package rooms

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

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

func TestCreate_CodeCollisionIsConflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO rooms`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &models.Room{ID: "r1", Code: "ABCDEFGH"})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestGetByCode_LiveRoomOnly(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "code", "mode", "access", "lifespan", "owner_id", "password_hash", "password_salt",
		"max_items", "max_file_size", "allowed_types", "auto_expire_hours", "last_activity_at", "deleted", "expires_at", "created_at",
	}).AddRow("r1", "ABCDEFGH", "internet", "public", "temporary", "o1", []byte(nil), []byte(nil),
		100, int64(100<<20), "", 24, now, false, nil, now)

	mock.ExpectQuery(`SELECT .* FROM rooms WHERE code=\$1 AND NOT deleted`).
		WithArgs("ABCDEFGH").
		WillReturnRows(rows)

	room, err := repo.GetByCode(context.Background(), "ABCDEFGH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if room.Code != "ABCDEFGH" || room.OwnerID != "o1" || room.Settings.MaxItems != 100 {
		t.Fatalf("unexpected room: %+v", room)
	}
}

func TestGetByCode_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM rooms WHERE code=\$1 AND NOT deleted`).
		WithArgs("NOPE1234").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByCode(context.Background(), "NOPE1234")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSoftDelete_AlreadyDeletedNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE rooms SET deleted=TRUE WHERE id=\$1 AND NOT deleted`).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SoftDelete(context.Background(), "r1")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestExpireStale_CountsExpiredRooms(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec(`UPDATE rooms SET deleted=TRUE\s+WHERE NOT deleted AND lifespan='temporary'`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ExpireStale(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 expired, got %d", n)
	}
}
