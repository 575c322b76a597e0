package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akarpovs/roomdrop/internal/client/models"
	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts or replaces a cached item by id. The incoming row is
// authoritative, so every column is overwritten on conflict.
func (r *SQLiteRepository) Upsert(ctx context.Context, item *models.CachedItem) error {
	query := `INSERT INTO items (id, room_code, type, name, content, version, created_by, updated_at, deleted)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET room_code = excluded.room_code,
				type = excluded.type,
				name = excluded.name,
				content = excluded.content,
				version = excluded.version,
				created_by = excluded.created_by,
				updated_at = excluded.updated_at,
				deleted = excluded.deleted`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.RoomCode, item.Type, item.Name, item.Content,
		item.Version, item.CreatedBy, item.UpdatedAt.Unix(), boolToInt(item.Deleted))
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkDeleted(ctx context.Context, id string) error {
	query := `update items set deleted = 1 where id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.CachedItem, error) {
	query := `select id, room_code, type, name, content, version, created_by, updated_at, deleted
			from items where id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return item, nil
}

func (r *SQLiteRepository) ListByRoom(ctx context.Context, roomCode string) ([]models.CachedItem, error) {
	query := `select id, room_code, type, name, content, version, created_by, updated_at, deleted
			from items where room_code = ? and deleted = 0 order by updated_at desc`
	rows, err := r.db.QueryContext(ctx, query, roomCode)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	var result []models.CachedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) PurgeRoom(ctx context.Context, roomCode string) error {
	query := `delete from items where room_code = ?`
	if _, err := r.db.ExecContext(ctx, query, roomCode); err != nil {
		return fmt.Errorf("failed to purge room cache: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.CachedItem, error) {
	item := &models.CachedItem{}
	var updatedAt int64
	var deleted int
	if err := row.Scan(&item.ID, &item.RoomCode, &item.Type, &item.Name, &item.Content,
		&item.Version, &item.CreatedBy, &updatedAt, &deleted); err != nil {
		return nil, err
	}
	item.UpdatedAt = time.Unix(updatedAt, 0)
	item.Deleted = deleted != 0
	return item, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
