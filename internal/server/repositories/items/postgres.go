// Package items provides the PostgreSQL-backed repository for shared items.
package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/dbx"
	"github.com/akarpovs/roomdrop/internal/server/models"
)

const uniqueViolation = "23505"

// PostgresRepository implements item storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new item row.
func (r *PostgresRepository) Create(ctx context.Context, item *models.Item) error {
	query := `
		INSERT INTO items (id, room_id, type, name, content, parent_id, created_by, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, NULLIF($7, '')::uuid, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.RoomID, item.Type, item.Name, item.Content,
		item.ParentID, item.CreatedBy, item.Version, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Update replaces name/content/version for a live item. Updating a
// tombstoned item returns ErrConflict (the item was deleted elsewhere),
// an unknown id returns ErrNotFound.
func (r *PostgresRepository) Update(ctx context.Context, item *models.Item) error {
	query := `
		UPDATE items SET name=$2, content=$3, version=$4, updated_at=$5
		WHERE id=$1 AND NOT deleted
	`
	res, err := r.db.ExecContext(ctx, query, item.ID, item.Name, item.Content, item.Version, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing updated: distinguish a tombstone from a missing row.
	var deleted bool
	err = r.db.QueryRowContext(ctx, `SELECT deleted FROM items WHERE id=$1`, item.ID).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if deleted {
		return common.ErrConflict
	}
	return fmt.Errorf("unexpected rows affected: %d", n)
}

const itemColumns = `id, room_id, type, name, content, COALESCE(parent_id::text, ''), COALESCE(created_by::text, ''),
		version, deleted, created_at, updated_at`

// GetByID returns one item, tombstones included.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id=$1`
	item := &models.Item{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID, &item.RoomID, &item.Type, &item.Name, &item.Content, &item.ParentID, &item.CreatedBy,
		&item.Version, &item.Deleted, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select item: %w", err)
	}
	return item, nil
}

// ListByRoom lists live items of a room, oldest first.
func (r *PostgresRepository) ListByRoom(ctx context.Context, roomID string) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE room_id=$1 AND NOT deleted ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	var result []*models.Item
	for rows.Next() {
		item := &models.Item{}
		if err := rows.Scan(
			&item.ID, &item.RoomID, &item.Type, &item.Name, &item.Content, &item.ParentID, &item.CreatedBy,
			&item.Version, &item.Deleted, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountByRoom counts live items, used against the room's max_items setting.
func (r *PostgresRepository) CountByRoom(ctx context.Context, roomID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM items WHERE room_id=$1 AND NOT deleted`, roomID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// SoftDelete tombstones an item. Deleting an already-deleted or unknown item
// returns ErrNotFound.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE items SET deleted=TRUE, updated_at=now() WHERE id=$1 AND NOT deleted`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
