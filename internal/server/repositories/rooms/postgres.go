// Package rooms provides the PostgreSQL-backed repository for room records.
package rooms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/dbx"
	"github.com/akarpovs/roomdrop/internal/server/models"
)

const uniqueViolation = "23505"

// PostgresRepository implements room storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new room. A code collision with another live room returns
// ErrConflict so the caller can regenerate the code.
func (r *PostgresRepository) Create(ctx context.Context, room *models.Room) error {
	query := `
		INSERT INTO rooms (id, code, mode, access, lifespan, owner_id, password_hash, password_salt,
			max_items, max_file_size, allowed_types, auto_expire_hours, last_activity_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		room.ID, room.Code, room.Mode, room.Access, room.Lifespan, room.OwnerID,
		room.PasswordHash, room.PasswordSalt,
		room.Settings.MaxItems, room.Settings.MaxFileSize, room.Settings.AllowedTypes, room.Settings.AutoExpireHours,
		room.LastActivityAt, room.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const roomColumns = `id, code, mode, access, lifespan, COALESCE(owner_id::text, ''), password_hash, password_salt,
		max_items, max_file_size, allowed_types, auto_expire_hours, last_activity_at, deleted, expires_at, created_at`

// GetByCode returns the live room with the given code, or ErrNotFound.
func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE code=$1 AND NOT deleted`
	return r.scanOne(r.db.QueryRowContext(ctx, query, code))
}

// GetByID returns a room by primary key regardless of deletion state.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id=$1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Room, error) {
	room := &models.Room{}
	err := row.Scan(
		&room.ID, &room.Code, &room.Mode, &room.Access, &room.Lifespan, &room.OwnerID,
		&room.PasswordHash, &room.PasswordSalt,
		&room.Settings.MaxItems, &room.Settings.MaxFileSize, &room.Settings.AllowedTypes, &room.Settings.AutoExpireHours,
		&room.LastActivityAt, &room.Deleted, &room.ExpiresAt, &room.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select room: %w", err)
	}
	return room, nil
}

// TouchActivity bumps last_activity_at, used by the auto-expire policy.
func (r *PostgresRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE rooms SET last_activity_at=$2 WHERE id=$1 AND NOT deleted`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to touch room: %w", err)
	}
	return nil
}

// SoftDelete marks the room deleted. Exactly one live row must be affected.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE rooms SET deleted=TRUE WHERE id=$1 AND NOT deleted`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
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

// ExpireStale soft-deletes temporary rooms past their hard expiry or idle
// beyond the auto-expire window. Returns how many rooms were expired.
func (r *PostgresRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE rooms SET deleted=TRUE
		WHERE NOT deleted AND lifespan='temporary'
		  AND (
			(expires_at IS NOT NULL AND expires_at < $1)
			OR (auto_expire_hours > 0 AND last_activity_at < $1 - make_interval(hours => auto_expire_hours))
		  )
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire rooms: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
