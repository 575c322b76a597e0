// Package versions provides the PostgreSQL-backed repository for the
// append-only per-item revision log.
package versions

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

// PostgresRepository implements version storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert writes one version row. The UNIQUE (item_id, version) constraint is
// the authority for number races: a violation comes back as ErrConflict and
// the caller re-reads the max and retries.
func (r *PostgresRepository) Insert(ctx context.Context, v *models.Version) error {
	query := `
		INSERT INTO item_versions (id, item_id, room_id, version, content, author, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.ItemID, v.RoomID, v.Version, v.Content, v.Author, v.SizeBytes, v.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// MaxVersion returns the highest version number for the item, 0 if none.
func (r *PostgresRepository) MaxVersion(ctx context.Context, itemID string) (int64, error) {
	var maxVersion int64
	query := `SELECT COALESCE(MAX(version), 0) FROM item_versions WHERE item_id=$1`
	if err := r.db.QueryRowContext(ctx, query, itemID).Scan(&maxVersion); err != nil {
		return 0, fmt.Errorf("failed to select max version: %w", err)
	}
	return maxVersion, nil
}

const versionColumns = `id, item_id, room_id, version, content, COALESCE(author::text, ''), size_bytes, created_at`

// Latest returns the highest-numbered version or ErrNotFound.
func (r *PostgresRepository) Latest(ctx context.Context, itemID string) (*models.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM item_versions WHERE item_id=$1 ORDER BY version DESC LIMIT 1`
	v := &models.Version{}
	err := r.db.QueryRowContext(ctx, query, itemID).Scan(
		&v.ID, &v.ItemID, &v.RoomID, &v.Version, &v.Content, &v.Author, &v.SizeBytes, &v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select version: %w", err)
	}
	return v, nil
}

// History returns the most recent limit versions, newest first.
func (r *PostgresRepository) History(ctx context.Context, itemID string, limit int) ([]*models.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM item_versions WHERE item_id=$1 ORDER BY version DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select versions: %w", err)
	}
	defer rows.Close()

	var result []*models.Version
	for rows.Next() {
		v := &models.Version{}
		if err := rows.Scan(
			&v.ID, &v.ItemID, &v.RoomID, &v.Version, &v.Content, &v.Author, &v.SizeBytes, &v.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Prune deletes all but the keep newest versions of the item and reports how
// many rows were removed. Survivors are never renumbered.
func (r *PostgresRepository) Prune(ctx context.Context, itemID string, keep int) (int64, error) {
	query := `
		DELETE FROM item_versions
		WHERE item_id=$1 AND version <= (
			SELECT COALESCE(MAX(version), 0) - $2 FROM item_versions WHERE item_id=$1
		)
	`
	res, err := r.db.ExecContext(ctx, query, itemID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune versions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
