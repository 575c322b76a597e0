// Package uploads provides the PostgreSQL-backed chunk ledger: upload
// records plus one row per chunk slot, keyed by (upload_id, chunk_index).
package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/dbx"
	"github.com/akarpovs/roomdrop/internal/server/models"
)

// PostgresRepository implements the chunk ledger over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the upload record and its unfilled chunk slots. Run inside
// a transaction so a half-created ledger never becomes visible.
func (r *PostgresRepository) Create(ctx context.Context, upload *models.Upload) error {
	query := `
		INSERT INTO uploads (id, room_id, uploader_id, filename, mime_type, size, storage_key,
			multipart_id, encrypted, encrypt_iv, total_chunks, status, expires_at, created_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		upload.ID, upload.RoomID, upload.UploaderID, upload.Filename, upload.MimeType, upload.Size,
		upload.StorageKey, upload.MultipartID, upload.Encrypted, upload.EncryptIV,
		upload.TotalChunks, upload.Status, upload.ExpiresAt, upload.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	for i := 0; i < upload.TotalChunks; i++ {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO upload_chunks (upload_id, chunk_index) VALUES ($1, $2)`, upload.ID, i); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

const uploadColumns = `id, room_id, COALESCE(uploader_id::text, ''), filename, mime_type, size, storage_key,
		multipart_id, encrypted, encrypt_iv, total_chunks, status, COALESCE(item_id::text, ''), expires_at, created_at`

// GetByID returns one upload record or ErrNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE id=$1`
	u := &models.Upload{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.RoomID, &u.UploaderID, &u.Filename, &u.MimeType, &u.Size, &u.StorageKey,
		&u.MultipartID, &u.Encrypted, &u.EncryptIV, &u.TotalChunks, &u.Status, &u.ItemID, &u.ExpiresAt, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select upload: %w", err)
	}
	return u, nil
}

// AckChunk marks the chunk slot uploaded. The conditional update makes the
// ack idempotent at the storage layer: a second ack matches zero rows, which
// is distinguished from an unknown slot by a follow-up lookup.
func (r *PostgresRepository) AckChunk(ctx context.Context, uploadID string, index int, etag string) error {
	query := `
		UPDATE upload_chunks SET uploaded=TRUE, etag=$3
		WHERE upload_id=$1 AND chunk_index=$2 AND NOT uploaded
	`
	res, err := r.db.ExecContext(ctx, query, uploadID, index, etag)
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

	var uploaded bool
	err = r.db.QueryRowContext(ctx,
		`SELECT uploaded FROM upload_chunks WHERE upload_id=$1 AND chunk_index=$2`, uploadID, index).Scan(&uploaded)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	// Already uploaded: re-acking is a no-op, not an error.
	return nil
}

// CountUploaded counts acknowledged chunks of the upload.
func (r *PostgresRepository) CountUploaded(ctx context.Context, uploadID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM upload_chunks WHERE upload_id=$1 AND uploaded`, uploadID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Chunks returns all chunk slots ordered by index.
func (r *PostgresRepository) Chunks(ctx context.Context, uploadID string) ([]*models.Chunk, error) {
	query := `SELECT upload_id, chunk_index, etag, uploaded FROM upload_chunks WHERE upload_id=$1 ORDER BY chunk_index`
	rows, err := r.db.QueryContext(ctx, query, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to select chunks: %w", err)
	}
	defer rows.Close()

	var result []*models.Chunk
	for rows.Next() {
		c := &models.Chunk{}
		if err := rows.Scan(&c.UploadID, &c.Index, &c.ETag, &c.Uploaded); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// TransitionStatus moves the upload from one of the from statuses to to.
// A zero-row match means a concurrent writer reached a terminal state first;
// that comes back as ErrConflict (ErrNotFound when the row is gone).
func (r *PostgresRepository) TransitionStatus(ctx context.Context, uploadID string, from []string, to string) error {
	query := `UPDATE uploads SET status=$2 WHERE id=$1 AND status = ANY(string_to_array($3, ','))`
	res, err := r.db.ExecContext(ctx, query, uploadID, to, strings.Join(from, ","))
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

	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM uploads WHERE id=$1`, uploadID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if status == to {
		// Lost a benign race to an identical transition.
		return nil
	}
	return common.ErrConflict
}

// MarkCompleted stamps the upload completed and records the materialized item.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, uploadID, itemID string) error {
	query := `UPDATE uploads SET status=$2, item_id=$3 WHERE id=$1`
	res, err := r.db.ExecContext(ctx, query, uploadID, models.UploadStatusCompleted, itemID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
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

// SelectExpired returns non-terminal uploads whose expiry has passed.
func (r *PostgresRepository) SelectExpired(ctx context.Context, now time.Time) ([]*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE status IN ($1, $2) AND expires_at < $3`
	rows, err := r.db.QueryContext(ctx, query, models.UploadStatusPending, models.UploadStatusUploading, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.Upload
	for rows.Next() {
		u := &models.Upload{}
		if err := rows.Scan(
			&u.ID, &u.RoomID, &u.UploaderID, &u.Filename, &u.MimeType, &u.Size, &u.StorageKey,
			&u.MultipartID, &u.Encrypted, &u.EncryptIV, &u.TotalChunks, &u.Status, &u.ItemID, &u.ExpiresAt, &u.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes the upload and, by cascade, its chunk rows.
func (r *PostgresRepository) Delete(ctx context.Context, uploadID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE id=$1`, uploadID); err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return nil
}
