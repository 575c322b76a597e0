package queue

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

const opColumns = `seq, id, kind, room_code, resource_id, payload, retry_count, status, next_attempt_at, last_error, created_at`

func (r *SQLiteRepository) Enqueue(ctx context.Context, op *models.PendingOp) error {
	query := `INSERT INTO pending_ops
			(id, kind, room_code, resource_id, payload, retry_count, status, next_attempt_at, last_error, created_at)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		op.ID, op.Kind, op.RoomCode, op.ResourceID, op.Payload,
		op.RetryCount, models.OpStatusPending, op.NextAttemptAt.Unix(), op.LastError, op.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to enqueue op: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Due(ctx context.Context, now time.Time, limit int) ([]models.PendingOp, error) {
	query := `select ` + opColumns + ` from pending_ops
			where status = ? and next_attempt_at <= ? order by seq limit ?`
	rows, err := r.db.QueryContext(ctx, query, models.OpStatusPending, now.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select due ops: %w", err)
	}
	defer rows.Close()
	return scanOps(rows)
}

func (r *SQLiteRepository) MarkSyncing(ctx context.Context, id string) error {
	return r.transition(ctx, id, models.OpStatusPending, models.OpStatusSyncing)
}

func (r *SQLiteRepository) MarkPending(ctx context.Context, id string) error {
	return r.transition(ctx, id, models.OpStatusSyncing, models.OpStatusPending)
}

func (r *SQLiteRepository) transition(ctx context.Context, id, from, to string) error {
	query := `update pending_ops set status = ? where id = ? and status = ?`
	res, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update op status: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) MarkDone(ctx context.Context, id string) error {
	query := `delete from pending_ops where id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to remove op: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RequeueTransient(ctx context.Context, id string, retryCount int, nextAttempt time.Time, lastErr string) error {
	query := `update pending_ops
			set status = ?, retry_count = ?, next_attempt_at = ?, last_error = ?
			where id = ?`
	if _, err := r.db.ExecContext(ctx, query,
		models.OpStatusPending, retryCount, nextAttempt.Unix(), lastErr, id); err != nil {
		return fmt.Errorf("failed to requeue op: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id string, lastErr string) error {
	query := `update pending_ops set status = ?, last_error = ? where id = ?`
	if _, err := r.db.ExecContext(ctx, query, models.OpStatusFailed, lastErr, id); err != nil {
		return fmt.Errorf("failed to mark op failed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Failed(ctx context.Context) ([]models.PendingOp, error) {
	query := `select ` + opColumns + ` from pending_ops where status = ? order by seq`
	rows, err := r.db.QueryContext(ctx, query, models.OpStatusFailed)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	defer rows.Close()
	return scanOps(rows)
}

func (r *SQLiteRepository) Retry(ctx context.Context, id string) error {
	query := `update pending_ops
			set status = ?, retry_count = 0, next_attempt_at = 0, last_error = ''
			where id = ? and status = ?`
	res, err := r.db.ExecContext(ctx, query, models.OpStatusPending, id, models.OpStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to retry op: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Discard(ctx context.Context, id string) error {
	query := `delete from pending_ops where id = ? and status = ?`
	res, err := r.db.ExecContext(ctx, query, id, models.OpStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to discard op: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) PendingCount(ctx context.Context) (int, error) {
	query := `select count(*) from pending_ops where status = ?`
	row := r.db.QueryRowContext(ctx, query, models.OpStatusPending)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("query row scan failed: %w", err)
	}
	return n, nil
}

func scanOps(rows *sql.Rows) ([]models.PendingOp, error) {
	var result []models.PendingOp
	for rows.Next() {
		var op models.PendingOp
		var nextAttempt, createdAt int64
		if err := rows.Scan(&op.Seq, &op.ID, &op.Kind, &op.RoomCode, &op.ResourceID,
			&op.Payload, &op.RetryCount, &op.Status, &nextAttempt, &op.LastError, &createdAt); err != nil {
			return nil, err
		}
		op.NextAttemptAt = time.Unix(nextAttempt, 0)
		op.CreatedAt = time.Unix(createdAt, 0)
		result = append(result, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
