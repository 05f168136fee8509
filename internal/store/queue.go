package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/localsync/tasksync/internal/model"
)

// OpType identifies the kind of queued mutation.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// Operation is one queued mutation awaiting push to the remote authority.
//
// Operations are created when a local mutation occurs and are only mutated
// by the sync controller during processing (synced flag, retry count, last
// error). Synced operations are removed by Prune after a retention window.
type Operation struct {
	// ID is the queue sequence number, assigned on enqueue.
	// Ordering by ID preserves FIFO insertion order.
	ID int64

	Type       OpType
	EntityType model.EntityType
	EntityID   string

	// Data is the payload snapshot at mutation time, nil for deletes.
	Data json.RawMessage

	EnqueuedAt time.Time
	Synced     bool
	SyncedAt   *time.Time
	RetryCount int
	LastError  string
}

// Enqueue appends op to the sync queue and returns it with the assigned
// sequence id. FIFO ordering across Enqueue calls is preserved.
func (db *DB) Enqueue(op *Operation) (*Operation, error) {
	return db.EnqueueContext(context.Background(), op)
}

// EnqueueContext appends an operation with context support.
func (db *DB) EnqueueContext(ctx context.Context, op *Operation) (*Operation, error) {
	return db.enqueue(ctx, db.conn, op)
}

func (db *DB) enqueue(ctx context.Context, ex execer, op *Operation) (*Operation, error) {
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now().UTC()
	}

	var data sql.NullString
	if op.Data != nil {
		data = sql.NullString{String: string(op.Data), Valid: true}
	}

	res, err := ex.ExecContext(ctx, `
		INSERT INTO sync_queue (op_type, entity_type, entity_id, data, enqueued_at, synced, retry_count)
		VALUES (?, ?, ?, ?, ?, 0, 0)`,
		string(op.Type),
		string(op.EntityType),
		op.EntityID,
		data,
		formatTime(op.EnqueuedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s %s: %w", op.Type, op.EntityID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue sequence id: %w", err)
	}

	op.ID = id
	op.Synced = false
	op.RetryCount = 0
	return op, nil
}

// ListPending returns all unsynced operations in enqueue order.
func (db *DB) ListPending() ([]*Operation, error) {
	return db.ListPendingContext(context.Background())
}

// ListPendingContext returns pending operations with context support.
func (db *DB) ListPendingContext(ctx context.Context) ([]*Operation, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, op_type, entity_type, entity_id, data, enqueued_at,
		       synced, synced_at, retry_count, last_error
		FROM sync_queue
		WHERE synced = 0
		ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// GetOperation retrieves a single queue entry by sequence id.
// Returns ErrNotFound if it doesn't exist.
func (db *DB) GetOperation(ctx context.Context, id int64) (*Operation, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, op_type, entity_type, entity_id, data, enqueued_at,
		       synced, synced_at, retry_count, last_error
		FROM sync_queue
		WHERE id = ?`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get operation %d: %w", id, err)
	}
	defer rows.Close()

	ops, err := scanOperations(rows)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("operation %d: %w", id, ErrNotFound)
	}
	return ops[0], nil
}

// MarkSynced flags the operation as pushed. Idempotent: calling it again
// after the first success is a no-op and keeps the original synced_at.
func (db *DB) MarkSynced(id int64) error {
	return db.MarkSyncedContext(context.Background(), id)
}

// MarkSyncedContext marks an operation synced with context support.
func (db *DB) MarkSyncedContext(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sync_queue
		SET synced = 1, synced_at = ?, last_error = NULL
		WHERE id = ? AND synced = 0`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark operation %d synced: %w", id, err)
	}
	return nil
}

// MarkFailed increments the retry count and records the error for a single
// pending operation. Synced operations are never touched.
func (db *DB) MarkFailed(id int64, cause error) error {
	return db.MarkFailedContext(context.Background(), id, cause)
}

// MarkFailedContext marks an operation failed with context support.
func (db *DB) MarkFailedContext(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	_, err := db.conn.ExecContext(ctx, `
		UPDATE sync_queue
		SET retry_count = retry_count + 1, last_error = ?
		WHERE id = ? AND synced = 0`,
		msg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark operation %d failed: %w", id, err)
	}
	return nil
}

// Prune deletes synced operations whose synced_at precedes the retention
// window. Unsynced entries are never pruned regardless of age.
// Returns the number of deleted entries.
func (db *DB) Prune(retentionDays int) (int64, error) {
	return db.PruneContext(context.Background(), retentionDays)
}

// PruneContext prunes old synced operations with context support.
func (db *DB) PruneContext(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM sync_queue
		WHERE synced = 1 AND synced_at IS NOT NULL AND synced_at < ?`,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sync queue: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned entries: %w", err)
	}
	return deleted, nil
}

// QueueStats summarizes the sync queue.
type QueueStats struct {
	Total   int
	Pending int
	Synced  int
	// Failed counts pending operations that have at least one failed attempt.
	Failed int
}

// Stats returns queue counters for status reporting.
func (db *DB) Stats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN synced = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN synced = 0 AND retry_count > 0 THEN 1 ELSE 0 END), 0)
		FROM sync_queue`,
	).Scan(&stats.Total, &stats.Pending, &stats.Synced, &stats.Failed)
	if err != nil {
		return QueueStats{}, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return stats, nil
}

// scanOperations is a helper to scan queue rows.
func scanOperations(rows *sql.Rows) ([]*Operation, error) {
	var ops []*Operation

	for rows.Next() {
		var op Operation
		var opType, entityType, enqueuedAt string
		var data, syncedAt, lastError sql.NullString
		var synced int

		err := rows.Scan(
			&op.ID,
			&opType,
			&entityType,
			&op.EntityID,
			&data,
			&enqueuedAt,
			&synced,
			&syncedAt,
			&op.RetryCount,
			&lastError,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}

		op.Type = OpType(opType)
		op.EntityType = model.EntityType(entityType)
		op.EnqueuedAt = parseTime(enqueuedAt)
		op.Synced = synced != 0
		op.SyncedAt = nullStringToTime(syncedAt)
		if data.Valid {
			op.Data = json.RawMessage(data.String)
		}
		if lastError.Valid {
			op.LastError = lastError.String
		}

		ops = append(ops, &op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return ops, nil
}
