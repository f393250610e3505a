// This file implements Store operations against the queue_items table:
// the durable, unified FIFO-within-priority work queue shared by search
// and rating work.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ytthumbs/ytthumbs/internal/queue"
)

const queueColumns = `id, type, priority, status, source, payload, requested_at, last_attempt,
	completed_at, attempts, last_error, api_response_data`

func scanQueueItem(row interface{ Scan(...any) error }) (*queue.Item, error) {
	var (
		it          queue.Item
		lastAttempt sql.NullTime
		completedAt sql.NullTime
		lastError   sql.NullString
		apiResponse sql.NullString
		source      sql.NullString
	)
	err := row.Scan(&it.ID, &it.Type, &it.Priority, &it.Status, &source, &it.Payload,
		&it.RequestedAt, &lastAttempt, &completedAt, &it.Attempts, &lastError, &apiResponse)
	if err != nil {
		return nil, err
	}
	it.Source = queue.Source(source.String)
	if lastAttempt.Valid {
		it.LastAttempt = &lastAttempt.Time
	}
	if completedAt.Valid {
		it.CompletedAt = &completedAt.Time
	}
	it.LastError = lastError.String
	it.APIResponseData = apiResponse.String
	return &it, nil
}

// Enqueue inserts a new pending work item, deriving its priority from
// its type.
func (db *DB) Enqueue(ctx context.Context, itemType queue.Type, source queue.Source, payload []byte) (int64, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	row := db.conn.QueryRowContext(ctx, `
		INSERT INTO queue_items (type, priority, status, source, payload)
		VALUES (?, ?, 'pending', ?, ?)
		RETURNING id`,
		itemType, itemType.Priority(), source, payload)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to enqueue item: %w", err)
	}
	return id, nil
}

// ClaimNext atomically claims the oldest pending item among the lowest
// (highest-precedence) priority present, marking it processing and
// bumping its attempt count. Returns ErrNotFound if the queue is empty.
func (db *DB) ClaimNext(ctx context.Context) (*queue.Item, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	row := db.conn.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queue_items
		WHERE status = 'pending'
		ORDER BY priority ASC, requested_at ASC
		LIMIT 1`)

	item, err := scanQueueItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find next queue item: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		UPDATE queue_items SET status = 'processing', attempts = attempts + 1, last_attempt = CURRENT_TIMESTAMP
		WHERE id = ?`, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue item %d: %w", item.ID, err)
	}

	item.Status = queue.StatusProcessing
	item.Attempts++
	now := time.Now()
	item.LastAttempt = &now
	return item, nil
}

// MarkCompleted marks a claimed item completed, optionally attaching
// the raw API response that produced the result (useful for debugging
// search matches after the fact).
func (db *DB) MarkCompleted(ctx context.Context, id int64, apiResponseData string) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	res, err := db.conn.ExecContext(ctx, `
		UPDATE queue_items SET status = 'completed', completed_at = CURRENT_TIMESTAMP, api_response_data = ?
		WHERE id = ?`, apiResponseData, id)
	if err != nil {
		return fmt.Errorf("failed to mark queue item %d completed: %w", id, err)
	}
	return mustAffectOne(res, "queue item")
}

// MarkFailed marks a claimed item failed and records the error. The
// caller decides whether to re-enqueue (this package never retries on
// its own).
func (db *DB) MarkFailed(ctx context.Context, id int64, lastError string) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	res, err := db.conn.ExecContext(ctx, `
		UPDATE queue_items SET status = 'failed', last_error = ?
		WHERE id = ?`, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to mark queue item %d failed: %w", id, err)
	}
	return mustAffectOne(res, "queue item")
}

// ResetStaleProcessing unconditionally reverts every item stuck in
// processing back to pending. This is single-writer crash recovery: the
// only way a row is in processing is that the one Worker claimed it and
// hasn't finished, so any row in that state when Serve starts is, by
// construction, a crash artifact from the previous run, however long ago
// that run ended. Gating this on an age threshold would leave a row
// claimed just before a crash stuck forever, since nothing else can ever
// un-stick it. Returns the number of items reset.
func (db *DB) ResetStaleProcessing(ctx context.Context) (int64, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	res, err := db.conn.ExecContext(ctx, `
		UPDATE queue_items SET status = 'pending'
		WHERE status = 'processing'`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale processing items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to determine rows affected: %w", err)
	}
	return n, nil
}

// listByStatus returns items in a given status, newest-requested first,
// for observability endpoints.
func (db *DB) listByStatus(ctx context.Context, status queue.Status, limit int) ([]*queue.Item, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+queueColumns+` FROM queue_items
		WHERE status = ? ORDER BY requested_at DESC LIMIT ?`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s items: %w", status, err)
	}
	defer rows.Close()

	var items []*queue.Item
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListPending returns up to limit pending items, most recently requested first.
func (db *DB) ListPending(ctx context.Context, limit int) ([]*queue.Item, error) {
	return db.listByStatus(ctx, queue.StatusPending, limit)
}

// ListProcessing returns up to limit processing items.
func (db *DB) ListProcessing(ctx context.Context, limit int) ([]*queue.Item, error) {
	return db.listByStatus(ctx, queue.StatusProcessing, limit)
}

// ListFailed returns up to limit failed items.
func (db *DB) ListFailed(ctx context.Context, limit int) ([]*queue.Item, error) {
	return db.listByStatus(ctx, queue.StatusFailed, limit)
}
