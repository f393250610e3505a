// This file implements Store operations against the api_usage and
// api_call_log tables, the Quota Calendar's persistence layer.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// RecordAPICall logs a single remote-platform API call and folds its
// quota cost into the calling day's hourly bucket, all in one
// transaction so the log and the running total never drift apart.
func (db *DB) RecordAPICall(ctx context.Context, method string, quotaCost int, success bool, errMsg string, at time.Time) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin api call transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var errArg sql.NullString
	if errMsg != "" {
		errArg = sql.NullString{String: errMsg, Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO api_call_log (method, quota_cost, success, error_message, called_at)
		VALUES (?, ?, ?, ?, ?)`, method, quotaCost, success, errArg, at); err != nil {
		return fmt.Errorf("failed to insert api call log: %w", err)
	}

	day := at.Truncate(24 * time.Hour)
	hour := at.Hour()

	var countsJSON string
	err = tx.QueryRowContext(ctx, `SELECT hourly_counts FROM api_usage WHERE usage_date = ?`, day).Scan(&countsJSON)
	var counts [24]int
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal([]byte(countsJSON), &counts); jsonErr != nil {
			return fmt.Errorf("failed to decode hourly counts: %w", jsonErr)
		}
	case err == sql.ErrNoRows:
		// counts stays zeroed; row is created below.
	default:
		return fmt.Errorf("failed to read api usage row: %w", err)
	}

	counts[hour] += quotaCost
	updated, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to encode hourly counts: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO api_usage (usage_date, hourly_counts, total_cost)
		VALUES (?, ?, ?)
		ON CONFLICT (usage_date) DO UPDATE SET
			hourly_counts = EXCLUDED.hourly_counts,
			total_cost = api_usage.total_cost + ?`,
		day, string(updated), quotaCost, quotaCost); err != nil {
		return fmt.Errorf("failed to upsert api usage row: %w", err)
	}

	return tx.Commit()
}

// TotalCostForDay returns the cumulative quota cost recorded for the
// given reset-zone day, or 0 if no calls have been logged yet.
func (db *DB) TotalCostForDay(ctx context.Context, day time.Time) (int, error) {
	var total int
	err := db.conn.QueryRowContext(ctx, `SELECT total_cost FROM api_usage WHERE usage_date = ?`,
		day.Truncate(24*time.Hour)).Scan(&total)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read total cost for day: %w", err)
	}
	return total, nil
}

// LastCallAt returns the timestamp of the most recent logged API call,
// used by the Quota Calendar to detect a long-idle worker resuming
// mid-quota-window.
func (db *DB) LastCallAt(ctx context.Context) (time.Time, error) {
	var at time.Time
	err := db.conn.QueryRowContext(ctx, `SELECT called_at FROM api_call_log ORDER BY called_at DESC LIMIT 1`).Scan(&at)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to read last api call: %w", err)
	}
	return at, nil
}

// LastExhaustedAt returns the timestamp of the most recent failed API
// call whose error indicates quota exhaustion, or ErrNotFound if none
// has ever been recorded.
func (db *DB) LastExhaustedAt(ctx context.Context, exhaustionMarker string) (time.Time, error) {
	var at time.Time
	err := db.conn.QueryRowContext(ctx, `
		SELECT called_at FROM api_call_log
		WHERE success = false AND error_message LIKE ?
		ORDER BY called_at DESC LIMIT 1`, "%"+exhaustionMarker+"%").Scan(&at)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to read last quota-exhausted call: %w", err)
	}
	return at, nil
}
