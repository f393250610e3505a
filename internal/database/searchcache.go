// This file implements Store operations against the search_cache
// table: a short-lived cache of remote-platform search results, keyed
// by video ID, used to avoid repeat search.list calls for the same
// candidates across nearby queue items.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SearchCacheEntry is a cached remote-platform search result.
type SearchCacheEntry struct {
	YTVideoID      string
	YTTitle        string
	YTChannel      string
	YTChannelID    string
	YTDuration     int
	YTDescription  string
	YTPublishedAt  sql.NullTime
	YTCategoryID   string
	YTThumbnailURL string
	ExpiresAt      time.Time
}

// InsertOrReplaceBatch upserts a batch of search results in a single
// transaction, each with the same expiry.
func (db *DB) InsertOrReplaceBatch(ctx context.Context, entries []SearchCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin search cache transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO search_cache (yt_video_id, yt_title, yt_channel, yt_channel_id, yt_duration,
			yt_description, yt_published_at, yt_category_id, yt_thumbnail_url, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (yt_video_id) DO UPDATE SET
			yt_title = EXCLUDED.yt_title,
			yt_channel = EXCLUDED.yt_channel,
			yt_channel_id = EXCLUDED.yt_channel_id,
			yt_duration = EXCLUDED.yt_duration,
			yt_description = EXCLUDED.yt_description,
			yt_published_at = EXCLUDED.yt_published_at,
			yt_category_id = EXCLUDED.yt_category_id,
			yt_thumbnail_url = EXCLUDED.yt_thumbnail_url,
			cached_at = CURRENT_TIMESTAMP,
			expires_at = EXCLUDED.expires_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare search cache upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.YTVideoID, e.YTTitle, e.YTChannel, e.YTChannelID, e.YTDuration,
			e.YTDescription, e.YTPublishedAt, e.YTCategoryID, e.YTThumbnailURL, e.ExpiresAt); err != nil {
			return fmt.Errorf("failed to upsert search cache entry %s: %w", e.YTVideoID, err)
		}
	}

	return tx.Commit()
}

const searchCacheColumns = `yt_video_id, yt_title, yt_channel, yt_channel_id, yt_duration,
	yt_description, yt_published_at, yt_category_id, yt_thumbnail_url, expires_at`

func scanSearchCacheEntry(rows *sql.Rows) (SearchCacheEntry, error) {
	var e SearchCacheEntry
	err := rows.Scan(&e.YTVideoID, &e.YTTitle, &e.YTChannel, &e.YTChannelID, &e.YTDuration,
		&e.YTDescription, &e.YTPublishedAt, &e.YTCategoryID, &e.YTThumbnailURL, &e.ExpiresAt)
	return e, err
}

// QueryByDurationRange returns unexpired cache entries whose duration
// falls within [target-tolerance, target+tolerance] seconds.
func (db *DB) QueryByDurationRange(ctx context.Context, targetSeconds, toleranceSeconds int) ([]SearchCacheEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+searchCacheColumns+` FROM search_cache
		WHERE yt_duration BETWEEN ? AND ? AND expires_at > CURRENT_TIMESTAMP`,
		targetSeconds-toleranceSeconds, targetSeconds+toleranceSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to query search cache by duration: %w", err)
	}
	defer rows.Close()

	var out []SearchCacheEntry
	for rows.Next() {
		e, err := scanSearchCacheEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search cache entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// QueryByTitleAndDuration returns unexpired cache entries that match a
// title substring (case-insensitive) within a duration window.
func (db *DB) QueryByTitleAndDuration(ctx context.Context, titleLike string, targetSeconds, toleranceSeconds int) ([]SearchCacheEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+searchCacheColumns+` FROM search_cache
		WHERE lower(yt_title) LIKE lower(?) AND yt_duration BETWEEN ? AND ?
			AND expires_at > CURRENT_TIMESTAMP`,
		"%"+titleLike+"%", targetSeconds-toleranceSeconds, targetSeconds+toleranceSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to query search cache by title and duration: %w", err)
	}
	defer rows.Close()

	var out []SearchCacheEntry
	for rows.Next() {
		e, err := scanSearchCacheEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search cache entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeExpired deletes all expired search cache rows and returns the
// number removed.
func (db *DB) PurgeExpired(ctx context.Context) (int64, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM search_cache WHERE expires_at <= CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired search cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to determine rows affected: %w", err)
	}
	return n, nil
}
