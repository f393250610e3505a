// This file implements Store operations against the videos table: video
// upsert, play/rating recording, combined cache lookup, and the
// not-found cache convention.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("database: record not found")

// Video is a resolved or not-found-cached video record.
type Video struct {
	ID              int64
	YTVideoID       sql.NullString
	HATitle         string
	HAArtist        sql.NullString
	HAAppName       sql.NullString
	HADuration      sql.NullInt64
	HAContentHash   string
	YTTitle         sql.NullString
	YTChannel       sql.NullString
	YTChannelID     sql.NullString
	YTDescription   sql.NullString
	YTPublishedAt   sql.NullTime
	YTCategoryID    sql.NullString
	YTLiveBroadcast sql.NullString
	YTLocation      sql.NullString
	YTRecordingDate sql.NullTime
	YTDuration      sql.NullInt64
	YTURL           sql.NullString
	YTThumbnailURL  sql.NullString
	Rating          string
	RatingScore     int
	PlayCount       int
	DateAdded       time.Time
	DateLastPlayed  sql.NullTime
	Source          sql.NullString
	PendingReason   sql.NullString
	AttemptCount    int
	LastAttempt     sql.NullTime
}

const videoColumns = `id, yt_video_id, ha_title, ha_artist, ha_app_name, ha_duration, ha_content_hash,
	yt_title, yt_channel, yt_channel_id, yt_description, yt_published_at, yt_category_id,
	yt_live_broadcast, yt_location, yt_recording_date, yt_duration, yt_url, yt_thumbnail_url,
	rating, rating_score, play_count, date_added, date_last_played, source, pending_reason,
	attempt_count, last_attempt`

func scanVideo(row interface{ Scan(...any) error }) (*Video, error) {
	var v Video
	err := row.Scan(&v.ID, &v.YTVideoID, &v.HATitle, &v.HAArtist, &v.HAAppName, &v.HADuration, &v.HAContentHash,
		&v.YTTitle, &v.YTChannel, &v.YTChannelID, &v.YTDescription, &v.YTPublishedAt, &v.YTCategoryID,
		&v.YTLiveBroadcast, &v.YTLocation, &v.YTRecordingDate, &v.YTDuration, &v.YTURL, &v.YTThumbnailURL,
		&v.Rating, &v.RatingScore, &v.PlayCount, &v.DateAdded, &v.DateLastPlayed, &v.Source, &v.PendingReason,
		&v.AttemptCount, &v.LastAttempt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// UpsertVideo inserts a resolved video record, or updates an existing
// row into a resolved one. yt_video_id is the identity once resolution
// has happened; content hash is only the identity before that (the
// not-found placeholder row a search hasn't matched yet).
func (db *DB) UpsertVideo(ctx context.Context, v *Video) (int64, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	existing, err := db.findExistingForUpsertLocked(ctx, v)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("failed to check existing video: %w", err)
	}

	if existing != nil {
		_, err := db.conn.ExecContext(ctx, `
			UPDATE videos SET
				yt_video_id = ?, yt_title = ?, yt_channel = ?, yt_channel_id = ?, yt_description = ?,
				yt_published_at = ?, yt_category_id = ?, yt_live_broadcast = ?, yt_location = ?,
				yt_recording_date = ?, yt_duration = ?, yt_url = ?, yt_thumbnail_url = ?,
				pending_reason = NULL, source = ?
			WHERE id = ?`,
			v.YTVideoID, v.YTTitle, v.YTChannel, v.YTChannelID, v.YTDescription,
			v.YTPublishedAt, v.YTCategoryID, v.YTLiveBroadcast, v.YTLocation,
			v.YTRecordingDate, v.YTDuration, v.YTURL, v.YTThumbnailURL,
			v.Source, existing.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to update video: %w", err)
		}
		return existing.ID, nil
	}

	row := db.conn.QueryRowContext(ctx, `
		INSERT INTO videos (
			yt_video_id, ha_title, ha_artist, ha_app_name, ha_duration, ha_content_hash,
			yt_title, yt_channel, yt_channel_id, yt_description, yt_published_at, yt_category_id,
			yt_live_broadcast, yt_location, yt_recording_date, yt_duration, yt_url, yt_thumbnail_url,
			source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		v.YTVideoID, v.HATitle, v.HAArtist, v.HAAppName, v.HADuration, v.HAContentHash,
		v.YTTitle, v.YTChannel, v.YTChannelID, v.YTDescription, v.YTPublishedAt, v.YTCategoryID,
		v.YTLiveBroadcast, v.YTLocation, v.YTRecordingDate, v.YTDuration, v.YTURL, v.YTThumbnailURL,
		v.Source)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert video: %w", err)
	}
	return id, nil
}

// RecordPlay increments play_count and sets date_last_played for the
// video identified by its YouTube video ID.
func (db *DB) RecordPlay(ctx context.Context, ytVideoID string) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	res, err := db.conn.ExecContext(ctx, `
		UPDATE videos SET play_count = play_count + 1, date_last_played = CURRENT_TIMESTAMP
		WHERE yt_video_id = ?`, ytVideoID)
	if err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	return mustAffectOne(res, "video")
}

// RecordRating sets the rating for a video and adjusts rating_score by
// the delta implied by the previous and new rating (like=+1,
// dislike=-1, none=0), so rating_score always reflects net sentiment
// rather than a naive overwrite.
func (db *DB) RecordRating(ctx context.Context, ytVideoID string, newRating string, delta int) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	res, err := db.conn.ExecContext(ctx, `
		UPDATE videos SET rating = ?, rating_score = rating_score + ?
		WHERE yt_video_id = ?`, newRating, delta, ytVideoID)
	if err != nil {
		return fmt.Errorf("failed to record rating: %w", err)
	}
	return mustAffectOne(res, "video")
}

// CacheLookup resolves a video from the local cache in one query:
// prefer an exact content-hash match; otherwise match on title plus a
// duration window (duration +/- toleranceSeconds, to absorb the +1s
// platform rounding difference plus configured slop). Returns
// ErrNotFound if nothing in the videos table matches, regardless of
// whether that's "never seen" or "cached as not-found."
func (db *DB) CacheLookup(ctx context.Context, contentHash, title string, duration, toleranceSeconds int) (*Video, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT * FROM (
			SELECT `+videoColumns+` FROM videos
			WHERE ha_content_hash = ?
			UNION ALL
			SELECT `+videoColumns+` FROM videos
			WHERE ha_content_hash != ?
				AND ha_title = ?
				AND ha_duration BETWEEN ? AND ?
		) AS candidates
		ORDER BY CASE WHEN ha_content_hash = ? THEN 0 ELSE 1 END, date_last_played DESC, date_added DESC
		LIMIT 1`,
		contentHash,
		contentHash, title, duration-toleranceSeconds, duration+toleranceSeconds,
		contentHash)

	v, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up cached video: %w", err)
	}
	return v, nil
}

// IsRecentlyNotFound reports whether a not-found cache entry exists for
// the given content hash within maxAge.
func (db *DB) IsRecentlyNotFound(ctx context.Context, contentHash string, maxAge time.Duration) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM videos
		WHERE ha_content_hash = ? AND pending_reason = 'not_found'
			AND last_attempt > ?`,
		contentHash, time.Now().Add(-maxAge)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check not-found cache: %w", err)
	}
	return count > 0, nil
}

// RecordNotFound inserts or refreshes a not-found cache entry for a
// content hash, incrementing attempt_count each time search comes up
// empty for the same title.
func (db *DB) RecordNotFound(ctx context.Context, contentHash, title string, haArtist, haAppName string, haDuration int) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	existing, err := db.findByContentHashLocked(ctx, contentHash)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to check existing not-found entry: %w", err)
	}

	if existing != nil {
		_, err := db.conn.ExecContext(ctx, `
			UPDATE videos SET attempt_count = attempt_count + 1, last_attempt = CURRENT_TIMESTAMP
			WHERE id = ?`, existing.ID)
		if err != nil {
			return fmt.Errorf("failed to refresh not-found entry: %w", err)
		}
		return nil
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO videos (ha_title, ha_artist, ha_app_name, ha_duration, ha_content_hash,
			pending_reason, attempt_count, last_attempt)
		VALUES (?, ?, ?, ?, ?, 'not_found', 1, CURRENT_TIMESTAMP)`,
		title, haArtist, haAppName, haDuration, contentHash)
	if err != nil {
		return fmt.Errorf("failed to insert not-found entry: %w", err)
	}
	return nil
}

// FindByYTVideoID returns the video record for a resolved YouTube video
// ID, or ErrNotFound if none exists yet (e.g. a rating item queued
// before the video was ever upserted).
func (db *DB) FindByYTVideoID(ctx context.Context, ytVideoID string) (*Video, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE yt_video_id = ?`, ytVideoID)
	v, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up video by yt_video_id: %w", err)
	}
	return v, nil
}

// findByContentHashLocked must be called with writeMu held.
func (db *DB) findByContentHashLocked(ctx context.Context, contentHash string) (*Video, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE ha_content_hash = ?`, contentHash)
	v, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// findByYTVideoIDLocked must be called with writeMu held.
func (db *DB) findByYTVideoIDLocked(ctx context.Context, ytVideoID string) (*Video, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE yt_video_id = ?`, ytVideoID)
	v, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// findExistingForUpsertLocked resolves the row UpsertVideo should update,
// if any. yt_video_id is checked first: two different content hashes
// (e.g. the same video re-tagged with a slightly different title) can
// both resolve to a video already known by yt_video_id, and since
// yt_video_id is UNIQUE, keying the lookup on content hash alone would
// attempt a second INSERT with an already-used id and fail. Content
// hash is only consulted as a fallback, for the not-found-placeholder-
// becomes-resolved transition where no yt_video_id exists yet.
func (db *DB) findExistingForUpsertLocked(ctx context.Context, v *Video) (*Video, error) {
	if v.YTVideoID.Valid {
		existing, err := db.findByYTVideoIDLocked(ctx, v.YTVideoID.String)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return db.findByContentHashLocked(ctx, v.HAContentHash)
}

func mustAffectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: no %s row matched", ErrNotFound, what)
	}
	return nil
}
