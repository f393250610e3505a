// This file defines the Store's DuckDB schema: one CREATE TABLE IF NOT
// EXISTS per entity, plus supporting indexes. Schema creation is
// idempotent and safe to run on every startup.
package database

import "fmt"

const createSequences = `
CREATE SEQUENCE IF NOT EXISTS seq_videos_id START 1;
CREATE SEQUENCE IF NOT EXISTS seq_queue_id START 1;
CREATE SEQUENCE IF NOT EXISTS seq_api_call_log_id START 1;
`

// videos holds both resolved video records and not-found cache entries.
// A row with yt_video_id IS NULL and pending_reason='not_found' is a
// negative assertion about a content hash: "we searched for this and
// found nothing, recently enough that it's not worth searching again."
const createVideosTable = `
CREATE TABLE IF NOT EXISTS videos (
	id                 BIGINT PRIMARY KEY DEFAULT nextval('seq_videos_id'),
	yt_video_id        TEXT UNIQUE,
	ha_title           TEXT NOT NULL,
	ha_artist          TEXT,
	ha_app_name        TEXT,
	ha_duration        INTEGER,
	ha_content_hash    TEXT NOT NULL,
	yt_title           TEXT,
	yt_channel         TEXT,
	yt_channel_id      TEXT,
	yt_description     TEXT,
	yt_published_at    TIMESTAMP,
	yt_category_id     TEXT,
	yt_live_broadcast  TEXT,
	yt_location        TEXT,
	yt_recording_date  TIMESTAMP,
	yt_duration        INTEGER,
	yt_url             TEXT,
	yt_thumbnail_url   TEXT,
	rating             TEXT NOT NULL DEFAULT 'none',
	rating_score       INTEGER NOT NULL DEFAULT 0,
	play_count         INTEGER NOT NULL DEFAULT 0,
	date_added         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	date_last_played   TIMESTAMP,
	source             TEXT,
	pending_reason     TEXT,
	attempt_count      INTEGER NOT NULL DEFAULT 0,
	last_attempt       TIMESTAMP
);
`

const createQueueTable = `
CREATE TABLE IF NOT EXISTS queue_items (
	id                 BIGINT PRIMARY KEY DEFAULT nextval('seq_queue_id'),
	type               TEXT NOT NULL,
	priority           INTEGER NOT NULL,
	status             TEXT NOT NULL DEFAULT 'pending',
	source             TEXT,
	payload            TEXT NOT NULL,
	requested_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_attempt       TIMESTAMP,
	completed_at       TIMESTAMP,
	attempts           INTEGER NOT NULL DEFAULT 0,
	last_error         TEXT,
	api_response_data  TEXT
);
`

const createSearchCacheTable = `
CREATE TABLE IF NOT EXISTS search_cache (
	yt_video_id        TEXT PRIMARY KEY,
	yt_title           TEXT,
	yt_channel         TEXT,
	yt_channel_id      TEXT,
	yt_duration        INTEGER,
	yt_description     TEXT,
	yt_published_at    TIMESTAMP,
	yt_category_id     TEXT,
	yt_thumbnail_url   TEXT,
	cached_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	expires_at         TIMESTAMP NOT NULL
);
`

// api_usage tracks per-day quota burn. hourly_counts is a JSON array of
// 24 integers (one bucket per hour of the reset-zone day), incremented
// atomically by RecordAPICall.
const createAPIUsageTable = `
CREATE TABLE IF NOT EXISTS api_usage (
	usage_date     DATE PRIMARY KEY,
	hourly_counts  TEXT NOT NULL DEFAULT '[0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0]',
	total_cost     INTEGER NOT NULL DEFAULT 0
);
`

const createAPICallLogTable = `
CREATE TABLE IF NOT EXISTS api_call_log (
	id             BIGINT PRIMARY KEY DEFAULT nextval('seq_api_call_log_id'),
	method         TEXT NOT NULL,
	quota_cost     INTEGER NOT NULL,
	success        BOOLEAN NOT NULL,
	error_message  TEXT,
	called_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	statements := []string{
		createSequences,
		createVideosTable,
		createQueueTable,
		createSearchCacheTable,
		createAPIUsageTable,
		createAPICallLogTable,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_videos_content_hash ON videos(ha_content_hash);`,
		`CREATE INDEX IF NOT EXISTS idx_videos_ha_title ON videos(ha_title);`,
		`CREATE INDEX IF NOT EXISTS idx_videos_pending_reason ON videos(pending_reason);`,
		`CREATE INDEX IF NOT EXISTS idx_queue_status_priority ON queue_items(status, priority, requested_at);`,
		`CREATE INDEX IF NOT EXISTS idx_search_cache_expires ON search_cache(expires_at);`,
		`CREATE INDEX IF NOT EXISTS idx_search_cache_duration ON search_cache(yt_duration);`,
		`CREATE INDEX IF NOT EXISTS idx_api_call_log_called_at ON api_call_log(called_at);`,
	}

	for _, stmt := range indexes {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
