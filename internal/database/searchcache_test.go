package database

import (
	"context"
	"testing"
	"time"
)

func TestInsertOrReplaceBatchAndQuery(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entries := []SearchCacheEntry{
		{YTVideoID: "v1", YTTitle: "Flowers", YTDuration: 200, ExpiresAt: time.Now().Add(time.Hour)},
		{YTVideoID: "v2", YTTitle: "Flowers (Live)", YTDuration: 215, ExpiresAt: time.Now().Add(time.Hour)},
		{YTVideoID: "v3", YTTitle: "Unrelated Song", YTDuration: 600, ExpiresAt: time.Now().Add(time.Hour)},
	}
	if err := db.InsertOrReplaceBatch(ctx, entries); err != nil {
		t.Fatalf("InsertOrReplaceBatch: %v", err)
	}

	byDuration, err := db.QueryByDurationRange(ctx, 200, 20)
	if err != nil {
		t.Fatalf("QueryByDurationRange: %v", err)
	}
	if len(byDuration) != 2 {
		t.Errorf("expected 2 entries in duration window, got %d", len(byDuration))
	}

	byTitle, err := db.QueryByTitleAndDuration(ctx, "flowers", 200, 20)
	if err != nil {
		t.Fatalf("QueryByTitleAndDuration: %v", err)
	}
	if len(byTitle) != 2 {
		t.Errorf("expected 2 title matches, got %d", len(byTitle))
	}

	// Re-inserting the same video id should update rather than duplicate.
	if err := db.InsertOrReplaceBatch(ctx, []SearchCacheEntry{
		{YTVideoID: "v1", YTTitle: "Flowers (Updated)", YTDuration: 201, ExpiresAt: time.Now().Add(2 * time.Hour)},
	}); err != nil {
		t.Fatalf("InsertOrReplaceBatch update: %v", err)
	}
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_cache WHERE yt_video_id = 'v1'`).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one row for v1 after re-insert, got %d", count)
	}
}

func TestPurgeExpired(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entries := []SearchCacheEntry{
		{YTVideoID: "fresh", YTTitle: "Fresh", YTDuration: 100, ExpiresAt: time.Now().Add(time.Hour)},
		{YTVideoID: "stale", YTTitle: "Stale", YTDuration: 100, ExpiresAt: time.Now().Add(-time.Hour)},
	}
	if err := db.InsertOrReplaceBatch(ctx, entries); err != nil {
		t.Fatalf("InsertOrReplaceBatch: %v", err)
	}

	n, err := db.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged row, got %d", n)
	}

	remaining, err := db.QueryByDurationRange(ctx, 100, 5)
	if err != nil {
		t.Fatalf("QueryByDurationRange: %v", err)
	}
	if len(remaining) != 1 || remaining[0].YTVideoID != "fresh" {
		t.Errorf("expected only the fresh entry to remain, got %+v", remaining)
	}
}
