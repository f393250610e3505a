package database

import (
	"context"
	"errors"
	"testing"

	"github.com/ytthumbs/ytthumbs/internal/queue"
)

func TestEnqueueClaimComplete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	payload, err := queue.EncodeRatingPayload(queue.RatingPayload{YTVideoID: "abc", Rating: queue.RatingLike})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}

	id, err := db.Enqueue(ctx, queue.TypeRating, queue.SourceHALive, payload)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	item, err := db.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if item.ID != id {
		t.Fatalf("expected to claim item %d, got %d", id, item.ID)
	}
	if item.Status != queue.StatusProcessing {
		t.Errorf("expected status processing, got %s", item.Status)
	}
	if item.Attempts != 1 {
		t.Errorf("expected attempts=1, got %d", item.Attempts)
	}

	if err := db.MarkCompleted(ctx, item.ID, `{"ok":true}`); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	completed, err := db.ListProcessing(ctx, 10)
	if err != nil {
		t.Fatalf("ListProcessing: %v", err)
	}
	if len(completed) != 0 {
		t.Errorf("expected no items left processing, got %d", len(completed))
	}
}

func TestClaimNext_PriorityOrdering(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	searchPayload, _ := queue.EncodeSearchPayload(queue.SearchPayload{HATitle: "A Song", HADuration: 200})
	ratingPayload, _ := queue.EncodeRatingPayload(queue.RatingPayload{YTVideoID: "xyz", Rating: queue.RatingLike})

	if _, err := db.Enqueue(ctx, queue.TypeSearch, queue.SourceHALive, searchPayload); err != nil {
		t.Fatalf("enqueue search: %v", err)
	}
	ratingID, err := db.Enqueue(ctx, queue.TypeRating, queue.SourceHALive, ratingPayload)
	if err != nil {
		t.Fatalf("enqueue rating: %v", err)
	}

	claimed, err := db.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed.ID != ratingID {
		t.Errorf("expected rating item to be claimed first (higher precedence), got item %d of type %s", claimed.ID, claimed.Type)
	}
}

func TestClaimNext_EmptyQueue(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.ClaimNext(ctx)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty queue, got %v", err)
	}
}

func TestMarkFailed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	payload, _ := queue.EncodeSearchPayload(queue.SearchPayload{HATitle: "Bad Song", HADuration: 100})
	id, err := db.Enqueue(ctx, queue.TypeSearch, queue.SourceImport, payload)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := db.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	if err := db.MarkFailed(ctx, id, "quota exceeded"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	failed, err := db.ListFailed(ctx, 10)
	if err != nil {
		t.Fatalf("ListFailed: %v", err)
	}
	if len(failed) != 1 || failed[0].LastError != "quota exceeded" {
		t.Errorf("expected one failed item with recorded error, got %+v", failed)
	}
}

func TestResetStaleProcessing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	payload, _ := queue.EncodeSearchPayload(queue.SearchPayload{HATitle: "Stuck Song", HADuration: 100})
	if _, err := db.Enqueue(ctx, queue.TypeSearch, queue.SourceImport, payload); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := db.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	// Unconditional: a row claimed moments ago still gets reset, since the
	// only way a row is in processing is an interrupted prior run.
	n, err := db.ResetStaleProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStaleProcessing: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 item reset, got %d", n)
	}

	pending, err := db.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected reset item back in pending, got %d pending", len(pending))
	}
}
