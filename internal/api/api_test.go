package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ytthumbs/ytthumbs/internal/database"
	"github.com/ytthumbs/ytthumbs/internal/haclient"
	"github.com/ytthumbs/ytthumbs/internal/intake"
	"github.com/ytthumbs/ytthumbs/internal/queue"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeQuota struct{ exhausted bool }

func (f fakeQuota) QuotaExhaustedSinceLastReset(ctx context.Context, now time.Time) (bool, error) {
	return f.exhausted, nil
}

type fakePoller struct{ last time.Time }

func (f fakePoller) LastTickAt() time.Time { return f.last }

type fakeMedia struct {
	info haclient.MediaInfo
	err  error
}

func (f fakeMedia) GetState(ctx context.Context, entityID string) (haclient.MediaInfo, error) {
	return f.info, f.err
}

func TestHealth_HealthyWhenEverythingIsUp(t *testing.T) {
	h := NewHandler(fakePinger{}, fakeQuota{exhausted: false}, fakePoller{last: time.Now()}, nil, Config{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q, want healthy", body.Status)
	}
}

func TestHealth_DegradedWhenDatabaseUnreachable(t *testing.T) {
	h := NewHandler(fakePinger{err: context.DeadlineExceeded}, fakeQuota{}, fakePoller{last: time.Now()}, nil, Config{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealth_DegradedWhenQuotaExhausted(t *testing.T) {
	h := NewHandler(fakePinger{}, fakeQuota{exhausted: true}, fakePoller{last: time.Now()}, nil, Config{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealth_DegradedWhenPollerStale(t *testing.T) {
	h := NewHandler(fakePinger{}, fakeQuota{}, fakePoller{last: time.Now().Add(-time.Hour)}, nil, Config{PollerStaleAfter: time.Minute})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestRatePost_RejectsInvalidRating(t *testing.T) {
	h := NewHandler(fakePinger{}, fakeQuota{}, fakePoller{}, nil, Config{})
	r := NewRouter(h)

	body := bytes.NewBufferString(`{"rating":"love"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/rate/current", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRatePost_ExplicitVideoIDBypassesCurrentMediaLookup(t *testing.T) {
	store := &explicitRatingStore{}
	in := intake.New(fakeMedia{err: context.DeadlineExceeded}, store, intake.Config{})
	h := NewHandler(fakePinger{}, fakeQuota{}, fakePoller{}, in, Config{})
	r := NewRouter(h)

	body := bytes.NewBufferString(`{"rating":"like"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/rate/yt-abc123", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", rec.Code, rec.Body.String())
	}
	if store.enqueueCalls != 1 {
		t.Errorf("enqueueCalls = %d, want 1", store.enqueueCalls)
	}
}

func TestRatePost_CurrentNotPlayingReturns400(t *testing.T) {
	in := intake.New(fakeMedia{info: haclient.MediaInfo{State: "idle"}}, &explicitRatingStore{}, intake.Config{})
	h := NewHandler(fakePinger{}, fakeQuota{}, fakePoller{}, in, Config{})
	r := NewRouter(h)

	body := bytes.NewBufferString(`{"rating":"like"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/rate/current", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

// explicitRatingStore implements intake.Store for tests needing only Enqueue.
type explicitRatingStore struct {
	enqueueCalls int
}

func (s *explicitRatingStore) CacheLookup(ctx context.Context, contentHash, title string, duration, tol int) (*database.Video, error) {
	return nil, database.ErrNotFound
}

func (s *explicitRatingStore) Enqueue(ctx context.Context, t queue.Type, src queue.Source, payload []byte) (int64, error) {
	s.enqueueCalls++
	return 1, nil
}
