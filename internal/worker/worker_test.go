package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ytthumbs/ytthumbs/internal/database"
	"github.com/ytthumbs/ytthumbs/internal/queue"
	"github.com/ytthumbs/ytthumbs/internal/search"
	"github.com/ytthumbs/ytthumbs/internal/ytapi"
)

type fakeStore struct {
	resetStale      func(ctx context.Context) (int64, error)
	claimNext       func(ctx context.Context) (*queue.Item, error)
	markCompleted   func(ctx context.Context, id int64, apiResponseData string) error
	markFailed      func(ctx context.Context, id int64, lastError string) error
	enqueue         func(ctx context.Context, itemType queue.Type, source queue.Source, payload []byte) (int64, error)
	cacheLookup     func(ctx context.Context, contentHash, title string, duration, tolerance int) (*database.Video, error)
	findByYTVideoID func(ctx context.Context, ytVideoID string) (*database.Video, error)
	queryByDuration func(ctx context.Context, targetSeconds, tolerance int) ([]database.SearchCacheEntry, error)
	queryByTitle    func(ctx context.Context, titleLike string, targetSeconds, tolerance int) ([]database.SearchCacheEntry, error)
	upsertVideo     func(ctx context.Context, v *database.Video) (int64, error)
	recordPlay      func(ctx context.Context, ytVideoID string) error
	recordRating    func(ctx context.Context, ytVideoID string, newRating string, delta int) error
	recordNotFound  func(ctx context.Context, contentHash, title, haArtist, haAppName string, haDuration int) error
}

func (f *fakeStore) ResetStaleProcessing(ctx context.Context) (int64, error) {
	if f.resetStale != nil {
		return f.resetStale(ctx)
	}
	return 0, nil
}
func (f *fakeStore) ClaimNext(ctx context.Context) (*queue.Item, error) { return f.claimNext(ctx) }
func (f *fakeStore) MarkCompleted(ctx context.Context, id int64, apiResponseData string) error {
	if f.markCompleted != nil {
		return f.markCompleted(ctx, id, apiResponseData)
	}
	return nil
}
func (f *fakeStore) MarkFailed(ctx context.Context, id int64, lastError string) error {
	if f.markFailed != nil {
		return f.markFailed(ctx, id, lastError)
	}
	return nil
}
func (f *fakeStore) Enqueue(ctx context.Context, itemType queue.Type, source queue.Source, payload []byte) (int64, error) {
	if f.enqueue != nil {
		return f.enqueue(ctx, itemType, source, payload)
	}
	return 1, nil
}
func (f *fakeStore) CacheLookup(ctx context.Context, contentHash, title string, duration, tolerance int) (*database.Video, error) {
	if f.cacheLookup != nil {
		return f.cacheLookup(ctx, contentHash, title, duration, tolerance)
	}
	return nil, database.ErrNotFound
}
func (f *fakeStore) FindByYTVideoID(ctx context.Context, ytVideoID string) (*database.Video, error) {
	if f.findByYTVideoID != nil {
		return f.findByYTVideoID(ctx, ytVideoID)
	}
	return nil, database.ErrNotFound
}
func (f *fakeStore) QueryByDurationRange(ctx context.Context, targetSeconds, tolerance int) ([]database.SearchCacheEntry, error) {
	if f.queryByDuration != nil {
		return f.queryByDuration(ctx, targetSeconds, tolerance)
	}
	return nil, nil
}
func (f *fakeStore) QueryByTitleAndDuration(ctx context.Context, titleLike string, targetSeconds, tolerance int) ([]database.SearchCacheEntry, error) {
	if f.queryByTitle != nil {
		return f.queryByTitle(ctx, titleLike, targetSeconds, tolerance)
	}
	return nil, nil
}
func (f *fakeStore) UpsertVideo(ctx context.Context, v *database.Video) (int64, error) {
	if f.upsertVideo != nil {
		return f.upsertVideo(ctx, v)
	}
	return 1, nil
}
func (f *fakeStore) RecordPlay(ctx context.Context, ytVideoID string) error {
	if f.recordPlay != nil {
		return f.recordPlay(ctx, ytVideoID)
	}
	return nil
}
func (f *fakeStore) RecordRating(ctx context.Context, ytVideoID string, newRating string, delta int) error {
	if f.recordRating != nil {
		return f.recordRating(ctx, ytVideoID, newRating, delta)
	}
	return nil
}
func (f *fakeStore) RecordNotFound(ctx context.Context, contentHash, title, haArtist, haAppName string, haDuration int) error {
	if f.recordNotFound != nil {
		return f.recordNotFound(ctx, contentHash, title, haArtist, haAppName, haDuration)
	}
	return nil
}

type fakeCalendar struct {
	exhausted bool
	resetAt   time.Time
}

func (f *fakeCalendar) QuotaExhaustedSinceLastReset(context.Context, time.Time) (bool, error) {
	return f.exhausted, nil
}
func (f *fakeCalendar) NextResetUTC(time.Time) time.Time { return f.resetAt }

type fakeRatingClient struct {
	called bool
	err    error
}

func (f *fakeRatingClient) SetRating(ctx context.Context, videoID string, rating ytapi.Rating) error {
	f.called = true
	return f.err
}

type fakeResolver struct {
	match *search.Match
	err   error
}

func (f *fakeResolver) Resolve(ctx context.Context, title string, expectedDuration int, artist string) (*search.Match, error) {
	return f.match, f.err
}

func ratingItem(t *testing.T, ytVideoID string, rating queue.RatingValue) *queue.Item {
	t.Helper()
	payload, err := queue.EncodeRatingPayload(queue.RatingPayload{YTVideoID: ytVideoID, Rating: rating})
	if err != nil {
		t.Fatalf("encoding rating payload: %v", err)
	}
	return &queue.Item{ID: 1, Type: queue.TypeRating, Payload: payload}
}

func searchItem(t *testing.T, title string, duration int, callback queue.RatingValue) *queue.Item {
	t.Helper()
	payload, err := queue.EncodeSearchPayload(queue.SearchPayload{HATitle: title, HADuration: duration, CallbackRating: callback})
	if err != nil {
		t.Fatalf("encoding search payload: %v", err)
	}
	return &queue.Item{ID: 2, Type: queue.TypeSearch, Payload: payload}
}

func TestProcessRating_SkipsRemoteCallWhenAlreadyRated(t *testing.T) {
	store := &fakeStore{
		findByYTVideoID: func(ctx context.Context, id string) (*database.Video, error) {
			return &database.Video{Rating: string(queue.RatingLike)}, nil
		},
	}
	ratings := &fakeRatingClient{}
	w := New(store, &fakeCalendar{}, ratings, &fakeResolver{}, Config{PIDFilePath: "x"})

	err := w.processRating(t.Context(), ratingItem(t, "vid1", queue.RatingLike))
	if err != nil {
		t.Fatalf("processRating() error = %v", err)
	}
	if ratings.called {
		t.Error("expected no remote SetRating call when rating already matches")
	}
}

func TestProcessRating_CallsRemoteWhenRatingDiffers(t *testing.T) {
	store := &fakeStore{
		findByYTVideoID: func(ctx context.Context, id string) (*database.Video, error) {
			return &database.Video{Rating: string(queue.RatingNone)}, nil
		},
	}
	ratings := &fakeRatingClient{}
	w := New(store, &fakeCalendar{}, ratings, &fakeResolver{}, Config{PIDFilePath: "x"})

	err := w.processRating(t.Context(), ratingItem(t, "vid1", queue.RatingDislike))
	if err != nil {
		t.Fatalf("processRating() error = %v", err)
	}
	if !ratings.called {
		t.Error("expected remote SetRating call when rating differs")
	}
}

func TestProcessSearch_CacheHitSkipsPipeline(t *testing.T) {
	var playRecorded string
	store := &fakeStore{
		cacheLookup: func(ctx context.Context, contentHash, title string, duration, tolerance int) (*database.Video, error) {
			v := &database.Video{}
			v.YTVideoID.String, v.YTVideoID.Valid = "cached-vid", true
			return v, nil
		},
		recordPlay: func(ctx context.Context, id string) error {
			playRecorded = id
			return nil
		},
	}
	resolver := &fakeResolver{}
	w := New(store, &fakeCalendar{}, &fakeRatingClient{}, resolver, Config{PIDFilePath: "x"})

	err := w.processSearch(t.Context(), searchItem(t, "Some Title", 200, queue.RatingNone))
	if err != nil {
		t.Fatalf("processSearch() error = %v", err)
	}
	if playRecorded != "cached-vid" {
		t.Errorf("RecordPlay called with %q, want %q", playRecorded, "cached-vid")
	}
}

func TestProcessSearch_PipelineMatchUpsertsAndChainsCallbackRating(t *testing.T) {
	var enqueuedType queue.Type
	var enqueuedPayload []byte
	store := &fakeStore{
		enqueue: func(ctx context.Context, itemType queue.Type, source queue.Source, payload []byte) (int64, error) {
			enqueuedType = itemType
			enqueuedPayload = payload
			return 5, nil
		},
	}
	resolver := &fakeResolver{match: &search.Match{VideoID: "new-vid", Title: "New Video", DurationSeconds: 200}}
	w := New(store, &fakeCalendar{}, &fakeRatingClient{}, resolver, Config{PIDFilePath: "x"})

	err := w.processSearch(t.Context(), searchItem(t, "Some Title", 200, queue.RatingLike))
	if err != nil {
		t.Fatalf("processSearch() error = %v", err)
	}
	if enqueuedType != queue.TypeRating {
		t.Fatalf("expected a rating item to be chained, got type %q", enqueuedType)
	}
	var decoded queue.RatingPayload
	item := &queue.Item{Type: queue.TypeRating, Payload: enqueuedPayload}
	decoded, err = item.DecodeRatingPayload()
	if err != nil {
		t.Fatalf("decoding chained payload: %v", err)
	}
	if decoded.YTVideoID != "new-vid" || decoded.Rating != queue.RatingLike {
		t.Errorf("chained rating payload = %+v, want video=new-vid rating=like", decoded)
	}
}

func TestProcessSearch_PipelineMissRecordsNotFound(t *testing.T) {
	var recordedNotFound bool
	store := &fakeStore{
		recordNotFound: func(ctx context.Context, contentHash, title, haArtist, haAppName string, haDuration int) error {
			recordedNotFound = true
			return nil
		},
	}
	resolver := &fakeResolver{match: nil}
	w := New(store, &fakeCalendar{}, &fakeRatingClient{}, resolver, Config{PIDFilePath: "x"})

	err := w.processSearch(t.Context(), searchItem(t, "Obscure Title", 200, queue.RatingNone))
	if err == nil {
		t.Fatal("expected VideoNotFoundError on a clean miss")
	}
	if ytapi.KindOf(err) != ytapi.KindVideoNotFound {
		t.Errorf("KindOf(err) = %v, want KindVideoNotFound", ytapi.KindOf(err))
	}
	if !recordedNotFound {
		t.Error("expected RecordNotFound to be called on a clean miss")
	}
}

func TestResolveOutcome_AuthenticationIsFatal(t *testing.T) {
	store := &fakeStore{}
	w := New(store, &fakeCalendar{}, &fakeRatingClient{}, &fakeResolver{}, Config{PIDFilePath: "x"})

	fatal, err := w.resolveOutcome(t.Context(), &queue.Item{ID: 1, Type: queue.TypeRating}, &ytapi.AuthenticationError{Message: "bad token"})
	if !fatal {
		t.Error("expected authentication errors to be fatal")
	}
	if err == nil {
		t.Error("expected a non-nil error")
	}
}

func TestResolveOutcome_VideoNotFoundIsNotFatal(t *testing.T) {
	store := &fakeStore{}
	w := New(store, &fakeCalendar{}, &fakeRatingClient{}, &fakeResolver{}, Config{PIDFilePath: "x", ItemFloor: time.Millisecond})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	fatal, _ := w.resolveOutcome(ctx, &queue.Item{ID: 1, Type: queue.TypeSearch}, &ytapi.VideoNotFoundError{})
	if fatal {
		t.Error("expected VideoNotFound to not be fatal")
	}
}

func TestTick_QuotaExhaustedSleepsUntilReset(t *testing.T) {
	store := &fakeStore{}
	cal := &fakeCalendar{exhausted: true, resetAt: time.Now().Add(time.Hour)}
	w := New(store, cal, &fakeRatingClient{}, &fakeResolver{}, Config{PIDFilePath: "x"})

	ctx, cancel := context.WithCancel(t.Context())
	cancel() // cancel immediately so the (otherwise long) sleep returns right away
	fatal, err := w.tick(ctx)
	if fatal {
		t.Error("quota exhaustion should never be reported fatal")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("tick() error = %v, want context.Canceled", err)
	}
}

func TestTick_EmptyQueueIsIdle(t *testing.T) {
	store := &fakeStore{
		claimNext: func(ctx context.Context) (*queue.Item, error) {
			return nil, database.ErrNotFound
		},
	}
	w := New(store, &fakeCalendar{}, &fakeRatingClient{}, &fakeResolver{}, Config{PIDFilePath: "x", IdlePoll: time.Millisecond})

	fatal, err := w.tick(t.Context())
	if fatal || err != nil {
		t.Errorf("tick() = (%v, %v), want (false, nil)", fatal, err)
	}
}

func TestServe_AcquiresAndReleasesPIDLockThenRespectsCancel(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "worker.pid")
	store := &fakeStore{
		claimNext: func(ctx context.Context) (*queue.Item, error) {
			return nil, database.ErrNotFound
		},
	}
	w := New(store, &fakeCalendar{}, &fakeRatingClient{}, &fakeResolver{}, Config{
		PIDFilePath: pidPath,
		IdlePoll:    time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	err := w.Serve(ctx)
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve() error = %v, want a context termination error", err)
	}
}
