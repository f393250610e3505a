// Package worker implements the single-instance processing loop: it
// claims queue items one at a time, dispatches rating and search work
// against the remote video platform, and sleeps out quota exhaustion
// until the next reset boundary. It is the only writer of queue state
// transitions beyond the initial enqueue.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ytthumbs/ytthumbs/internal/database"
	"github.com/ytthumbs/ytthumbs/internal/hash"
	"github.com/ytthumbs/ytthumbs/internal/logging"
	"github.com/ytthumbs/ytthumbs/internal/metrics"
	"github.com/ytthumbs/ytthumbs/internal/pidlock"
	"github.com/ytthumbs/ytthumbs/internal/queue"
	"github.com/ytthumbs/ytthumbs/internal/search"
	"github.com/ytthumbs/ytthumbs/internal/ytapi"
)

// itemFloor is the deliberate minimum spacing between processed items,
// independent of remote latency, per spec.md §4.7.
const defaultItemFloor = 60 * time.Second

// defaultIdlePoll is how long the worker sleeps when the queue is empty.
const defaultIdlePoll = 60 * time.Second

// Store is the subset of *database.DB the Worker needs.
type Store interface {
	ResetStaleProcessing(ctx context.Context) (int64, error)
	ClaimNext(ctx context.Context) (*queue.Item, error)
	MarkCompleted(ctx context.Context, id int64, apiResponseData string) error
	MarkFailed(ctx context.Context, id int64, lastError string) error
	Enqueue(ctx context.Context, itemType queue.Type, source queue.Source, payload []byte) (int64, error)

	CacheLookup(ctx context.Context, contentHash, title string, duration, toleranceSeconds int) (*database.Video, error)
	FindByYTVideoID(ctx context.Context, ytVideoID string) (*database.Video, error)
	QueryByDurationRange(ctx context.Context, targetSeconds, toleranceSeconds int) ([]database.SearchCacheEntry, error)
	QueryByTitleAndDuration(ctx context.Context, titleLike string, targetSeconds, toleranceSeconds int) ([]database.SearchCacheEntry, error)
	UpsertVideo(ctx context.Context, v *database.Video) (int64, error)
	RecordPlay(ctx context.Context, ytVideoID string) error
	RecordRating(ctx context.Context, ytVideoID string, newRating string, delta int) error
	RecordNotFound(ctx context.Context, contentHash, title string, haArtist, haAppName string, haDuration int) error
}

// Calendar is the subset of *quota.Calendar the Worker needs.
type Calendar interface {
	QuotaExhaustedSinceLastReset(ctx context.Context, now time.Time) (bool, error)
	NextResetUTC(now time.Time) time.Time
}

// RatingClient is the subset of *ytapi.Client the Worker needs for
// rating work.
type RatingClient interface {
	SetRating(ctx context.Context, videoID string, rating ytapi.Rating) error
}

// SearchResolver is the subset of *search.Pipeline the Worker needs.
type SearchResolver interface {
	Resolve(ctx context.Context, title string, expectedDuration int, artist string) (*search.Match, error)
}

// Config configures the Worker's loop timing.
type Config struct {
	PIDFilePath        string
	ItemFloor          time.Duration
	IdlePoll           time.Duration
	QuotaResetSlack    time.Duration
	DurationToleranceS int
}

// Worker is the single processing loop described in spec.md §4.7. It
// implements suture.Service: Serve blocks until ctx is canceled or an
// unrecoverable (authentication) error occurs.
type Worker struct {
	store    Store
	calendar Calendar
	ratings  RatingClient
	search   SearchResolver
	cfg      Config

	lock *pidlock.Lock
}

// New constructs a Worker. The remote clients may be nil at
// construction; the Worker never calls them until it actually claims
// rating or search work, so a fully quota-blocked startup never
// authenticates.
func New(store Store, calendar Calendar, ratings RatingClient, resolver SearchResolver, cfg Config) *Worker {
	if cfg.ItemFloor <= 0 {
		cfg.ItemFloor = defaultItemFloor
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = defaultIdlePoll
	}
	return &Worker{store: store, calendar: calendar, ratings: ratings, search: resolver, cfg: cfg}
}

// String implements suture.Service.
func (w *Worker) String() string {
	return "worker"
}

// Serve implements suture.Service: acquires the PID lock, resets any
// processing items orphaned by a crash, then runs the claim loop until
// ctx is canceled. Authentication failures return a non-nil error so
// the caller (and suture's event hook) can treat the exit as fatal
// rather than letting suture quietly restart against stale credentials.
func (w *Worker) Serve(ctx context.Context) error {
	lock, err := pidlock.Acquire(w.cfg.PIDFilePath)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	w.lock = lock
	defer func() {
		if relErr := w.lock.Release(); relErr != nil {
			logging.Warn().Err(relErr).Msg("worker: failed to release pid lock")
		}
	}()

	if n, err := w.store.ResetStaleProcessing(ctx); err != nil {
		logging.Warn().Err(err).Msg("worker: failed to reset stale processing items")
	} else if n > 0 {
		logging.Info().Int64("count", n).Msg("worker: reset stale processing items to pending")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fatal, err := w.tick(ctx)
		if fatal {
			logging.Error().Err(err).Msg("worker: fatal error, exiting for manual intervention")
			return err
		}
		if err != nil {
			logging.Warn().Err(err).Msg("worker: loop iteration error")
		}
	}
}

// tick runs one loop iteration. The bool return reports whether the
// error is fatal (authentication failure) and the Worker must stop.
func (w *Worker) tick(ctx context.Context) (bool, error) {
	now := time.Now()
	exhausted, err := w.calendar.QuotaExhaustedSinceLastReset(ctx, now)
	if err != nil {
		return false, fmt.Errorf("checking quota calendar: %w", err)
	}
	if exhausted {
		resetAt := w.calendar.NextResetUTC(now)
		sleepUntil := resetAt.Add(w.cfg.QuotaResetSlack)
		metrics.WorkerLoopIterations.WithLabelValues("quota_sleep").Inc()
		metrics.QuotaExhaustedSleeps.Inc()
		logging.Info().Time("sleep_until", sleepUntil).Msg("worker: quota exhausted, sleeping until next reset")
		return false, interruptibleSleep(ctx, time.Until(sleepUntil))
	}

	item, err := w.store.ClaimNext(ctx)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			metrics.WorkerLoopIterations.WithLabelValues("idle").Inc()
			return false, interruptibleSleep(ctx, w.cfg.IdlePoll)
		}
		return false, fmt.Errorf("claiming next queue item: %w", err)
	}
	metrics.WorkerLoopIterations.WithLabelValues("claimed").Inc()
	metrics.QueueClaims.WithLabelValues(string(item.Type), "claimed").Inc()

	dispatchErr := w.dispatch(ctx, item)
	return w.resolveOutcome(ctx, item, dispatchErr)
}

// resolveOutcome applies spec.md §4.7 steps 5-9: translate a dispatch
// outcome into a queue state transition, metrics, and the fatal signal.
func (w *Worker) resolveOutcome(ctx context.Context, item *queue.Item, dispatchErr error) (bool, error) {
	if dispatchErr == nil {
		if err := w.store.MarkCompleted(ctx, item.ID, ""); err != nil {
			logging.Warn().Err(err).Int64("item_id", item.ID).Msg("worker: failed to mark item completed")
		}
		metrics.QueueClaims.WithLabelValues(string(item.Type), "completed").Inc()
		return false, interruptibleSleep(ctx, w.cfg.ItemFloor)
	}

	kind := ytapi.KindOf(dispatchErr)
	switch kind {
	case ytapi.KindQuotaExceeded:
		w.failItem(ctx, item, "quota")
		metrics.QueueClaims.WithLabelValues(string(item.Type), "quota_failed").Inc()
		resetAt := w.calendar.NextResetUTC(time.Now())
		metrics.QuotaExhaustedSleeps.Inc()
		return false, interruptibleSleep(ctx, time.Until(resetAt.Add(w.cfg.QuotaResetSlack)))

	case ytapi.KindAuthentication:
		w.failItem(ctx, item, dispatchErr.Error())
		metrics.QueueClaims.WithLabelValues(string(item.Type), "auth_failed").Inc()
		return true, fmt.Errorf("authentication failure processing item %d: %w", item.ID, dispatchErr)

	case ytapi.KindVideoNotFound, ytapi.KindInvalidRequest:
		w.failItem(ctx, item, dispatchErr.Error())
		metrics.QueueClaims.WithLabelValues(string(item.Type), "permanent_failed").Inc()
		return false, interruptibleSleep(ctx, w.cfg.ItemFloor)

	default: // KindNetwork and anything unclassified
		w.failItem(ctx, item, dispatchErr.Error())
		metrics.QueueClaims.WithLabelValues(string(item.Type), "transient_failed").Inc()
		return false, interruptibleSleep(ctx, w.cfg.ItemFloor)
	}
}

func (w *Worker) failItem(ctx context.Context, item *queue.Item, reason string) {
	if err := w.store.MarkFailed(ctx, item.ID, reason); err != nil {
		logging.Warn().Err(err).Int64("item_id", item.ID).Msg("worker: failed to mark item failed")
	}
}

// dispatch routes a claimed item to its rating or search handler.
func (w *Worker) dispatch(ctx context.Context, item *queue.Item) error {
	switch item.Type {
	case queue.TypeRating:
		return w.processRating(ctx, item)
	case queue.TypeSearch:
		return w.processSearch(ctx, item)
	default:
		return fmt.Errorf("worker: unknown queue item type %q", item.Type)
	}
}

// processRating implements spec.md §4.7's rating dispatch: skip the
// remote call entirely when the requested rating is already in effect,
// but still fold the delta into rating_score so repeated same-value
// ratings never drift from the (likes - dislikes) invariant.
func (w *Worker) processRating(ctx context.Context, item *queue.Item) error {
	payload, err := item.DecodeRatingPayload()
	if err != nil {
		return &ytapi.InvalidRequestError{Message: err.Error()}
	}

	current := queue.RatingNone
	if video, err := w.store.FindByYTVideoID(ctx, payload.YTVideoID); err == nil {
		current = queue.RatingValue(video.Rating)
	} else if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("looking up video for rating: %w", err)
	}

	if current != payload.Rating {
		if w.ratings == nil {
			return fmt.Errorf("worker: rating client not initialized")
		}
		if err := w.ratings.SetRating(ctx, payload.YTVideoID, ytapi.Rating(payload.Rating)); err != nil {
			return err
		}
	}

	if err := w.store.RecordRating(ctx, payload.YTVideoID, string(payload.Rating), payload.Rating.Delta()); err != nil {
		return fmt.Errorf("recording rating: %w", err)
	}
	return nil
}

// processSearch implements spec.md §4.7's search dispatch: consult the
// Store's caches before ever invoking the Search Pipeline, and on a
// match, upsert the video, record the play that triggered the queue
// item, and chain a rating item if the caller requested one.
func (w *Worker) processSearch(ctx context.Context, item *queue.Item) error {
	payload, err := item.DecodeSearchPayload()
	if err != nil {
		return &ytapi.InvalidRequestError{Message: err.Error()}
	}

	duration := payload.HADuration
	contentHash := hash.ContentHash(payload.HATitle, &duration, payload.HAArtist)
	tolerance := w.cfg.DurationToleranceS

	if cached, err := w.store.CacheLookup(ctx, contentHash, payload.HATitle, duration, tolerance); err == nil {
		if cached.YTVideoID.Valid {
			return w.finalizeMatch(ctx, payload, cached.YTVideoID.String)
		}
	} else if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("cache lookup: %w", err)
	}

	if entry, ok, err := w.searchResultCacheLookup(ctx, payload.HATitle, duration, tolerance); err != nil {
		return fmt.Errorf("search-result cache lookup: %w", err)
	} else if ok {
		return w.finalizeMatch(ctx, payload, entry.YTVideoID)
	}

	if w.search == nil {
		return fmt.Errorf("worker: search resolver not initialized")
	}
	match, err := w.search.Resolve(ctx, payload.HATitle, duration, payload.HAArtist)
	if err != nil {
		return err
	}
	if match == nil {
		if err := w.store.RecordNotFound(ctx, contentHash, payload.HATitle, payload.HAArtist, payload.HAAppName, duration); err != nil {
			logging.Warn().Err(err).Msg("worker: failed to record not-found entry")
		}
		return &ytapi.VideoNotFoundError{}
	}

	if _, err := w.store.UpsertVideo(ctx, matchToVideo(payload, contentHash, match)); err != nil {
		return fmt.Errorf("upserting resolved video: %w", err)
	}
	return w.finalizeMatch(ctx, payload, match.VideoID)
}

// searchResultCacheLookup checks the short-lived search-result cache
// (populated by prior Search Pipeline runs) by duration range first,
// then by title substring plus duration range, per spec.md §4.7.
func (w *Worker) searchResultCacheLookup(ctx context.Context, title string, duration, tolerance int) (database.SearchCacheEntry, bool, error) {
	byDuration, err := w.store.QueryByDurationRange(ctx, duration, tolerance)
	if err != nil {
		return database.SearchCacheEntry{}, false, err
	}
	for _, e := range byDuration {
		if e.YTTitle == title {
			return e, true, nil
		}
	}

	byTitle, err := w.store.QueryByTitleAndDuration(ctx, title, duration, tolerance)
	if err != nil {
		return database.SearchCacheEntry{}, false, err
	}
	if len(byTitle) > 0 {
		return byTitle[0], true, nil
	}

	return database.SearchCacheEntry{}, false, nil
}

// finalizeMatch records the play that triggered the search and, if the
// originating item asked for a rating once resolved, enqueues it.
func (w *Worker) finalizeMatch(ctx context.Context, payload queue.SearchPayload, ytVideoID string) error {
	if err := w.store.RecordPlay(ctx, ytVideoID); err != nil {
		return fmt.Errorf("recording play: %w", err)
	}

	if payload.CallbackRating == "" || payload.CallbackRating == queue.RatingNone {
		return nil
	}

	ratingPayload, err := queue.EncodeRatingPayload(queue.RatingPayload{
		YTVideoID: ytVideoID,
		Rating:    payload.CallbackRating,
	})
	if err != nil {
		return fmt.Errorf("encoding callback rating payload: %w", err)
	}
	if _, err := w.store.Enqueue(ctx, queue.TypeRating, queue.SourceQueueSearch, ratingPayload); err != nil {
		return fmt.Errorf("enqueueing callback rating: %w", err)
	}
	return nil
}

// matchToVideo builds the Store record for a freshly resolved video.
func matchToVideo(payload queue.SearchPayload, contentHash string, m *search.Match) *database.Video {
	v := &database.Video{
		HATitle:       payload.HATitle,
		HAContentHash: contentHash,
		Source:        sqlNullString(string(queue.SourceHALive)),
	}
	v.YTVideoID = sqlNullString(m.VideoID)
	v.HAArtist = sqlNullString(payload.HAArtist)
	v.HAAppName = sqlNullString(payload.HAAppName)
	v.HADuration = sqlNullInt64(int64(payload.HADuration))
	v.YTTitle = sqlNullString(m.Title)
	v.YTChannel = sqlNullString(m.Channel)
	v.YTChannelID = sqlNullString(m.ChannelID)
	v.YTDescription = sqlNullString(m.Description)
	if !m.PublishedAt.IsZero() {
		v.YTPublishedAt = sqlNullTime(m.PublishedAt)
	}
	v.YTCategoryID = sqlNullString(m.CategoryID)
	v.YTLiveBroadcast = sqlNullString(m.LiveBroadcast)
	v.YTLocation = sqlNullString(m.Location)
	if !m.RecordingDate.IsZero() {
		v.YTRecordingDate = sqlNullTime(m.RecordingDate)
	}
	v.YTDuration = sqlNullInt64(int64(m.DurationSeconds))
	v.YTThumbnailURL = sqlNullString(m.ThumbnailURL)
	return v
}

func sqlNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func sqlNullInt64(i int64) sql.NullInt64 {
	return sql.NullInt64{Int64: i, Valid: true}
}

func sqlNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}

// interruptibleSleep blocks for d or until ctx is canceled, whichever
// comes first, per spec.md §5's shared stop-signal requirement.
func interruptibleSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
