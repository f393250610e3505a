// Package intake implements Rating Intake: turning "rate what's
// playing now as X" into queue work without ever touching the remote
// platform synchronously on the request path.
package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/ytthumbs/ytthumbs/internal/database"
	"github.com/ytthumbs/ytthumbs/internal/hash"
	"github.com/ytthumbs/ytthumbs/internal/haclient"
	"github.com/ytthumbs/ytthumbs/internal/queue"
)

// ErrNotPlaying is returned when the home-automation entity reports no
// eligible (matching app_name) media currently playing.
var ErrNotPlaying = errors.New("intake: nothing eligible is currently playing")

// MediaFetcher is the subset of haclient.Client Intake depends on.
type MediaFetcher interface {
	GetState(ctx context.Context, entityID string) (haclient.MediaInfo, error)
}

// Store is the subset of *database.DB Intake depends on.
type Store interface {
	CacheLookup(ctx context.Context, contentHash, title string, duration, toleranceSeconds int) (*database.Video, error)
	Enqueue(ctx context.Context, itemType queue.Type, source queue.Source, payload []byte) (int64, error)
}

// Config configures Intake's behavior.
type Config struct {
	EntityID           string
	RequiredAppName    string
	DurationToleranceS int
}

// Intake implements spec §4.9's rating request flow.
type Intake struct {
	media MediaFetcher
	store Store
	cfg   Config
}

// New constructs an Intake.
func New(media MediaFetcher, store Store, cfg Config) *Intake {
	return &Intake{media: media, store: store, cfg: cfg}
}

// EnqueueExplicitRating queues a rating for an already-known
// yt_video_id, bypassing the current-media fetch and cache lookup
// entirely: the caller supplied the id directly, so there's nothing
// left to resolve.
func (in *Intake) EnqueueExplicitRating(ctx context.Context, payload []byte) (int64, error) {
	return in.store.Enqueue(ctx, queue.TypeRating, queue.SourceHALive, payload)
}

// Result reports how a rating request was resolved, for the HTTP layer
// to turn into a response.
type Result struct {
	// QueuedAs is either "rating" (a video id was already known) or
	// "search" (a search-with-callback was queued instead).
	QueuedAs string
}

// RateCurrent implements spec §4.9 steps 2-4: fetch current media,
// cache lookup, then enqueue either a rating or a search-with-callback.
// Rate-limiting the caller is out of scope here; it's the HTTP layer's
// concern before this is ever called.
func (in *Intake) RateCurrent(ctx context.Context, rating queue.RatingValue) (Result, error) {
	media, err := in.media.GetState(ctx, in.cfg.EntityID)
	if err != nil {
		return Result{}, fmt.Errorf("fetch entity state: %w", err)
	}
	if !media.IsPlaying() || media.AppName != in.cfg.RequiredAppName {
		return Result{}, ErrNotPlaying
	}
	if media.Title == "" || media.DurationSeconds <= 0 {
		return Result{}, ErrNotPlaying
	}

	contentHash := hash.ContentHash(media.Title, &media.DurationSeconds, media.Artist)

	cached, err := in.store.CacheLookup(ctx, contentHash, media.Title, media.DurationSeconds, in.cfg.DurationToleranceS)
	if err == nil && cached.YTVideoID.Valid {
		payload, err := queue.EncodeRatingPayload(queue.RatingPayload{
			YTVideoID: cached.YTVideoID.String,
			Rating:    rating,
		})
		if err != nil {
			return Result{}, fmt.Errorf("encode rating payload: %w", err)
		}
		if _, err := in.store.Enqueue(ctx, queue.TypeRating, queue.SourceHALive, payload); err != nil {
			return Result{}, fmt.Errorf("enqueue rating item: %w", err)
		}
		return Result{QueuedAs: "rating"}, nil
	}
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return Result{}, fmt.Errorf("cache lookup: %w", err)
	}

	payload, err := queue.EncodeSearchPayload(queue.SearchPayload{
		HATitle:        media.Title,
		HAArtist:       media.Artist,
		HAAlbum:        media.Album,
		HAContentID:    media.ContentID,
		HADuration:     media.DurationSeconds,
		HAAppName:      media.AppName,
		CallbackRating: rating,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode search payload: %w", err)
	}
	if _, err := in.store.Enqueue(ctx, queue.TypeSearch, queue.SourceHALive, payload); err != nil {
		return Result{}, fmt.Errorf("enqueue search item: %w", err)
	}
	return Result{QueuedAs: "search"}, nil
}
