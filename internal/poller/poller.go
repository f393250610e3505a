// Package poller implements the Playback Poller: a ticking background
// service that watches the home-automation media-player entity and
// turns "something new started playing" into queue work, without ever
// making a remote platform call itself.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ytthumbs/ytthumbs/internal/cache"
	"github.com/ytthumbs/ytthumbs/internal/database"
	"github.com/ytthumbs/ytthumbs/internal/hash"
	"github.com/ytthumbs/ytthumbs/internal/haclient"
	"github.com/ytthumbs/ytthumbs/internal/logging"
	"github.com/ytthumbs/ytthumbs/internal/metrics"
	"github.com/ytthumbs/ytthumbs/internal/queue"
)

const maxConsecutiveFailuresDefault = 10

// MediaFetcher is the subset of haclient.Client the poller depends on.
type MediaFetcher interface {
	GetState(ctx context.Context, entityID string) (haclient.MediaInfo, error)
}

// Store is the subset of *database.DB the poller depends on.
type Store interface {
	CacheLookup(ctx context.Context, contentHash, title string, duration, toleranceSeconds int) (*database.Video, error)
	IsRecentlyNotFound(ctx context.Context, contentHash string, maxAge time.Duration) (bool, error)
	RecordPlay(ctx context.Context, ytVideoID string) error
	Enqueue(ctx context.Context, itemType queue.Type, source queue.Source, payload []byte) (int64, error)
}

// Cooldown tracks which content hashes were played recently enough
// that a repeat sighting shouldn't re-enqueue or re-record a play.
// *cache.LRUCache (in-memory, default) and *cooldown.Store (opt-in,
// persisted) both implement it.
type Cooldown interface {
	Contains(key string) bool
	Refresh(key string) error
}

// lruCooldown adapts *cache.LRUCache, whose Add never fails, to the
// Cooldown interface's error-returning Refresh.
type lruCooldown struct{ cache *cache.LRUCache }

// NewInMemoryCooldown wraps an LRU cache as a Cooldown.
func NewInMemoryCooldown(c *cache.LRUCache) Cooldown {
	return lruCooldown{cache: c}
}

func (l lruCooldown) Contains(key string) bool { return l.cache.Contains(key) }
func (l lruCooldown) Refresh(key string) error {
	l.cache.Add(key, time.Now())
	return nil
}

// Config configures the poller's behavior. EntityID and AppName come
// from HomeAutomationConfig; the rest from PlaybackConfig.
type Config struct {
	EntityID           string
	RequiredAppName    string
	Interval           time.Duration
	NotFoundTTL        time.Duration
	DurationToleranceS int
	MaxBackoff         time.Duration
	MaxConsecutiveFail int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.MaxConsecutiveFail <= 0 {
		c.MaxConsecutiveFail = maxConsecutiveFailuresDefault
	}
	return c
}

// Poller is a suture.Service that watches the home-automation
// media-player entity and enqueues search work for anything new.
type Poller struct {
	media    MediaFetcher
	store    Store
	cooldown Cooldown
	cfg      Config

	consecutiveFailures int
	lastTickUnixNano    atomic.Int64
}

// LastTickAt reports when the poller last completed a tick (successful
// or not), for the health endpoint's "recent poller activity" check.
// Returns the zero Time before the first tick.
func (p *Poller) LastTickAt() time.Time {
	nanos := p.lastTickUnixNano.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// New constructs a Poller.
func New(media MediaFetcher, store Store, cooldown Cooldown, cfg Config) *Poller {
	return &Poller{media: media, store: store, cooldown: cooldown, cfg: cfg.withDefaults()}
}

// String implements suture.Service.
func (p *Poller) String() string { return "playback-poller" }

// Serve implements suture.Service: it ticks until ctx is canceled,
// backing off exponentially (capped at cfg.MaxBackoff) after
// consecutive tick failures, and returning once cfg.MaxConsecutiveFail
// is reached so the supervisor can report it unhealthy.
func (p *Poller) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", p.cfg.Interval).Msg("playback poller starting")

	interval := p.cfg.Interval
	for {
		if err := interruptibleSleep(ctx, interval); err != nil {
			return err
		}

		outcome, err := p.tick(ctx)
		p.lastTickUnixNano.Store(time.Now().UnixNano())
		if err != nil {
			p.consecutiveFailures++
			metrics.PollerConsecutiveFailures.Set(float64(p.consecutiveFailures))
			logging.Warn().Err(err).Int("consecutive_failures", p.consecutiveFailures).Msg("playback poller tick failed")

			interval = backoff(p.cfg.Interval, p.consecutiveFailures, p.cfg.MaxBackoff)
			if p.consecutiveFailures >= p.cfg.MaxConsecutiveFail {
				return fmt.Errorf("poller: %d consecutive failures, giving up: %w", p.consecutiveFailures, err)
			}
			continue
		}

		p.consecutiveFailures = 0
		metrics.PollerConsecutiveFailures.Set(0)
		metrics.PollerTicks.WithLabelValues(outcome).Inc()
		interval = p.cfg.Interval
	}
}

// backoff doubles the base interval per consecutive failure, capped at max.
func backoff(base time.Duration, failures int, max time.Duration) time.Duration {
	d := base
	for i := 0; i < failures && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

// tick implements spec §4.8's six-step algorithm and returns the
// outcome label recorded in PollerTicks.
func (p *Poller) tick(ctx context.Context) (string, error) {
	media, err := p.media.GetState(ctx, p.cfg.EntityID)
	if err != nil {
		return "", fmt.Errorf("fetch entity state: %w", err)
	}

	if !media.IsPlaying() || media.AppName != p.cfg.RequiredAppName {
		return "skipped", nil
	}
	if media.Title == "" || media.DurationSeconds <= 0 {
		return "skipped", nil
	}

	contentHash := hash.ContentHash(media.Title, &media.DurationSeconds, media.Artist)

	if p.cooldown.Contains(contentHash) {
		return "cooldown", nil
	}

	cached, err := p.store.CacheLookup(ctx, contentHash, media.Title, media.DurationSeconds, p.cfg.DurationToleranceS)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return "", fmt.Errorf("cache lookup: %w", err)
	}
	// A CacheLookup hit can still be an unresolved not-found placeholder row
	// (YTVideoID unset) rather than a real match. Only a resolved row is a
	// true cache hit; otherwise fall through to the not-found/enqueue path
	// exactly as on ErrNotFound, so a stale placeholder doesn't permanently
	// shadow re-enqueueing once it expires.
	if err == nil && cached.YTVideoID.Valid {
		if err := p.store.RecordPlay(ctx, cached.YTVideoID.String); err != nil {
			return "", fmt.Errorf("record play: %w", err)
		}
		if err := p.cooldown.Refresh(contentHash); err != nil {
			logging.Warn().Err(err).Msg("failed to refresh playback cooldown after cache hit")
		}
		return "cache_hit", nil
	}

	recentlyNotFound, err := p.store.IsRecentlyNotFound(ctx, contentHash, p.cfg.NotFoundTTL)
	if err != nil {
		return "", fmt.Errorf("check not-found cache: %w", err)
	}
	if recentlyNotFound {
		return "skipped", nil
	}

	payload, err := queue.EncodeSearchPayload(queue.SearchPayload{
		HATitle:     media.Title,
		HAArtist:    media.Artist,
		HAAlbum:     media.Album,
		HAContentID: media.ContentID,
		HADuration:  media.DurationSeconds,
		HAAppName:   media.AppName,
	})
	if err != nil {
		return "", fmt.Errorf("encode search payload: %w", err)
	}
	if _, err := p.store.Enqueue(ctx, queue.TypeSearch, queue.SourceHALive, payload); err != nil {
		return "", fmt.Errorf("enqueue search item: %w", err)
	}
	// Refresh the cooldown on enqueue too, not just on cache hit — otherwise
	// the same still-playing track would be re-enqueued every tick until
	// the worker resolves it.
	if err := p.cooldown.Refresh(contentHash); err != nil {
		logging.Warn().Err(err).Msg("failed to refresh playback cooldown after enqueue")
	}

	return "enqueued", nil
}

func interruptibleSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
