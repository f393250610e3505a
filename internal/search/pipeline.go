// Package search implements the Search Pipeline: given a home-automation
// title, expected duration, and optional artist, it resolves a matching
// remote video while opportunistically populating the search-result
// cache with every candidate it fetches, matched or not.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ytthumbs/ytthumbs/internal/database"
	"github.com/ytthumbs/ytthumbs/internal/titleclean"
	"github.com/ytthumbs/ytthumbs/internal/ytapi"
)

const (
	searchMaxResults = 25
	phase1BatchSize  = 10
	phase2BatchSize  = 15
	maxCandidates    = 10
	defaultCacheTTL  = 30 * 24 * time.Hour
)

// Searcher is the subset of *ytapi.Client the pipeline needs.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]ytapi.SearchResultItem, error)
	GetVideoDetails(ctx context.Context, ids []string) ([]ytapi.VideoDetail, error)
}

// CacheWriter is the subset of *database.DB the pipeline needs to
// opportunistically populate the search-result cache.
type CacheWriter interface {
	InsertOrReplaceBatch(ctx context.Context, entries []database.SearchCacheEntry) error
}

// Match is a resolved video ready to be upserted into the Store.
type Match struct {
	VideoID         string
	Title           string
	Channel         string
	ChannelID       string
	Description     string
	PublishedAt     time.Time
	CategoryID      string
	LiveBroadcast   string
	Location        string
	RecordingDate   time.Time
	DurationSeconds int
	ThumbnailURL    string
}

// Pipeline runs the search-and-match algorithm over a Searcher, caching
// every fetched candidate via CacheWriter regardless of match outcome.
type Pipeline struct {
	api      Searcher
	cache    CacheWriter
	cacheTTL time.Duration
}

// New constructs a Pipeline. ttl of zero uses the 30-day default.
func New(api Searcher, cache CacheWriter, ttl time.Duration) *Pipeline {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Pipeline{api: api, cache: cache, cacheTTL: ttl}
}

// Resolve runs the full algorithm: build query, search, score, batch
// fetch in up to two phases, cache everything fetched, and return the
// best candidate whose duration matches expectedDuration (or +1s for
// the platform rounding offset). Returns (nil, nil) on a clean miss.
func (p *Pipeline) Resolve(ctx context.Context, title string, expectedDuration int, artist string) (*Match, error) {
	query := titleclean.BuildSearchQuery(title, artist)

	results, err := p.api.Search(ctx, query, searchMaxResults)
	if err != nil {
		return nil, fmt.Errorf("search pipeline: search.list: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	ranked := rankResults(query, results)

	phase1IDs := idsUpTo(ranked, phase1BatchSize)
	details, err := p.api.GetVideoDetails(ctx, phase1IDs)
	if err != nil {
		return nil, fmt.Errorf("search pipeline: videos.list phase 1: %w", err)
	}

	candidates := matchingCandidates(details, expectedDuration)
	allFetched := append([]ytapi.VideoDetail(nil), details...)

	if len(candidates) == 0 && len(ranked) > phase1BatchSize {
		phase2IDs := idsRange(ranked, phase1BatchSize, phase1BatchSize+phase2BatchSize)
		moreDetails, err := p.api.GetVideoDetails(ctx, phase2IDs)
		if err != nil {
			return nil, fmt.Errorf("search pipeline: videos.list phase 2: %w", err)
		}
		allFetched = append(allFetched, moreDetails...)
		candidates = matchingCandidates(moreDetails, expectedDuration)
	}

	if err := p.cacheAll(ctx, allFetched); err != nil {
		return nil, fmt.Errorf("search pipeline: caching fetched results: %w", err)
	}

	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return &candidates[0], nil
}

func rankResults(query string, results []ytapi.SearchResultItem) []ytapi.SearchResultItem {
	type scored struct {
		item  ytapi.SearchResultItem
		score float64
	}
	scoredResults := make([]scored, len(results))
	for i, r := range results {
		scoredResults[i] = scored{item: r, score: similarity(query, r.Title)}
	}
	sort.SliceStable(scoredResults, func(i, j int) bool {
		return scoredResults[i].score > scoredResults[j].score
	})

	out := make([]ytapi.SearchResultItem, len(scoredResults))
	for i, s := range scoredResults {
		out[i] = s.item
	}
	return out
}

func idsUpTo(results []ytapi.SearchResultItem, n int) []string {
	if n > len(results) {
		n = len(results)
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = results[i].VideoID
	}
	return ids
}

func idsRange(results []ytapi.SearchResultItem, from, to int) []string {
	if from > len(results) {
		from = len(results)
	}
	if to > len(results) {
		to = len(results)
	}
	ids := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		ids = append(ids, results[i].VideoID)
	}
	return ids
}

func matchingCandidates(details []ytapi.VideoDetail, expectedDuration int) []Match {
	var out []Match
	for _, d := range details {
		if d.DurationSeconds != expectedDuration && d.DurationSeconds != expectedDuration+1 {
			continue
		}
		out = append(out, Match{
			VideoID:         d.VideoID,
			Title:           d.Title,
			Channel:         d.Channel,
			ChannelID:       d.ChannelID,
			Description:     d.Description,
			PublishedAt:     d.PublishedAt,
			CategoryID:      d.CategoryID,
			LiveBroadcast:   d.LiveBroadcast,
			Location:        d.Location,
			RecordingDate:   d.RecordingDate,
			DurationSeconds: d.DurationSeconds,
			ThumbnailURL:    d.ThumbnailURL,
		})
	}
	return out
}

func (p *Pipeline) cacheAll(ctx context.Context, details []ytapi.VideoDetail) error {
	if len(details) == 0 {
		return nil
	}
	expiresAt := time.Now().Add(p.cacheTTL)

	entries := make([]database.SearchCacheEntry, len(details))
	for i, d := range details {
		entries[i] = database.SearchCacheEntry{
			YTVideoID:      d.VideoID,
			YTTitle:        d.Title,
			YTChannel:      d.Channel,
			YTChannelID:    d.ChannelID,
			YTDuration:     d.DurationSeconds,
			YTDescription:  d.Description,
			YTCategoryID:   d.CategoryID,
			YTThumbnailURL: d.ThumbnailURL,
			ExpiresAt:      expiresAt,
		}
	}
	return p.cache.InsertOrReplaceBatch(ctx, entries)
}
