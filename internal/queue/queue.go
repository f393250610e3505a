// Package queue defines the unified work-queue domain types shared by the
// Store, Worker, Playback Poller, and Rating Intake. The queue itself has
// no behavior of its own — claiming, FIFO ordering, and state transitions
// are implemented by the Store; this package only describes the shapes
// that cross that boundary.
package queue

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Type distinguishes the two kinds of queue work.
type Type string

const (
	TypeSearch Type = "search"
	TypeRating Type = "rating"
)

// Priority returns the FIFO-within-priority ordering value for t; lower
// sorts first. Rating items always preempt search items.
func (t Type) Priority() int {
	switch t {
	case TypeRating:
		return 1
	case TypeSearch:
		return 2
	default:
		return 99
	}
}

// Status is the queue item's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Source tags where a queue item originated, carried through for
// diagnostics only.
type Source string

const (
	SourceHALive      Source = "ha_live"
	SourceImport      Source = "import"
	SourceQueueSearch Source = "queue_search"
)

// RatingValue is the tri-state rating applied to a video.
type RatingValue string

const (
	RatingNone    RatingValue = "none"
	RatingLike    RatingValue = "like"
	RatingDislike RatingValue = "dislike"
)

// Delta returns the signed contribution RatingValue makes to rating_score.
func (r RatingValue) Delta() int {
	switch r {
	case RatingLike:
		return 1
	case RatingDislike:
		return -1
	default:
		return 0
	}
}

// RatingPayload is the payload for a Type=rating queue item.
type RatingPayload struct {
	YTVideoID string      `json:"yt_video_id"`
	Rating    RatingValue `json:"rating"`
}

// SearchPayload is the payload for a Type=search queue item.
type SearchPayload struct {
	HATitle        string      `json:"ha_title"`
	HAArtist       string      `json:"ha_artist,omitempty"`
	HAAlbum        string      `json:"ha_album,omitempty"`
	HAContentID    string      `json:"ha_content_id,omitempty"`
	HADuration     int         `json:"ha_duration"`
	HAAppName      string      `json:"ha_app_name,omitempty"`
	CallbackRating RatingValue `json:"callback_rating,omitempty"`
}

// Item is one row of the unified queue.
type Item struct {
	ID              int64
	Type            Type
	Priority        int
	Status          Status
	Source          Source
	Payload         json.RawMessage
	RequestedAt     time.Time
	LastAttempt     *time.Time
	CompletedAt     *time.Time
	Attempts        int
	LastError       string
	APIResponseData string
}

// DecodeRatingPayload parses the item's payload as a RatingPayload. It
// returns an error if Type is not TypeRating.
func (i *Item) DecodeRatingPayload() (RatingPayload, error) {
	if i.Type != TypeRating {
		return RatingPayload{}, fmt.Errorf("queue: item %d is type %q, not rating", i.ID, i.Type)
	}
	var p RatingPayload
	if err := json.Unmarshal(i.Payload, &p); err != nil {
		return RatingPayload{}, fmt.Errorf("queue: decode rating payload for item %d: %w", i.ID, err)
	}
	return p, nil
}

// DecodeSearchPayload parses the item's payload as a SearchPayload. It
// returns an error if Type is not TypeSearch.
func (i *Item) DecodeSearchPayload() (SearchPayload, error) {
	if i.Type != TypeSearch {
		return SearchPayload{}, fmt.Errorf("queue: item %d is type %q, not search", i.ID, i.Type)
	}
	var p SearchPayload
	if err := json.Unmarshal(i.Payload, &p); err != nil {
		return SearchPayload{}, fmt.Errorf("queue: decode search payload for item %d: %w", i.ID, err)
	}
	return p, nil
}

// EncodeRatingPayload marshals a RatingPayload for enqueueing.
func EncodeRatingPayload(p RatingPayload) (json.RawMessage, error) {
	return json.Marshal(p)
}

// EncodeSearchPayload marshals a SearchPayload for enqueueing.
func EncodeSearchPayload(p SearchPayload) (json.RawMessage, error) {
	return json.Marshal(p)
}
