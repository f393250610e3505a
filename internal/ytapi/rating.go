package ytapi

import (
	"context"
	"net/url"

	"github.com/goccy/go-json"
)

// GetRating fetches the caller's current rating for one video. Quota
// cost 1. Returns RatingNone if the video has never been rated.
func (c *Client) GetRating(ctx context.Context, videoID string) (Rating, error) {
	if !IsValidVideoID(videoID) {
		return RatingNone, &InvalidRequestError{Message: "invalid video id: " + videoID}
	}

	q := url.Values{}
	q.Set("id", videoID)

	body, err := c.do(ctx, "rating", "GET", "videos/getRating", q, QuotaCosts["videos.getRating"])
	if err != nil {
		return RatingNone, err
	}

	var resp ratingGetResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return RatingNone, &InvalidRequestError{Message: "decoding getRating response: " + jsonErr.Error()}
	}
	if len(resp.Items) == 0 {
		return RatingNone, &VideoNotFoundError{VideoID: videoID}
	}

	switch Rating(resp.Items[0].Rating) {
	case RatingLike:
		return RatingLike, nil
	case RatingDislike:
		return RatingDislike, nil
	default:
		return RatingNone, nil
	}
}

// SetRating applies a like/dislike/none rating to one video. Quota
// cost 50 — the single most expensive per-call operation this system
// performs, per spec.md §7.
func (c *Client) SetRating(ctx context.Context, videoID string, rating Rating) error {
	if !IsValidVideoID(videoID) {
		return &InvalidRequestError{Message: "invalid video id: " + videoID}
	}
	switch rating {
	case RatingLike, RatingDislike, RatingNone:
	default:
		return &InvalidRequestError{Message: "invalid rating value: " + string(rating)}
	}

	q := url.Values{}
	q.Set("id", videoID)
	q.Set("rating", string(rating))

	_, err := c.postForm(ctx, "rating", "videos/rate", q, QuotaCosts["videos.rate"])
	return err
}
