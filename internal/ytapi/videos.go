package ytapi

import (
	"context"
	"net/url"
	"regexp"
	"strconv"

	"github.com/goccy/go-json"
)

// fieldsVideos restricts the videos.list response to duration plus the
// metadata fields this system persists (spec.md §3, §6).
const fieldsVideos = "items(id,snippet(title,description,channelId,channelTitle,publishedAt,categoryId,liveBroadcastContent,thumbnails/default),contentDetails/duration,recordingDetails)"

const maxDescriptionLen = 5000

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// IsValidVideoID reports whether s looks like a YouTube video id:
// 11 alphanumeric/underscore/hyphen characters.
func IsValidVideoID(s string) bool {
	return videoIDPattern.MatchString(s)
}

// GetVideoDetails batch-fetches contentDetails/snippet/recordingDetails
// for up to 50 ids in one call. Quota cost equals the number of ids
// requested. Videos with an invalid id format or missing duration are
// skipped rather than erroring the whole batch.
func (c *Client) GetVideoDetails(ctx context.Context, ids []string) ([]VideoDetail, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if IsValidVideoID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	q := url.Values{}
	q.Set("part", "snippet,contentDetails,recordingDetails")
	q.Set("id", joinIDs(valid))
	q.Set("fields", fieldsVideos)

	body, err := c.do(ctx, "videos.list", "GET", "videos", q, len(valid))
	if err != nil {
		return nil, err
	}

	var resp videoListResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return nil, &InvalidRequestError{Message: "decoding videos.list response: " + jsonErr.Error()}
	}

	out := make([]VideoDetail, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ContentDetails.Duration == "" {
			continue // no duration: skipped, per spec.md §4.4 edge cases
		}
		seconds, durErr := ParseISO8601Duration(item.ContentDetails.Duration)
		if durErr != nil {
			continue
		}

		description := item.Snippet.Description
		if len(description) > maxDescriptionLen {
			description = description[:maxDescriptionLen]
		}

		location := ""
		if item.RecordingDetails.Location.Latitude != 0 || item.RecordingDetails.Location.Longitude != 0 {
			location = formatLocation(item.RecordingDetails.Location.Latitude, item.RecordingDetails.Location.Longitude)
		}

		out = append(out, VideoDetail{
			VideoID:         item.ID,
			Title:           item.Snippet.Title,
			Channel:         item.Snippet.ChannelTitle,
			ChannelID:       item.Snippet.ChannelID,
			Description:     description,
			PublishedAt:     item.Snippet.PublishedAt,
			CategoryID:      item.Snippet.CategoryID,
			LiveBroadcast:   item.Snippet.LiveBroadcastContent,
			Location:        location,
			RecordingDate:   item.RecordingDetails.RecordingDate,
			DurationSeconds: seconds,
			ThumbnailURL:    item.Snippet.Thumbnails.Default.URL,
		})
	}
	return out, nil
}

func formatLocation(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}
