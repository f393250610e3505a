package ytapi

import "time"

// SearchResultItem is one hit from search.list, trimmed to the fields
// this system's fields mask requests.
type SearchResultItem struct {
	VideoID string
	Title   string
}

type searchListResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

// VideoDetail is the subset of videos.list fields this system persists,
// per spec.md §3's resolved-attribute list.
type VideoDetail struct {
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

type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title                string    `json:"title"`
			Description          string    `json:"description"`
			ChannelID            string    `json:"channelId"`
			ChannelTitle         string    `json:"channelTitle"`
			PublishedAt          time.Time `json:"publishedAt"`
			CategoryID           string    `json:"categoryId"`
			LiveBroadcastContent string    `json:"liveBroadcastContent"`
			Thumbnails           struct {
				Default struct {
					URL string `json:"url"`
				} `json:"default"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		RecordingDetails struct {
			RecordingDate time.Time `json:"recordingDate"`
			Location      struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"location"`
		} `json:"recordingDetails"`
	} `json:"items"`
}

// Rating is the closed set of rating values the remote platform accepts.
type Rating string

const (
	RatingNone    Rating = "none"
	RatingLike    Rating = "like"
	RatingDislike Rating = "dislike"
)

type ratingGetResponse struct {
	Items []struct {
		Rating string `json:"rating"`
	} `json:"items"`
}
