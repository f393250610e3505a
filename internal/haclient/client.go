// Package haclient fetches the currently playing media from the
// home-automation state endpoint that tracks a media-player entity.
package haclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const maxResponseBodySize = 1 << 20

// StatePlaying is the entity state value indicating active playback.
const StatePlaying = "playing"

// MediaInfo is the subset of the home-automation entity state this
// system needs to act on: what's playing, its duration, and the
// player/app that's playing it.
type MediaInfo struct {
	State          string
	Title          string
	Artist         string
	Album          string
	ContentID      string
	DurationSeconds int
	AppName        string
}

// IsPlaying reports whether the fetched state represents active
// playback.
func (m MediaInfo) IsPlaying() bool {
	return m.State == StatePlaying
}

// entityState mirrors the home-automation REST API's state shape for a
// media_player entity.
type entityState struct {
	State      string `json:"state"`
	Attributes struct {
		MediaTitle    string  `json:"media_title"`
		MediaArtist   string  `json:"media_artist"`
		MediaAlbum    string  `json:"media_album_name"`
		MediaContentID string `json:"media_content_id"`
		MediaDuration float64 `json:"media_duration"`
		AppName       string  `json:"app_name"`
	} `json:"attributes"`
}

// Client fetches media-player state from the home-automation API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	bearerToken string
}

// New constructs a Client.
func New(baseURL, bearerToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		bearerToken: bearerToken,
	}
}

// GetState fetches the current state of entityID.
func (c *Client) GetState(ctx context.Context, entityID string) (MediaInfo, error) {
	url := fmt.Sprintf("%s/api/states/%s", c.baseURL, entityID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("haclient: building request: %w", err)
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("haclient: requesting entity state: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize+1))
	if err != nil {
		return MediaInfo{}, fmt.Errorf("haclient: reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return MediaInfo{}, fmt.Errorf("haclient: entity state request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var state entityState
	if err := json.Unmarshal(body, &state); err != nil {
		return MediaInfo{}, fmt.Errorf("haclient: decoding entity state: %w", err)
	}

	return MediaInfo{
		State:           state.State,
		Title:           state.Attributes.MediaTitle,
		Artist:          state.Attributes.MediaArtist,
		Album:           state.Attributes.MediaAlbum,
		ContentID:       state.Attributes.MediaContentID,
		DurationSeconds: int(state.Attributes.MediaDuration),
		AppName:         state.Attributes.AppName,
	}, nil
}
