package ytapi

import (
	"context"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
)

// fieldsSearch restricts the response to only what this system uses,
// per spec.md §6's field mask requirement.
const fieldsSearch = "items(id/videoId,snippet/title)"

// Search issues one search.list call for up to maxResults video
// results. Quota cost 100 on success; 0 if the circuit/quota check
// short-circuits before the round trip.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]SearchResultItem, error) {
	if maxResults <= 0 || maxResults > 50 {
		maxResults = 25
	}

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("q", query)
	q.Set("type", "video")
	q.Set("maxResults", strconv.Itoa(maxResults))
	q.Set("fields", fieldsSearch)

	body, err := c.do(ctx, "search", "GET", "search", q, QuotaCosts["search.list"])
	if err != nil {
		return nil, err
	}

	var resp searchListResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return nil, &InvalidRequestError{Message: "decoding search.list response: " + jsonErr.Error()}
	}

	out := make([]SearchResultItem, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID == "" {
			continue
		}
		out = append(out, SearchResultItem{VideoID: item.ID.VideoID, Title: item.Snippet.Title})
	}
	return out, nil
}
