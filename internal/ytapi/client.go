// Package ytapi is a client for the remote video platform's Data-API-v3
// surface this system needs: search, video detail batch fetch, and
// rating get/set. Every call is costed and logged through a Recorder so
// the Quota Calendar always has an accurate picture of the day's burn,
// and every call family is wrapped in its own circuit breaker so a
// transport outage fails fast instead of burning the Worker's 60s floor
// on every item.
package ytapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ytthumbs/ytthumbs/internal/logging"
	"github.com/ytthumbs/ytthumbs/internal/metrics"
)

const (
	// DefaultBaseURL is the YouTube Data API v3 base URL.
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

	// DefaultTimeout bounds every remote call, per spec.md §5.
	DefaultTimeout = 10 * time.Second

	maxResponseBodySize = 10 * 1024 * 1024
)

// QuotaCosts are the fixed per-operation costs this system's remote
// calls incur, grounded on the official quota cost table.
var QuotaCosts = map[string]int{
	"search.list":       100,
	"videos.getRating":  1,
	"videos.rate":       50,
	// videos.list costs 1 per id requested; callers compute this dynamically.
}

// Recorder is implemented by the Store's API-usage operation; the
// client calls it after every remote round trip so every call -
// successful, quota-exhausted, or errored - is accounted for.
type Recorder interface {
	RecordAPICall(ctx context.Context, method string, quotaCost int, success bool, errMsg string, at time.Time) error
}

// ResetCalendar supplies the next quota reset time for QuotaExceededError.
type ResetCalendar interface {
	NextResetUTC(now time.Time) time.Time
}

// TokenSource supplies the bearer token for authenticated requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is the HTTP client for the remote video platform.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	recorder   Recorder
	calendar   ResetCalendar
	breakers   map[string]*gobreaker.CircuitBreaker[[]byte]
}

// New constructs a Client. breakerNames lets the caller pre-register one
// breaker per call family (search, detail, rating) so metrics exist
// before the first call.
func New(tokens TokenSource, recorder Recorder, calendar ResetCalendar) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    DefaultBaseURL,
		tokens:     tokens,
		recorder:   recorder,
		calendar:   calendar,
		breakers:   make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
	for _, name := range []string{"search", "videos.list", "rating"} {
		c.breakerFor(name)
	}
	return c
}

// breakerFor returns (creating if needed) the circuit breaker for a
// call family. Settings mirror the teacher's Tautulli breaker: opens at
// a 60% failure rate with at least 10 requests in the measurement
// window, half-open probes capped at 3 concurrent requests.
func (c *Client) breakerFor(name string) *gobreaker.CircuitBreaker[[]byte] {
	if cb, ok := c.breakers[name]; ok {
		return cb
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", stateString(from)).Str("to", stateString(to)).
				Msg("ytapi circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateString(from), stateString(to)).Inc()
		},
	})
	c.breakers[name] = cb
	return cb
}

func stateFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

func stateString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "open"
	}
}

// do executes one authenticated GET/POST against the API, through the
// named circuit breaker, and records the outcome via Recorder.
func (c *Client) do(ctx context.Context, breakerName, method, path string, query url.Values, quotaCost int) ([]byte, error) {
	cb := c.breakerFor(breakerName)

	body, err := cb.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, query)
	})

	at := time.Now()
	if err != nil {
		success := false
		cost := quotaCost
		if _, ok := err.(*QuotaExceededError); ok {
			cost = 0 // quota errors consume no cost, per spec.md §7
		}
		if recErr := c.recorder.RecordAPICall(ctx, breakerName, cost, success, err.Error(), at); recErr != nil {
			logging.Warn().Err(recErr).Msg("failed to record failed api call")
		}
		metrics.RemoteCalls.WithLabelValues(breakerName, "error").Inc()
		return nil, err
	}

	if recErr := c.recorder.RecordAPICall(ctx, breakerName, quotaCost, true, "", at); recErr != nil {
		logging.Warn().Err(recErr).Msg("failed to record successful api call")
	}
	metrics.RemoteCalls.WithLabelValues(breakerName, "success").Inc()
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	u, err := url.Parse(c.baseURL + "/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, &InvalidRequestError{Message: err.Error()}
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, &InvalidRequestError{Message: err.Error()}
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, &AuthenticationError{Message: err.Error()}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	limited := io.LimitReader(resp.Body, maxResponseBodySize+1)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode >= 400 {
		var parsed apiErrorResponse
		_ = json.Unmarshal(respBody, &parsed)
		resetAt := time.Now()
		if c.calendar != nil {
			resetAt = c.calendar.NextResetUTC(time.Now())
		}
		return nil, Classify(resp.StatusCode, parsed, resetAt)
	}

	return respBody, nil
}

// postForm issues a POST with url-encoded query parameters and no body,
// used by videos.rate.
func (c *Client) postForm(ctx context.Context, breakerName, path string, query url.Values, quotaCost int) ([]byte, error) {
	cb := c.breakerFor(breakerName)

	body, err := cb.Execute(func() ([]byte, error) {
		return c.roundTripBody(ctx, http.MethodPost, path, query, nil)
	})

	at := time.Now()
	if err != nil {
		cost := quotaCost
		if _, ok := err.(*QuotaExceededError); ok {
			cost = 0
		}
		if recErr := c.recorder.RecordAPICall(ctx, breakerName, cost, false, err.Error(), at); recErr != nil {
			logging.Warn().Err(recErr).Msg("failed to record failed api call")
		}
		metrics.RemoteCalls.WithLabelValues(breakerName, "error").Inc()
		return nil, err
	}

	if recErr := c.recorder.RecordAPICall(ctx, breakerName, quotaCost, true, "", at); recErr != nil {
		logging.Warn().Err(recErr).Msg("failed to record successful api call")
	}
	metrics.RemoteCalls.WithLabelValues(breakerName, "success").Inc()
	return body, nil
}

func (c *Client) roundTripBody(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	u, err := url.Parse(c.baseURL + "/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, &InvalidRequestError{Message: err.Error()}
	}
	u.RawQuery = query.Encode()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, &InvalidRequestError{Message: err.Error()}
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, &AuthenticationError{Message: err.Error()}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	limited := io.LimitReader(resp.Body, maxResponseBodySize+1)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode >= 400 {
		var parsed apiErrorResponse
		_ = json.Unmarshal(respBody, &parsed)
		resetAt := time.Now()
		if c.calendar != nil {
			resetAt = c.calendar.NextResetUTC(time.Now())
		}
		return nil, Classify(resp.StatusCode, parsed, resetAt)
	}

	return respBody, nil
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}
