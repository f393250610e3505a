// This file implements the remote-platform error taxonomy: a closed set
// of typed errors the Worker matches on exhaustively, replacing ad hoc
// boolean predicates with one classification entry point.
package ytapi

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the closed set of remote-platform failure classes.
type Kind int

const (
	KindUnknown Kind = iota
	KindQuotaExceeded
	KindVideoNotFound
	KindAuthentication
	KindNetwork
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindVideoNotFound:
		return "video_not_found"
	case KindAuthentication:
		return "authentication"
	case KindNetwork:
		return "network"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// QuotaExceededError is raised when the daily quota is exhausted. It
// carries the computed next reset time so the Worker can compute its
// sleep without a second lookup.
type QuotaExceededError struct {
	ResetAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("ytapi: quota exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// VideoNotFoundError indicates a 404 on a single-id operation.
type VideoNotFoundError struct {
	VideoID string
}

func (e *VideoNotFoundError) Error() string {
	return fmt.Sprintf("ytapi: video not found: %s", e.VideoID)
}

// AuthenticationError indicates a 401/403 not attributable to quota.
// This is the one class the Worker treats as fatal: it logs critical
// and exits, because no amount of retrying fixes stale credentials.
type AuthenticationError struct {
	Code    string
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("ytapi: authentication failed (%s): %s", e.Code, e.Message)
}

// NetworkError wraps a transport-level failure (timeout, 5xx, connection
// reset). Transient; the caller marks the item failed and leaves it for
// operator retry.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("ytapi: network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// InvalidRequestError indicates a 400 not attributable to quota —
// a caller bug, not a remote or transient condition.
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("ytapi: invalid request: %s", e.Message)
}

// quotaReasonCodes are the API error codes that indicate quota
// exhaustion, per the official YouTube Data API error catalogue.
var quotaReasonCodes = map[string]bool{
	"quotaExceeded":     true,
	"rateLimitExceeded": true,
	"dailyLimitExceeded": true,
	"limitExceeded":     true,
}

// apiErrorResponse mirrors the JSON error envelope the Data API returns.
type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

// Classify maps an HTTP status code and decoded error body into one of
// the five closed Kind values, per spec.md §7's taxonomy table. It is
// the single place that knows how to read a YouTube Data API error
// shape; everything downstream switches on Kind.
func Classify(statusCode int, body apiErrorResponse, resetAt time.Time) error {
	reason := ""
	if len(body.Error.Errors) > 0 {
		reason = body.Error.Errors[0].Reason
	}
	message := strings.ToLower(body.Error.Message)

	if quotaReasonCodes[reason] || strings.Contains(message, "quota") || strings.Contains(message, "rate limit") {
		return &QuotaExceededError{ResetAt: resetAt}
	}

	switch statusCode {
	case 404:
		return &VideoNotFoundError{}
	case 401, 403:
		return &AuthenticationError{Code: reason, Message: body.Error.Message}
	case 400:
		return &InvalidRequestError{Message: body.Error.Message}
	}

	if statusCode >= 500 {
		return &NetworkError{Err: fmt.Errorf("server error %d: %s", statusCode, body.Error.Message)}
	}

	return &InvalidRequestError{Message: fmt.Sprintf("unclassified status %d: %s", statusCode, body.Error.Message)}
}

// KindOf returns the Kind of a classified error, or KindUnknown for
// anything outside the taxonomy (e.g. a plain transport error that
// never reached classification).
func KindOf(err error) Kind {
	switch err.(type) {
	case *QuotaExceededError:
		return KindQuotaExceeded
	case *VideoNotFoundError:
		return KindVideoNotFound
	case *AuthenticationError:
		return KindAuthentication
	case *NetworkError:
		return KindNetwork
	case *InvalidRequestError:
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}
