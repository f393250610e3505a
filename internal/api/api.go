// Package api exposes the minimal administrative surface named by
// spec.md §6/§7: a health endpoint and the HTTP front door to Rating
// Intake. It is intentionally thin — rate-limiting, auth, and the
// stats dashboard are all treated as an external collaborator's
// concern, not this package's.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/ytthumbs/ytthumbs/internal/intake"
	"github.com/ytthumbs/ytthumbs/internal/logging"
	"github.com/ytthumbs/ytthumbs/internal/pidlock"
	"github.com/ytthumbs/ytthumbs/internal/queue"
)

// QuotaChecker reports whether the current quota window is exhausted.
type QuotaChecker interface {
	QuotaExhaustedSinceLastReset(ctx context.Context, now time.Time) (bool, error)
}

// PollerHealth reports when the playback poller last ticked.
type PollerHealth interface {
	LastTickAt() time.Time
}

// Pinger reports whether the embedded database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config configures the health composite-status thresholds and the
// Worker PID file path the health check inspects.
type Config struct {
	PIDFilePath      string
	PollerStaleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollerStaleAfter <= 0 {
		c.PollerStaleAfter = 5 * time.Minute
	}
	return c
}

// Handler holds the collaborators the admin surface's handlers call
// into. All of them are narrow interfaces so the package is testable
// without a live database or HTTP server.
type Handler struct {
	db     Pinger
	quota  QuotaChecker
	poller PollerHealth
	intake *intake.Intake
	cfg    Config
}

// NewHandler constructs a Handler.
func NewHandler(db Pinger, quota QuotaChecker, poller PollerHealth, in *intake.Intake, cfg Config) *Handler {
	return &Handler{db: db, quota: quota, poller: poller, intake: in, cfg: cfg.withDefaults()}
}

// NewRouter builds the chi mux exposing POST /api/rate/{video_id_or_current}
// and GET /health.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", h.Health)
	r.Post("/api/rate/{video_id_or_current}", h.RatePost)

	return r
}

type healthResponse struct {
	Status         string `json:"status"`
	DatabaseOK     bool   `json:"database_ok"`
	WorkerPID      int    `json:"worker_pid,omitempty"`
	WorkerAlive    bool   `json:"worker_alive"`
	QuotaExhausted bool   `json:"quota_exhausted"`
	PollerRecent   bool   `json:"poller_recent"`
}

// Health implements spec.md §7's composite status: database reachable,
// PID file present with a live process, no quota exhaustion in the
// current window, and recent poller activity.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbOK := h.db != nil && h.db.Ping(ctx) == nil

	pid, workerAlive := 0, false
	if h.cfg.PIDFilePath != "" {
		pid, workerAlive = pidlock.IsHeld(h.cfg.PIDFilePath)
	}

	quotaExhausted := false
	if h.quota != nil {
		exhausted, err := h.quota.QuotaExhaustedSinceLastReset(ctx, time.Now())
		if err != nil {
			logging.Warn().Err(err).Msg("health check: quota status lookup failed")
			quotaExhausted = true // fail closed: treat an unknown quota state as exhausted
		} else {
			quotaExhausted = exhausted
		}
	}

	pollerRecent := true
	if h.poller != nil {
		last := h.poller.LastTickAt()
		pollerRecent = !last.IsZero() && time.Since(last) <= h.cfg.PollerStaleAfter
	}

	resp := healthResponse{
		DatabaseOK:     dbOK,
		WorkerPID:      pid,
		WorkerAlive:    workerAlive,
		QuotaExhausted: quotaExhausted,
		PollerRecent:   pollerRecent,
	}
	resp.Status = "healthy"
	if !dbOK || !workerAlive || quotaExhausted || !pollerRecent {
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type rateRequest struct {
	Rating queue.RatingValue `json:"rating"`
}

type rateResponse struct {
	Accepted bool   `json:"accepted"`
	QueuedAs string `json:"queued_as,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RatePost implements spec.md §4.9's HTTP front door: POST
// /api/rate/{video_id_or_current} with a JSON body {"rating": "like"}.
// The path segment "current" rates whatever is currently playing; any
// other value is treated as an explicit yt_video_id, queued directly
// without a cache lookup since the id is already known. No synchronous
// remote call is made on this path.
func (h *Handler) RatePost(w http.ResponseWriter, r *http.Request) {
	videoIDOrCurrent := chi.URLParam(r, "video_id_or_current")

	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, rateResponse{Error: "invalid request body"})
		return
	}
	switch req.Rating {
	case queue.RatingLike, queue.RatingDislike, queue.RatingNone:
	default:
		writeJSON(w, http.StatusBadRequest, rateResponse{Error: "rating must be one of like, dislike, none"})
		return
	}

	if videoIDOrCurrent != "current" {
		payload, err := queue.EncodeRatingPayload(queue.RatingPayload{YTVideoID: videoIDOrCurrent, Rating: req.Rating})
		if err != nil {
			logging.Error().Err(err).Msg("failed to encode explicit rating payload")
			writeJSON(w, http.StatusInternalServerError, rateResponse{Error: "internal error"})
			return
		}
		if _, err := h.intake.EnqueueExplicitRating(r.Context(), payload); err != nil {
			logging.Error().Err(err).Msg("failed to enqueue explicit rating")
			writeJSON(w, http.StatusInternalServerError, rateResponse{Error: "internal error"})
			return
		}
		writeJSON(w, http.StatusAccepted, rateResponse{Accepted: true, QueuedAs: "rating"})
		return
	}

	result, err := h.intake.RateCurrent(r.Context(), req.Rating)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, rateResponse{Accepted: true, QueuedAs: result.QueuedAs})
	case errors.Is(err, intake.ErrNotPlaying):
		writeJSON(w, http.StatusBadRequest, rateResponse{Error: "nothing eligible is currently playing"})
	default:
		logging.Error().Err(err).Msg("rate current failed")
		writeJSON(w, http.StatusInternalServerError, rateResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to write json response")
	}
}
