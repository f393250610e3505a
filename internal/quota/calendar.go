// Package quota computes the remote platform's daily quota reset
// boundary and whether the Worker should currently be sleeping because
// a previous call exhausted it.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ytthumbs/ytthumbs/internal/database"
)

// exhaustionMarker is matched (case-insensitively, as a substring)
// against api_call_log.error_message to identify quota-exhaustion
// failures.
const exhaustionMarker = "quota exceeded"

// Ledger is the subset of the Store's API-usage operations the
// Calendar needs to determine exhaustion state.
type Ledger interface {
	LastExhaustedAt(ctx context.Context, marker string) (time.Time, error)
}

// Calendar computes reset boundaries against the remote platform's
// quota reset zone (America/Los_Angeles, midnight local).
type Calendar struct {
	ledger Ledger
	loc    *time.Location
}

// New constructs a Calendar backed by ledger. It resolves the Pacific
// time zone once at construction; if tzdata is unavailable it falls
// back to an approximate fixed-offset zone.
func New(ledger Ledger) *Calendar {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		loc = approximatePacific(time.Now())
	}
	return &Calendar{ledger: ledger, loc: loc}
}

// NextResetUTC returns the next midnight in the Pacific zone after now,
// converted to UTC. DST transitions are honored because the zone's own
// offset table is used, except in the tzdata-unavailable fallback
// where the March/November approximation in approximatePacific applies.
func (c *Calendar) NextResetUTC(now time.Time) time.Time {
	local := now.In(c.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, c.loc)
	return midnight.UTC()
}

// QuotaExhaustedSinceLastReset reports whether the most recent
// quota-exhaustion failure recorded in the API call log happened after
// the most recent reset boundary (i.e. today's quota is still blocked).
func (c *Calendar) QuotaExhaustedSinceLastReset(ctx context.Context, now time.Time) (bool, error) {
	lastExhausted, err := c.ledger.LastExhaustedAt(ctx, exhaustionMarker)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("quota: checking exhaustion ledger: %w", err)
	}

	lastReset := c.previousResetUTC(now)
	return lastExhausted.After(lastReset), nil
}

func (c *Calendar) previousResetUTC(now time.Time) time.Time {
	local := now.In(c.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	if midnight.After(local) {
		midnight = midnight.AddDate(0, 0, -1)
	}
	return midnight.UTC()
}

// approximatePacific builds a fixed-offset zone approximating US
// Pacific Time when tzdata is unavailable: PDT (UTC-7) from March
// through October, PST (UTC-8) otherwise. This is a coarse
// approximation of the actual second-Sunday-of-March to
// first-Sunday-of-November DST window.
func approximatePacific(at time.Time) *time.Location {
	month := at.UTC().Month()
	offsetSeconds := -8 * 60 * 60
	if month >= time.March && month < time.November {
		offsetSeconds = -7 * 60 * 60
	}
	return time.FixedZone("Pacific-approx", offsetSeconds)
}
