package ytapi

import (
	"fmt"
	"regexp"
	"strconv"
)

// MaxDurationSeconds and MinDurationSeconds bound a valid video
// duration, per spec.md §4.4/§8 boundary behaviors.
const (
	MinDurationSeconds = 0
	MaxDurationSeconds = 86400
)

var iso8601DurationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISO8601Duration parses the ISO-8601 duration string the Data API
// returns for contentDetails.duration (e.g. "PT4M13S") into whole
// seconds, then validates it against the system's bounds.
func ParseISO8601Duration(s string) (int, error) {
	m := iso8601DurationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("ytapi: invalid ISO-8601 duration %q", s)
	}

	hours, _ := strconv.Atoi(orZero(m[1]))
	minutes, _ := strconv.Atoi(orZero(m[2]))
	seconds, _ := strconv.Atoi(orZero(m[3]))

	total := hours*3600 + minutes*60 + seconds
	return total, validateDuration(total)
}

func validateDuration(seconds int) error {
	if seconds < MinDurationSeconds || seconds > MaxDurationSeconds {
		return fmt.Errorf("ytapi: duration %d seconds out of bounds [%d, %d]", seconds, MinDurationSeconds, MaxDurationSeconds)
	}
	return nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
