package service

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/mattressai-engine/internal/domain"
)

// parseClock parses "HH:MM" into minutes after midnight
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// InQuietHours reports whether now falls inside the window, both bounds inclusive.
// A window whose start is after its end crosses midnight. start == end never matches.
func InQuietHours(q *domain.QuietHours, now time.Time) bool {
	if q == nil {
		return false
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("tz", q.Timezone).Msg("invalid quiet hours timezone")
		return false
	}
	start, err := parseClock(q.Start)
	if err != nil {
		log.Warn().Err(err).Msg("invalid quiet hours start")
		return false
	}
	end, err := parseClock(q.End)
	if err != nil {
		log.Warn().Err(err).Msg("invalid quiet hours end")
		return false
	}
	if start == end {
		return false
	}

	local := now.In(loc)
	current := local.Hour()*60 + local.Minute()
	if start < end {
		return current >= start && current <= end
	}
	return current >= start || current <= end
}
