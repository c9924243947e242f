package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/TERAN-XMD-maker/Helalink2025/internal/subscription"
)

// launchLayout is the civil format subscribers register launch times in,
// interpreted in the record's timezone.
const launchLayout = "2006-01-02 15:04"

// DailyTime is one parsed recurring reminder time.
type DailyTime struct {
	Hour   int
	Minute int
	Raw    string
}

// Plan is the concrete set of future occurrences for one record.
type Plan struct {
	// Launch is the absolute one-off instant, nil when the record has no
	// launch time or it already passed (a missed launch is never retried).
	Launch *time.Time

	// Daily holds the valid recurring entries; each fires every calendar day
	// at its civil time in Location.
	Daily []DailyTime

	// Skipped lists daily entries dropped as unparsable.
	Skipped []string

	// Location is the zone all occurrences are evaluated in.
	Location *time.Location
}

// Planner derives fire-times from subscription records. It is pure: same
// (record, now) in, same plan out.
type Planner struct {
	// DefaultTimezone is used when a record carries no zone. Empty means UTC.
	DefaultTimezone string
}

// Plan computes the occurrence set for rec as of now.
//
// Malformed daily entries are skipped individually; an unparsable launch time
// drops only the launch occurrence. Neither invalidates the rest of the plan.
func (p Planner) Plan(rec subscription.Record, now time.Time) Plan {
	loc := p.location(rec.Timezone)
	out := Plan{Location: loc}

	if raw := strings.TrimSpace(rec.LaunchTime); raw != "" {
		if at, err := parseLaunchTime(raw, loc); err == nil {
			if at.After(now) {
				out.Launch = &at
			}
		} else {
			out.Skipped = append(out.Skipped, raw)
		}
	}

	for _, raw := range rec.DailyTimes {
		h, m, err := parseHHMM(raw)
		if err != nil {
			out.Skipped = append(out.Skipped, raw)
			continue
		}
		out.Daily = append(out.Daily, DailyTime{Hour: h, Minute: m, Raw: raw})
	}
	return out
}

// NextDaily returns the next occurrence of d at or after now, in loc.
// It is always within (now, now+24h].
func NextDaily(d DailyTime, now time.Time, loc *time.Location) time.Time {
	lt := now.In(loc)
	next := time.Date(lt.Year(), lt.Month(), lt.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !next.After(now) {
		nd := lt.AddDate(0, 0, 1)
		next = time.Date(nd.Year(), nd.Month(), nd.Day(), d.Hour, d.Minute, 0, 0, loc)
	}
	return next
}

func (p Planner) location(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = strings.TrimSpace(p.DefaultTimezone)
	}
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseLaunchTime(raw string, loc *time.Location) (time.Time, error) {
	if at, err := time.ParseInLocation(launchLayout, raw, loc); err == nil {
		return at, nil
	}
	// Accept RFC3339 for hand-edited store files.
	return time.Parse(time.RFC3339, raw)
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
