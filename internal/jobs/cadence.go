package jobs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cadence is a parsed job schedule. Talos jobs run often enough (hourly or
// daily) that a tiny hand-rolled interpreter for "hourly@:MM" and
// "daily@HH:MM" is clearer than pulling in a full cron expression parser —
// no cron library appears anywhere in the example pack this project draws
// from, so the scheduler stays on the standard library, arming a time.Timer
// for each next firing time.
type Cadence struct {
	daily  bool
	hour   int
	minute int
}

// ParseCadence parses "hourly@:MM" or "daily@HH:MM".
func ParseCadence(s string) (Cadence, error) {
	at := strings.SplitN(s, "@", 2)
	if len(at) != 2 {
		return Cadence{}, fmt.Errorf("jobs: invalid cadence %q", s)
	}
	kind, clock := at[0], at[1]

	switch kind {
	case "hourly":
		if !strings.HasPrefix(clock, ":") {
			return Cadence{}, fmt.Errorf("jobs: invalid hourly cadence %q", s)
		}
		minute, err := strconv.Atoi(clock[1:])
		if err != nil || minute < 0 || minute > 59 {
			return Cadence{}, fmt.Errorf("jobs: invalid hourly minute in %q", s)
		}
		return Cadence{daily: false, minute: minute}, nil
	case "daily":
		parts := strings.SplitN(clock, ":", 2)
		if len(parts) != 2 {
			return Cadence{}, fmt.Errorf("jobs: invalid daily cadence %q", s)
		}
		hour, errH := strconv.Atoi(parts[0])
		minute, errM := strconv.Atoi(parts[1])
		if errH != nil || errM != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return Cadence{}, fmt.Errorf("jobs: invalid daily cadence %q", s)
		}
		return Cadence{daily: true, hour: hour, minute: minute}, nil
	default:
		return Cadence{}, fmt.Errorf("jobs: unknown cadence kind %q", kind)
	}
}

// Next returns the next time strictly after now that this cadence fires.
func (c Cadence) Next(now time.Time) time.Time {
	if c.daily {
		next := time.Date(now.Year(), now.Month(), now.Day(), c.hour, c.minute, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), c.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(time.Hour)
	}
	return next
}
