package forecast

import (
	"errors"
	"log"
	"time"
)

// ResolveLocation maps the provider's reported IANA zone to a *time.Location.
// An empty name means UTC. "Local" and unknown names also resolve to UTC, with
// fallback set.
func ResolveLocation(name string) (loc *time.Location, fallback bool) {
	if name == "" {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(name)
	if err == nil && name == "Local" {
		err = errors.New("not an IANA zone")
	}
	if err != nil {
		log.Printf("forecast: unknown timezone %q, using UTC: %v", name, err)
		return time.UTC, true
	}
	return loc, false
}

// hourLayouts are the ISO8601 forms Open-Meteo emits for hourly axes.
var hourLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// ParseLocalHour interprets a zone-less ISO8601 timestamp as wall-clock time in loc.
func ParseLocalHour(s string, loc *time.Location) (time.Time, error) {
	var firstErr error
	for _, layout := range hourLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// DayKey is the label a local calendar day is bucketed under, e.g. "Mon 2025-06-02".
func DayKey(t time.Time) string {
	return t.Format("Mon 2006-01-02")
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
