package forecast

import (
	"testing"
	"time"

	"github.com/lox/openwindow/internal/models"
)

func TestFormatPeriod(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	at := func(day, hour int) time.Time { return time.Date(2025, 6, day, hour, 0, 0, 0, loc) }

	tests := []struct {
		name      string
		iv        models.Interval
		want      string
		wantDaily string
	}{
		{"same day", models.Interval{Start: at(2, 8), End: at(2, 11)}, "Mon 08:00 AM - 11:00 AM", "08:00 AM - 11:00 AM"},
		{"afternoon", models.Interval{Start: at(4, 13), End: at(4, 18)}, "Wed 01:00 PM - 06:00 PM", "01:00 PM - 06:00 PM"},
		{"ends next day", models.Interval{Start: at(2, 22), End: at(3, 1)}, "Mon 10:00 PM - Tue 01:00 AM", "10:00 PM - 01:00 AM"},
		{"ends at midnight", models.Interval{Start: at(2, 20), End: at(3, 0)}, "Mon 08:00 PM - Tue 12:00 AM", "08:00 PM - 12:00 AM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatPeriod(tt.iv).String(); got != tt.want {
				t.Errorf("FormatPeriod = %q, want %q", got, tt.want)
			}
			if got := FormatDailyPeriod(tt.iv); got != tt.wantDaily {
				t.Errorf("FormatDailyPeriod = %q, want %q", got, tt.wantDaily)
			}
		})
	}
}

func TestResolveLocation(t *testing.T) {
	tests := []struct {
		name         string
		want         string
		wantFallback bool
	}{
		{"America/New_York", "America/New_York", false},
		{"UTC", "UTC", false},
		{"", "UTC", false},
		{"Local", "UTC", true},
		{"Nowhere/Special", "UTC", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, fallback := ResolveLocation(tt.name)
			if loc.String() != tt.want || fallback != tt.wantFallback {
				t.Errorf("ResolveLocation(%q) = %v, %v; want %v, %v", tt.name, loc, fallback, tt.want, tt.wantFallback)
			}
		})
	}
}

func TestDayKey(t *testing.T) {
	got := DayKey(time.Date(2025, 6, 7, 23, 0, 0, 0, time.UTC))
	if got != "Sat 2025-06-07" {
		t.Errorf("DayKey = %q", got)
	}
}
