package forecast

import "github.com/lox/openwindow/internal/models"

const (
	clockLayout    = "03:04 PM"
	dayClockLayout = "Mon 03:04 PM"
)

// Period is an interval rendered for display.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (p Period) String() string {
	return p.Start + " - " + p.End
}

// FormatPeriod renders an interval from the overall list. The end omits the
// weekday when it falls on the same date as the start.
func FormatPeriod(iv models.Interval) Period {
	p := Period{
		Start: iv.Start.Format(dayClockLayout),
		End:   iv.End.Format(dayClockLayout),
	}
	if sameDate(iv.Start, iv.End) {
		p.End = iv.End.Format(clockLayout)
	}
	return p
}

// FormatDailyPeriod renders an interval within a day section, e.g. "08:00 AM - 11:00 AM".
func FormatDailyPeriod(iv models.Interval) string {
	return iv.Start.Format(clockLayout) + " - " + iv.End.Format(clockLayout)
}
