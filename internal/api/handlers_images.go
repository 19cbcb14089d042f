package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/lox/openwindow/internal/advisor"
	"github.com/lox/openwindow/internal/chart"
)

func chartKey(date, rawQuery string) string {
	return date + "|" + rawQuery
}

func chartInput(ev *advisor.Evaluation, day string) chart.Input {
	res := ev.Result
	return chart.Input{
		Title:        day,
		Samples:      res.DailySamples[day],
		Intervals:    res.DailyIntervals[day],
		Thresholds:   ev.Thresholds,
		AQIAvailable: res.AQIAvailable,
	}
}

// handleChart serves /chart/{date}.png for the evaluation described by the query string.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	date, ok := strings.CutSuffix(r.PathValue("file"), ".png")
	if !ok || date == "" {
		http.NotFound(w, r)
		return
	}
	key := chartKey(date, r.URL.Query().Encode())

	if data, ok := s.charts.Get(key); ok {
		writePNG(w, data)
		return
	}

	ev, err := s.evaluate(r, "chart")
	if err != nil {
		http.Error(w, userMessage(err), statusFor(err))
		return
	}

	var day string
	for _, d := range ev.Result.Days {
		if dayDate(ev.Result, d) == date {
			day = d
			break
		}
	}
	if day == "" {
		http.NotFound(w, r)
		return
	}

	data, err := chart.Render(chartInput(ev, day))
	if err != nil {
		log.Printf("api: render chart for %s: %v", day, err)
		http.Error(w, "Failed to render chart", http.StatusInternalServerError)
		return
	}
	s.charts.Set(key, data)
	writePNG(w, data)
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=600")
	w.Write(data)
}
