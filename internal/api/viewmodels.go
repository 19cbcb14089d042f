package api

import (
	"database/sql"
	"time"

	"github.com/lox/openwindow/internal/advisor"
	"github.com/lox/openwindow/internal/forecast"
	"github.com/lox/openwindow/internal/models"
)

type WindowsResponse struct {
	Location         LocationView      `json:"location"`
	Timezone         string            `json:"timezone"`
	TimezoneFallback bool              `json:"timezone_fallback"`
	AQIAvailable     bool              `json:"aqi_available"`
	Thresholds       models.Thresholds `json:"thresholds"`
	Summary          string            `json:"summary"`
	Periods          []forecast.Period `json:"periods"`
	Intervals        []models.Interval `json:"intervals"`
	Days             []DayView         `json:"days"`
}

type LocationView struct {
	Query     string  `json:"query,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
	AddressOK bool    `json:"address_ok"`
}

type DayView struct {
	Key       string            `json:"key"`
	Date      string            `json:"date"`
	Periods   []string          `json:"periods"`
	Intervals []models.Interval `json:"intervals"`
	Hours     []HourView        `json:"hours"`
	ChartURL  string            `json:"chart_url"`
}

type HourView struct {
	Time                     time.Time `json:"time"`
	TemperatureF             *float64  `json:"temperature_f"`
	DewPointF                *float64  `json:"dew_point_f"`
	PrecipitationMM          *float64  `json:"precipitation_mm"`
	PrecipitationProbability *float64  `json:"precipitation_probability"`
	AQI                      *int64    `json:"aqi"`
	PredictedIndoorRH        *float64  `json:"predicted_indoor_rh"`
	Admissible               bool      `json:"admissible"`
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

// dayDate is the URL-safe form of a day, taken from its first sample.
func dayDate(res *forecast.Result, day string) string {
	samples := res.DailySamples[day]
	if len(samples) == 0 {
		return ""
	}
	return samples[0].Time.Format("2006-01-02")
}

func buildWindowsResponse(ev *advisor.Evaluation, summary, rawQuery string) WindowsResponse {
	res := ev.Result
	resp := WindowsResponse{
		Location: LocationView{
			Query:     ev.Location.Query,
			Latitude:  ev.Location.Coordinates.Latitude,
			Longitude: ev.Location.Coordinates.Longitude,
			Address:   ev.Address,
			AddressOK: ev.AddressOK,
		},
		Timezone:         res.Timezone,
		TimezoneFallback: res.TimezoneFallback,
		AQIAvailable:     res.AQIAvailable,
		Thresholds:       ev.Thresholds,
		Summary:          summary,
		Periods:          res.Periods,
		Intervals:        res.Intervals,
		Days:             make([]DayView, 0, len(ev.VisibleDays)),
	}
	if resp.Periods == nil {
		resp.Periods = []forecast.Period{}
	}
	if resp.Intervals == nil {
		resp.Intervals = []models.Interval{}
	}

	for _, day := range ev.VisibleDays {
		dv := DayView{
			Key:       day,
			Date:      dayDate(res, day),
			Periods:   res.DailyPeriods[day],
			Intervals: res.DailyIntervals[day],
		}
		dv.ChartURL = "/chart/" + dv.Date + ".png"
		if rawQuery != "" {
			dv.ChartURL += "?" + rawQuery
		}
		for _, s := range res.DailySamples[day] {
			dv.Hours = append(dv.Hours, HourView{
				Time:                     s.Time,
				TemperatureF:             nullFloat(s.OutdoorTempF),
				DewPointF:                nullFloat(s.OutdoorDewPointF),
				PrecipitationMM:          nullFloat(s.PrecipitationMM),
				PrecipitationProbability: nullFloat(s.PrecipitationProbability),
				AQI:                      nullInt(s.AQI),
				PredictedIndoorRH:        nullFloat(s.PredictedIndoorRH),
				Admissible:               s.Admissible,
			})
		}
		resp.Days = append(resp.Days, dv)
	}
	return resp
}
