package forecast

import (
	"database/sql"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/lox/openwindow/internal/models"
)

// DryThresholdMM is the hourly precipitation below which an hour counts as dry.
const DryThresholdMM = 0.1

// Result is the reduction of one forecast snapshot into open-window intervals.
type Result struct {
	Timezone         string
	TimezoneFallback bool
	AQIAvailable     bool

	Samples   []models.HourlySample
	Intervals []models.Interval
	Periods   []Period

	// Days lists the day keys in forecast order; the maps below are keyed by them.
	Days           []string
	DailySamples   map[string][]models.HourlySample
	DailyIntervals map[string][]models.Interval
	DailyPeriods   map[string][]string
}

// Checks holds the outcome of each admissibility test for a single hour.
type Checks struct {
	PrimaryData bool
	Temp        bool
	IndoorRH    bool
	Precip      bool
	PrecipProb  bool
	AQI         bool
}

func (c Checks) Admissible() bool {
	return c.PrimaryData && c.Temp && c.IndoorRH && c.Precip && c.PrecipProb && c.AQI
}

// Evaluate runs every threshold test against s, filling in PredictedIndoorRH
// and Admissible. When aqiAvailable is false air quality is not considered.
func Evaluate(s *models.HourlySample, th models.Thresholds, aqiAvailable bool) Checks {
	c := Checks{
		PrimaryData: s.OutdoorTempF.Valid && s.OutdoorDewPointF.Valid && s.PrecipitationMM.Valid,
	}
	s.PredictedIndoorRH = sql.NullFloat64{}
	s.Admissible = false
	if !c.PrimaryData {
		return c
	}

	indoorRef := sql.NullFloat64{Float64: th.IndoorReferenceTempF, Valid: true}
	s.PredictedIndoorRH = PredictIndoorRH(indoorRef, s.OutdoorDewPointF)

	temp := s.OutdoorTempF.Float64
	c.Temp = th.MinOutdoorTempF <= temp && temp <= th.MaxOutdoorTempF

	if rh := s.PredictedIndoorRH; rh.Valid {
		c.IndoorRH = th.MinIndoorRH <= rh.Float64 && rh.Float64 <= th.MaxIndoorRH
	}

	c.Precip = s.PrecipitationMM.Float64 < DryThresholdMM

	if p := s.PrecipitationProbability; p.Valid {
		c.PrecipProb = p.Float64 <= th.MaxPrecipProbabilityPercent
	}

	if aqiAvailable {
		c.AQI = s.AQI.Valid && s.AQI.Int64 <= int64(th.MaxAQI)
	} else {
		c.AQI = true
	}

	s.Admissible = c.Admissible()
	return c
}

// FindWindows evaluates every forecast hour against th and groups the
// admissible hours into maximal intervals, both across the whole horizon and
// per local calendar day. aq may be nil.
func FindWindows(wx *models.WeatherForecast, aq *models.AirQualityForecast, th models.Thresholds) (*Result, error) {
	if wx == nil || wx.Hourly == nil || wx.Hourly.Time == nil {
		return nil, &DataError{Reason: "missing hourly time axis"}
	}
	hourly := wx.Hourly
	if hourly.Temperature == nil {
		return nil, &DataError{Reason: "missing temperature_2m"}
	}
	if hourly.DewPoint == nil {
		return nil, &DataError{Reason: "missing dew_point_2m"}
	}
	if math.IsNaN(th.IndoorReferenceTempF) || math.IsInf(th.IndoorReferenceTempF, 0) {
		return nil, &ConfigError{Field: "indoor reference temperature", Value: th.IndoorReferenceTempF}
	}

	loc, fallback := ResolveLocation(wx.Timezone)

	times := make([]time.Time, len(hourly.Time))
	for i, s := range hourly.Time {
		t, err := ParseLocalHour(s, loc)
		if err != nil {
			return nil, &DataError{Reason: fmt.Sprintf("time[%d]=%q: %v", i, s, err)}
		}
		times[i] = t
	}

	aqiByTime, aqiAvailable := alignAQI(aq)

	result := &Result{
		Timezone:         loc.String(),
		TimezoneFallback: fallback,
		AQIAvailable:     aqiAvailable,
		Samples:          make([]models.HourlySample, len(times)),
		DailySamples:     make(map[string][]models.HourlySample),
		DailyIntervals:   make(map[string][]models.Interval),
		DailyPeriods:     make(map[string][]string),
	}

	for i, t := range times {
		s := models.HourlySample{
			Time:                     t,
			OutdoorTempF:             valueAt(hourly.Temperature, i),
			OutdoorDewPointF:         valueAt(hourly.DewPoint, i),
			PrecipitationMM:          valueOrZero(hourly.Precipitation, i),
			PrecipitationProbability: valueOrZero(hourly.PrecipitationProbability, i),
		}
		if v, ok := aqiByTime[hourly.Time[i]]; ok && v != nil {
			s.AQI = sql.NullInt64{Int64: int64(*v), Valid: true}
		}
		Evaluate(&s, th, aqiAvailable)
		result.Samples[i] = s
	}

	result.Intervals = mergeRuns(result.Samples)
	for _, iv := range result.Intervals {
		result.Periods = append(result.Periods, FormatPeriod(iv))
	}

	splitDays(result)
	return result, nil
}

// alignAQI indexes the air-quality series by timestamp string. AQI counts as
// available only when both arrays are present and the same length.
func alignAQI(aq *models.AirQualityForecast) (map[string]*int, bool) {
	if aq == nil || aq.Hourly == nil || aq.Hourly.Time == nil {
		log.Printf("forecast: AQI data not available or invalid")
		return nil, false
	}
	if aq.Hourly.USAQI == nil || len(aq.Hourly.USAQI) != len(aq.Hourly.Time) {
		log.Printf("forecast: AQI data length mismatch or missing")
		return nil, false
	}
	byTime := make(map[string]*int, len(aq.Hourly.Time))
	for i, ts := range aq.Hourly.Time {
		byTime[ts] = aq.Hourly.USAQI[i]
	}
	return byTime, true
}

// valueAt returns vals[i], absent when the element is null or out of range.
func valueAt(vals []*float64, i int) sql.NullFloat64 {
	if i >= len(vals) || vals[i] == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *vals[i], Valid: true}
}

// valueOrZero is valueAt for series whose total absence means zero.
func valueOrZero(vals []*float64, i int) sql.NullFloat64 {
	if vals == nil {
		return sql.NullFloat64{Valid: true}
	}
	return valueAt(vals, i)
}

// runTracker accumulates maximal runs of admissible hours.
type runTracker struct {
	start time.Time
	open  bool
	out   []models.Interval
}

func (r *runTracker) step(t time.Time, admissible bool) {
	switch {
	case admissible && !r.open:
		r.start, r.open = t, true
	case !admissible && r.open:
		r.close(t)
	}
}

func (r *runTracker) close(end time.Time) {
	if !r.open {
		return
	}
	r.out = append(r.out, models.Interval{Start: r.start, End: end})
	r.open = false
}

func mergeRuns(samples []models.HourlySample) []models.Interval {
	var r runTracker
	for _, s := range samples {
		r.step(s.Time, s.Admissible)
	}
	if len(samples) > 0 {
		r.close(samples[len(samples)-1].Time.Add(time.Hour))
	}
	return r.out
}

// splitDays buckets samples by local date and runs the interval merge within
// each bucket. A run crossing midnight is cut at the first hour of the new day.
func splitDays(result *Result) {
	if len(result.Samples) == 0 {
		return
	}

	var (
		current string
		r       runTracker
	)
	flush := func(end time.Time) {
		r.close(end)
		for _, iv := range r.out {
			result.DailyIntervals[current] = append(result.DailyIntervals[current], iv)
			result.DailyPeriods[current] = append(result.DailyPeriods[current], FormatDailyPeriod(iv))
		}
		r = runTracker{}
	}

	for i, s := range result.Samples {
		key := DayKey(s.Time)
		if i == 0 || key != current {
			if i > 0 {
				flush(s.Time)
			}
			current = key
			result.Days = append(result.Days, key)
			result.DailyIntervals[key] = []models.Interval{}
			result.DailyPeriods[key] = []string{}
		}
		result.DailySamples[key] = append(result.DailySamples[key], s)
		r.step(s.Time, s.Admissible)
	}
	flush(result.Samples[len(result.Samples)-1].Time.Add(time.Hour))
}
