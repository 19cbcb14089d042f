package models

import (
	"database/sql"
	"time"
)

type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Location is a resolved place: coordinates plus whatever text we know about it.
type Location struct {
	Query       string // free-text the user typed, empty when coordinates were given directly
	Coordinates Coordinates
	DisplayName sql.NullString // reverse-geocoded address
}

// Thresholds are the user's comfort bounds for one evaluation.
type Thresholds struct {
	MinOutdoorTempF             float64 `json:"min_temp" yaml:"min_temp" validate:"ltfield=MaxOutdoorTempF"`
	MaxOutdoorTempF             float64 `json:"max_temp" yaml:"max_temp"`
	MinIndoorRH                 float64 `json:"min_rh" yaml:"min_rh" validate:"gte=0,lte=100,ltfield=MaxIndoorRH"`
	MaxIndoorRH                 float64 `json:"max_rh" yaml:"max_rh" validate:"gte=0,lte=100"`
	IndoorReferenceTempF        float64 `json:"indoor_ref_temp" yaml:"indoor_ref_temp"`
	MaxAQI                      int     `json:"max_aqi" yaml:"max_aqi" validate:"gte=0"`
	MaxPrecipProbabilityPercent float64 `json:"max_precip_prob" yaml:"max_precip_prob" validate:"gte=0,lte=100"`
}

// DefaultThresholds mirrors the values the advisor form starts with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinOutdoorTempF:             67,
		MaxOutdoorTempF:             79,
		MinIndoorRH:                 30,
		MaxIndoorRH:                 60,
		IndoorReferenceTempF:        69,
		MaxAQI:                      50,
		MaxPrecipProbabilityPercent: 10,
	}
}

// WeatherForecast is the Open-Meteo hourly forecast payload. Array elements are
// pointers because the provider emits null for missing hours; a nil slice means
// the field was absent from the response entirely.
type WeatherForecast struct {
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Timezone  string         `json:"timezone"`
	Hourly    *HourlyWeather `json:"hourly"`
}

type HourlyWeather struct {
	Time                     []string   `json:"time"`
	Temperature              []*float64 `json:"temperature_2m"`
	DewPoint                 []*float64 `json:"dew_point_2m"`
	Precipitation            []*float64 `json:"precipitation"`
	PrecipitationProbability []*float64 `json:"precipitation_probability"`
}

type AirQualityForecast struct {
	Timezone string            `json:"timezone"`
	Hourly   *HourlyAirQuality `json:"hourly"`
}

type HourlyAirQuality struct {
	Time  []string `json:"time"`
	USAQI []*int   `json:"us_aqi"`
}

// HourlySample is one forecast hour after alignment and evaluation.
type HourlySample struct {
	Time                     time.Time
	OutdoorTempF             sql.NullFloat64
	OutdoorDewPointF         sql.NullFloat64
	PrecipitationMM          sql.NullFloat64
	PrecipitationProbability sql.NullFloat64
	AQI                      sql.NullInt64
	PredictedIndoorRH        sql.NullFloat64
	Admissible               bool
}

// Interval is a half-open [Start, End) run of admissible hours.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Hours returns the number of whole hours covered by the interval.
func (iv Interval) Hours() int {
	return int(iv.End.Sub(iv.Start) / time.Hour)
}
