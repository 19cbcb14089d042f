package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"

	"github.com/lox/openwindow/internal/models"
)

const (
	DefaultWeatherURL    = "https://api.open-meteo.com/v1/forecast"
	DefaultAirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
	DefaultForecastDays  = 5

	weatherVariables = "temperature_2m,dew_point_2m,precipitation,precipitation_probability"
)

type OpenMeteoConfig struct {
	WeatherURL    string
	AirQualityURL string
	ForecastDays  int
	UserAgent     string
}

// OpenMeteo fetches hourly weather and air-quality forecasts from Open-Meteo.
// Both endpoints are asked for local times (timezone=auto) and Fahrenheit.
type OpenMeteo struct {
	weatherURL    string
	airQualityURL string
	forecastDays  int
	weather       *fetcher
	airQuality    *fetcher
}

func NewOpenMeteo(cfg OpenMeteoConfig, opts ...Option) *OpenMeteo {
	if cfg.WeatherURL == "" {
		cfg.WeatherURL = DefaultWeatherURL
	}
	if cfg.AirQualityURL == "" {
		cfg.AirQualityURL = DefaultAirQualityURL
	}
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = DefaultForecastDays
	}
	o := buildOptions(0, cfg.UserAgent, opts)
	return &OpenMeteo{
		weatherURL:    cfg.WeatherURL,
		airQualityURL: cfg.AirQualityURL,
		forecastDays:  cfg.ForecastDays,
		weather:       newFetcher("open-meteo-weather", o),
		airQuality:    newFetcher("open-meteo-aqi", o),
	}
}

func (m *OpenMeteo) query(c models.Coordinates, hourly string) url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(c.Longitude, 'f', 4, 64))
	q.Set("hourly", hourly)
	q.Set("forecast_days", strconv.Itoa(m.forecastDays))
	q.Set("timezone", "auto")
	return q
}

// FetchWeather returns the parsed hourly forecast and the raw response body.
func (m *OpenMeteo) FetchWeather(ctx context.Context, c models.Coordinates) (*models.WeatherForecast, []byte, *FetchResult, error) {
	q := m.query(c, weatherVariables)
	q.Set("temperature_unit", "fahrenheit")
	result := &FetchResult{}

	body, err := m.weather.get(ctx, m.weatherURL+"?"+q.Encode(), result)
	if err != nil {
		return nil, nil, result, fmt.Errorf("fetch weather: %w", err)
	}

	var data models.WeatherForecast
	if err := json.Unmarshal(body, &data); err != nil {
		result.Error = fmt.Errorf("unmarshal weather: %w", err)
		return nil, body, result, result.Error
	}
	if data.Hourly != nil {
		result.RecordCount = len(data.Hourly.Time)
	}
	if result.QualityFlags = ValidateWeather(&data); len(result.QualityFlags) > 0 {
		log.Printf("ingest: weather quality flags for %s: %v", q.Get("latitude")+","+q.Get("longitude"), result.QualityFlags)
	}
	return &data, body, result, nil
}

// FetchAirQuality returns the parsed hourly US AQI forecast and the raw body.
func (m *OpenMeteo) FetchAirQuality(ctx context.Context, c models.Coordinates) (*models.AirQualityForecast, []byte, *FetchResult, error) {
	result := &FetchResult{}

	body, err := m.airQuality.get(ctx, m.airQualityURL+"?"+m.query(c, "us_aqi").Encode(), result)
	if err != nil {
		return nil, nil, result, fmt.Errorf("fetch air quality: %w", err)
	}

	var data models.AirQualityForecast
	if err := json.Unmarshal(body, &data); err != nil {
		result.Error = fmt.Errorf("unmarshal air quality: %w", err)
		return nil, body, result, result.Error
	}
	if data.Hourly != nil {
		result.RecordCount = len(data.Hourly.Time)
	}
	if result.QualityFlags = ValidateAirQuality(&data); len(result.QualityFlags) > 0 {
		log.Printf("ingest: air quality flags: %v", result.QualityFlags)
	}
	return &data, body, result, nil
}
