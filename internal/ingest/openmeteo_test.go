package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/lox/openwindow/internal/models"
)

const weatherFixture = `{
	"latitude": 40.71,
	"longitude": -74.01,
	"timezone": "America/New_York",
	"hourly": {
		"time": ["2025-06-02T10:00", "2025-06-02T11:00", "2025-06-02T12:00"],
		"temperature_2m": [70.1, 72.4, null],
		"dew_point_2m": [50.2, 51.0, 52.3],
		"precipitation": [0, 0, 0.4],
		"precipitation_probability": [0, 5, 60]
	}
}`

const airQualityFixture = `{
	"timezone": "America/New_York",
	"hourly": {
		"time": ["2025-06-02T10:00", "2025-06-02T11:00"],
		"us_aqi": [32, null]
	}
}`

func noRetry() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 0)
}

func retries(n uint64) func() backoff.BackOff {
	return func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, n) }
}

func TestOpenMeteoFetchWeather(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(weatherFixture))
	}))
	defer srv.Close()

	om := NewOpenMeteo(OpenMeteoConfig{WeatherURL: srv.URL}, WithBackOff(noRetry))
	wx, body, result, err := om.FetchWeather(context.Background(), models.Coordinates{Latitude: 40.7128, Longitude: -74.006})
	if err != nil {
		t.Fatalf("FetchWeather: %v", err)
	}

	wantQuery := map[string]string{
		"latitude":         "40.7128",
		"longitude":        "-74.0060",
		"hourly":           weatherVariables,
		"temperature_unit": "fahrenheit",
		"forecast_days":    "5",
		"timezone":         "auto",
	}
	for k, v := range wantQuery {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}

	if wx.Timezone != "America/New_York" {
		t.Errorf("timezone = %q", wx.Timezone)
	}
	if len(wx.Hourly.Time) != 3 || result.RecordCount != 3 {
		t.Errorf("got %d hours, record count %d", len(wx.Hourly.Time), result.RecordCount)
	}
	if wx.Hourly.Temperature[2] != nil {
		t.Error("null temperature should decode to nil")
	}
	if *wx.Hourly.PrecipitationProbability[2] != 60 {
		t.Errorf("precip probability = %v", *wx.Hourly.PrecipitationProbability[2])
	}
	if string(body) != weatherFixture || result.ResponseSize != len(weatherFixture) {
		t.Error("raw body not returned intact")
	}
	if result.HTTPStatus != http.StatusOK {
		t.Errorf("status = %d", result.HTTPStatus)
	}
}

func TestOpenMeteoFetchAirQuality(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("hourly"); got != "us_aqi" {
			t.Errorf("hourly = %q", got)
		}
		w.Write([]byte(airQualityFixture))
	}))
	defer srv.Close()

	om := NewOpenMeteo(OpenMeteoConfig{AirQualityURL: srv.URL}, WithBackOff(noRetry))
	aq, _, _, err := om.FetchAirQuality(context.Background(), models.Coordinates{})
	if err != nil {
		t.Fatalf("FetchAirQuality: %v", err)
	}
	if *aq.Hourly.USAQI[0] != 32 || aq.Hourly.USAQI[1] != nil {
		t.Errorf("us_aqi = %v", aq.Hourly.USAQI)
	}
}

func TestOpenMeteoRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(weatherFixture))
	}))
	defer srv.Close()

	om := NewOpenMeteo(OpenMeteoConfig{WeatherURL: srv.URL}, WithBackOff(retries(3)))
	if _, _, _, err := om.FetchWeather(context.Background(), models.Coordinates{}); err != nil {
		t.Fatalf("FetchWeather: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestOpenMeteoClientErrorIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":true,"reason":"Latitude must be in range of -90 to 90°."}`))
	}))
	defer srv.Close()

	om := NewOpenMeteo(OpenMeteoConfig{WeatherURL: srv.URL}, WithBackOff(retries(3)))
	_, _, result, err := om.FetchWeather(context.Background(), models.Coordinates{Latitude: 91})

	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400 StatusError", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
	if result.HTTPStatus != http.StatusBadRequest || result.Error == nil {
		t.Errorf("result = %+v", result)
	}
}

func TestOpenMeteoBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	om := NewOpenMeteo(OpenMeteoConfig{WeatherURL: srv.URL}, WithBackOff(noRetry))
	for i := 0; i < 6; i++ {
		if _, _, _, err := om.FetchWeather(context.Background(), models.Coordinates{}); err == nil {
			t.Fatal("expected error")
		}
	}

	_, _, _, err := om.FetchWeather(context.Background(), models.Coordinates{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open breaker", err)
	}
	if hits.Load() != 6 {
		t.Errorf("hits = %d, want 6", hits.Load())
	}

	// The air-quality endpoint has its own breaker.
	if om.airQuality.breaker.State() != gobreaker.StateClosed {
		t.Error("air-quality breaker should be unaffected")
	}
}

func TestOpenMeteoMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hourly": [}`))
	}))
	defer srv.Close()

	om := NewOpenMeteo(OpenMeteoConfig{WeatherURL: srv.URL}, WithBackOff(noRetry))
	_, body, _, err := om.FetchWeather(context.Background(), models.Coordinates{})
	if err == nil {
		t.Fatal("expected unmarshal error")
	}
	if len(body) == 0 {
		t.Error("raw body should be returned for archiving")
	}
}
