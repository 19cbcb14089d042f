package advisor

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lox/openwindow/internal/forecast"
	"github.com/lox/openwindow/internal/ingest"
	"github.com/lox/openwindow/internal/models"
	"github.com/lox/openwindow/internal/store"
)

type fakeWeather struct {
	wx     *models.WeatherForecast
	aq     *models.AirQualityForecast
	wxErr  error
	aqErr  error
	coords models.Coordinates
}

func (f *fakeWeather) FetchWeather(ctx context.Context, c models.Coordinates) (*models.WeatherForecast, []byte, *ingest.FetchResult, error) {
	f.coords = c
	if f.wxErr != nil {
		return nil, nil, &ingest.FetchResult{HTTPStatus: 502, Error: f.wxErr}, f.wxErr
	}
	n := len(f.wx.Hourly.Time)
	return f.wx, []byte(`{"weather":true}`), &ingest.FetchResult{HTTPStatus: 200, ResponseSize: 16, RecordCount: n}, nil
}

func (f *fakeWeather) FetchAirQuality(ctx context.Context, c models.Coordinates) (*models.AirQualityForecast, []byte, *ingest.FetchResult, error) {
	if f.aqErr != nil {
		return nil, nil, &ingest.FetchResult{HTTPStatus: 503, Error: f.aqErr}, f.aqErr
	}
	return f.aq, []byte(`{"aqi":true}`), &ingest.FetchResult{HTTPStatus: 200}, nil
}

type fakeGeocoder struct {
	searches atomic.Int32
	found    *models.Location
	address  string
	revErr   error
}

func (g *fakeGeocoder) Search(ctx context.Context, query string) (*models.Location, error) {
	g.searches.Add(1)
	if g.found == nil {
		return nil, nil
	}
	loc := *g.found
	loc.Query = query
	return &loc, nil
}

func (g *fakeGeocoder) Reverse(ctx context.Context, c models.Coordinates) (string, error) {
	return g.address, g.revErr
}

func fp(v float64) *float64 { return &v }

// threeDayForecast starts at local midnight on Sunday 2025-06-01 and is
// admissible from 10:00 to 13:00 every day.
func threeDayForecast(t *testing.T) *models.WeatherForecast {
	t.Helper()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	h := &models.HourlyWeather{}
	for i := 0; i < 72; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		h.Time = append(h.Time, ts.Format("2006-01-02T15:04"))
		temp := 60.0
		if ts.Hour() >= 10 && ts.Hour() < 13 {
			temp = 72
		}
		h.Temperature = append(h.Temperature, fp(temp))
		h.DewPoint = append(h.DewPoint, fp(50))
		h.Precipitation = append(h.Precipitation, fp(0))
		h.PrecipitationProbability = append(h.PrecipitationProbability, fp(0))
	}
	return &models.WeatherForecast{Timezone: "America/New_York", Hourly: h}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	st := store.New(db, time.UTC)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func fixedNow(t *testing.T) func() time.Time {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return func() time.Time { return time.Date(2025, 6, 2, 11, 30, 0, 0, ny) }
}

func TestEvaluateDefaultLocation(t *testing.T) {
	wx := &fakeWeather{wx: threeDayForecast(t)}
	geo := &fakeGeocoder{address: "City Hall, Manhattan, New York"}
	a := New(wx, geo, nil)
	a.now = fixedNow(t)

	ev, err := a.Evaluate(context.Background(), Request{Thresholds: models.DefaultThresholds()})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if wx.coords != DefaultLocation.Coordinates {
		t.Errorf("fetched %v, want default location", wx.coords)
	}
	if !ev.AddressOK || ev.Address != "City Hall, Manhattan, New York" {
		t.Errorf("address = %q ok=%v", ev.Address, ev.AddressOK)
	}
	if len(ev.Result.Intervals) != 3 {
		t.Fatalf("intervals = %d, want 3", len(ev.Result.Intervals))
	}
	if ev.AdmissibleHours() != 9 {
		t.Errorf("admissible hours = %d, want 9", ev.AdmissibleHours())
	}

	want := []string{"Mon 2025-06-02", "Tue 2025-06-03"}
	if len(ev.VisibleDays) != len(want) || ev.VisibleDays[0] != want[0] || ev.VisibleDays[1] != want[1] {
		t.Errorf("visible days = %v, want %v", ev.VisibleDays, want)
	}

	next, ok := ev.NextWindow()
	if !ok || next.Start.Day() != 2 || next.Start.Hour() != 10 {
		t.Errorf("next window = %v, %v", next, ok)
	}
}

func TestEvaluateGeocodesQuery(t *testing.T) {
	st := newTestStore(t)
	wx := &fakeWeather{wx: threeDayForecast(t)}
	geo := &fakeGeocoder{found: &models.Location{
		Coordinates: models.Coordinates{Latitude: 40.6526, Longitude: -73.9497},
		DisplayName: sql.NullString{String: "Brooklyn, New York", Valid: true},
	}}
	a := New(wx, geo, st)
	a.now = fixedNow(t)

	for i := 0; i < 2; i++ {
		ev, err := a.Evaluate(context.Background(), Request{Query: "Brooklyn", Thresholds: models.DefaultThresholds(), Source: "web"})
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if ev.Address != "Brooklyn, New York" {
			t.Errorf("address = %q", ev.Address)
		}
		if wx.coords.Latitude != 40.6526 {
			t.Errorf("fetched %v", wx.coords)
		}
	}
	if n := geo.searches.Load(); n != 1 {
		t.Errorf("geocoder searched %d times, want 1 (second from cache)", n)
	}

	recs, err := st.RecentEvaluations("Brooklyn", 10)
	if err != nil {
		t.Fatalf("RecentEvaluations: %v", err)
	}
	if len(recs) != 2 || recs[0].IntervalCount != 3 || recs[0].AdmissibleHours != 9 || recs[0].Source != "web" {
		t.Errorf("records = %+v", recs)
	}
	stats, err := st.GetRawPayloadStats()
	if err != nil {
		t.Fatalf("GetRawPayloadStats: %v", err)
	}
	// Identical bodies are stored once.
	if stats.TotalCount != 2 {
		t.Errorf("raw payloads = %d, want 2", stats.TotalCount)
	}
}

func TestEvaluateLocationNotFound(t *testing.T) {
	a := New(&fakeWeather{wx: threeDayForecast(t)}, &fakeGeocoder{}, nil)

	_, err := a.Evaluate(context.Background(), Request{Query: "Atlantis", Thresholds: models.DefaultThresholds()})
	var nf *LocationNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want LocationNotFoundError", err)
	}
	want := "Could not find coordinates for location: 'Atlantis'. Please try a different query."
	if err.Error() != want {
		t.Errorf("message = %q", err.Error())
	}
}

func TestEvaluateValidation(t *testing.T) {
	a := New(&fakeWeather{wx: threeDayForecast(t)}, &fakeGeocoder{}, nil)

	bad := models.DefaultThresholds()
	bad.MinOutdoorTempF = 90
	_, err := a.Evaluate(context.Background(), Request{Thresholds: bad})
	var ve *forecast.ValidationError
	if !errors.As(err, &ve) || ve.Message != "Min temp >= max temp." {
		t.Errorf("err = %v", err)
	}

	_, err = a.Evaluate(context.Background(), Request{
		Coordinates: &models.Coordinates{Latitude: 123, Longitude: 0},
		Thresholds:  models.DefaultThresholds(),
	})
	if !errors.As(err, &ve) || ve.Message != "Invalid Latitude/Longitude provided." {
		t.Errorf("err = %v", err)
	}
}

func TestEvaluateAirQualityFailureIsSoft(t *testing.T) {
	wx := &fakeWeather{wx: threeDayForecast(t), aqErr: errors.New("aqi down")}
	a := New(wx, &fakeGeocoder{revErr: errors.New("nominatim down")}, nil)
	a.now = fixedNow(t)

	ev, err := a.Evaluate(context.Background(), Request{
		Coordinates: &models.Coordinates{Latitude: 40.7, Longitude: -74},
		Thresholds:  models.DefaultThresholds(),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Result.AQIAvailable {
		t.Error("AQI should be unavailable")
	}
	if ev.AdmissibleHours() != 9 {
		t.Errorf("admissible hours = %d, want 9", ev.AdmissibleHours())
	}
	if ev.AddressOK || ev.Address != "Lat: 40.7000, Lon: -74.0000 (Address lookup failed)" {
		t.Errorf("address = %q", ev.Address)
	}
}

func TestEvaluateWeatherFailure(t *testing.T) {
	st := newTestStore(t)
	wantErr := errors.New("open-meteo down")
	a := New(&fakeWeather{wxErr: wantErr}, &fakeGeocoder{}, st)

	_, err := a.Evaluate(context.Background(), Request{Thresholds: models.DefaultThresholds()})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}

	failed, err := st.GetRecentIngestErrors(5)
	if err != nil {
		t.Fatalf("GetRecentIngestErrors: %v", err)
	}
	if len(failed) != 1 || failed[0].Endpoint != "forecast" {
		t.Errorf("failed runs = %+v", failed)
	}
}

func TestEvaluateBadPayload(t *testing.T) {
	wx := threeDayForecast(t)
	wx.Hourly.DewPoint = nil
	a := New(&fakeWeather{wx: wx}, &fakeGeocoder{}, nil)

	_, err := a.Evaluate(context.Background(), Request{Thresholds: models.DefaultThresholds()})
	var de *forecast.DataError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DataError", err)
	}
}
