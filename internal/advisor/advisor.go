// Package advisor turns a user request (a place and comfort thresholds) into
// open-window intervals by resolving the location, fetching forecasts and
// running the interval reducer.
package advisor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/openwindow/internal/forecast"
	"github.com/lox/openwindow/internal/ingest"
	"github.com/lox/openwindow/internal/metrics"
	"github.com/lox/openwindow/internal/models"
	"github.com/lox/openwindow/internal/store"
)

// WeatherSource fetches hourly weather and air-quality forecasts.
type WeatherSource interface {
	FetchWeather(ctx context.Context, c models.Coordinates) (*models.WeatherForecast, []byte, *ingest.FetchResult, error)
	FetchAirQuality(ctx context.Context, c models.Coordinates) (*models.AirQualityForecast, []byte, *ingest.FetchResult, error)
}

// Geocoder resolves free text to coordinates and coordinates to an address.
type Geocoder interface {
	Search(ctx context.Context, query string) (*models.Location, error)
	Reverse(ctx context.Context, c models.Coordinates) (string, error)
}

// DefaultLocation is used when a request names no place at all.
var DefaultLocation = models.Location{
	Query:       "New York, NY",
	Coordinates: models.Coordinates{Latitude: 40.7128, Longitude: -74.0060},
}

// LocationNotFoundError is returned when a place name has no geocoding match.
type LocationNotFoundError struct {
	Query string
}

func (e *LocationNotFoundError) Error() string {
	return fmt.Sprintf("Could not find coordinates for location: '%s'. Please try a different query.", e.Query)
}

type Request struct {
	// Query is free text to geocode. It takes precedence over Coordinates.
	Query       string
	Coordinates *models.Coordinates
	Thresholds  models.Thresholds
	// Source labels the caller in metrics and history ("web", "api", "poller", "cli").
	Source string
}

type Evaluation struct {
	Location    models.Location
	Address     string
	AddressOK   bool
	Thresholds  models.Thresholds
	Result      *forecast.Result
	EvaluatedAt time.Time

	// VisibleDays are the result's days from today onward in the forecast's zone.
	VisibleDays []string
}

// AdmissibleHours counts the hours that passed every check.
func (e *Evaluation) AdmissibleHours() int {
	n := 0
	for _, s := range e.Result.Samples {
		if s.Admissible {
			n++
		}
	}
	return n
}

type Advisor struct {
	weather  WeatherSource
	geocoder Geocoder
	store    *store.Store
	now      func() time.Time
}

// New returns an Advisor. st may be nil, in which case nothing is cached or recorded.
func New(weather WeatherSource, geocoder Geocoder, st *store.Store) *Advisor {
	return &Advisor{
		weather:  weather,
		geocoder: geocoder,
		store:    st,
		now:      time.Now,
	}
}

// Evaluate resolves req's location, fetches its forecasts and reduces them to
// open-window intervals.
func (a *Advisor) Evaluate(ctx context.Context, req Request) (*Evaluation, error) {
	if req.Source == "" {
		req.Source = "api"
	}
	ev, err := a.evaluate(ctx, req)
	status := "ok"
	if err != nil {
		status = errorStatus(err)
	}
	metrics.EvaluationsTotal.WithLabelValues(req.Source, status).Inc()
	return ev, err
}

func (a *Advisor) evaluate(ctx context.Context, req Request) (*Evaluation, error) {
	loc, err := a.resolveLocation(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := forecast.ValidateThresholds(req.Thresholds); err != nil {
		return nil, err
	}

	var (
		wx      *models.WeatherForecast
		aq      *models.AirQualityForecast
		address string
	)
	locationID := fmt.Sprintf("%.4f,%.4f", loc.Coordinates.Latitude, loc.Coordinates.Longitude)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, body, result, err := a.weather.FetchWeather(gctx, loc.Coordinates)
		a.recordFetch("forecast", locationID, body, result, err)
		if err != nil {
			return err
		}
		wx = data
		return nil
	})
	g.Go(func() error {
		data, body, result, err := a.weather.FetchAirQuality(gctx, loc.Coordinates)
		a.recordFetch("air-quality", locationID, body, result, err)
		if err != nil {
			log.Printf("advisor: air quality unavailable for %s: %v", locationID, err)
			return nil
		}
		aq = data
		return nil
	})
	if loc.DisplayName.Valid {
		address = loc.DisplayName.String
	} else if a.geocoder != nil {
		g.Go(func() error {
			addr, err := a.geocoder.Reverse(gctx, loc.Coordinates)
			if err != nil {
				log.Printf("advisor: reverse geocode %s: %v", locationID, err)
				return nil
			}
			address = addr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result, err := forecast.FindWindows(wx, aq, req.Thresholds)
	if err != nil {
		return nil, err
	}

	ev := &Evaluation{
		Location:    loc,
		Address:     address,
		AddressOK:   address != "",
		Thresholds:  req.Thresholds,
		Result:      result,
		EvaluatedAt: a.now(),
	}
	if !ev.AddressOK {
		ev.Address = fmt.Sprintf("Lat: %.4f, Lon: %.4f (Address lookup failed)", loc.Coordinates.Latitude, loc.Coordinates.Longitude)
	}
	ev.VisibleDays = visibleDays(result, ev.EvaluatedAt)

	metrics.AdmissibleHours.Observe(float64(ev.AdmissibleHours()))
	a.recordEvaluation(req.Source, ev)
	return ev, nil
}

func (a *Advisor) resolveLocation(ctx context.Context, req Request) (models.Location, error) {
	switch {
	case req.Query != "":
		return a.geocode(ctx, req.Query)
	case req.Coordinates != nil:
		if err := forecast.ValidateCoordinates(*req.Coordinates); err != nil {
			return models.Location{}, err
		}
		return models.Location{Coordinates: *req.Coordinates}, nil
	default:
		return DefaultLocation, nil
	}
}

func (a *Advisor) geocode(ctx context.Context, query string) (models.Location, error) {
	if a.store != nil {
		cached, err := a.store.GetGeocode(query)
		if err != nil {
			log.Printf("advisor: geocode cache read: %v", err)
		} else if cached != nil {
			metrics.GeocodeCacheHits.WithLabelValues("hit").Inc()
			return *cached, nil
		}
		metrics.GeocodeCacheHits.WithLabelValues("miss").Inc()
	}

	if a.geocoder == nil {
		return models.Location{}, &LocationNotFoundError{Query: query}
	}
	loc, err := a.geocoder.Search(ctx, query)
	if err != nil {
		log.Printf("advisor: geocode %q: %v", query, err)
		return models.Location{}, &LocationNotFoundError{Query: query}
	}
	if loc == nil {
		return models.Location{}, &LocationNotFoundError{Query: query}
	}

	if a.store != nil {
		if err := a.store.PutGeocode(*loc); err != nil {
			log.Printf("advisor: geocode cache write: %v", err)
		}
	}
	return *loc, nil
}

// visibleDays drops days that ended before now in the forecast's own zone.
func visibleDays(result *forecast.Result, now time.Time) []string {
	if len(result.Samples) == 0 {
		return nil
	}
	loc := result.Samples[0].Time.Location()
	y, m, d := now.In(loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)

	days := make([]string, 0, len(result.Days))
	for _, day := range result.Days {
		samples := result.DailySamples[day]
		if len(samples) > 0 && samples[0].Time.Before(today) {
			continue
		}
		days = append(days, day)
	}
	return days
}

func (a *Advisor) recordFetch(endpoint, locationID string, body []byte, result *ingest.FetchResult, fetchErr error) {
	if a.store == nil || result == nil {
		return
	}
	run, err := a.store.StartIngestRun("open-meteo", endpoint, locationID)
	if err != nil {
		log.Printf("advisor: start ingest run: %v", err)
		return
	}
	run.Success = fetchErr == nil
	run.HTTPStatus = sql.NullInt64{Int64: int64(result.HTTPStatus), Valid: result.HTTPStatus > 0}
	run.ResponseSizeBytes = sql.NullInt64{Int64: int64(result.ResponseSize), Valid: result.ResponseSize > 0}
	run.RecordsParsed = sql.NullInt64{Int64: int64(result.RecordCount), Valid: fetchErr == nil}
	run.DurationMS = sql.NullInt64{Int64: result.Duration.Milliseconds(), Valid: true}
	if fetchErr != nil {
		run.ErrorMessage = sql.NullString{String: fetchErr.Error(), Valid: true}
	}
	if flags := ingest.QualityFlagsToJSON(result.QualityFlags); flags != "" {
		run.QualityFlags = sql.NullString{String: flags, Valid: true}
	}
	if err := a.store.CompleteIngestRun(run); err != nil {
		log.Printf("advisor: complete ingest run: %v", err)
	}

	if len(body) > 0 {
		if _, err := a.store.StoreRawPayload(run.ID, "open-meteo", endpoint, locationID, body); err != nil {
			log.Printf("advisor: store raw payload: %v", err)
		}
	}
}

func (a *Advisor) recordEvaluation(source string, ev *Evaluation) {
	if a.store == nil {
		return
	}
	name := ev.Location.Query
	if name == "" {
		name = fmt.Sprintf("%.4f,%.4f", ev.Location.Coordinates.Latitude, ev.Location.Coordinates.Longitude)
	}
	rec := store.EvaluationRecord{
		EvaluatedAt:     ev.EvaluatedAt,
		Source:          source,
		LocationName:    name,
		Coordinates:     ev.Location.Coordinates,
		Timezone:        ev.Result.Timezone,
		AQIAvailable:    ev.Result.AQIAvailable,
		Hours:           len(ev.Result.Samples),
		AdmissibleHours: ev.AdmissibleHours(),
		IntervalCount:   len(ev.Result.Intervals),
		Thresholds:      ev.Thresholds,
	}
	if iv, ok := ev.NextWindow(); ok {
		rec.FirstWindowStart = sql.NullTime{Time: iv.Start, Valid: true}
		rec.FirstWindowEnd = sql.NullTime{Time: iv.End, Valid: true}
	}
	if _, err := a.store.InsertEvaluation(rec); err != nil {
		log.Printf("advisor: record evaluation: %v", err)
	}
}

// NextWindow returns the first interval that has not yet ended.
func (e *Evaluation) NextWindow() (models.Interval, bool) {
	for _, iv := range e.Result.Intervals {
		if iv.End.After(e.EvaluatedAt) {
			return iv, true
		}
	}
	return models.Interval{}, false
}

func errorStatus(err error) string {
	var (
		notFound *LocationNotFoundError
		invalid  *forecast.ValidationError
		dataErr  *forecast.DataError
		cfgErr   *forecast.ConfigError
	)
	switch {
	case errors.As(err, &notFound):
		return "location_not_found"
	case errors.As(err, &invalid), errors.As(err, &cfgErr):
		return "invalid_request"
	case errors.As(err, &dataErr):
		return "bad_data"
	default:
		return "upstream_error"
	}
}
