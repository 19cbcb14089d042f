package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lox/openwindow/internal/models"
)

const (
	DefaultGeocodeURL = "https://nominatim.openstreetmap.org"
	DefaultUserAgent  = "OpenWindowAdvisor/1.0 (+https://github.com/lox/openwindow)"

	geocodeTimeout = 10 * time.Second
)

// Nominatim resolves place names and coordinates through OpenStreetMap's
// Nominatim service. Requests are spaced at least one second apart as the
// public instance's usage policy requires.
type Nominatim struct {
	baseURL string
	fetcher *fetcher

	mu          sync.Mutex
	last        time.Time
	minInterval time.Duration
}

func NewNominatim(baseURL, userAgent string, opts ...Option) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultGeocodeURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	o := buildOptions(geocodeTimeout, userAgent, opts)
	return &Nominatim{
		baseURL:     strings.TrimRight(baseURL, "/"),
		fetcher:     newFetcher("nominatim", o),
		minInterval: o.minInterval,
	}
}

func (n *Nominatim) throttle(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if wait := n.minInterval - time.Since(n.last); !n.last.IsZero() && wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.last = time.Now()
	return nil
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search returns the best match for query, or nil when nothing matched.
func (n *Nominatim) Search(ctx context.Context, query string) (*models.Location, error) {
	if err := n.throttle(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")

	body, err := n.fetcher.get(ctx, n.baseURL+"/search?"+q.Encode(), &FetchResult{})
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("unmarshal geocode: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lat %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lon %q: %w", results[0].Lon, err)
	}

	loc := &models.Location{
		Query:       query,
		Coordinates: models.Coordinates{Latitude: lat, Longitude: lon},
	}
	if results[0].DisplayName != "" {
		loc.DisplayName = sql.NullString{String: results[0].DisplayName, Valid: true}
	}
	return loc, nil
}

type reverseResult struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Reverse returns the display address for c.
func (n *Nominatim) Reverse(ctx context.Context, c models.Coordinates) (string, error) {
	if err := n.throttle(ctx); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(c.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(c.Longitude, 'f', -1, 64))

	body, err := n.fetcher.get(ctx, n.baseURL+"/reverse?"+q.Encode(), &FetchResult{})
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}

	var data reverseResult
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("unmarshal reverse geocode: %w", err)
	}
	if data.Error != "" {
		return "", fmt.Errorf("reverse geocode: %s", data.Error)
	}
	if data.DisplayName == "" {
		return "", fmt.Errorf("reverse geocode: no address for %.4f,%.4f", c.Latitude, c.Longitude)
	}
	return data.DisplayName, nil
}
