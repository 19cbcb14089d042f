package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/lox/openwindow/internal/models"
)

// GeocodeTTL is how long a cached forward-geocode result is trusted.
const GeocodeTTL = 30 * 24 * time.Hour

func geocodeKey(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// GetGeocode returns a cached location for query, or nil when there is no
// fresh entry. Queries match case-insensitively with whitespace collapsed.
func (s *Store) GetGeocode(query string) (*models.Location, error) {
	var (
		loc      models.Location
		cachedAt time.Time
	)
	err := s.db.QueryRow(`
		SELECT query, latitude, longitude, display_name, cached_at
		FROM geocode_cache WHERE query_key = ?
	`, geocodeKey(query)).Scan(&loc.Query, &loc.Coordinates.Latitude, &loc.Coordinates.Longitude, &loc.DisplayName, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Since(cachedAt) > GeocodeTTL {
		return nil, nil
	}
	loc.Query = query
	return &loc, nil
}

// PutGeocode caches loc under its query.
func (s *Store) PutGeocode(loc models.Location) error {
	_, err := s.db.Exec(`
		INSERT INTO geocode_cache (query_key, query, latitude, longitude, display_name, cached_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(query_key) DO UPDATE SET
			query = excluded.query,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			display_name = excluded.display_name,
			cached_at = excluded.cached_at
	`, geocodeKey(loc.Query), loc.Query, loc.Coordinates.Latitude, loc.Coordinates.Longitude, loc.DisplayName, time.Now().UTC())
	return err
}
