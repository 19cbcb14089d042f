package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/openwindow/internal/models"
)

// EvaluationRecord summarises one window evaluation for history and the poller.
type EvaluationRecord struct {
	ID               int64
	EvaluatedAt      time.Time
	Source           string // "web", "api", "poller", "cli"
	LocationName     string
	Coordinates      models.Coordinates
	Timezone         string
	AQIAvailable     bool
	Hours            int
	AdmissibleHours  int
	IntervalCount    int
	FirstWindowStart sql.NullTime
	FirstWindowEnd   sql.NullTime
	Thresholds       models.Thresholds
}

func (s *Store) InsertEvaluation(rec EvaluationRecord) (int64, error) {
	if rec.EvaluatedAt.IsZero() {
		rec.EvaluatedAt = time.Now()
	}
	thresholds, err := json.Marshal(rec.Thresholds)
	if err != nil {
		return 0, fmt.Errorf("marshal thresholds: %w", err)
	}

	start, end := utcNullTime(rec.FirstWindowStart), utcNullTime(rec.FirstWindowEnd)
	result, err := s.db.Exec(`
		INSERT INTO evaluations
		(evaluated_at, source, location_name, latitude, longitude, timezone, aqi_available,
		 hours, admissible_hours, interval_count, first_window_start, first_window_end, thresholds_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.EvaluatedAt.UTC(), rec.Source, rec.LocationName, rec.Coordinates.Latitude, rec.Coordinates.Longitude,
		rec.Timezone, rec.AQIAvailable, rec.Hours, rec.AdmissibleHours, rec.IntervalCount,
		start, end, string(thresholds))
	if err != nil {
		return 0, fmt.Errorf("insert evaluation: %w", err)
	}
	return result.LastInsertId()
}

func utcNullTime(t sql.NullTime) sql.NullTime {
	if !t.Valid {
		return t
	}
	return sql.NullTime{Time: t.Time.UTC(), Valid: true}
}

// RecentEvaluations returns up to limit evaluations, newest first. An empty
// locationName matches every location.
func (s *Store) RecentEvaluations(locationName string, limit int) ([]EvaluationRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, evaluated_at, source, location_name, latitude, longitude, timezone, aqi_available,
		       hours, admissible_hours, interval_count, first_window_start, first_window_end, thresholds_json
		FROM evaluations
		WHERE ? = '' OR location_name = ?
		ORDER BY evaluated_at DESC, id DESC
		LIMIT ?
	`, locationName, locationName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []EvaluationRecord
	for rows.Next() {
		var (
			r          EvaluationRecord
			thresholds sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.EvaluatedAt, &r.Source, &r.LocationName,
			&r.Coordinates.Latitude, &r.Coordinates.Longitude, &r.Timezone, &r.AQIAvailable,
			&r.Hours, &r.AdmissibleHours, &r.IntervalCount, &r.FirstWindowStart, &r.FirstWindowEnd,
			&thresholds); err != nil {
			return nil, err
		}
		if thresholds.Valid {
			if err := json.Unmarshal([]byte(thresholds.String), &r.Thresholds); err != nil {
				return nil, fmt.Errorf("unmarshal thresholds for evaluation %d: %w", r.ID, err)
			}
		}
		r.EvaluatedAt = r.EvaluatedAt.In(s.loc)
		if r.FirstWindowStart.Valid {
			r.FirstWindowStart.Time = r.FirstWindowStart.Time.In(s.loc)
		}
		if r.FirstWindowEnd.Valid {
			r.FirstWindowEnd.Time = r.FirstWindowEnd.Time.In(s.loc)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
