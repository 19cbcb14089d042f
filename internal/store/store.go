package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists provider audit data, the geocode cache and evaluation
// history. The forecast core never touches it.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

// New wraps db. Times read back from the store are converted to loc.
func New(db *sql.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: db, loc: loc}
}

// Open opens (or creates) the sqlite database at path and applies migrations.
func Open(path string, loc *time.Location) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := New(db, loc)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable, for health checks.
func (s *Store) Ping() error {
	return s.db.Ping()
}
