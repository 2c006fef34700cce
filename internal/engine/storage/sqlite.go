package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/rendis/poiscan/internal/model"
)

// hoursSep joins the 7 weekday hour lines into one column.
const hoursSep = "\n"

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	// Optimize for write throughput
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := createSchema(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS places (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		place_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		category TEXT,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		rating REAL,
		review_count INTEGER,
		weekday_hours TEXT,
		maps_url TEXT,
		group_label TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_places_group ON places(group_label);
	CREATE INDEX IF NOT EXISTS idx_places_rating ON places(rating);
	CREATE INDEX IF NOT EXISTS idx_places_coords ON places(lat, lng);
	`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// InsertBatch stores places in one transaction, ignoring identities already
// present. Returns the number of rows actually inserted.
func (s *Store) InsertBatch(places []model.Place) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning tx: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO places
		(place_id, name, category, lat, lng, rating, review_count,
		 weekday_hours, maps_url, group_label)
		VALUES (?,?,?,?,?,?,?,?,?,?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("preparing stmt: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, p := range places {
		res, err := stmt.Exec(
			p.ID, p.Name, p.Category, p.Lat, p.Lng,
			p.Rating, p.ReviewCount,
			strings.Join(p.WeekdayHours, hoursSep),
			p.MapsURL, p.Group,
		)
		if err != nil {
			continue
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing tx: %w", err)
	}

	return inserted, nil
}

// LoadAll returns every stored place, best rated first.
func (s *Store) LoadAll() ([]model.Place, error) {
	rows, err := s.db.Query(`
		SELECT place_id, name, category, lat, lng, rating, review_count,
		       weekday_hours, maps_url, group_label
		FROM places ORDER BY rating DESC, review_count DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var places []model.Place
	for rows.Next() {
		var p model.Place
		var hours string
		err := rows.Scan(
			&p.ID, &p.Name, &p.Category, &p.Lat, &p.Lng,
			&p.Rating, &p.ReviewCount, &hours, &p.MapsURL, &p.Group,
		)
		if err != nil {
			continue
		}
		if hours != "" {
			p.WeekdayHours = strings.Split(hours, hoursSep)
		}
		places = append(places, p)
	}
	return places, rows.Err()
}

func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM places").Scan(&count)
	return count, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
