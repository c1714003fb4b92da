// ABOUTME: SQLite-backed station catalog (stations + ordered sources)
// ABOUTME: Navigation follows id order; random picks use ORDER BY RANDOM()
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/harper/radiod/internal/domain"
	"github.com/harper/radiod/internal/domain/station"
)

var _ domain.Catalog = (*SQLite)(nil)

// SQLite wraps the catalog database.
type SQLite struct {
	db *sql.DB
}

// Open opens or creates the catalog database at path.
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS stations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			title      TEXT NOT NULL,
			url        TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create stations table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sources (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			station_id INTEGER NOT NULL REFERENCES stations(id) ON DELETE CASCADE,
			path       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS sources_station_idx ON sources(station_id, id);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sources table: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Create(ctx context.Context, title, url string, sources []string) (*station.Station, error) {
	if title == "" {
		return nil, errors.New("station title is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO stations (title, url) VALUES (?, ?)`, title, url)
	if err != nil {
		return nil, fmt.Errorf("insert station: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("station id: %w", err)
	}

	for _, path := range sources {
		if _, err := tx.ExecContext(ctx, `INSERT INTO sources (station_id, path) VALUES (?, ?)`, id, path); err != nil {
			return nil, fmt.Errorf("insert source: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &station.Station{ID: id, Title: title, URL: url, Sources: append([]string(nil), sources...)}, nil
}

func (s *SQLite) Get(ctx context.Context, id int64) (*station.Station, error) {
	st := &station.Station{}
	err := s.db.QueryRowContext(ctx, `SELECT id, title, url FROM stations WHERE id = ?`, id).
		Scan(&st.ID, &st.Title, &st.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query station: %w", err)
	}

	if st.Sources, err = s.sources(ctx, id); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SQLite) List(ctx context.Context) ([]*station.Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, url FROM stations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var out []*station.Station
	byID := make(map[int64]*station.Station)
	for rows.Next() {
		st := &station.Station{}
		if err := rows.Scan(&st.ID, &st.Title, &st.URL); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		out = append(out, st)
		byID[st.ID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stations: %w", err)
	}

	srcRows, err := s.db.QueryContext(ctx, `SELECT station_id, path FROM sources ORDER BY station_id, id`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer srcRows.Close()

	for srcRows.Next() {
		var id int64
		var path string
		if err := srcRows.Scan(&id, &path); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if st, ok := byID[id]; ok {
			st.Sources = append(st.Sources, path)
		}
	}
	return out, srcRows.Err()
}

func (s *SQLite) Random(ctx context.Context) (*station.Station, error) {
	st, err := s.pick(ctx, `SELECT id FROM stations ORDER BY RANDOM() LIMIT 1`)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, domain.ErrNoStations
	}
	return st, nil
}

func (s *SQLite) Next(ctx context.Context, current *station.Station) (*station.Station, error) {
	return s.pick(ctx, `SELECT id FROM stations WHERE id > ? ORDER BY id LIMIT 1`, current.ID)
}

func (s *SQLite) Previous(ctx context.Context, current *station.Station) (*station.Station, error) {
	return s.pick(ctx, `SELECT id FROM stations WHERE id < ? ORDER BY id DESC LIMIT 1`, current.ID)
}

// pick loads the station whose id the query selects; (nil, nil) if none.
func (s *SQLite) pick(ctx context.Context, query string, args ...any) (*station.Station, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query station: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *SQLite) sources(ctx context.Context, stationID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM sources WHERE station_id = ? ORDER BY id`, stationID)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, path)
	}
	return out, rows.Err()
}
