// Package journal persists one row per completed dispatch in SQLite,
// giving operators a queryable record of outcomes without standing up
// external infrastructure.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/relay-gateway/internal/dispatch"
)

// Store is the SQLite-backed dispatch journal.
type Store struct {
	db *sql.DB
}

var _ dispatch.Recorder = (*Store)(nil)

// New opens (or creates) the journal database at path. ":memory:" is
// accepted for tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dispatches (
			id TEXT PRIMARY KEY,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			route TEXT NOT NULL,
			remote_addr TEXT,
			status INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			duration_ns INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_route ON dispatches(route)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_outcome ON dispatches(outcome)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_created ON dispatches(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record inserts one dispatch entry.
func (s *Store) Record(ctx context.Context, e dispatch.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatches (id, method, path, route, remote_addr, status, outcome, duration_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Method, e.Path, e.Route, e.RemoteAddr, e.Status, e.Outcome, e.Duration.Nanoseconds(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert dispatch entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]dispatch.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, method, path, route, remote_addr, status, outcome, duration_ns
		 FROM dispatches ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatch entries: %w", err)
	}
	defer rows.Close()

	var entries []dispatch.Entry
	for rows.Next() {
		var e dispatch.Entry
		var durationNS int64
		if err := rows.Scan(&e.ID, &e.Method, &e.Path, &e.Route, &e.RemoteAddr, &e.Status, &e.Outcome, &durationNS); err != nil {
			return nil, fmt.Errorf("scan dispatch entry: %w", err)
		}
		e.Duration = time.Duration(durationNS)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
