// Package history persists an append-only log of governor events
// (mode transitions, frequency changes, finalized profiles) to a local
// sqlite database, mirroring the reference fleet manager's pkg/sqlite
// wrapper shape (Open/WithReadOnly) evidenced by its test suite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS governor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	unix_seconds INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	process_name TEXT NOT NULL,
	frequency_mhz INTEGER NOT NULL,
	detail TEXT NOT NULL
)`

// Option configures Open, in the shape of the teacher's sqlite.OpOption.
type Option func(*openOptions)

type openOptions struct {
	readOnly bool
}

// WithReadOnly opens the database read-only (for external inspection
// tools), refusing writes at the driver level.
func WithReadOnly(v bool) Option {
	return func(o *openOptions) { o.readOnly = v }
}

// Open opens (and if needed, initializes) the event history database at
// path.
func Open(path string, opts ...Option) (*sql.DB, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	dsn := path
	if o.readOnly {
		dsn = fmt.Sprintf("file:%s?mode=ro", path)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}

	if !o.readOnly {
		if _, err := db.Exec(createTableSQL); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: init schema: %w", err)
		}
	}
	return db, nil
}

// Event is one recorded transition in the governor's lifetime.
type Event struct {
	Time         time.Time
	Type         string
	ProcessName  string
	FrequencyMHz uint16
	Detail       string
}

// Store appends governor events to a sqlite-backed log.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-open database handle (from Open).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts a single event.
func (s *Store) Record(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO governor_events (unix_seconds, event_type, process_name, frequency_mhz, detail) VALUES (?, ?, ?, ?, ?)`,
		e.Time.Unix(), e.Type, e.ProcessName, e.FrequencyMHz, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("history: record event: %w", err)
	}
	return nil
}

// Since returns events recorded at or after t, oldest first.
func (s *Store) Since(ctx context.Context, t time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT unix_seconds, event_type, process_name, frequency_mhz, detail FROM governor_events WHERE unix_seconds >= ? ORDER BY id ASC`,
		t.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("history: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var unixSeconds int64
		var e Event
		if err := rows.Scan(&unixSeconds, &e.Type, &e.ProcessName, &e.FrequencyMHz, &e.Detail); err != nil {
			return nil, fmt.Errorf("history: scan event: %w", err)
		}
		e.Time = time.Unix(unixSeconds, 0)
		events = append(events, e)
	}
	return events, rows.Err()
}
