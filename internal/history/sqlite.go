// Package history is an optional audit trail for task lifecycle events,
// mirroring start/start_failed/stop/exit events into a SQLite database. The
// Task Store's JSON file remains the sole authoritative configuration
// store; history is a write-mostly sink a caller may ignore entirely.
//
// Grounded on the teacher's internal/store/sqlite.go (modernc.org/sqlite
// via database/sql, WAL pragma, single-connection pool sized for SQLite's
// single-writer model).
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Event is one lifecycle event recorded for a task.
type Event struct {
	TaskID     string
	Kind       string // "start", "start_failed", "stop", "exit"
	PID        int
	Detail     string
	OccurredAt time.Time
}

// Sink writes lifecycle events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and ensures
// its schema exists.
func Open(path string) (*Sink, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite history: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Sink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS task_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			pid INTEGER,
			detail TEXT,
			occurred_at DATETIME NOT NULL
		)
	`)
	return err
}

// Record appends an event. Failures are the caller's to log; history is a
// best-effort sink, never a blocking dependency of the supervisor.
func (s *Sink) Record(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_events (task_id, kind, pid, detail, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		e.TaskID, e.Kind, e.PID, e.Detail, e.OccurredAt,
	)
	return err
}

// Recent returns the most recent n events for taskID, newest first.
func (s *Sink) Recent(ctx context.Context, taskID string, n int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, kind, pid, detail, occurred_at FROM task_events WHERE task_id = ? ORDER BY occurred_at DESC LIMIT ?`,
		taskID, n,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var e Event
		var pid sql.NullInt64
		if err := rows.Scan(&e.TaskID, &e.Kind, &pid, &e.Detail, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.PID = int(pid.Int64)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Sink) Close() error {
	return s.db.Close()
}
