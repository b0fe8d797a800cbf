// Package history keeps a local SQLite ledger of report runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"revstats/internal/logging"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// timeLayout is fixed-width UTC so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is one ledger entry.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	DateFrom   string
	DateTo     string
	TagName    string
	TagValue   string
	OutputFile string
	Boosts     int
	Rows       int
	Status     string
	Error      string
	EmailSent  bool
}

// Store is the run ledger.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure history schema: %w", err)
	}
	logging.Logf(logging.Debug, "History ledger opened: %s", path)
	return s, nil
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT '',
		date_from TEXT NOT NULL DEFAULT '',
		date_to TEXT NOT NULL DEFAULT '',
		tag_name TEXT NOT NULL DEFAULT '',
		tag_value TEXT NOT NULL DEFAULT '',
		output_file TEXT NOT NULL DEFAULT '',
		boost_count INTEGER NOT NULL DEFAULT 0,
		row_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		email_sent INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	`)
	return err
}

// Path is the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Start inserts run with status running. An empty ID gets a new UUID and a
// zero StartedAt becomes now.
func (s *Store) Start(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = StatusRunning

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, date_from, date_to, tag_name, tag_value, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(timeLayout), run.DateFrom, run.DateTo,
		run.TagName, run.TagValue, run.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// Finish stores the final state of run. A zero FinishedAt becomes now.
func (s *Store) Finish(ctx context.Context, run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, output_file = ?, boost_count = ?, row_count = ?,
			status = ?, error = ?, email_sent = ?
		WHERE id = ?`,
		run.FinishedAt.UTC().Format(timeLayout), run.OutputFile, run.Boosts, run.Rows,
		run.Status, run.Error, run.EmailSent, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to record run finish: run %s not found", run.ID)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, date_from, date_to, tag_name, tag_value,
			output_file, boost_count, row_count, status, error, email_sent
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.DateFrom, &r.DateTo, &r.TagName, &r.TagValue,
			&r.OutputFile, &r.Boosts, &r.Rows, &r.Status, &r.Error, &r.EmailSent); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("run %s: bad started_at %q: %w", r.ID, started, err)
		}
		if finished != "" {
			if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
				return nil, fmt.Errorf("run %s: bad finished_at %q: %w", r.ID, finished, err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
