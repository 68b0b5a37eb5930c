// Package journal records finished plugin executions in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	maxOutputBytes = 16 * 1024
	defaultLimit   = 50
	maxLimit       = 1000

	// Fixed width so stored timestamps order as text.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrNotFound is returned by Get for unknown execution ids.
var ErrNotFound = errors.New("execution not found")

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record stores a finished execution.
func (s *Store) Record(ctx context.Context, e Execution) error {
	if e.ID == "" {
		return fmt.Errorf("execution id is empty")
	}
	if e.Plugin == "" {
		return fmt.Errorf("plugin is empty")
	}

	var hotkeyID any
	if e.HotkeyID != 0 {
		hotkeyID = int64(e.HotkeyID)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO executions(id, plugin, source, hotkey_id, status, output, last_error, started_at, finished_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.Plugin, string(e.Source), hotkeyID, string(e.Status),
		nullable(truncate(e.Output)), nullable(truncate(e.Error)),
		e.StartedAt.UTC().Format(timeFormat), e.FinishedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// Recent returns up to limit executions, newest first. limit <= 0 means the
// default of 50.
func (s *Store) Recent(ctx context.Context, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, plugin, source, hotkey_id, status, output, last_error, started_at, finished_at
FROM executions
ORDER BY started_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	return collect(rows, limit)
}

// Before returns up to limit executions of plugin that started no later
// than at, newest first.
func (s *Store) Before(ctx context.Context, plugin string, at time.Time, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, plugin, source, hotkey_id, status, output, last_error, started_at, finished_at
FROM executions
WHERE plugin = ? AND started_at <= ?
ORDER BY started_at DESC, rowid DESC
LIMIT ?;
`, plugin, at.UTC().Format(timeFormat), limit)
	if err != nil {
		return nil, fmt.Errorf("query executions of %s: %w", plugin, err)
	}
	defer rows.Close()

	return collect(rows, limit)
}

func collect(rows *sql.Rows, limit int) ([]Execution, error) {
	out := make([]Execution, 0, limit)
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}

// Get returns one execution by id.
func (s *Store) Get(ctx context.Context, id string) (Execution, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, plugin, source, hotkey_id, status, output, last_error, started_at, finished_at
FROM executions
WHERE id = ?;
`, id)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Execution{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (Execution, error) {
	var (
		e          Execution
		source     string
		status     string
		hotkeyID   sql.NullInt64
		output     sql.NullString
		lastError  sql.NullString
		startedAt  string
		finishedAt string
	)
	if err := r.Scan(&e.ID, &e.Plugin, &source, &hotkeyID, &status, &output, &lastError, &startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan execution: %w", err)
	}

	e.Source = Source(source)
	e.Status = Status(status)
	if hotkeyID.Valid {
		e.HotkeyID = uint32(hotkeyID.Int64)
	}
	e.Output = output.String
	e.Error = lastError.String

	var err error
	if e.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return e, fmt.Errorf("parse started_at: %w", err)
	}
	if e.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
		return e, fmt.Errorf("parse finished_at: %w", err)
	}
	return e, nil
}

func truncate(s string) string {
	if len(s) > maxOutputBytes {
		return s[:maxOutputBytes]
	}
	return s
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
