// Package eventstore persists build attempt history.
package eventstore

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	ferrors "git.home.luguber.info/inful/mdkit/internal/foundation/errors"
)

// Record is one finished build attempt.
type Record struct {
	JobID     string
	Package   string
	Cause     string
	Outcome   string // "success" or "failure"
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Store is the build history sink. A nil *SQLiteStore is a valid no-op
// store so history can stay optional.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, pkg string, limit int) ([]Record, error)
	Close() error
}

// SQLiteStore implements Store on a local sqlite database. Use ":memory:"
// for tests.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryEventStore, "open history database").
			WithContext("path", path).
			Build()
	}

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryEventStore, "initialize history schema").
			WithContext("path", path).
			Build()
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		package TEXT NOT NULL,
		cause TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_package ON builds(package);
	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records a finished attempt.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (job_id, package, cause, outcome, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.Package, rec.Cause, rec.Outcome, rec.Error,
		rec.StartedAt.UnixMilli(), rec.Duration.Milliseconds())
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryEventStore, "append build record").
			WithContext("package", rec.Package).
			Build()
	}
	return nil
}

// Recent returns the most recent attempts, newest first. An empty pkg
// returns attempts across all packages.
func (s *SQLiteStore) Recent(ctx context.Context, pkg string, limit int) ([]Record, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT job_id, package, cause, outcome, COALESCE(error, ''), started_at, duration_ms
		FROM builds`
	args := []any{}
	if pkg != "" {
		query += ` WHERE package = ?`
		args = append(args, pkg)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryEventStore, "query build history").Build()
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var startedMilli, durMilli int64
		if err := rows.Scan(&rec.JobID, &rec.Package, &rec.Cause, &rec.Outcome, &rec.Error,
			&startedMilli, &durMilli); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryEventStore, "scan build record").Build()
		}
		rec.StartedAt = time.UnixMilli(startedMilli)
		rec.Duration = time.Duration(durMilli) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
