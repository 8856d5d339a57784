package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/pneuma-terminal/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	recordRetries    = 3
	recordRetryDelay = 100 * time.Millisecond
	maxRecentRuns    = 100
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		won INTEGER NOT NULL,
		reason TEXT NOT NULL,
		stability INTEGER NOT NULL,
		timer_seconds INTEGER NOT NULL,
		phase INTEGER NOT NULL,
		turns INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_ended ON runs(ended_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordRun appends a finished run, retrying on SQLITE_BUSY.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	query := `
	INSERT INTO runs (run_id, user_id, subject_id, won, reason, stability,
		timer_seconds, phase, turns, started_at, ended_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := shared.RetryOnConflict(ctx, recordRetries, recordRetryDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			run.ID, run.UserID, run.SubjectID, run.Won, run.Reason, run.Stability,
			run.TimerSeconds, run.Phase, run.Turns,
			run.StartedAt.UnixMilli(), run.EndedAt.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first. Limits outside
// 1..100 are clamped.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	limit = min(max(limit, 1), maxRecentRuns)

	query := `
		SELECT run_id, user_id, subject_id, won, reason, stability,
		       timer_seconds, phase, turns, started_at, ended_at
		FROM runs ORDER BY ended_at DESC, run_id LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close recent runs rows", "error", closeErr)
		}
	}()

	var runs []*Run
	for rows.Next() {
		var run Run
		var startedAt, endedAt int64
		if err := rows.Scan(
			&run.ID, &run.UserID, &run.SubjectID, &run.Won, &run.Reason, &run.Stability,
			&run.TimerSeconds, &run.Phase, &run.Turns, &startedAt, &endedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		run.StartedAt = time.UnixMilli(startedAt)
		run.EndedAt = time.UnixMilli(endedAt)
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// Stats aggregates all recorded runs.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByReason: make(map[string]int)}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(won), 0), COALESCE(AVG(turns), 0)
		FROM runs`)
	if err := row.Scan(&stats.Runs, &stats.Wins, &stats.AvgTurns); err != nil {
		return nil, fmt.Errorf("scan run totals: %w", err)
	}
	stats.Losses = stats.Runs - stats.Wins

	rows, err := s.db.QueryContext(ctx, `SELECT reason, COUNT(*) FROM runs GROUP BY reason`)
	if err != nil {
		return nil, fmt.Errorf("query runs by reason: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close reason rows", "error", closeErr)
		}
	}()

	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("scan reason row: %w", err)
		}
		stats.ByReason[reason] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reasons: %w", err)
	}

	return stats, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
