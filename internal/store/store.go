// Package store persists the ledger of finished game runs.
package store

import (
	"context"
	"time"
)

// Run is one finished game as recorded in the ledger. Runs are append-only
// and are never loaded back into a live session.
type Run struct {
	ID           string    `json:"id"`
	UserID       string    `json:"-"`
	SubjectID    string    `json:"subject_id"`
	Won          bool      `json:"won"`
	Reason       string    `json:"reason"`
	Stability    int       `json:"stability"`
	TimerSeconds int       `json:"timer_seconds"`
	Phase        int       `json:"phase"`
	Turns        int       `json:"turns"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
}

// Stats aggregates the ledger.
type Stats struct {
	Runs     int            `json:"runs"`
	Wins     int            `json:"wins"`
	Losses   int            `json:"losses"`
	AvgTurns float64        `json:"avg_turns"`
	ByReason map[string]int `json:"by_reason"`
}

// Repository defines the run ledger.
type Repository interface {
	// RecordRun appends a finished run. An empty ID is filled in.
	RecordRun(ctx context.Context, run *Run) error

	// RecentRuns returns up to limit runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]*Run, error)

	// Stats aggregates all recorded runs.
	Stats(ctx context.Context) (*Stats, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
