// Package store persists research runs and their reports.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Bhaumik-99/research-agents/internal/report"
)

// Run statuses.
const (
	StatusPending   = "pending"
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Terminal reports whether status is final.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when a run or report does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRunExists is returned by CreateRun for a duplicate id.
	ErrRunExists = errors.New("run already exists")
)

// Run is the persisted record of one research run.
type Run struct {
	ID         string     `json:"id"`
	Topic      string     `json:"topic"`
	Pipeline   string     `json:"pipeline"`
	Status     string     `json:"status"`
	Progress   int        `json:"progress"`
	Error      string     `json:"error,omitempty"`
	TokensUsed int64      `json:"tokens_used"`
	CostUSD    float64    `json:"cost_usd"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunStore is implemented by Postgres and Memory.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, run Run) error
	SaveReport(ctx context.Context, runID string, rep report.Report) error
	GetRun(ctx context.Context, id string) (Run, error)
	GetReport(ctx context.Context, runID string) (report.Report, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

const defaultListLimit = 50

func listLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}
