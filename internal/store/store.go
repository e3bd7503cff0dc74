// Package store keeps a history of reconciliation runs in SQLite so that
// the quality of successive runs can be compared.
package store

import (
	"context"
	"time"

	"invoice-reconciliation-service/internal/quality"
)

// RunStatus is the lifecycle state of a recorded run
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded reconciliation
type Run struct {
	ID             string                 `json:"id"`
	Status         RunStatus              `json:"status"`
	InvoiceSources []string               `json:"invoice_sources"`
	LedgerSources  []string               `json:"ledger_sources"`
	Grade          quality.Grade          `json:"grade,omitempty"`
	Score          float64                `json:"score"`
	MatchRate      float64                `json:"match_rate"`
	Difference     string                 `json:"difference,omitempty"`
	Error          string                 `json:"error,omitempty"`
	Summary        *quality.QualityReport `json:"summary,omitempty"`
	StartedAt      time.Time              `json:"started_at"`
	FinishedAt     *time.Time             `json:"finished_at,omitempty"`
}

// Outcome is what a successful run leaves in the history
type Outcome struct {
	Summary    *quality.QualityReport
	Difference string
}

// RunFilter narrows ListRuns. A zero Limit means 20.
type RunFilter struct {
	Status RunStatus
	Grade  quality.Grade
	Limit  int
}

// Store records runs
type Store interface {
	CreateRun(ctx context.Context, invoiceSources, ledgerSources []string) (*Run, error)
	CompleteRun(ctx context.Context, runID string, outcome Outcome) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	Close() error
}
