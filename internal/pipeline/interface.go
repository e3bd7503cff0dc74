package pipeline

import (
	"context"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/parsers"
	"invoice-reconciliation-service/internal/store"
)

// InvoiceLoader reads invoice documents into raw records.
//
//go:generate mockgen -destination=mocks/mock_pipeline.go -package=mock_pipeline -source=interface.go
type InvoiceLoader interface {
	LoadInvoices(ctx context.Context, paths []string) ([]models.InvoiceRecord, []*parsers.ParseStats, error)
}

// LedgerLoader reads ledger exports into raw records
type LedgerLoader interface {
	LoadLedger(ctx context.Context, paths []string) ([]models.LedgerRecord, []*parsers.ParseStats, error)
}

// RunRecorder keeps the history of runs
type RunRecorder interface {
	CreateRun(ctx context.Context, invoiceSources, ledgerSources []string) (*store.Run, error)
	CompleteRun(ctx context.Context, runID string, outcome store.Outcome) error
	FailRun(ctx context.Context, runID string, cause error) error
}
