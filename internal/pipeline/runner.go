// Package pipeline wires ingestion, reconciliation, quality scoring and run
// history into a single call used by the CLI.
package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"invoice-reconciliation-service/internal/parsers"
	"invoice-reconciliation-service/internal/quality"
	"invoice-reconciliation-service/internal/reconciler"
	"invoice-reconciliation-service/internal/reporter"
	"invoice-reconciliation-service/internal/store"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// Request names the inputs of one run
type Request struct {
	InvoicePaths []string
	LedgerPaths  []string
}

// Output is everything a run produced
type Output struct {
	RunID        string
	Result       *reconciler.Result
	Quality      *quality.QualityReport
	Report       *reporter.Report
	InvoiceStats []*parsers.ParseStats
	LedgerStats  []*parsers.ParseStats
}

// Options tunes a Runner. Zero values use the defaults.
type Options struct {
	Weights    *quality.Weights
	OnProgress logger.ProgressCallback
	Now        func() time.Time
}

// Runner executes runs. The recorder may be nil, in which case nothing is
// persisted and run ids are generated locally.
type Runner struct {
	invoices   InvoiceLoader
	ledger     LedgerLoader
	recorder   RunRecorder
	reconciler *reconciler.Reconciler
	options    Options
	logger     logger.Logger
}

// NewRunner creates a runner
func NewRunner(invoices InvoiceLoader, ledger LedgerLoader, recorder RunRecorder, rec *reconciler.Reconciler, options Options, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Runner{
		invoices:   invoices,
		ledger:     ledger,
		recorder:   recorder,
		reconciler: rec,
		options:    options,
		logger:     log.WithComponent("pipeline"),
	}
}

// Run loads both sides, reconciles them and records the outcome. The context
// is checked between stages; reconciliation itself is not interrupted.
func (r *Runner) Run(ctx context.Context, req Request) (*Output, error) {
	if len(req.InvoicePaths) == 0 || len(req.LedgerPaths) == 0 {
		return nil, errors.InvalidConfigurationError("inputs", req, "at least one invoice file and one ledger file are required")
	}

	runID, recorded := r.startRun(ctx, req)
	out := &Output{RunID: runID}

	steps := 4
	if recorded {
		steps++
	}
	progress := logger.NewProgressTracker(r.logger, "reconciliation run", steps)
	if r.options.OnProgress != nil {
		progress.OnProgress(r.options.OnProgress)
	}

	fail := func(err error) (*Output, error) {
		progress.CompleteWithError(err)
		if recorded {
			r.failRun(ctx, runID, err)
		}
		return nil, err
	}

	progress.Begin("load invoices")
	if err := checkContext(ctx, "load invoices"); err != nil {
		return fail(err)
	}
	invoices, invoiceStats, err := r.invoices.LoadInvoices(ctx, req.InvoicePaths)
	if err != nil {
		return fail(err)
	}
	out.InvoiceStats = invoiceStats
	progress.Done(logger.Fields{logger.FieldRecords: len(invoices)})

	progress.Begin("load ledger")
	if err := checkContext(ctx, "load ledger"); err != nil {
		return fail(err)
	}
	ledger, ledgerStats, err := r.ledger.LoadLedger(ctx, req.LedgerPaths)
	if err != nil {
		return fail(err)
	}
	out.LedgerStats = ledgerStats
	progress.Done(logger.Fields{logger.FieldRecords: len(ledger)})

	progress.Begin("reconcile")
	if err := checkContext(ctx, "reconcile"); err != nil {
		return fail(err)
	}
	result, err := r.reconciler.Reconcile(invoices, ledger)
	if err != nil {
		return fail(err)
	}
	out.Result = result
	progress.Done(logger.Fields{
		"matches":       len(result.Matches),
		"discrepancies": len(result.Discrepancies),
	})

	progress.Begin("summarize")
	if r.options.Weights != nil {
		out.Quality = quality.SummarizeWithWeights(result, *r.options.Weights)
	} else {
		out.Quality = quality.Summarize(result)
	}
	out.Report = reporter.NewReport(result, out.Quality, reporter.Metadata{
		RunID:          runID,
		GeneratedAt:    r.options.Now().UTC(),
		InvoiceSources: baseNames(req.InvoicePaths),
		LedgerSources:  baseNames(req.LedgerPaths),
	})
	progress.Done(logger.Fields{"grade": string(out.Quality.Grade), "score": out.Quality.Score})

	if recorded {
		progress.Begin("record")
		r.completeRun(ctx, runID, store.Outcome{
			Summary:    out.Quality,
			Difference: out.Report.Totals.Difference,
		})
		progress.Done(nil)
	}

	progress.Complete()
	return out, nil
}

// startRun registers the run and reports whether it is being recorded.
// History is best effort: a failing recorder is logged and the run
// continues under a local id.
func (r *Runner) startRun(ctx context.Context, req Request) (string, bool) {
	if r.recorder == nil {
		return uuid.NewString(), false
	}

	run, err := r.recorder.CreateRun(ctx, baseNames(req.InvoicePaths), baseNames(req.LedgerPaths))
	if err != nil {
		r.logger.WithError(err).Warn("Could not record run start, continuing without history")
		return uuid.NewString(), false
	}
	return run.ID, true
}

func (r *Runner) completeRun(ctx context.Context, runID string, outcome store.Outcome) {
	if err := r.recorder.CompleteRun(context.WithoutCancel(ctx), runID, outcome); err != nil {
		r.logger.WithError(err).WithField(logger.FieldRunID, runID).Warn("Could not record run outcome")
	}
}

func (r *Runner) failRun(ctx context.Context, runID string, cause error) {
	if err := r.recorder.FailRun(context.WithoutCancel(ctx), runID, cause); err != nil {
		r.logger.WithError(err).WithField(logger.FieldRunID, runID).Warn("Could not record run failure")
	}
}

func checkContext(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.CodeProcessingError, "run cancelled before "+stage)
	}
	return nil
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}
