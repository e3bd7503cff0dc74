// Package reconciler runs one invoice to ledger reconciliation: it normalizes
// the inputs, drives the matching phases over a private run state and
// collects the final partition into matches, discrepancies and orphans.
//
// Example usage:
//
//	r := reconciler.New(matcher.DefaultConfig(), normalizer, log)
//	result, err := r.Reconcile(invoices, ledger)
//	if err != nil {
//		// only an invalid configuration fails a run
//	}
package reconciler

import (
	"math"
	"sort"

	"invoice-reconciliation-service/internal/matcher"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// Reconciler is reusable across runs; every call to Reconcile owns its pools.
type Reconciler struct {
	config     *matcher.Config
	normalizer *models.Normalizer
	logger     logger.Logger
}

// New creates a Reconciler. A nil normalizer uses one without supplier aliases.
func New(config *matcher.Config, normalizer *models.Normalizer, log logger.Logger) *Reconciler {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if normalizer == nil {
		normalizer = models.NewNormalizer(nil, log)
	}
	return &Reconciler{
		config:     config,
		normalizer: normalizer,
		logger:     log.WithComponent("reconciler"),
	}
}

// Reconcile matches invoices against ledger rows. It fails only when the
// configuration is invalid; malformed records become orphans.
func Reconcile(invoices []models.InvoiceRecord, ledger []models.LedgerRecord, config *matcher.Config) (*Result, error) {
	return New(config, nil, nil).Reconcile(invoices, ledger)
}

// Reconcile runs the four phases over the inputs.
func (r *Reconciler) Reconcile(invoices []models.InvoiceRecord, ledger []models.LedgerRecord) (*Result, error) {
	if err := r.config.Validate(); err != nil {
		r.logger.WithError(err).Error("Rejected reconciliation configuration")
		return nil, err
	}

	result := NewResult()
	result.Totals.Invoices = len(invoices)
	result.Totals.LedgerRows = len(ledger)

	if len(invoices) == 0 && len(ledger) == 0 {
		r.logger.Info("Nothing to reconcile")
		return result, nil
	}

	r.logger.WithFields(logger.Fields{
		"invoices": len(invoices),
		"ledger":   len(ledger),
		"config":   r.config.String(),
	}).Info("Starting reconciliation")

	normInvoices, normLedger := r.normalize(invoices, ledger, result)
	state := matcher.NewRunState(normInvoices, normLedger)

	for _, phase := range matcher.NewPhases(r.config, r.logger) {
		candidates, err := phase.Run(state)
		if err != nil {
			return nil, err
		}
		r.collect(result, phase.Phase(), candidates)

		stats := result.Stats(phase.Phase())
		r.logger.WithFields(logger.Fields{
			logger.FieldPhase:    phase.Phase().String(),
			"matches":            stats.Matches,
			"discrepancies":      stats.Discrepancies,
			"avg_confidence":     stats.AverageConfidence,
			"remaining_invoices": state.Stats().RemainingInvoices,
			"remaining_ledger":   state.Stats().RemainingLedger,
		}).Info("Phase complete")
	}

	for _, inv := range state.RemainingInvoices() {
		orphan := OrphanInvoice{
			Index:  inv.Index,
			Record: inv.Record,
			Reason: ReasonNoCandidate,
		}
		if attempt, ok := state.BestAttempt(inv.Index); ok {
			orphan.Reason = ReasonBelowThreshold
			orphan.Detail = attempt.String()
			orphan.BestAttempt = &attempt
		}
		result.OrphanInvoices = append(result.OrphanInvoices, orphan)
	}
	for _, l := range state.RemainingLedger() {
		result.OrphanLedger = append(result.OrphanLedger, OrphanLedger{
			Index:  l.Index,
			Record: l.Record,
			Reason: ReasonUnclaimed,
		})
	}
	sortOrphans(result)

	r.computeTotals(result, normInvoices, normLedger)

	if err := result.CheckPartition(len(invoices), len(ledger)); err != nil {
		return nil, errors.ReconciliationError(errors.CodeMatchingFailed, "partition check", err)
	}

	r.logger.WithFields(logger.Fields{
		"matches":         len(result.Matches),
		"discrepancies":   len(result.Discrepancies),
		"orphan_invoices": len(result.OrphanInvoices),
		"orphan_ledger":   len(result.OrphanLedger),
	}).Info("Reconciliation complete")

	return result, nil
}

// normalize converts the raw records; malformed ones go straight to orphans.
func (r *Reconciler) normalize(invoices []models.InvoiceRecord, ledger []models.LedgerRecord, result *Result) ([]*models.NormalizedInvoice, []*models.NormalizedLedger) {
	normInvoices := make([]*models.NormalizedInvoice, 0, len(invoices))
	for i := range invoices {
		inv, err := r.normalizer.NormalizeInvoice(&invoices[i], i)
		if err != nil {
			result.Totals.MalformedInvoice++
			result.OrphanInvoices = append(result.OrphanInvoices, OrphanInvoice{
				Index:  i,
				Record: &invoices[i],
				Reason: malformedReason(err),
				Detail: err.Error(),
			})
			continue
		}
		normInvoices = append(normInvoices, inv)
	}

	normLedger := make([]*models.NormalizedLedger, 0, len(ledger))
	for i := range ledger {
		l, err := r.normalizer.NormalizeLedger(&ledger[i], i)
		if err != nil {
			result.Totals.MalformedLedger++
			result.OrphanLedger = append(result.OrphanLedger, OrphanLedger{
				Index:  i,
				Record: &ledger[i],
				Reason: malformedReason(err),
				Detail: err.Error(),
			})
			continue
		}
		normLedger = append(normLedger, l)
	}

	if result.Totals.MalformedInvoice > 0 || result.Totals.MalformedLedger > 0 {
		r.logger.WithFields(logger.Fields{
			"malformed_invoices": result.Totals.MalformedInvoice,
			"malformed_ledger":   result.Totals.MalformedLedger,
		}).Warn("Malformed records routed to orphans")
	}

	return normInvoices, normLedger
}

func malformedReason(err error) OrphanReason {
	if re, ok := errors.AsReconcilerError(err); ok && re.ContextString("field") == "identifier" {
		return ReasonMalformedIdentifier
	}
	return ReasonMalformedAmount
}

// collect routes candidates by outcome and updates the phase statistics
func (r *Reconciler) collect(result *Result, phase matcher.Phase, candidates []*matcher.CandidateMatch) {
	var confidenceSum float64
	stats := PhaseStats{Phase: phase}

	for _, c := range candidates {
		stats.LedgerRows += len(c.Ledger)
		if c.Outcome == matcher.OutcomeDiscrepancy {
			result.Discrepancies = append(result.Discrepancies, c)
			stats.Discrepancies++
			continue
		}
		result.Matches = append(result.Matches, c)
		stats.Matches++
		confidenceSum += c.Confidence
	}
	if stats.Matches > 0 {
		stats.AverageConfidence = math.Round(confidenceSum/float64(stats.Matches)*100) / 100
	}

	for i := range result.PhaseStats {
		if result.PhaseStats[i].Phase == phase {
			result.PhaseStats[i] = stats
		}
	}
}

func (r *Reconciler) computeTotals(result *Result, invoices []*models.NormalizedInvoice, ledger []*models.NormalizedLedger) {
	for _, inv := range invoices {
		result.Totals.InvoiceAmount = result.Totals.InvoiceAmount.Add(inv.Amount)
	}
	for _, l := range ledger {
		result.Totals.LedgerAmount = result.Totals.LedgerAmount.Add(l.Amount)
	}
	result.Totals.Difference = result.Totals.InvoiceAmount.Sub(result.Totals.LedgerAmount).Abs()
}

func sortOrphans(result *Result) {
	sort.Slice(result.OrphanInvoices, func(i, j int) bool {
		return result.OrphanInvoices[i].Index < result.OrphanInvoices[j].Index
	})
	sort.Slice(result.OrphanLedger, func(i, j int) bool {
		return result.OrphanLedger[i].Index < result.OrphanLedger[j].Index
	})
}
