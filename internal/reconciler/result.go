package reconciler

import (
	"fmt"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/matcher"
	"invoice-reconciliation-service/internal/models"
)

// OrphanReason explains why a record was never claimed
type OrphanReason string

const (
	ReasonMalformedAmount     OrphanReason = "malformed_amount"
	ReasonMalformedIdentifier OrphanReason = "malformed_identifier"
	ReasonNoCandidate         OrphanReason = "no_candidate"
	ReasonBelowThreshold      OrphanReason = "below_threshold"
	ReasonUnclaimed           OrphanReason = "unclaimed"
)

// OrphanInvoice is an invoice no phase claimed. BestAttempt is set when a
// phase scored a candidate for it and rejected it.
type OrphanInvoice struct {
	Index       int
	Record      *models.InvoiceRecord
	Reason      OrphanReason
	Detail      string
	BestAttempt *matcher.Attempt
}

// OrphanLedger is a ledger row no phase claimed
type OrphanLedger struct {
	Index  int
	Record *models.LedgerRecord
	Reason OrphanReason
	Detail string
}

// PhaseStats summarizes what one phase claimed
type PhaseStats struct {
	Phase             matcher.Phase
	Matches           int
	Discrepancies     int
	LedgerRows        int
	AverageConfidence float64
}

// Totals holds run-level counts and amounts. Amounts only cover records that
// normalized successfully.
type Totals struct {
	Invoices         int
	LedgerRows       int
	MalformedInvoice int
	MalformedLedger  int
	InvoiceAmount    decimal.Decimal
	LedgerAmount     decimal.Decimal
	Difference       decimal.Decimal // |invoice total - ledger total|
}

// Result partitions every input record into exactly one of matches,
// discrepancies or orphans.
type Result struct {
	Matches        []*matcher.CandidateMatch
	Discrepancies  []*matcher.CandidateMatch
	OrphanInvoices []OrphanInvoice
	OrphanLedger   []OrphanLedger
	PhaseStats     []PhaseStats
	Totals         Totals
}

// NewResult returns an empty result with a stats entry per phase
func NewResult() *Result {
	r := &Result{
		Totals: Totals{
			InvoiceAmount: decimal.Zero,
			LedgerAmount:  decimal.Zero,
			Difference:    decimal.Zero,
		},
	}
	for _, p := range matcher.AllPhases() {
		r.PhaseStats = append(r.PhaseStats, PhaseStats{Phase: p})
	}
	return r
}

// Stats returns the statistics of one phase
func (r *Result) Stats(phase matcher.Phase) PhaseStats {
	for _, s := range r.PhaseStats {
		if s.Phase == phase {
			return s
		}
	}
	return PhaseStats{Phase: phase}
}

// MatchedLedgerRows counts ledger rows inside matches, aggregated rows individually.
func (r *Result) MatchedLedgerRows() int {
	n := 0
	for _, m := range r.Matches {
		n += len(m.Ledger)
	}
	return n
}

// CheckPartition verifies that every invoice index in [0, invoices) and every
// ledger index in [0, ledgerRows) appears exactly once in the result.
func (r *Result) CheckPartition(invoices, ledgerRows int) error {
	seenInv := make(map[int]string, invoices)
	seenLed := make(map[int]string, ledgerRows)

	markInv := func(idx int, where string) error {
		if prev, ok := seenInv[idx]; ok {
			return fmt.Errorf("invoice %d appears in %s and %s", idx, prev, where)
		}
		seenInv[idx] = where
		return nil
	}
	markLed := func(idx int, where string) error {
		if prev, ok := seenLed[idx]; ok {
			return fmt.Errorf("ledger row %d appears in %s and %s", idx, prev, where)
		}
		seenLed[idx] = where
		return nil
	}

	for name, list := range map[string][]*matcher.CandidateMatch{"matches": r.Matches, "discrepancies": r.Discrepancies} {
		for _, c := range list {
			if err := markInv(c.Invoice.Index, name); err != nil {
				return err
			}
			for _, l := range c.Ledger {
				if err := markLed(l.Index, name); err != nil {
					return err
				}
			}
		}
	}
	for _, o := range r.OrphanInvoices {
		if err := markInv(o.Index, "orphans"); err != nil {
			return err
		}
	}
	for _, o := range r.OrphanLedger {
		if err := markLed(o.Index, "orphans"); err != nil {
			return err
		}
	}

	if len(seenInv) != invoices {
		return fmt.Errorf("expected %d invoices in result, found %d", invoices, len(seenInv))
	}
	if len(seenLed) != ledgerRows {
		return fmt.Errorf("expected %d ledger rows in result, found %d", ledgerRows, len(seenLed))
	}
	for i := 0; i < invoices; i++ {
		if _, ok := seenInv[i]; !ok {
			return fmt.Errorf("invoice %d missing from result", i)
		}
	}
	for i := 0; i < ledgerRows; i++ {
		if _, ok := seenLed[i]; !ok {
			return fmt.Errorf("ledger row %d missing from result", i)
		}
	}
	return nil
}
