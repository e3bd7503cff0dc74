package matcher

import (
	"fmt"

	"invoice-reconciliation-service/internal/models"
)

// RunState owns the unmatched pools of one reconciliation run. Phases receive
// it explicitly and shrink it through Claim; it is never shared across runs.
type RunState struct {
	invoices []*models.NormalizedInvoice
	ledger   []*models.NormalizedLedger

	// normalized identifier -> ledger rows, input order
	keyIndex map[string][]*models.NormalizedLedger

	supplierIndex map[string][]*models.NormalizedLedger

	claimedInvoices map[int]Phase
	claimedLedger   map[int]Phase

	// invoice index -> best rejected candidate
	attempts map[int]Attempt
}

// Attempt is the best candidate a phase scored for an invoice and then
// rejected for falling below its threshold.
type Attempt struct {
	Phase      Phase
	Confidence float64
	Ledger     []int
}

func (a Attempt) String() string {
	return fmt.Sprintf("best %s candidate scored %.1f against ledger %v", a.Phase, a.Confidence, a.Ledger)
}

// NewRunState indexes the normalized records of a run. Both slices must be
// in input order; the Index fields identify records for the whole run.
func NewRunState(invoices []*models.NormalizedInvoice, ledger []*models.NormalizedLedger) *RunState {
	s := &RunState{
		invoices:        invoices,
		ledger:          ledger,
		keyIndex:        make(map[string][]*models.NormalizedLedger),
		supplierIndex:   make(map[string][]*models.NormalizedLedger),
		claimedInvoices: make(map[int]Phase),
		claimedLedger:   make(map[int]Phase),
		attempts:        make(map[int]Attempt),
	}
	s.buildIndexes()
	return s
}

func (s *RunState) buildIndexes() {
	for _, l := range s.ledger {
		s.keyIndex[l.Key] = append(s.keyIndex[l.Key], l)
		if l.SupplierKey != "" {
			s.supplierIndex[l.SupplierKey] = append(s.supplierIndex[l.SupplierKey], l)
		}
	}
}

// RemainingInvoices returns the unclaimed invoices in input order
func (s *RunState) RemainingInvoices() []*models.NormalizedInvoice {
	out := make([]*models.NormalizedInvoice, 0, len(s.invoices)-len(s.claimedInvoices))
	for _, inv := range s.invoices {
		if _, claimed := s.claimedInvoices[inv.Index]; !claimed {
			out = append(out, inv)
		}
	}
	return out
}

// RemainingLedger returns the unclaimed ledger rows in input order
func (s *RunState) RemainingLedger() []*models.NormalizedLedger {
	return s.unclaimed(s.ledger)
}

// LedgerByKey returns unclaimed ledger rows with exactly this identifier
func (s *RunState) LedgerByKey(key string) []*models.NormalizedLedger {
	return s.unclaimed(s.keyIndex[key])
}

// LedgerBySupplier returns unclaimed ledger rows of a canonical supplier
func (s *RunState) LedgerBySupplier(supplier string) []*models.NormalizedLedger {
	if supplier == "" {
		return nil
	}
	return s.unclaimed(s.supplierIndex[supplier])
}

// IsLedgerClaimed reports whether the ledger row at index was claimed
func (s *RunState) IsLedgerClaimed(index int) bool {
	_, claimed := s.claimedLedger[index]
	return claimed
}

// IsInvoiceClaimed reports whether the invoice at index was claimed
func (s *RunState) IsInvoiceClaimed(index int) bool {
	_, claimed := s.claimedInvoices[index]
	return claimed
}

// Claim removes the candidate's invoice and ledger rows from the pools.
// Claiming an already claimed record is a programming error and is refused.
func (s *RunState) Claim(c *CandidateMatch) error {
	if phase, ok := s.claimedInvoices[c.Invoice.Index]; ok {
		return fmt.Errorf("invoice %d already claimed by %s phase", c.Invoice.Index, phase)
	}
	for _, l := range c.Ledger {
		if phase, ok := s.claimedLedger[l.Index]; ok {
			return fmt.Errorf("ledger row %d already claimed by %s phase", l.Index, phase)
		}
	}

	s.claimedInvoices[c.Invoice.Index] = c.Phase
	for _, l := range c.Ledger {
		s.claimedLedger[l.Index] = c.Phase
	}
	return nil
}

// RecordAttempt keeps the highest scoring rejected candidate of an invoice.
// On equal confidence the earlier phase wins.
func (s *RunState) RecordAttempt(invoice int, a Attempt) {
	if prev, ok := s.attempts[invoice]; ok && prev.Confidence >= a.Confidence {
		return
	}
	s.attempts[invoice] = a
}

// BestAttempt returns the best rejected candidate of an unclaimed invoice
func (s *RunState) BestAttempt(invoice int) (Attempt, bool) {
	if s.IsInvoiceClaimed(invoice) {
		return Attempt{}, false
	}
	a, ok := s.attempts[invoice]
	return a, ok
}

// Stats reports the pool sizes
func (s *RunState) Stats() PoolStats {
	return PoolStats{
		Invoices:          len(s.invoices),
		Ledger:            len(s.ledger),
		RemainingInvoices: len(s.invoices) - len(s.claimedInvoices),
		RemainingLedger:   len(s.ledger) - len(s.claimedLedger),
		UniqueKeys:        len(s.keyIndex),
		UniqueSuppliers:   len(s.supplierIndex),
	}
}

// PoolStats provides statistics about the pools of a run
type PoolStats struct {
	Invoices          int
	Ledger            int
	RemainingInvoices int
	RemainingLedger   int
	UniqueKeys        int
	UniqueSuppliers   int
}

func (s *RunState) unclaimed(rows []*models.NormalizedLedger) []*models.NormalizedLedger {
	var out []*models.NormalizedLedger
	for _, l := range rows {
		if _, claimed := s.claimedLedger[l.Index]; !claimed {
			out = append(out, l)
		}
	}
	return out
}
