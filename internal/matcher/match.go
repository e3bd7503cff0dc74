package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/models"
)

// Phase identifies one of the four ordered matching strategies
type Phase int

const (
	PhaseExact Phase = iota
	PhasePartial
	PhaseFuzzy
	PhaseContextual
)

// AllPhases returns the phases in execution order
func AllPhases() []Phase {
	return []Phase{PhaseExact, PhasePartial, PhaseFuzzy, PhaseContextual}
}

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseExact:
		return "exact"
	case PhasePartial:
		return "partial"
	case PhaseFuzzy:
		return "fuzzy"
	case PhaseContextual:
		return "contextual"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase by name in JSON and YAML output
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Outcome tells whether a candidate was claimed as a match or a discrepancy.
type Outcome int

const (
	OutcomeMatch Outcome = iota
	OutcomeDiscrepancy
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	if o == OutcomeDiscrepancy {
		return "discrepancy"
	}
	return "match"
}

// Breakdown holds the four sub-scores, each on a 0-100 scale.
type Breakdown struct {
	Identifier float64 `json:"identifier" yaml:"identifier"`
	Amount     float64 `json:"amount" yaml:"amount"`
	Date       float64 `json:"date" yaml:"date"`
	Supplier   float64 `json:"supplier" yaml:"supplier"`
}

// CandidateMatch links one invoice to one or more ledger rows. More than one
// row means the ledger amounts were summed (aggregation).
type CandidateMatch struct {
	Invoice     *models.NormalizedInvoice
	Ledger      []*models.NormalizedLedger
	Phase       Phase
	Outcome     Outcome
	Confidence  float64
	Breakdown   Breakdown
	AmountDelta decimal.Decimal // invoice amount minus ledger amount
	DateGapDays int             // -1 when either side is undated
	Notes       []string
}

// Aggregated reports whether several ledger rows were claimed together
func (c *CandidateMatch) Aggregated() bool {
	return len(c.Ledger) > 1
}

// LedgerAmount returns the summed amount of the claimed ledger rows
func (c *CandidateMatch) LedgerAmount() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Ledger {
		total = total.Add(l.Amount)
	}
	return total
}

// LedgerIndexes returns the input positions of the claimed ledger rows
func (c *CandidateMatch) LedgerIndexes() []int {
	out := make([]int, len(c.Ledger))
	for i, l := range c.Ledger {
		out[i] = l.Index
	}
	return out
}

func (c *CandidateMatch) String() string {
	return fmt.Sprintf("%s %s invoice#%d -> ledger%v (%.2f)",
		c.Phase, c.Outcome, c.Invoice.Index, c.LedgerIndexes(), c.Confidence)
}

// newCandidate fills in the delta, gap and explanatory notes for a pairing.
func newCandidate(phase Phase, inv *models.NormalizedInvoice, rows []*models.NormalizedLedger, view models.Comparable) *CandidateMatch {
	c := &CandidateMatch{
		Invoice:     inv,
		Ledger:      rows,
		Phase:       phase,
		AmountDelta: inv.Amount.Sub(view.Amount),
		DateGapDays: -1,
	}
	if inv.HasDate() && view.HasDate() {
		c.DateGapDays = models.DaysBetween(inv.Date, view.Date)
	}
	c.Notes = generateNotes(inv.Comparable, view, c)
	return c
}

// generateNotes explains where the two sides disagree
func generateNotes(inv, view models.Comparable, c *CandidateMatch) []string {
	var notes []string

	if len(c.Ledger) > 1 {
		notes = append(notes, fmt.Sprintf("aggregated %d ledger rows totalling %s", len(c.Ledger), view.Amount.StringFixed(2)))
	}
	if !c.AmountDelta.IsZero() {
		notes = append(notes, fmt.Sprintf("amount delta %s (invoice %s, ledger %s)",
			c.AmountDelta.StringFixed(2), inv.Amount.StringFixed(2), view.Amount.StringFixed(2)))
	}
	if c.DateGapDays > 0 {
		notes = append(notes, fmt.Sprintf("date gap %d days", c.DateGapDays))
	}
	if inv.Key != view.Key {
		notes = append(notes, fmt.Sprintf("identifier %s vs %s", inv.Key, view.Key))
	}
	if inv.SupplierKey != "" && view.SupplierKey != "" && inv.SupplierKey != view.SupplierKey {
		notes = append(notes, fmt.Sprintf("supplier %q vs %q", inv.SupplierKey, view.SupplierKey))
	}

	return notes
}

// aggregateView combines ledger rows sharing an identifier into one
// comparable: amounts summed, earliest date, supplier kept only if common.
func aggregateView(rows []*models.NormalizedLedger) models.Comparable {
	view := models.Comparable{Key: rows[0].Key, SupplierKey: rows[0].SupplierKey}
	for _, r := range rows {
		view.Amount = view.Amount.Add(r.Amount)
		if r.HasDate() && (!view.HasDate() || r.Date.Before(view.Date)) {
			view.Date = r.Date
		}
		if r.SupplierKey != view.SupplierKey {
			view.SupplierKey = ""
		}
	}
	return view
}
