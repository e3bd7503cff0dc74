package reporter

import (
	"time"

	"invoice-reconciliation-service/internal/matcher"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/quality"
	"invoice-reconciliation-service/internal/reconciler"
)

const dateLayout = "2006-01-02"

// Metadata describes the run a report belongs to
type Metadata struct {
	RunID          string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	GeneratedAt    time.Time `json:"generated_at" yaml:"generated_at"`
	InvoiceSources []string  `json:"invoice_sources,omitempty" yaml:"invoice_sources,omitempty"`
	LedgerSources  []string  `json:"ledger_sources,omitempty" yaml:"ledger_sources,omitempty"`
}

// RecordView is the printable form of an invoice or a ledger row.
type RecordView struct {
	Index        int    `json:"index" yaml:"index"`
	Identifier   string `json:"identifier" yaml:"identifier"`
	Key          string `json:"key,omitempty" yaml:"key,omitempty"`
	Amount       string `json:"amount" yaml:"amount"`
	Date         string `json:"date,omitempty" yaml:"date,omitempty"`
	Supplier     string `json:"supplier,omitempty" yaml:"supplier,omitempty"`
	Collaborator string `json:"collaborator,omitempty" yaml:"collaborator,omitempty"`
	Source       string `json:"source,omitempty" yaml:"source,omitempty"`
}

// MatchView is one claimed pairing
type MatchView struct {
	Phase        string            `json:"phase" yaml:"phase"`
	Outcome      string            `json:"outcome" yaml:"outcome"`
	Invoice      RecordView        `json:"invoice" yaml:"invoice"`
	Ledger       []RecordView      `json:"ledger" yaml:"ledger"`
	Aggregated   bool              `json:"aggregated" yaml:"aggregated"`
	Confidence   float64           `json:"confidence" yaml:"confidence"`
	Breakdown    matcher.Breakdown `json:"breakdown" yaml:"breakdown"`
	LedgerAmount string            `json:"ledger_amount" yaml:"ledger_amount"`
	AmountDelta  string            `json:"amount_delta" yaml:"amount_delta"`
	DateGapDays  *int              `json:"date_gap_days,omitempty" yaml:"date_gap_days,omitempty"`
	Notes        []string          `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// OrphanView is an unclaimed record from either side
type OrphanView struct {
	Side   string     `json:"side" yaml:"side"`
	Record RecordView `json:"record" yaml:"record"`
	Reason string     `json:"reason" yaml:"reason"`
	Detail string     `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// TotalsView carries run totals with amounts fixed to two decimals
type TotalsView struct {
	Invoices          int    `json:"invoices" yaml:"invoices"`
	LedgerRows        int    `json:"ledger_rows" yaml:"ledger_rows"`
	MalformedInvoices int    `json:"malformed_invoices" yaml:"malformed_invoices"`
	MalformedLedger   int    `json:"malformed_ledger" yaml:"malformed_ledger"`
	InvoiceAmount     string `json:"invoice_amount" yaml:"invoice_amount"`
	LedgerAmount      string `json:"ledger_amount" yaml:"ledger_amount"`
	Difference        string `json:"difference" yaml:"difference"`
}

// Report is the serializable snapshot handed to every output format. It
// holds no maps, so encoding it twice yields the same bytes.
type Report struct {
	Metadata      Metadata               `json:"metadata" yaml:"metadata"`
	Quality       *quality.QualityReport `json:"quality" yaml:"quality"`
	Totals        TotalsView             `json:"totals" yaml:"totals"`
	Matches       []MatchView            `json:"matches" yaml:"matches"`
	Discrepancies []MatchView            `json:"discrepancies" yaml:"discrepancies"`
	Orphans       []OrphanView           `json:"orphans" yaml:"orphans"`
}

// NewReport assembles a report. A nil summary is computed from the result.
func NewReport(result *reconciler.Result, summary *quality.QualityReport, meta Metadata) *Report {
	if summary == nil {
		summary = quality.Summarize(result)
	}

	r := &Report{
		Metadata: meta,
		Quality:  summary,
		Totals: TotalsView{
			Invoices:          result.Totals.Invoices,
			LedgerRows:        result.Totals.LedgerRows,
			MalformedInvoices: result.Totals.MalformedInvoice,
			MalformedLedger:   result.Totals.MalformedLedger,
			InvoiceAmount:     result.Totals.InvoiceAmount.StringFixed(2),
			LedgerAmount:      result.Totals.LedgerAmount.StringFixed(2),
			Difference:        result.Totals.Difference.StringFixed(2),
		},
		Matches:       make([]MatchView, 0, len(result.Matches)),
		Discrepancies: make([]MatchView, 0, len(result.Discrepancies)),
		Orphans:       make([]OrphanView, 0, len(result.OrphanInvoices)+len(result.OrphanLedger)),
	}

	for _, m := range result.Matches {
		r.Matches = append(r.Matches, matchView(m))
	}
	for _, d := range result.Discrepancies {
		r.Discrepancies = append(r.Discrepancies, matchView(d))
	}
	for _, o := range result.OrphanInvoices {
		view := RecordView{Index: o.Index}
		if o.Record != nil {
			view.Identifier = o.Record.Identifier
			view.Amount = o.Record.NetAmount
			view.Date = o.Record.Date
			view.Supplier = o.Record.Supplier
			view.Source = o.Record.Source.String()
		}
		r.Orphans = append(r.Orphans, OrphanView{Side: "invoice", Record: view, Reason: string(o.Reason), Detail: o.Detail})
	}
	for _, o := range result.OrphanLedger {
		view := RecordView{Index: o.Index}
		if o.Record != nil {
			view.Identifier = o.Record.Identifier
			view.Amount = o.Record.NetAmount
			view.Date = o.Record.Date
			view.Supplier = o.Record.Supplier
			view.Collaborator = o.Record.Collaborator
			view.Source = o.Record.Source.String()
		}
		r.Orphans = append(r.Orphans, OrphanView{Side: "ledger", Record: view, Reason: string(o.Reason), Detail: o.Detail})
	}

	return r
}

func matchView(c *matcher.CandidateMatch) MatchView {
	v := MatchView{
		Phase:        c.Phase.String(),
		Outcome:      c.Outcome.String(),
		Invoice:      invoiceView(c.Invoice),
		Ledger:       make([]RecordView, 0, len(c.Ledger)),
		Aggregated:   c.Aggregated(),
		Confidence:   c.Confidence,
		Breakdown:    c.Breakdown,
		LedgerAmount: c.LedgerAmount().StringFixed(2),
		AmountDelta:  c.AmountDelta.StringFixed(2),
		Notes:        c.Notes,
	}
	if c.DateGapDays >= 0 {
		gap := c.DateGapDays
		v.DateGapDays = &gap
	}
	for _, l := range c.Ledger {
		v.Ledger = append(v.Ledger, ledgerView(l))
	}
	return v
}

func invoiceView(inv *models.NormalizedInvoice) RecordView {
	v := comparableView(inv.Index, inv.Comparable)
	if inv.Record != nil {
		v.Identifier = inv.Record.Identifier
		v.Supplier = inv.Record.Supplier
		v.Source = inv.Record.Source.String()
	}
	return v
}

func ledgerView(l *models.NormalizedLedger) RecordView {
	v := comparableView(l.Index, l.Comparable)
	if l.Record != nil {
		v.Identifier = l.Record.Identifier
		v.Supplier = l.Record.Supplier
		v.Collaborator = l.Record.Collaborator
		v.Source = l.Record.Source.String()
	}
	return v
}

func comparableView(index int, c models.Comparable) RecordView {
	v := RecordView{
		Index:      index,
		Identifier: c.Key,
		Key:        c.Key,
		Amount:     c.Amount.StringFixed(2),
		Supplier:   c.SupplierKey,
	}
	if c.HasDate() {
		v.Date = c.Date.Format(dateLayout)
	}
	return v
}
