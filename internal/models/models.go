// Package models holds the invoice and ledger record shapes consumed by the
// reconciliation engine, together with the Normalizer that turns them into
// comparable keys.
//
// Raw records keep the text exactly as extracted. Normalized records carry a
// canonical identifier, a fixed-precision amount, an optional calendar date and
// a canonical supplier key, plus a pointer back to the untouched source record.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SourceRef points at the place a record was read from.
type SourceRef struct {
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
	Sheet string `json:"sheet,omitempty" yaml:"sheet,omitempty"`
	Page  int    `json:"page,omitempty" yaml:"page,omitempty"`
	Line  int    `json:"line,omitempty" yaml:"line,omitempty"`
}

// String returns a compact location such as "ledger.xlsx[Feuil1]:12"
func (s SourceRef) String() string {
	out := s.File
	if s.Sheet != "" {
		out += "[" + s.Sheet + "]"
	}
	if s.Page > 0 {
		out += fmt.Sprintf("#p%d", s.Page)
	}
	if s.Line > 0 {
		out += fmt.Sprintf(":%d", s.Line)
	}
	return out
}

// InvoiceRecord is a line item extracted from an invoice document.
type InvoiceRecord struct {
	Identifier string    `json:"identifier" yaml:"identifier"`
	NetAmount  string    `json:"net_amount" yaml:"net_amount"`
	Date       string    `json:"date,omitempty" yaml:"date,omitempty"`
	Supplier   string    `json:"supplier,omitempty" yaml:"supplier,omitempty"`
	Source     SourceRef `json:"source" yaml:"source"`
}

// LedgerRecord is one row of the structured ledger.
type LedgerRecord struct {
	Identifier   string    `json:"identifier" yaml:"identifier"`
	NetAmount    string    `json:"net_amount" yaml:"net_amount"`
	Date         string    `json:"date,omitempty" yaml:"date,omitempty"`
	Supplier     string    `json:"supplier,omitempty" yaml:"supplier,omitempty"`
	Collaborator string    `json:"collaborator,omitempty" yaml:"collaborator,omitempty"`
	Aggregated   bool      `json:"aggregated,omitempty" yaml:"aggregated,omitempty"`
	Source       SourceRef `json:"source" yaml:"source"`
}

// Comparable is the normalized view the scorer works on. A zero Date means
// the date is absent.
type Comparable struct {
	Key         string
	Amount      decimal.Decimal
	Date        time.Time
	SupplierKey string
}

// HasDate reports whether a date was parsed
func (c Comparable) HasDate() bool {
	return !c.Date.IsZero()
}

// BillingPeriod returns the calendar month as YYYY-MM, or "" when undated.
func (c Comparable) BillingPeriod() string {
	if c.Date.IsZero() {
		return ""
	}
	return c.Date.Format("2006-01")
}

// NormalizedInvoice is an invoice ready for matching. Index is the position
// of the record in the input slice and identifies it for the whole run.
type NormalizedInvoice struct {
	Comparable
	Index  int
	Record *InvoiceRecord
}

// NormalizedLedger is a ledger row ready for matching.
type NormalizedLedger struct {
	Comparable
	Index  int
	Record *LedgerRecord
}

// DaysBetween returns the absolute number of whole days between two dates
func DaysBetween(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
