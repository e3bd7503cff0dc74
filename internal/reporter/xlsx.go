package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary       = "Summary"
	sheetMatches       = "Matches"
	sheetDiscrepancies = "Discrepancies"
	sheetOrphans       = "Orphans"
)

var matchSheetHeaders = []string{
	"phase", "invoice_index", "invoice_identifier", "invoice_amount", "invoice_date", "supplier",
	"ledger_indexes", "ledger_identifiers", "ledger_amount", "amount_delta", "date_gap_days",
	"confidence", "identifier_score", "amount_score", "date_score", "supplier_score", "aggregated", "notes",
}

var orphanSheetHeaders = []string{"side", "index", "identifier", "amount", "date", "supplier", "source", "reason", "detail"}

// generateXLSXReport builds a workbook in memory and writes it out in one go
func (rg *ReportGenerator) generateXLSXReport(report *Report, writer io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetSummary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	writeSummarySheet(f, report)

	if report.Matches != nil {
		if err := writeMatchSheet(f, sheetMatches, report.Matches); err != nil {
			return err
		}
	}
	if report.Discrepancies != nil {
		if err := writeMatchSheet(f, sheetDiscrepancies, report.Discrepancies); err != nil {
			return err
		}
	}
	if report.Orphans != nil {
		if err := writeOrphanSheet(f, report.Orphans); err != nil {
			return err
		}
	}

	if err := f.Write(writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func writeSummarySheet(f *excelize.File, report *Report) {
	row := 1
	put := func(label string, value any) {
		setRow(f, sheetSummary, row, label, value)
		row++
	}

	put("run_id", report.Metadata.RunID)
	if !report.Metadata.GeneratedAt.IsZero() {
		put("generated_at", report.Metadata.GeneratedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	put("invoices", report.Totals.Invoices)
	put("ledger_rows", report.Totals.LedgerRows)
	put("invoice_amount", report.Totals.InvoiceAmount)
	put("ledger_amount", report.Totals.LedgerAmount)
	put("difference", report.Totals.Difference)

	if q := report.Quality; q != nil {
		put("matches", q.Matches)
		put("discrepancies", q.Discrepancies)
		put("orphan_invoices", q.OrphanInvoices)
		put("orphan_ledger", q.OrphanLedger)
		put("match_rate", q.MatchRate)
		put("coverage_rate", q.CoverageRate)
		put("average_confidence", q.AverageConfidence)
		put("score", q.Score)
		put("grade", string(q.Grade))
		for i, r := range q.Recommendations {
			put(fmt.Sprintf("recommendation_%d", i+1), r)
		}
	}
}

func writeMatchSheet(f *excelize.File, sheet string, views []MatchView) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	headers := make([]any, len(matchSheetHeaders))
	for i, h := range matchSheetHeaders {
		headers[i] = h
	}
	setRow(f, sheet, 1, headers...)

	for i, m := range views {
		indexes := make([]string, len(m.Ledger))
		identifiers := make([]string, len(m.Ledger))
		for j, l := range m.Ledger {
			indexes[j] = fmt.Sprint(l.Index)
			identifiers[j] = l.Identifier
		}
		var gap any
		if m.DateGapDays != nil {
			gap = *m.DateGapDays
		}
		setRow(f, sheet, i+2,
			m.Phase, m.Invoice.Index, m.Invoice.Identifier, m.Invoice.Amount, m.Invoice.Date, m.Invoice.Supplier,
			strings.Join(indexes, "+"), strings.Join(identifiers, "+"), m.LedgerAmount, m.AmountDelta, gap,
			m.Confidence, m.Breakdown.Identifier, m.Breakdown.Amount, m.Breakdown.Date, m.Breakdown.Supplier,
			m.Aggregated, strings.Join(m.Notes, "; "),
		)
	}
	return nil
}

func writeOrphanSheet(f *excelize.File, orphans []OrphanView) error {
	if _, err := f.NewSheet(sheetOrphans); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheetOrphans, err)
	}

	headers := make([]any, len(orphanSheetHeaders))
	for i, h := range orphanSheetHeaders {
		headers[i] = h
	}
	setRow(f, sheetOrphans, 1, headers...)

	for i, o := range orphans {
		setRow(f, sheetOrphans, i+2,
			o.Side, o.Record.Index, o.Record.Identifier, o.Record.Amount, o.Record.Date,
			o.Record.Supplier, o.Record.Source, o.Reason, o.Detail,
		)
	}
	return nil
}
