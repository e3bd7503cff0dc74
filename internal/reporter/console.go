package reporter

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(report *Report, out io.Writer) error {
	writer := &stickyWriter{w: out}

	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	if report.Metadata.RunID != "" {
		fmt.Fprintf(writer, "Run: %s\n", report.Metadata.RunID)
	}
	if !report.Metadata.GeneratedAt.IsZero() {
		fmt.Fprintf(writer, "Generated: %s\n", report.Metadata.GeneratedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(writer)

	if report.Quality != nil {
		fmt.Fprintf(writer, "=== SUMMARY ===\n")
		rg.printSummaryTable(report, writer)
		fmt.Fprintln(writer)

		fmt.Fprintf(writer, "=== PHASE PERFORMANCE ===\n")
		rg.printPhaseTable(report, writer)
		fmt.Fprintln(writer)
	}

	fmt.Fprintf(writer, "=== FINANCIAL SUMMARY ===\n")
	rg.printFinancialSummary(report.Totals, writer)
	fmt.Fprintln(writer)

	if len(report.Matches) > 0 {
		fmt.Fprintf(writer, "=== MATCHES ===\n")
		rg.printMatches(report.Matches, writer)
		fmt.Fprintln(writer)
	}

	if len(report.Discrepancies) > 0 {
		fmt.Fprintf(writer, "=== DISCREPANCIES ===\n")
		rg.printMatches(report.Discrepancies, writer)
		fmt.Fprintln(writer)
	}

	if len(report.Orphans) > 0 {
		fmt.Fprintf(writer, "=== ORPHANS ===\n")
		rg.printOrphans(report.Orphans, writer)
		fmt.Fprintln(writer)
	}

	if report.Quality != nil && len(report.Quality.Recommendations) > 0 {
		fmt.Fprintf(writer, "=== RECOMMENDATIONS ===\n")
		for _, r := range report.Quality.Recommendations {
			fmt.Fprintf(writer, "  - %s\n", r)
		}
	}

	return writer.err
}

// stickyWriter remembers the first write error so the many Fprintf calls
// above need no individual checks.
type stickyWriter struct {
	w   io.Writer
	err error
}

func (s *stickyWriter) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	n, err := s.w.Write(p)
	if err != nil {
		s.err = err
	}
	return n, err
}

func (rg *ReportGenerator) newTable(writer io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(writer)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(true)
	table.SetColWidth(rg.config.TableMaxWidth / len(header))
	return table
}

func (rg *ReportGenerator) printSummaryTable(report *Report, writer io.Writer) {
	q := report.Quality
	table := rg.newTable(writer, []string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk([][]string{
		{"Invoices", strconv.Itoa(q.TotalInvoices)},
		{"Ledger rows", strconv.Itoa(q.TotalLedgerRows)},
		{"Matches", strconv.Itoa(q.Matches)},
		{"Discrepancies", strconv.Itoa(q.Discrepancies)},
		{"Orphan invoices", strconv.Itoa(q.OrphanInvoices)},
		{"Orphan ledger rows", strconv.Itoa(q.OrphanLedger)},
		{"Match rate", calculatePercentage(q.MatchRate)},
		{"Coverage", calculatePercentage(q.CoverageRate)},
		{"Average confidence", strconv.FormatFloat(q.AverageConfidence, 'f', 2, 64)},
		{"Quality score", strconv.FormatFloat(q.Score, 'f', 2, 64)},
		{"Grade", fmt.Sprintf("%s (%s)", q.Grade, q.Assessment)},
	})
	table.Render()
}

func (rg *ReportGenerator) printPhaseTable(report *Report, writer io.Writer) {
	table := rg.newTable(writer, []string{"Phase", "Matches", "Discrepancies", "Avg confidence"})
	for _, p := range report.Quality.PhasePerformance {
		table.Append([]string{
			p.Phase,
			strconv.Itoa(p.Matches),
			strconv.Itoa(p.Discrepancies),
			strconv.FormatFloat(p.AverageConfidence, 'f', 2, 64),
		})
	}
	table.Render()
}

func (rg *ReportGenerator) printFinancialSummary(totals TotalsView, writer io.Writer) {
	fmt.Fprintf(writer, "Invoice total: %s\n", totals.InvoiceAmount)
	fmt.Fprintf(writer, "Ledger total:  %s\n", totals.LedgerAmount)
	fmt.Fprintf(writer, "Difference:    %s\n", totals.Difference)
	if totals.MalformedInvoices > 0 || totals.MalformedLedger > 0 {
		fmt.Fprintf(writer, "Malformed:     %d invoice(s), %d ledger row(s)\n", totals.MalformedInvoices, totals.MalformedLedger)
	}
}

func (rg *ReportGenerator) printMatches(views []MatchView, writer io.Writer) {
	table := rg.newTable(writer, []string{"Phase", "Invoice", "Ledger", "Invoice amount", "Ledger amount", "Delta", "Confidence"})
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})
	for _, m := range views {
		ledger := make([]string, len(m.Ledger))
		for i, l := range m.Ledger {
			ledger[i] = fmt.Sprintf("#%d %s", l.Index, l.Identifier)
		}
		table.Append([]string{
			m.Phase,
			fmt.Sprintf("#%d %s", m.Invoice.Index, m.Invoice.Identifier),
			strings.Join(ledger, ", "),
			m.Invoice.Amount,
			m.LedgerAmount,
			m.AmountDelta,
			strconv.FormatFloat(m.Confidence, 'f', 2, 64),
		})
	}
	table.Render()
}

func (rg *ReportGenerator) printOrphans(orphans []OrphanView, writer io.Writer) {
	table := rg.newTable(writer, []string{"Side", "Index", "Identifier", "Amount", "Supplier", "Reason", "Detail"})
	for _, o := range orphans {
		table.Append([]string{
			o.Side,
			strconv.Itoa(o.Record.Index),
			o.Record.Identifier,
			o.Record.Amount,
			o.Record.Supplier,
			o.Reason,
			o.Detail,
		})
	}
	table.Render()
}
