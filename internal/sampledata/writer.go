package sampledata

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"invoice-reconciliation-service/internal/models"
)

var ledgerHeaders = []string{"N° commande", "Montant net", "Date relevé", "Fournisseur"}

type invoiceDocument struct {
	Identifier string `json:"identifier"`
	NetAmount  string `json:"net_amount"`
	Date       string `json:"date,omitempty"`
	Supplier   string `json:"supplier,omitempty"`
}

// WriteInvoicesJSON writes invoices in the {"invoices": [...]} shape
func WriteInvoicesJSON(w io.Writer, invoices []models.InvoiceRecord) error {
	docs := make([]invoiceDocument, len(invoices))
	for i, inv := range invoices {
		docs[i] = invoiceDocument{
			Identifier: inv.Identifier,
			NetAmount:  inv.NetAmount,
			Date:       inv.Date,
			Supplier:   inv.Supplier,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Invoices []invoiceDocument `json:"invoices"`
	}{docs})
}

// WriteLedgerCSV writes the ledger the way the French payment register
// exports it: a title line, semicolons, decimal commas and DD/MM/YYYY dates.
func WriteLedgerCSV(w io.Writer, ledger []models.LedgerRecord) error {
	writer := csv.NewWriter(w)
	writer.Comma = ';'

	rows := [][]string{{"Relevé des paiements", "", "", ""}, ledgerHeaders}
	for _, r := range ledger {
		rows = append(rows, []string{r.Identifier, frenchAmount(r.NetAmount), frenchDate(r.Date), r.Supplier})
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return nil
}

// WriteLedgerXLSX writes the ledger as a workbook with one Feuil1 sheet
func WriteLedgerXLSX(w io.Writer, ledger []models.LedgerRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Feuil1"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &[]any{"Relevé des paiements"}); err != nil {
		return err
	}
	header := make([]any, len(ledgerHeaders))
	for i, h := range ledgerHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A3", &header); err != nil {
		return err
	}

	for i, r := range ledger {
		cell, err := excelize.CoordinatesToCellName(1, i+4)
		if err != nil {
			return err
		}
		row := []any{r.Identifier, r.NetAmount, frenchDate(r.Date), r.Supplier}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+4, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// frenchAmount turns "1234.56" into "1 234,56"
func frenchAmount(s string) string {
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, fraction, _ := strings.Cut(s, ".")
	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(c)
	}
	if fraction != "" {
		b.WriteByte(',')
		b.WriteString(fraction)
	}
	return b.String()
}

func frenchDate(s string) string {
	if s == "" {
		return ""
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return s
	}
	return d.Format("02/01/2006")
}
