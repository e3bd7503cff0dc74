package parsers

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/errors"
)

const amountPattern = `([0-9]{1,3}(?:[ .,\x{00A0}][0-9]{3})+(?:[.,][0-9]{1,2})?|[0-9]+(?:[.,][0-9]{1,2})?)`

// Patterns are tried in order; the first match wins.
var (
	purchaseOrderPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)purchase\s+order[^0-9]*([0-9]{10})`),
		regexp.MustCompile(`(?i)bon\s+de\s+commande[^0-9]*([0-9]{10})`),
		regexp.MustCompile(`(?i)commande[^0-9]*([0-9]{10})`),
		regexp.MustCompile(`(?i)\b(PO[-_ ]?[0-9][A-Z0-9-]{2,})\b`),
		regexp.MustCompile(`([0-9]{10})\s+[0-9/]+`),
	}
	totalNetPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)invoice\s+total\s*\(EUR\)[^0-9]*` + amountPattern),
		regexp.MustCompile(`(?i)net\s+amount[^0-9]*` + amountPattern),
		regexp.MustCompile(`(?i)montant\s*net[^0-9]*` + amountPattern),
		regexp.MustCompile(`(?i)total\s+(?:net|HT)[^0-9]*` + amountPattern),
	}
	invoiceDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)invoice\s+date[^0-9]*([0-9]{4}[/-][0-9]{2}[/-][0-9]{2}|[0-9]{2}/[0-9]{2}/[0-9]{4})`),
		regexp.MustCompile(`(?i)date\s+(?:de\s+)?facture[^0-9]*([0-9]{4}[/-][0-9]{2}[/-][0-9]{2}|[0-9]{2}/[0-9]{2}/[0-9]{4})`),
		regexp.MustCompile(`(?i)date[^0-9]*([0-9]{4}[/-][0-9]{2}[/-][0-9]{2}|[0-9]{2}/[0-9]{2}/[0-9]{4})`),
		regexp.MustCompile(`([0-9]{4}/[0-9]{2}/[0-9]{2})`),
	}
	supplierPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)facture\s+[ée]mise\s+par\s*:\s*([^\n\r]+)`),
		regexp.MustCompile(`(?i)(?:supplier|fournisseur|vendor)\s*:\s*([^\n\r]+)`),
	}
	hasDigit = regexp.MustCompile(`[0-9]`)
)

// InvoiceFields is what could be read from the text of an invoice document.
// Page is the page the purchase order was found on.
type InvoiceFields struct {
	PurchaseOrder string
	TotalNet      string
	InvoiceDate   string
	Supplier      string
	Page          int
}

// ExtractInvoiceFields pulls the invoice header fields out of page texts
func ExtractInvoiceFields(pages []string) InvoiceFields {
	var fields InvoiceFields

	for i, text := range pages {
		if fields.PurchaseOrder == "" {
			if po := firstMatch(purchaseOrderPatterns, text); po != "" {
				fields.PurchaseOrder = po
				fields.Page = i + 1
			}
		}
		if fields.TotalNet == "" {
			fields.TotalNet = firstMatch(totalNetPatterns, text)
		}
		if fields.InvoiceDate == "" {
			fields.InvoiceDate = firstMatch(invoiceDatePatterns, text)
		}
		if fields.Supplier == "" {
			fields.Supplier = firstMatch(supplierPatterns, text)
		}
	}

	if fields.Supplier == "" && len(pages) > 0 {
		fields.Supplier = firstTextLine(pages[0])
	}
	return fields
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// firstTextLine returns the first line with letters and no digits, which on
// most layouts is the issuer's name.
func firstTextLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) >= 2 && !hasDigit.MatchString(line) {
			return line
		}
	}
	return ""
}

// parsePDF yields one invoice record per document
func (ip *InvoiceParser) parsePDF(name string, content []byte, stats *ParseStats) ([]models.InvoiceRecord, error) {
	pages, err := pdfPageTexts(content)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, name, err)
	}

	fields := ExtractInvoiceFields(pages)
	stats.TotalRows = 1

	if fields.PurchaseOrder == "" {
		stats.Errors = append(stats.Errors, errors.NewEnhancedParseError(
			errors.CodeMissingField,
			&errors.ParseContext{File: name, Column: "purchase_order", Expected: "a 10 digit purchase order"},
			"purchase order not found in document text", nil,
		).WithExamples("Purchase Order: 5600002101", "Bon de commande 5600002101"))
	}
	if fields.TotalNet == "" {
		stats.Errors = append(stats.Errors, errors.NewEnhancedParseError(
			errors.CodeMissingField,
			&errors.ParseContext{File: name, Column: "total_net", Expected: "a net total"},
			"net total not found in document text", nil,
		).WithExamples("Net Amount: 1 234,56", "Montant net 1234.56"))
	}

	ip.logger.WithField("file", filepath.Base(name)).
		WithField("purchase_order", fields.PurchaseOrder).
		WithField("total_net", fields.TotalNet).
		Debug("Extracted invoice fields from PDF")

	return []models.InvoiceRecord{{
		Identifier: fields.PurchaseOrder,
		NetAmount:  fields.TotalNet,
		Date:       fields.InvoiceDate,
		Supplier:   fields.Supplier,
		Source:     models.SourceRef{File: filepath.Base(name), Page: fields.Page},
	}}, nil
}

// pdfPageTexts returns the plain text of every page. The pdf package panics
// on some damaged cross-reference tables; that is reported as an error.
func pdfPageTexts(content []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("unreadable PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	pages = make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
