package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

var invoiceFields = []string{FieldIdentifier, FieldAmount, FieldDate, FieldSupplier}

// InvoiceParser reads invoice line items from CSV, JSON and PDF documents
type InvoiceParser struct {
	*BaseParser
}

// NewInvoiceParser creates an invoice parser
func NewInvoiceParser(config *ParseConfig, log logger.Logger) (*InvoiceParser, error) {
	if config == nil {
		config = DefaultParseConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parsers", config, err)
	}
	return &InvoiceParser{BaseParser: NewBaseParser(config, log)}, nil
}

// ParseFile reads an invoice document, choosing the format from its extension
func (ip *InvoiceParser) ParseFile(path string) ([]models.InvoiceRecord, *ParseStats, error) {
	content, err := ip.readFile(path)
	if err != nil {
		return nil, nil, err
	}
	return ip.Parse(path, content)
}

// Parse reads invoice content; name carries the extension and the source name
func (ip *InvoiceParser) Parse(name string, content []byte) ([]models.InvoiceRecord, *ParseStats, error) {
	stats := &ParseStats{File: name}

	var records []models.InvoiceRecord
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		records, err = ip.parseCSV(name, content, stats)
	case ".json":
		records, err = ip.parseJSON(name, content, stats)
	case ".pdf":
		records, err = ip.parsePDF(name, content, stats)
	default:
		err = errors.FileError(errors.CodeUnsupportedFile, name, nil)
	}
	if err != nil {
		return nil, stats, err
	}

	stats.RecordsParsed = len(records)
	ip.logger.WithFields(logger.Fields{
		logger.FieldFile:    filepath.Base(name),
		logger.FieldRecords: stats.RecordsParsed,
		"skipped":           stats.SkippedRows,
	}).Info("Invoice file parsed")

	return records, stats, nil
}

func (ip *InvoiceParser) parseCSV(name string, content []byte, stats *ParseStats) ([]models.InvoiceRecord, error) {
	rows, err := ip.readCSV(name, content)
	if err != nil {
		return nil, err
	}
	mapped, err := ip.mapRows(name, "", rows, invoiceFields, requiredFields, stats)
	if err != nil {
		return nil, err
	}

	out := make([]models.InvoiceRecord, 0, len(mapped))
	for _, r := range mapped {
		out = append(out, models.InvoiceRecord{
			Identifier: r.get(FieldIdentifier),
			NetAmount:  r.get(FieldAmount),
			Date:       r.get(FieldDate),
			Supplier:   r.get(FieldSupplier),
			Source:     r.source,
		})
	}
	return out, nil
}

// jsonText accepts a JSON string or number and keeps its literal text
type jsonText string

func (t *jsonText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = jsonText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*t = jsonText(n.String())
	return nil
}

type jsonInvoice struct {
	Identifier    jsonText `json:"identifier"`
	PurchaseOrder jsonText `json:"purchase_order"`
	NetAmount     jsonText `json:"net_amount"`
	TotalNet      jsonText `json:"total_net"`
	Date          jsonText `json:"date"`
	InvoiceDate   jsonText `json:"invoice_date"`
	Supplier      jsonText `json:"supplier"`
}

func firstNonEmpty(values ...jsonText) string {
	for _, v := range values {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

// parseJSON accepts either an array of invoices or {"invoices": [...]}.
// Extraction output naming (purchase_order, total_net, invoice_date) is
// accepted alongside the record field names.
func (ip *InvoiceParser) parseJSON(name string, content []byte, stats *ParseStats) ([]models.InvoiceRecord, error) {
	var items []jsonInvoice
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Invoices []jsonInvoice `json:"invoices"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, errors.ParseError(errors.CodeInvalidFormat, name, 0, "", "", err)
		}
		items = wrapper.Invoices
	} else if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, name, 0, "", "", err)
	}

	out := make([]models.InvoiceRecord, 0, len(items))
	for i, it := range items {
		stats.TotalRows++
		rec := models.InvoiceRecord{
			Identifier: firstNonEmpty(it.Identifier, it.PurchaseOrder),
			NetAmount:  firstNonEmpty(it.NetAmount, it.TotalNet),
			Date:       firstNonEmpty(it.Date, it.InvoiceDate),
			Supplier:   firstNonEmpty(it.Supplier),
			Source:     models.SourceRef{File: filepath.Base(name), Line: i + 1},
		}
		if rec.Identifier == "" && rec.NetAmount == "" {
			stats.SkippedRows++
			stats.Errors = append(stats.Errors, errors.EmptyValueError(name, i+1, FieldIdentifier))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
