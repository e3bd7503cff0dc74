package parsers

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

var (
	ledgerFields   = []string{FieldIdentifier, FieldAmount, FieldDate, FieldSupplier, FieldCollaborator}
	requiredFields = []string{FieldIdentifier, FieldAmount}
)

// LedgerParser reads ledger rows from CSV and XLSX exports
type LedgerParser struct {
	*BaseParser
}

// NewLedgerParser creates a ledger parser
func NewLedgerParser(config *ParseConfig, log logger.Logger) (*LedgerParser, error) {
	if config == nil {
		config = DefaultParseConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parsers", config, err)
	}
	return &LedgerParser{BaseParser: NewBaseParser(config, log)}, nil
}

// ParseFile reads a ledger file, choosing the format from its extension
func (lp *LedgerParser) ParseFile(path string) ([]models.LedgerRecord, *ParseStats, error) {
	content, err := lp.readFile(path)
	if err != nil {
		return nil, nil, err
	}
	return lp.Parse(path, content)
}

// Parse reads ledger content; name carries the extension and the source name
func (lp *LedgerParser) Parse(name string, content []byte) ([]models.LedgerRecord, *ParseStats, error) {
	stats := &ParseStats{File: name}

	var records []models.LedgerRecord
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		records, err = lp.parseCSV(name, content, stats)
	case ".xlsx", ".xlsm":
		records, err = lp.parseXLSX(name, content, stats)
	default:
		err = errors.FileError(errors.CodeUnsupportedFile, name, nil)
	}
	if err != nil {
		return nil, stats, err
	}

	stats.RecordsParsed = len(records)
	lp.logger.WithFields(logger.Fields{
		logger.FieldFile:    filepath.Base(name),
		logger.FieldRecords: stats.RecordsParsed,
		"skipped":           stats.SkippedRows,
	}).Info("Ledger file parsed")

	return records, stats, nil
}

func (lp *LedgerParser) parseCSV(name string, content []byte, stats *ParseStats) ([]models.LedgerRecord, error) {
	rows, err := lp.readCSV(name, content)
	if err != nil {
		return nil, err
	}
	mapped, err := lp.mapRows(name, "", rows, ledgerFields, requiredFields, stats)
	if err != nil {
		return nil, err
	}
	return toLedgerRecords(mapped), nil
}

// parseXLSX reads the configured sheet, or every sheet whose header resolves
func (lp *LedgerParser) parseXLSX(name string, content []byte, stats *ParseStats) ([]models.LedgerRecord, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, name, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if lp.config.Sheet != "" {
		sheets = []string{lp.config.Sheet}
	}

	var records []models.LedgerRecord
	var firstErr error
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidFormat, name, 0, sheet, "", err)
		}
		if len(rows) == 0 {
			continue
		}

		mapped, err := lp.mapRows(name, sheet, rows, ledgerFields, requiredFields, stats)
		if err != nil {
			// Side sheets (pivots, notes) are expected in multi-sheet workbooks.
			if lp.config.Sheet == "" && isMissingColumn(err) {
				lp.logger.WithFields(logger.Fields{logger.FieldFile: filepath.Base(name), "sheet": sheet}).
					Debug("Sheet has no ledger header, skipping")
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			return nil, err
		}
		records = append(records, toLedgerRecords(mapped)...)
	}

	if len(records) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return records, nil
}

func isMissingColumn(err error) bool {
	re, ok := errors.AsReconcilerError(err)
	return ok && re.Code == errors.CodeMissingColumn
}

func toLedgerRecords(rows []row) []models.LedgerRecord {
	out := make([]models.LedgerRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.LedgerRecord{
			Identifier:   r.get(FieldIdentifier),
			NetAmount:    r.get(FieldAmount),
			Date:         r.get(FieldDate),
			Supplier:     r.get(FieldSupplier),
			Collaborator: r.get(FieldCollaborator),
			Source:       r.source,
		})
	}
	return out
}
