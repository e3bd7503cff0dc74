// Package parsers reads invoices and ledger rows from the documents they are
// exported in and hands them to the engine as raw records.
//
// Ledger files are CSV or XLSX. Invoices come as CSV, JSON or one PDF per
// invoice. Tabular headers are matched against per-field aliases after
// folding case and accents, so "Montant Net", "MONTANT NET" and "montant_net"
// all resolve to the net amount. Values are kept as text; the Normalizer
// decides later what is malformed.
//
// Example usage:
//
//	loader, err := parsers.NewLoader(parsers.DefaultParseConfig(), log)
//	ledger, _, err := loader.LoadLedger(ctx, []string{"january.xlsx", "february.csv"})
//	invoices, _, err := loader.LoadInvoices(ctx, []string{"inv-001.pdf", "batch.json"})
package parsers

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// BaseParser provides the tabular reading shared by every format
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig, log logger.Logger) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &BaseParser{
		config: config,
		logger: log.WithComponent("parsers"),
	}
}

// ParseStats holds statistics about one parsed document
type ParseStats struct {
	File          string
	TotalRows     int
	RecordsParsed int
	SkippedRows   int
	Errors        []*errors.EnhancedParseError
}

// HasErrors returns true if there were any row-level problems
func (ps *ParseStats) HasErrors() bool {
	return len(ps.Errors) > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("%s: %d rows, %d records, %d skipped, %d errors",
		filepath.Base(ps.File), ps.TotalRows, ps.RecordsParsed, ps.SkippedRows, len(ps.Errors))
}

// row is one data row with its cells addressed by standard field name
type row struct {
	source models.SourceRef
	cells  []string
	index  map[string]int
}

func (r row) get(field string) string {
	i, ok := r.index[field]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

func (r row) empty() bool {
	for _, c := range r.cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// readFile loads a whole document, mapping OS errors to file errors
func (bp *BaseParser) readFile(path string) ([]byte, error) {
	bp.logger.WithField("file_path", path).Debug("Opening file")

	content, err := os.ReadFile(path)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", path).Error("Failed to open file")
		switch {
		case os.IsNotExist(err):
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		case os.IsPermission(err):
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		default:
			return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
		}
	}
	return content, nil
}

// readCSV decodes CSV content into rows of cells. The delimiter is sniffed
// from the first line when none is configured.
func (bp *BaseParser) readCSV(path string, content []byte) ([][]string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))

	if bp.config.ValidateEncoding {
		if err := validateEncoding(path, content); err != nil {
			return nil, err
		}
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = bp.config.Delimiter
	if reader.Comma == 0 {
		reader.Comma = sniffDelimiter(content)
	}
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := 0
			if pe, ok := err.(*csv.ParseError); ok {
				line = pe.Line
			}
			return nil, errors.ParseError(errors.CodeInvalidFormat, path, line, "", "", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// validateEncoding checks that the first lines are valid UTF-8 text
func validateEncoding(path string, content []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(
				errors.CodeInvalidFormat,
				path,
				lineNum,
				"encoding",
				"",
				fmt.Errorf("invalid UTF-8 encoding detected"),
			).WithSuggestion("save the file in UTF-8 encoding and try again")
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return nil
}

// sniffDelimiter picks ';' when the first line has more semicolons than
// commas, which is what spreadsheet exports with a French locale produce.
func sniffDelimiter(content []byte) rune {
	first := content
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		first = content[:i]
	}
	switch {
	case bytes.Count(first, []byte(";")) > bytes.Count(first, []byte(",")):
		return ';'
	case bytes.Count(first, []byte("\t")) > bytes.Count(first, []byte(",")):
		return '\t'
	default:
		return ','
	}
}

// foldHeader lower-cases, strips accents and reduces punctuation to spaces
func foldHeader(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, raw)
	if err != nil {
		s = raw
	}

	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// resolveHeaders maps each field to the first column whose folded header
// equals one of its folded aliases. A column serves at most one field.
func (bp *BaseParser) resolveHeaders(headers []string, fields []string) map[string]int {
	folded := make([]string, len(headers))
	for i, h := range headers {
		folded[i] = foldHeader(h)
	}

	index := make(map[string]int)
	taken := make(map[int]bool)
	for _, field := range fields {
		for _, alias := range bp.config.ColumnAliases[field] {
			want := foldHeader(alias)
			found := -1
			for i, h := range folded {
				if h == want && !taken[i] {
					found = i
					break
				}
			}
			if found >= 0 {
				index[field] = found
				taken[found] = true
				break
			}
		}
	}
	return index
}

// findHeader scans the first rows for one that names every required field.
// Exports often carry a title block above the table.
func (bp *BaseParser) findHeader(rows [][]string, fields, required []string) (int, map[string]int, bool) {
	limit := bp.config.HeaderSearchRows
	if limit > len(rows) {
		limit = len(rows)
	}

	for i := 0; i < limit; i++ {
		index := bp.resolveHeaders(rows[i], fields)
		complete := true
		for _, f := range required {
			if _, ok := index[f]; !ok {
				complete = false
				break
			}
		}
		if complete {
			return i, index, true
		}
	}
	return -1, nil, false
}

// mapRows turns a table into rows addressed by field. Rows without an
// identifier and without an amount (blank lines, subtotals) are skipped and
// reported; everything else is kept for the Normalizer to judge.
func (bp *BaseParser) mapRows(file, sheet string, rows [][]string, fields, required []string, stats *ParseStats) ([]row, error) {
	headerAt, index, ok := bp.findHeader(rows, fields, required)
	if !ok {
		var seen []string
		if len(rows) > 0 {
			seen = rows[0]
		}
		err := errors.MissingColumnError(file, required, seen)
		if sheet != "" {
			err.Location.Sheet = sheet
		}
		return nil, err
	}

	bp.logger.WithFields(logger.Fields{
		logger.FieldFile: filepath.Base(file),
		"sheet":          sheet,
		"header_row":     headerAt + 1,
		"columns":        len(index),
	}).Debug("Resolved header columns")

	collector := errors.NewParseErrorCollector(bp.config.MaxErrors)
	var out []row

	for i := headerAt + 1; i < len(rows); i++ {
		r := row{
			source: models.SourceRef{File: filepath.Base(file), Sheet: sheet, Line: i + 1},
			cells:  rows[i],
			index:  index,
		}
		stats.TotalRows++
		if r.empty() {
			stats.SkippedRows++
			continue
		}

		if r.get(FieldIdentifier) == "" && r.get(FieldAmount) == "" {
			stats.SkippedRows++
			perr := errors.EmptyValueError(file, i+1, FieldIdentifier).
				WithLineContent(strings.Join(rows[i], " | "))
			perr.Location.Sheet = sheet
			stats.Errors = append(stats.Errors, perr)
			if !collector.Add(perr) {
				return nil, errors.NewEnhancedParseError(errors.CodeInvalidData,
					&errors.ParseContext{File: file, Sheet: sheet, Line: i + 1},
					fmt.Sprintf("too many unusable rows (%d)", len(collector.GetErrors())), nil).
					WithSuggestion("check that the right sheet and header row are used")
			}
			continue
		}

		out = append(out, r)
	}

	return out, nil
}
