// Package reporter renders reconciliation reports for people and for other
// tools.
//
// Supported output formats:
//   - console: tables for terminal display
//   - json, yaml: structured data for programmatic consumption
//   - csv: one line per match, discrepancy or orphan
//   - xlsx: a workbook with Summary, Matches, Discrepancies and Orphans sheets
//
// Example usage:
//
//	report := reporter.NewReport(result, quality.Summarize(result), meta)
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateReport(report, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatYAML, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// Binary reports whether the format must go to a file rather than a terminal
func (f OutputFormat) Binary() bool {
	return f == FormatXLSX
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	IncludeMatches         bool `json:"include_matches" mapstructure:"include_matches"`
	IncludeDiscrepancies   bool `json:"include_discrepancies" mapstructure:"include_discrepancies"`
	IncludeOrphans         bool `json:"include_orphans" mapstructure:"include_orphans"`
	IncludeRecommendations bool `json:"include_recommendations" mapstructure:"include_recommendations"`

	// Console formatting options
	TableMaxWidth int `json:"table_max_width" mapstructure:"table_max_width"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                 FormatConsole,
		IncludeMatches:         true,
		IncludeDiscrepancies:   true,
		IncludeOrphans:         true,
		IncludeRecommendations: true,
		TableMaxWidth:          120,
		CSVDelimiter:           ',',
		CSVHeaders:             true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}

	switch c.CSVDelimiter {
	case 0, '"', '\r', '\n':
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes the report in the configured format
func (rg *ReportGenerator) GenerateReport(report *Report, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	filtered := rg.filterReportForOutput(report)

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(filtered, writer)
	case FormatJSON:
		return rg.generateJSONReport(filtered, writer)
	case FormatYAML:
		return rg.generateYAMLReport(filtered, writer)
	case FormatCSV:
		return rg.generateCSVReport(filtered, writer)
	case FormatXLSX:
		return rg.generateXLSXReport(filtered, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateJSONReport(report *Report, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(report)
}

func (rg *ReportGenerator) generateYAMLReport(report *Report, writer io.Writer) error {
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode YAML report: %w", err)
	}
	return encoder.Close()
}

var csvHeaders = []string{
	"Type",
	"Phase",
	"Invoice_Index",
	"Invoice_Identifier",
	"Invoice_Amount",
	"Ledger_Indexes",
	"Ledger_Identifier",
	"Ledger_Amount",
	"Amount_Delta",
	"Confidence",
	"Date_Gap_Days",
	"Reason",
	"Notes",
}

// generateCSVReport writes one line per match, discrepancy and orphan
func (rg *ReportGenerator) generateCSVReport(report *Report, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	writeMatches := func(kind string, views []MatchView) error {
		for _, m := range views {
			if err := csvWriter.Write(matchRecord(kind, m)); err != nil {
				return fmt.Errorf("failed to write %s record: %w", strings.ToLower(kind), err)
			}
		}
		return nil
	}
	if err := writeMatches("Match", report.Matches); err != nil {
		return err
	}
	if err := writeMatches("Discrepancy", report.Discrepancies); err != nil {
		return err
	}

	for _, o := range report.Orphans {
		record := make([]string, len(csvHeaders))
		record[11] = o.Reason
		record[12] = o.Detail
		if o.Side == "invoice" {
			record[0] = "Orphan Invoice"
			record[2] = strconv.Itoa(o.Record.Index)
			record[3] = o.Record.Identifier
			record[4] = o.Record.Amount
		} else {
			record[0] = "Orphan Ledger"
			record[5] = strconv.Itoa(o.Record.Index)
			record[6] = o.Record.Identifier
			record[7] = o.Record.Amount
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write orphan record: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func matchRecord(kind string, m MatchView) []string {
	indexes := make([]string, len(m.Ledger))
	identifiers := make([]string, 0, len(m.Ledger))
	for i, l := range m.Ledger {
		indexes[i] = strconv.Itoa(l.Index)
		if i == 0 || l.Identifier != identifiers[len(identifiers)-1] {
			identifiers = append(identifiers, l.Identifier)
		}
	}
	gap := ""
	if m.DateGapDays != nil {
		gap = strconv.Itoa(*m.DateGapDays)
	}
	return []string{
		kind,
		m.Phase,
		strconv.Itoa(m.Invoice.Index),
		m.Invoice.Identifier,
		m.Invoice.Amount,
		strings.Join(indexes, "+"),
		strings.Join(identifiers, "+"),
		m.LedgerAmount,
		m.AmountDelta,
		strconv.FormatFloat(m.Confidence, 'f', 2, 64),
		gap,
		"",
		strings.Join(m.Notes, "; "),
	}
}

// filterReportForOutput drops the sections the configuration excludes
func (rg *ReportGenerator) filterReportForOutput(report *Report) *Report {
	out := *report
	if !rg.config.IncludeMatches {
		out.Matches = nil
	}
	if !rg.config.IncludeDiscrepancies {
		out.Discrepancies = nil
	}
	if !rg.config.IncludeOrphans {
		out.Orphans = nil
	}
	if !rg.config.IncludeRecommendations && out.Quality != nil {
		q := *out.Quality
		q.Recommendations = nil
		out.Quality = &q
	}
	return &out
}

func calculatePercentage(rate float64) string {
	return strconv.FormatFloat(rate*100, 'f', 1, 64) + "%"
}

// UpdateConfiguration replaces the configuration after validating it
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	rg.config = config
	return nil
}

// GetConfiguration returns a copy of the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	configCopy := *rg.config
	return &configCopy
}
