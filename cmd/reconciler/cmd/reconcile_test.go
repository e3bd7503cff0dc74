package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xuri/excelize/v2"

	"invoice-reconciliation-service/internal/reporter"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

const ledgerCSV = "N° commande;Montant net;Date relevé;Fournisseur\n" +
	"5600002101;1 234,56;15/01/2024;ACME\n" +
	"5600002102;980,00;16/01/2024;ACME\n"

const invoicesJSON = `[
  {"identifier": "5600002101", "net_amount": 1234.56, "date": "2024-01-15", "supplier": "Acme"},
  {"identifier": "5600002102", "net_amount": "980.00", "date": "2024-01-16", "supplier": "ACME"}
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	return path
}

// executeCommand runs the root command with fresh flags and settings
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	viper.Reset()
	for key, flag := range boundFlags {
		_ = viper.BindPFlag(key, flag)
	}
	resetFlags(rootCmd)
	cfgFile = ""
	reconcileSettings = nil

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := writeFile(t, tmpDir, "valid.csv", "test")

	tests := []struct {
		name     string
		filePath string
		category errors.ErrorCategory
	}{
		{"valid file", validFile, ""},
		{"empty path", "", errors.CategoryValidation},
		{"non-existent file", "/non/existent/file.csv", errors.CategoryFile},
		{"directory instead of file", tmpDir, errors.CategoryFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "test file")

			if tt.category == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			re, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("expected a ReconcilerError, got %v", err)
			}
			if re.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, re.Category)
			}
		})
	}
}

func TestReconcileAndHistory(t *testing.T) {
	dir := t.TempDir()
	invoices := writeFile(t, dir, "invoices.json", invoicesJSON)
	ledger := writeFile(t, dir, "registre.csv", ledgerCSV)
	db := filepath.Join(dir, "history", "runs.db")

	stdout, _, err := executeCommand(t, "reconcile", "-i", invoices, "-l", ledger, "--format", "json", "--db", db)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	var report reporter.Report
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("expected a JSON report, got %q: %v", stdout, err)
	}
	if report.Quality.Grade != "A" {
		t.Errorf("expected grade A, got %s", report.Quality.Grade)
	}
	if len(report.Matches) != 2 {
		t.Errorf("expected 2 matches, got %d", len(report.Matches))
	}
	if report.Totals.Difference != "0.00" {
		t.Errorf("expected no difference, got %s", report.Totals.Difference)
	}
	if got := report.Metadata.LedgerSources; len(got) != 1 || got[0] != "registre.csv" {
		t.Errorf("expected ledger source registre.csv, got %v", got)
	}
	runID := report.Metadata.RunID
	if runID == "" {
		t.Fatal("expected a run id")
	}

	stdout, _, err = executeCommand(t, "history", "--db", db)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(stdout, runID) || !strings.Contains(stdout, "complete") {
		t.Errorf("expected run %s listed as complete, got:\n%s", runID, stdout)
	}

	stdout, _, err = executeCommand(t, "history", "--db", db, "--grade", "F")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(stdout, "No runs recorded.") {
		t.Errorf("expected no F runs, got:\n%s", stdout)
	}

	stdout, _, err = executeCommand(t, "history", "show", runID, "--db", db)
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	if !strings.Contains(stdout, "invoices.json") || !strings.Contains(stdout, "A (") {
		t.Errorf("expected run details, got:\n%s", stdout)
	}

	_, _, err = executeCommand(t, "history", "show", "missing-run", "--db", db)
	if re, ok := errors.AsReconcilerError(err); !ok || re.Code != errors.CodeRunNotFound {
		t.Errorf("expected run not found, got %v", err)
	}
}

func TestReconcileWritesWorkbook(t *testing.T) {
	dir := t.TempDir()
	invoices := writeFile(t, dir, "invoices.json", invoicesJSON)
	ledger := writeFile(t, dir, "registre.csv", ledgerCSV)
	output := filepath.Join(dir, "report.xlsx")

	_, stderr, err := executeCommand(t, "reconcile", "-i", invoices, "-l", ledger, "-f", "xlsx", "-o", output, "--history=false")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !strings.Contains(stderr, "grade A") {
		t.Errorf("expected a completion line, got %q", stderr)
	}

	f, err := excelize.OpenFile(output)
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex("Matches"); idx < 0 {
		t.Errorf("expected a Matches sheet, got %v", f.GetSheetList())
	}
}

func TestReconcileConfigFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	invoices := writeFile(t, dir, "invoices.json", invoicesJSON)
	ledger := writeFile(t, dir, "registre.csv", ledgerCSV)
	configFile := writeFile(t, dir, "reconciler.yaml", "report:\n  format: yaml\nmatching:\n  date_window_days: 5\n")

	t.Setenv("RECONCILER_HISTORY_ENABLED", "false")

	stdout, _, err := executeCommand(t, "reconcile", "--config", configFile, "-i", invoices, "-l", ledger)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !strings.Contains(stdout, "quality:") || !strings.Contains(stdout, "grade: A") {
		t.Errorf("expected a YAML report, got:\n%s", stdout)
	}
	if reconcileSettings.HistoryPath != "" {
		t.Errorf("expected history disabled from environment, got %s", reconcileSettings.HistoryPath)
	}
	if reconcileSettings.Matcher.DateWindowDays != 5 {
		t.Errorf("expected date window 5 from config file, got %d", reconcileSettings.Matcher.DateWindowDays)
	}
}

func TestReconcileErrors(t *testing.T) {
	dir := t.TempDir()
	invoices := writeFile(t, dir, "invoices.json", invoicesJSON)
	ledger := writeFile(t, dir, "registre.csv", ledgerCSV)
	broken := writeFile(t, dir, "broken.json", `[{"identifier":`)

	tests := []struct {
		name     string
		args     []string
		exitCode int
		code     errors.ErrorCode
	}{
		{
			name:     "missing ledger",
			args:     []string{"reconcile", "-i", invoices},
			exitCode: 4,
			code:     errors.CodeMissingConfig,
		},
		{
			name:     "ledger not found",
			args:     []string{"reconcile", "-i", invoices, "-l", filepath.Join(dir, "absent.csv")},
			exitCode: 2,
			code:     errors.CodeFileNotFound,
		},
		{
			name:     "unknown format",
			args:     []string{"reconcile", "-i", invoices, "-l", ledger, "-f", "pdf"},
			exitCode: 4,
			code:     errors.CodeInvalidConfig,
		},
		{
			name:     "workbook to terminal",
			args:     []string{"reconcile", "-i", invoices, "-l", ledger, "-f", "xlsx"},
			exitCode: 4,
			code:     errors.CodeInvalidConfig,
		},
		{
			name:     "negative tolerance",
			args:     []string{"reconcile", "-i", invoices, "-l", ledger, "--exact-tolerance=-2"},
			exitCode: 4,
			code:     errors.CodeInvalidConfig,
		},
		{
			name:     "malformed invoices",
			args:     []string{"reconcile", "-i", broken, "-l", ledger, "--history=false"},
			exitCode: 3,
			code:     errors.CodeInvalidFormat,
		},
		{
			name:     "missing config file",
			args:     []string{"reconcile", "--config", filepath.Join(dir, "absent.yaml"), "-i", invoices, "-l", ledger},
			exitCode: 4,
			code:     errors.CodeInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommand(t, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}

			re, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("expected a ReconcilerError, got %v", err)
			}
			if re.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, re.Code)
			}

			var out bytes.Buffer
			handler := &CLIErrorHandler{logger: logger.Discard(), out: &out}
			if got := handler.HandleError(err); got != tt.exitCode {
				t.Errorf("expected exit code %d, got %d", tt.exitCode, got)
			}
			if !strings.HasPrefix(out.String(), "Error: ") {
				t.Errorf("expected an error message, got %q", out.String())
			}
		})
	}
}

func TestParseRunFilter(t *testing.T) {
	tests := []struct {
		status, grade string
		limit         int
		wantErr       bool
	}{
		{"", "", 20, false},
		{"Complete", "f", 5, false},
		{"done", "", 20, true},
		{"", "E", 20, true},
		{"", "", -1, true},
	}

	for _, tt := range tests {
		filter, err := parseRunFilter(tt.status, tt.grade, tt.limit)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRunFilter(%q, %q, %d): expected error %v, got %v", tt.status, tt.grade, tt.limit, tt.wantErr, err)
			continue
		}
		if err == nil && string(filter.Grade) != strings.ToUpper(tt.grade) {
			t.Errorf("expected grade %q, got %q", strings.ToUpper(tt.grade), filter.Grade)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := executeCommand(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(stdout, "reconciler dev") {
		t.Errorf("expected version line, got %q", stdout)
	}
}

func TestGenerateThenReconcile(t *testing.T) {
	dir := t.TempDir()

	stdout, _, err := executeCommand(t, "generate", "--output-dir", dir, "--count", "40", "--ledger-format", "xlsx", "--seed", "3")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.Contains(stdout, "Generated 40 invoices") {
		t.Errorf("expected a generation summary, got:\n%s", stdout)
	}

	invoices := filepath.Join(dir, "invoices.json")
	ledger := filepath.Join(dir, "ledger.xlsx")
	stdout, _, err = executeCommand(t, "reconcile", "-i", invoices, "-l", ledger, "-f", "json", "--history=false")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	var report reporter.Report
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("expected a JSON report: %v", err)
	}
	if len(report.Matches) == 0 {
		t.Error("expected generated counterparts to match")
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	tests := [][]string{
		{"generate", "--output-dir", t.TempDir(), "--ledger-format", "pdf"},
		{"generate", "--output-dir", t.TempDir(), "--match-ratio", "2"},
		{"generate", "--output-dir", t.TempDir(), "--start-date", "01/02/2024"},
	}

	for _, args := range tests {
		_, _, err := executeCommand(t, args...)
		re, ok := errors.AsReconcilerError(err)
		if !ok || re.Category != errors.CategoryConfiguration {
			t.Errorf("%v: expected a configuration error, got %v", args[3:], err)
		}
	}
}
