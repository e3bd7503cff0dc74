package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"invoice-reconciliation-service/cmd/reconciler/config"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/parsers"
	"invoice-reconciliation-service/internal/pipeline"
	"invoice-reconciliation-service/internal/reconciler"
	"invoice-reconciliation-service/internal/reporter"
	"invoice-reconciliation-service/internal/store"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile invoices with the payment ledger",
	Long: `Reconcile loads invoice documents and ledger exports, matches them in four
phases and prints a report with the quality grade of the run.

Invoices may be JSON, CSV or PDF files. The ledger may be CSV or XLSX; the
header row is found automatically and French or English column names are
recognised.

Examples:
  # Basic reconciliation
  reconciler reconcile --invoices invoices.json --ledger registre.xlsx

  # Several ledger exports, JSON report to a file
  reconciler reconcile -i invoices.json -l janvier.csv,fevrier.csv \
    --format json --output report.json

  # Wider amount tolerance and date window
  reconciler reconcile -i invoices.json -l registre.csv \
    --exact-tolerance 2 --date-window 7

  # Excel workbook report, without recording the run
  reconciler reconcile -i invoices.json -l registre.csv -f xlsx -o report.xlsx --history=false`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	flags := reconcileCmd.Flags()

	// Inputs
	flags.StringSliceP("invoices", "i", nil, "comma-separated invoice files: .json, .csv or .pdf (required)")
	flags.StringSliceP("ledger", "l", nil, "comma-separated ledger exports: .csv or .xlsx (required)")

	// Output
	flags.StringP("format", "f", string(reporter.FormatConsole), "output format: console, json, yaml, csv, xlsx")
	flags.StringP("output", "o", "", "output file path (default: stdout)")

	// Matching
	flags.Float64("exact-tolerance", 1.0, "amount tolerance of the exact and partial phases, in percent")
	flags.Int("date-window", 3, "days apart at which dates still score full marks")

	// Parsing
	flags.String("sheet", "", "workbook sheet holding the ledger (default: every sheet)")
	flags.String("delimiter", "", "CSV delimiter (default: detected)")

	flags.Bool("history", true, "record the run in the history database")
	flags.Bool("progress", false, "show progress indicators")

	bindFlag(config.KeyInvoices, flags.Lookup("invoices"))
	bindFlag(config.KeyLedger, flags.Lookup("ledger"))
	bindFlag(config.KeyReportFormat, flags.Lookup("format"))
	bindFlag(config.KeyReportOutput, flags.Lookup("output"))
	bindFlag("matching.exact_tolerance_pct", flags.Lookup("exact-tolerance"))
	bindFlag("matching.date_window_days", flags.Lookup("date-window"))
	bindFlag(config.KeyParseSheet, flags.Lookup("sheet"))
	bindFlag(config.KeyParseDelimiter, flags.Lookup("delimiter"))
	bindFlag(config.KeyHistoryEnabled, flags.Lookup("history"))
	bindFlag(config.KeyProgress, flags.Lookup("progress"))
}

// settings of the current reconcile invocation, resolved in PreRunE
var reconcileSettings *config.Settings

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	if len(settings.InvoicePaths) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "invoices", nil, nil).
			WithSuggestion("pass at least one invoice file with --invoices")
	}
	if len(settings.LedgerPaths) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "ledger", nil, nil).
			WithSuggestion("pass at least one ledger export with --ledger")
	}

	for i, path := range settings.InvoicePaths {
		if err := validateFileExists(path, fmt.Sprintf("invoice file %d", i+1)); err != nil {
			return err
		}
	}
	for i, path := range settings.LedgerPaths {
		if err := validateFileExists(path, fmt.Sprintf("ledger file %d", i+1)); err != nil {
			return err
		}
	}

	if settings.OutputPath != "" {
		dir := filepath.Dir(settings.OutputPath)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return errors.FileError(errors.CodeFileNotFound, dir, err).
				WithSuggestion("create the output directory first")
		}
	}

	reconcileSettings = settings
	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.New(errors.CategoryValidation, errors.CodeMissingField, description+" path cannot be empty")
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).
			WithContext("input", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).
			WithContext("input", description)
	}

	if info.IsDir() {
		return errors.New(errors.CategoryFile, errors.CodeUnsupportedFile,
			fmt.Sprintf("%s is a directory, expected a file: %s", description, filePath))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).
			WithContext("input", description)
	}
	file.Close()

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	settings := reconcileSettings
	log := logger.GetGlobalLogger()

	log.WithFields(logger.Fields{
		"invoices": strings.Join(settings.InvoicePaths, ", "),
		"ledger":   strings.Join(settings.LedgerPaths, ", "),
		"format":   settings.Report.Format,
	}).Info("Starting reconciliation")

	loader, err := parsers.NewLoader(settings.Parse, log)
	if err != nil {
		return err
	}

	normalizer := models.NewNormalizer(settings.SupplierAliases, log)
	rec := reconciler.New(settings.Matcher, normalizer, log)

	var recorder pipeline.RunRecorder
	if settings.HistoryPath != "" {
		db, err := store.NewSQLite(ctx, settings.HistoryPath, log)
		if err != nil {
			log.WithError(err).Warn("History database unavailable, the run will not be recorded")
		} else {
			defer db.Close()
			recorder = db
		}
	}

	options := pipeline.Options{Weights: &settings.Weights}
	if settings.Progress {
		stderr := cmd.ErrOrStderr()
		options.OnProgress = func(p logger.ProgressStats) {
			fmt.Fprintf(stderr, "\r[%d/%d] %s (%.0f%% complete)", p.Completed, p.Total, p.Current, p.Percentage)
			if p.Completed == p.Total {
				fmt.Fprintln(stderr)
			}
		}
	}

	runner := pipeline.NewRunner(loader, loader, recorder, rec, options, log)
	out, err := runner.Run(ctx, pipeline.Request{
		InvoicePaths: settings.InvoicePaths,
		LedgerPaths:  settings.LedgerPaths,
	})
	if err != nil {
		return err
	}

	if viper.GetBool(config.KeyVerbose) {
		printParseStats(cmd.ErrOrStderr(), out)
	}

	generator, err := reporter.NewSafeReportGenerator(settings.Report, log)
	if err != nil {
		return err
	}

	var output io.Writer = cmd.OutOrStdout()
	if settings.OutputPath != "" {
		file, err := os.Create(settings.OutputPath)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, settings.OutputPath, err)
		}
		defer file.Close()
		output = file
	}

	if err := generator.GenerateReportSafely(out.Report, output); err != nil {
		return err
	}

	if settings.OutputPath != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Run %s: grade %s (%.2f), report written to %s\n",
			out.RunID, out.Quality.Grade, out.Quality.Score, settings.OutputPath)
	}
	return nil
}

func printParseStats(w io.Writer, out *pipeline.Output) {
	fmt.Fprintf(w, "Run %s\n", out.RunID)
	var rowErrors []*errors.EnhancedParseError
	for _, stats := range append(append([]*parsers.ParseStats{}, out.InvoiceStats...), out.LedgerStats...) {
		if stats != nil {
			fmt.Fprintf(w, "  %s\n", stats)
			rowErrors = append(rowErrors, stats.Errors...)
		}
	}
	fmt.Fprintf(w, "  %d matches, %d discrepancies, %d orphan invoices, %d orphan ledger rows\n",
		out.Quality.Matches, out.Quality.Discrepancies, out.Quality.OrphanInvoices, out.Quality.OrphanLedger)
	if len(rowErrors) > 0 {
		fmt.Fprintf(w, "\n%s\n", errors.FormatParseErrorsForUser(rowErrors))
	}
}
