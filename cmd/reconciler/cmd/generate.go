package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/sampledata"
	"invoice-reconciliation-service/pkg/errors"
)

var generateOpts struct {
	outputDir   string
	count       int
	matchRatio  float64
	noiseRatio  float64
	extraLedger int
	startDate   string
	days        int
	minAmount   float64
	maxAmount   float64
	seed        int64
	ledgerType  string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic invoice and ledger dataset",
	Long: `Generate writes invoices.json and a ledger export with a known share of
counterparts, some of them deliberately off (amount drift, shifted date,
dropped PO- prefix, mistyped digit, missing supplier). Use it to try out
tolerances or to measure a large run.

Examples:
  reconciler generate --count 1000 --output-dir ./sample
  reconciler generate --match-ratio 0.7 --noise-ratio 0.4 --ledger-format xlsx --seed 7`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	defaults := sampledata.DefaultConfig()
	flags := generateCmd.Flags()
	flags.StringVar(&generateOpts.outputDir, "output-dir", ".", "directory for the generated files")
	flags.IntVar(&generateOpts.count, "count", defaults.Count, "number of invoices")
	flags.Float64Var(&generateOpts.matchRatio, "match-ratio", defaults.MatchRatio, "share of invoices with a ledger counterpart (0.0-1.0)")
	flags.Float64Var(&generateOpts.noiseRatio, "noise-ratio", defaults.NoiseRatio, "share of counterparts that differ from their invoice (0.0-1.0)")
	flags.IntVar(&generateOpts.extraLedger, "extra-ledger", defaults.ExtraLedger, "ledger rows without any invoice")
	flags.StringVar(&generateOpts.startDate, "start-date", defaults.StartDate.Format("2006-01-02"), "first invoice date (YYYY-MM-DD)")
	flags.IntVar(&generateOpts.days, "days", defaults.Days, "number of days the invoices span")
	flags.Float64Var(&generateOpts.minAmount, "min-amount", defaults.MinAmount.InexactFloat64(), "minimum net amount")
	flags.Float64Var(&generateOpts.maxAmount, "max-amount", defaults.MaxAmount.InexactFloat64(), "maximum net amount")
	flags.Int64Var(&generateOpts.seed, "seed", defaults.Seed, "random seed for reproducible datasets")
	flags.StringVar(&generateOpts.ledgerType, "ledger-format", "csv", "ledger file format: csv or xlsx")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	start, err := time.Parse("2006-01-02", generateOpts.startDate)
	if err != nil {
		return errors.InvalidConfigurationError("start-date", generateOpts.startDate, "use YYYY-MM-DD")
	}

	var writeLedger func(io.Writer, []models.LedgerRecord) error
	switch generateOpts.ledgerType {
	case "csv":
		writeLedger = sampledata.WriteLedgerCSV
	case "xlsx":
		writeLedger = sampledata.WriteLedgerXLSX
	default:
		return errors.InvalidConfigurationError("ledger-format", generateOpts.ledgerType, "expected csv or xlsx")
	}

	cfg := sampledata.DefaultConfig()
	cfg.Count = generateOpts.count
	cfg.MatchRatio = generateOpts.matchRatio
	cfg.NoiseRatio = generateOpts.noiseRatio
	cfg.ExtraLedger = generateOpts.extraLedger
	cfg.StartDate = start
	cfg.Days = generateOpts.days
	cfg.MinAmount = decimal.NewFromFloat(generateOpts.minAmount)
	cfg.MaxAmount = decimal.NewFromFloat(generateOpts.maxAmount)
	cfg.Seed = generateOpts.seed

	ds, err := sampledata.Generate(cfg)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "generate", nil, err)
	}

	if err := os.MkdirAll(generateOpts.outputDir, 0o755); err != nil {
		return errors.FileError(errors.CodeFilePermission, generateOpts.outputDir, err)
	}

	invoicePath := filepath.Join(generateOpts.outputDir, "invoices.json")
	if err := createFile(invoicePath, func(w io.Writer) error { return sampledata.WriteInvoicesJSON(w, ds.Invoices) }); err != nil {
		return err
	}
	ledgerPath := filepath.Join(generateOpts.outputDir, "ledger."+generateOpts.ledgerType)
	if err := createFile(ledgerPath, func(w io.Writer) error { return writeLedger(w, ds.Ledger) }); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generated %d invoices in %s\n", len(ds.Invoices), invoicePath)
	fmt.Fprintf(out, "Generated %d ledger rows in %s\n", len(ds.Ledger), ledgerPath)
	fmt.Fprintf(out, "Counterparts: %d (%d clean)\n", len(ds.Pairs), ds.Clean())
	fmt.Fprintf(out, "Seed used: %d\n", cfg.Seed)
	return nil
}

func createFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return errors.Wrap(err, errors.CategoryFile, errors.CodeFileCorrupted, "failed to write "+path)
	}
	if err := file.Close(); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}
