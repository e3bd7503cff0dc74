package parsers

import (
	"context"
	"path/filepath"

	"github.com/sourcegraph/conc/iter"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// Loader reads several input files concurrently. Records come back in file
// order, then in row order within each file, regardless of which file
// finished first.
type Loader struct {
	ledger         *LedgerParser
	invoices       *InvoiceParser
	maxConcurrency int
	logger         logger.Logger
}

// LoadResult pairs the records of one file with its parse statistics
type LoadResult[R any] struct {
	Records []R
	Stats   *ParseStats
}

// NewLoader creates a loader sharing one configuration for both sides
func NewLoader(config *ParseConfig, log logger.Logger) (*Loader, error) {
	if config == nil {
		config = DefaultParseConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	ledger, err := NewLedgerParser(config, log)
	if err != nil {
		return nil, err
	}
	invoices, err := NewInvoiceParser(config, log)
	if err != nil {
		return nil, err
	}

	maxConcurrency := config.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	return &Loader{
		ledger:         ledger,
		invoices:       invoices,
		maxConcurrency: maxConcurrency,
		logger:         log.WithComponent("loader"),
	}, nil
}

// LoadLedger parses every ledger file and concatenates the rows
func (l *Loader) LoadLedger(ctx context.Context, paths []string) ([]models.LedgerRecord, []*ParseStats, error) {
	results, err := loadAll(ctx, l, paths, l.ledger.ParseFile)
	if err != nil {
		return nil, nil, err
	}
	records, stats := flatten(results)
	l.logger.WithFields(logger.Fields{"files": len(paths), logger.FieldRecords: len(records)}).Info("Ledger loaded")
	return records, stats, nil
}

// LoadInvoices parses every invoice document and concatenates the records
func (l *Loader) LoadInvoices(ctx context.Context, paths []string) ([]models.InvoiceRecord, []*ParseStats, error) {
	results, err := loadAll(ctx, l, paths, l.invoices.ParseFile)
	if err != nil {
		return nil, nil, err
	}
	records, stats := flatten(results)
	l.logger.WithFields(logger.Fields{"files": len(paths), logger.FieldRecords: len(records)}).Info("Invoices loaded")
	return records, stats, nil
}

func loadAll[R any](
	ctx context.Context,
	l *Loader,
	paths []string,
	parse func(string) ([]R, *ParseStats, error),
) ([]LoadResult[R], error) {
	if len(paths) == 0 {
		return nil, errors.New(errors.CategoryValidation, errors.CodeMissingConfig, "no input files given").
			WithSuggestion("pass at least one file for each side")
	}

	mapper := iter.Mapper[string, LoadResult[R]]{MaxGoroutines: l.maxConcurrency}
	return mapper.MapErr(paths, func(path *string) (LoadResult[R], error) {
		if err := ctx.Err(); err != nil {
			return LoadResult[R]{}, errors.Wrap(err, errors.CategoryInternal, errors.CodeProcessingError, "loading cancelled")
		}

		records, stats, err := parse(*path)
		if err != nil {
			l.logger.WithError(err).WithField(logger.FieldFile, filepath.Base(*path)).Error("Failed to load file")
			return LoadResult[R]{}, err
		}
		if stats.HasErrors() {
			l.logger.WithFields(logger.Fields{
				logger.FieldFile: filepath.Base(*path),
				"errors":         len(stats.Errors),
			}).Warn("File loaded with row errors")
		}
		return LoadResult[R]{Records: records, Stats: stats}, nil
	})
}

func flatten[R any](results []LoadResult[R]) ([]R, []*ParseStats) {
	var records []R
	stats := make([]*ParseStats, 0, len(results))
	for _, r := range results {
		records = append(records, r.Records...)
		stats = append(stats, r.Stats)
	}
	return records, stats
}
