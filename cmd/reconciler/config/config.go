// Package config turns viper settings (flags, RECONCILER_ environment
// variables, .env and an optional YAML file) into the configuration of each
// component.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/viper"

	"invoice-reconciliation-service/internal/matcher"
	"invoice-reconciliation-service/internal/parsers"
	"invoice-reconciliation-service/internal/quality"
	"invoice-reconciliation-service/internal/reporter"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// Setting keys. Flags are bound to these so a flag, an environment variable
// and a config file entry all address the same value.
const (
	KeyInvoices = "inputs.invoices"
	KeyLedger   = "inputs.ledger"

	KeyReportFormat          = "report.format"
	KeyReportOutput          = "report.output"
	KeyReportMatches         = "report.include_matches"
	KeyReportRecommendations = "report.include_recommendations"
	KeyReportWidth           = "report.table_max_width"
	KeyReportCSVDelimiter    = "report.csv_delimiter"

	KeyParseDelimiter   = "parsing.delimiter"
	KeyParseSheet       = "parsing.sheet"
	KeyParseHeaderRows  = "parsing.header_search_rows"
	KeyParseMaxErrors   = "parsing.max_errors"
	KeyParseConcurrency = "parsing.max_concurrency"
	KeyParseAliases     = "parsing.column_aliases"

	KeyMatching        = "matching"
	KeyQualityWeights  = "quality.weights"
	KeySupplierAliases = "suppliers.aliases"

	KeyHistoryEnabled = "history.enabled"
	KeyHistoryPath    = "history.path"

	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
	KeyLogFile   = "log.file"
	KeyVerbose   = "verbose"
	KeyProgress  = "progress"
)

// Settings is the resolved configuration of one invocation
type Settings struct {
	InvoicePaths    []string
	LedgerPaths     []string
	OutputPath      string
	Matcher         *matcher.Config
	Parse           *parsers.ParseConfig
	Report          *reporter.ReportConfig
	Weights         quality.Weights
	SupplierAliases map[string]string
	HistoryPath     string // empty when history is disabled
	Logger          *logger.Config
	Progress        bool
}

// document is the part of the settings decoded straight into component
// configs. A full Unmarshal goes through every leaf key, so environment
// overrides of nested keys are honoured.
type document struct {
	Matching *matcher.Config `mapstructure:"matching"`
	Quality  struct {
		Weights quality.Weights `mapstructure:"weights"`
	} `mapstructure:"quality"`
}

// DefaultHistoryPath is ~/.reconciler/history.db, or a relative path when
// the home directory is unknown.
func DefaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".reconciler", "history.db")
	}
	return filepath.Join(home, ".reconciler", "history.db")
}

// SetDefaults registers every key so environment variables can override
// nested settings.
func SetDefaults(v *viper.Viper) {
	m := matcher.DefaultConfig()
	v.SetDefault(KeyMatching+".exact_tolerance_pct", m.ExactTolerancePct)
	v.SetDefault(KeyMatching+".fuzzy_tolerance_multiplier", m.FuzzyToleranceMultiplier)
	v.SetDefault(KeyMatching+".partial_acceptance_threshold", m.PartialAcceptanceThreshold)
	v.SetDefault(KeyMatching+".fuzzy_acceptance_threshold", m.FuzzyAcceptanceThreshold)
	v.SetDefault(KeyMatching+".contextual_acceptance_threshold", m.ContextualAcceptanceThreshold)
	v.SetDefault(KeyMatching+".plausibility_threshold", m.PlausibilityThreshold)
	v.SetDefault(KeyMatching+".date_window_days", m.DateWindowDays)
	v.SetDefault(KeyMatching+".date_decay_days", m.DateDecayDays)
	v.SetDefault(KeyMatching+".amount_zero_score_pct", m.AmountZeroScorePct)
	v.SetDefault(KeyMatching+".prefix_bonus", m.PrefixBonus)
	v.SetDefault(KeyMatching+".min_shared_length", m.MinSharedLength)
	v.SetDefault(KeyMatching+".parallel_scoring", m.ParallelScoring)
	v.SetDefault(KeyMatching+".max_parallelism", m.MaxParallelism)

	p := parsers.DefaultParseConfig()
	v.SetDefault(KeyParseDelimiter, "")
	v.SetDefault(KeyParseSheet, "")
	v.SetDefault(KeyParseHeaderRows, p.HeaderSearchRows)
	v.SetDefault(KeyParseMaxErrors, p.MaxErrors)
	v.SetDefault(KeyParseConcurrency, p.MaxConcurrency)

	r := reporter.DefaultReportConfig()
	v.SetDefault(KeyReportFormat, string(r.Format))
	v.SetDefault(KeyReportOutput, "")
	v.SetDefault(KeyReportMatches, r.IncludeMatches)
	v.SetDefault(KeyReportRecommendations, r.IncludeRecommendations)
	v.SetDefault(KeyReportWidth, r.TableMaxWidth)
	v.SetDefault(KeyReportCSVDelimiter, string(r.CSVDelimiter))

	w := quality.DefaultWeights()
	v.SetDefault(KeyQualityWeights+".match_rate", w.MatchRate)
	v.SetDefault(KeyQualityWeights+".coverage", w.Coverage)
	v.SetDefault(KeyQualityWeights+".confidence", w.Confidence)

	v.SetDefault(KeyHistoryEnabled, true)
	v.SetDefault(KeyHistoryPath, DefaultHistoryPath())

	v.SetDefault(KeyLogLevel, string(logger.WarnLevel))
	v.SetDefault(KeyLogFormat, string(logger.TextFormat))
}

// Load resolves and validates the settings held by v
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		InvoicePaths:    v.GetStringSlice(KeyInvoices),
		LedgerPaths:     v.GetStringSlice(KeyLedger),
		OutputPath:      v.GetString(KeyReportOutput),
		SupplierAliases: v.GetStringMapString(KeySupplierAliases),
		Progress:        v.GetBool(KeyProgress),
	}

	doc := document{Matching: matcher.DefaultConfig()}
	doc.Quality.Weights = quality.DefaultWeights()
	if err := v.Unmarshal(&doc); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", nil, err)
	}
	if err := doc.Matching.Validate(); err != nil {
		return nil, err
	}
	s.Matcher = doc.Matching

	var err error
	if s.Parse, err = parseConfig(v); err != nil {
		return nil, err
	}
	if s.Report, err = reportConfig(v); err != nil {
		return nil, err
	}
	if s.Weights, err = checkWeights(doc.Quality.Weights); err != nil {
		return nil, err
	}
	s.Logger = loggerConfig(v)

	if v.GetBool(KeyHistoryEnabled) {
		s.HistoryPath = expandHome(v.GetString(KeyHistoryPath))
	}

	return s, nil
}

func parseConfig(v *viper.Viper) (*parsers.ParseConfig, error) {
	cfg := parsers.DefaultParseConfig()

	delimiter, err := singleRune(v.GetString(KeyParseDelimiter), true)
	if err != nil {
		return nil, errors.InvalidConfigurationError(KeyParseDelimiter, v.GetString(KeyParseDelimiter), err.Error())
	}
	cfg.Delimiter = delimiter
	cfg.Sheet = v.GetString(KeyParseSheet)
	cfg.HeaderSearchRows = v.GetInt(KeyParseHeaderRows)
	cfg.MaxErrors = v.GetInt(KeyParseMaxErrors)
	cfg.MaxConcurrency = v.GetInt(KeyParseConcurrency)

	for field, extra := range v.GetStringMapStringSlice(KeyParseAliases) {
		cfg = cfg.WithAliases(field, extra...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parsing", cfg, err)
	}
	return cfg, nil
}

func reportConfig(v *viper.Viper) (*reporter.ReportConfig, error) {
	cfg := reporter.DefaultReportConfig()
	cfg.Format = reporter.OutputFormat(strings.ToLower(v.GetString(KeyReportFormat)))
	cfg.IncludeMatches = v.GetBool(KeyReportMatches)
	cfg.IncludeRecommendations = v.GetBool(KeyReportRecommendations)
	cfg.TableMaxWidth = v.GetInt(KeyReportWidth)

	delimiter, err := singleRune(v.GetString(KeyReportCSVDelimiter), false)
	if err != nil {
		return nil, errors.InvalidConfigurationError(KeyReportCSVDelimiter, v.GetString(KeyReportCSVDelimiter), err.Error())
	}
	cfg.CSVDelimiter = delimiter

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report", cfg, err).
			WithSuggestion("valid formats are console, json, yaml, csv and xlsx")
	}
	if cfg.Format.Binary() && v.GetString(KeyReportOutput) == "" {
		return nil, errors.InvalidConfigurationError(KeyReportOutput, "", "the xlsx format needs an output file")
	}
	return cfg, nil
}

func checkWeights(w quality.Weights) (quality.Weights, error) {
	if w.MatchRate < 0 || w.Coverage < 0 || w.Confidence < 0 {
		return w, errors.InvalidConfigurationError(KeyQualityWeights, w, "weights cannot be negative")
	}
	if sum := w.MatchRate + w.Coverage + w.Confidence; sum < 0.999 || sum > 1.001 {
		return w, errors.InvalidConfigurationError(KeyQualityWeights, w, fmt.Sprintf("weights must sum to 1, got %.3f", sum))
	}
	return w, nil
}

func loggerConfig(v *viper.Viper) *logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.Level(strings.ToLower(v.GetString(KeyLogLevel)))
	cfg.Format = logger.Format(strings.ToLower(v.GetString(KeyLogFormat)))
	if v.GetBool(KeyVerbose) {
		cfg.Level = logger.DebugLevel
	}
	if file := v.GetString(KeyLogFile); file != "" {
		cfg.Output = logger.FileOutput
		cfg.File = expandHome(file)
	}
	return cfg
}

// singleRune reads a one-character setting. "\t" and "tab" name a tab.
func singleRune(s string, allowEmpty bool) (rune, error) {
	switch s {
	case "":
		if allowEmpty {
			return 0, nil
		}
		return 0, fmt.Errorf("a single character is required")
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("expected a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
