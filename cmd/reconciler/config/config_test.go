package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"invoice-reconciliation-service/internal/parsers"
	"invoice-reconciliation-service/internal/reporter"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load(newViper())
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}

	if s.Matcher.ExactTolerancePct != 1.0 {
		t.Errorf("expected exact tolerance 1, got %v", s.Matcher.ExactTolerancePct)
	}
	if s.Parse.Delimiter != 0 {
		t.Errorf("expected delimiter sniffing, got %q", s.Parse.Delimiter)
	}
	if s.Report.Format != reporter.FormatConsole {
		t.Errorf("expected console format, got %s", s.Report.Format)
	}
	if s.Weights.MatchRate != 0.9 {
		t.Errorf("expected match rate weight 0.9, got %v", s.Weights.MatchRate)
	}
	if s.Logger.Level != logger.WarnLevel {
		t.Errorf("expected warn level, got %s", s.Logger.Level)
	}
	if filepath.Base(s.HistoryPath) != "history.db" {
		t.Errorf("expected history at history.db, got %s", s.HistoryPath)
	}
}

func TestLoadOverrides(t *testing.T) {
	v := newViper()
	v.SetConfigType("yaml")
	yaml := `
matching:
  exact_tolerance_pct: 1.5
  date_window_days: 45
  phase_weights:
    fuzzy:
      identifier: 0.4
      amount: 0.3
      date: 0.2
      supplier: 0.1
parsing:
  delimiter: ";"
  sheet: Feuil1
  column_aliases:
    identifier: ["Ref achat"]
report:
  format: JSON
suppliers:
  aliases:
    "ACME SARL": "acme"
history:
  enabled: false
log:
  format: json
verbose: true
`
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("failed to read config: %v", err)
	}

	s, err := Load(v)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if s.Matcher.ExactTolerancePct != 1.5 {
		t.Errorf("expected exact tolerance 1.5, got %v", s.Matcher.ExactTolerancePct)
	}
	if s.Matcher.DateWindowDays != 45 {
		t.Errorf("expected date window 45, got %d", s.Matcher.DateWindowDays)
	}
	if s.Matcher.PhaseWeights.Fuzzy.Identifier != 0.4 {
		t.Errorf("expected fuzzy identifier weight 0.4, got %v", s.Matcher.PhaseWeights.Fuzzy.Identifier)
	}
	if s.Matcher.FuzzyAcceptanceThreshold != 55 {
		t.Errorf("expected untouched fuzzy threshold 55, got %v", s.Matcher.FuzzyAcceptanceThreshold)
	}
	if s.Parse.Delimiter != ';' {
		t.Errorf("expected delimiter ';', got %q", s.Parse.Delimiter)
	}
	if s.Parse.Sheet != "Feuil1" {
		t.Errorf("expected sheet Feuil1, got %s", s.Parse.Sheet)
	}
	if aliases := s.Parse.ColumnAliases[parsers.FieldIdentifier]; len(aliases) == 0 || aliases[0] != "Ref achat" {
		t.Errorf("expected custom alias first, got %v", aliases)
	}
	if s.Report.Format != reporter.FormatJSON {
		t.Errorf("expected json format, got %s", s.Report.Format)
	}
	if s.SupplierAliases["acme sarl"] != "acme" {
		t.Errorf("expected supplier alias, got %v", s.SupplierAliases)
	}
	if s.HistoryPath != "" {
		t.Errorf("expected history disabled, got %s", s.HistoryPath)
	}
	if s.Logger.Level != logger.DebugLevel || s.Logger.Format != logger.JSONFormat {
		t.Errorf("expected debug json logging, got %s %s", s.Logger.Level, s.Logger.Format)
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("RECONCILER_MATCHING_DATE_WINDOW_DAYS", "10")
	t.Setenv("RECONCILER_REPORT_FORMAT", "yaml")
	t.Setenv("RECONCILER_LOG_FILE", "/var/log/reconciler.log")

	v := newViper()
	v.SetEnvPrefix("RECONCILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	s, err := Load(v)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if s.Matcher.DateWindowDays != 10 {
		t.Errorf("expected date window 10 from environment, got %d", s.Matcher.DateWindowDays)
	}
	if s.Report.Format != reporter.FormatYAML {
		t.Errorf("expected yaml format from environment, got %s", s.Report.Format)
	}
	if s.Logger.Output != logger.FileOutput || s.Logger.File != "/var/log/reconciler.log" {
		t.Errorf("expected file logging from environment, got %s %s", s.Logger.Output, s.Logger.File)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   interface{}
		setting string
	}{
		{"negative tolerance", "matching.exact_tolerance_pct", -1.0, "exact_tolerance_pct"},
		{"two character delimiter", KeyParseDelimiter, ";;", KeyParseDelimiter},
		{"unknown format", KeyReportFormat, "pdf", "report"},
		{"xlsx without output", KeyReportFormat, "xlsx", KeyReportOutput},
		{"empty csv delimiter", KeyReportCSVDelimiter, "", KeyReportCSVDelimiter},
		{"weights off balance", "quality.weights.coverage", 0.5, KeyQualityWeights},
		{"negative weight", "quality.weights.match_rate", -0.1, KeyQualityWeights},
		{"zero header rows", KeyParseHeaderRows, 0, "parsing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			v.Set(tt.key, tt.value)

			_, err := Load(v)
			if err == nil {
				t.Fatal("expected an error")
			}
			re, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("expected a ReconcilerError, got %T", err)
			}
			if re.Category != errors.CategoryConfiguration {
				t.Errorf("expected configuration category, got %s", re.Category)
			}
			if got := re.ContextString("setting"); got != tt.setting {
				t.Errorf("expected setting %s, got %s", tt.setting, got)
			}
		})
	}
}

func TestSingleRune(t *testing.T) {
	tests := []struct {
		input      string
		allowEmpty bool
		expected   rune
		wantErr    bool
	}{
		{"", true, 0, false},
		{"", false, 0, true},
		{";", false, ';', false},
		{`\t`, false, '\t', false},
		{"tab", false, '\t', false},
		{"§", false, '§', false},
		{"ab", false, 0, true},
	}

	for _, tt := range tests {
		got, err := singleRune(tt.input, tt.allowEmpty)
		if (err != nil) != tt.wantErr {
			t.Errorf("singleRune(%q): expected error %v, got %v", tt.input, tt.wantErr, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("singleRune(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/compta")

	if got := expandHome("~/runs/history.db"); got != "/home/compta/runs/history.db" {
		t.Errorf("expected expanded path, got %s", got)
	}
	if got := expandHome("/var/lib/history.db"); got != "/var/lib/history.db" {
		t.Errorf("expected path unchanged, got %s", got)
	}
}
