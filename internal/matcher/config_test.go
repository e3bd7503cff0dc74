package matcher

import (
	"testing"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if config.ExactTolerancePct != 1.0 {
		t.Errorf("expected exact tolerance 1%%, got %.2f", config.ExactTolerancePct)
	}
	if config.FuzzyTolerancePct() != 5.0 {
		t.Errorf("expected fuzzy tolerance 5%%, got %.2f", config.FuzzyTolerancePct())
	}
	if config.PartialAcceptanceThreshold != 70 || config.FuzzyAcceptanceThreshold != 55 || config.ContextualAcceptanceThreshold != 40 {
		t.Errorf("unexpected thresholds %s", config)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		setting string
	}{
		{"zero exact tolerance", func(c *Config) { c.ExactTolerancePct = 0 }, "exact_tolerance_pct"},
		{"negative multiplier", func(c *Config) { c.FuzzyToleranceMultiplier = -1 }, "fuzzy_tolerance_multiplier"},
		{"zero partial threshold", func(c *Config) { c.PartialAcceptanceThreshold = 0 }, "partial_acceptance_threshold"},
		{"threshold above scale", func(c *Config) { c.FuzzyAcceptanceThreshold = 120 }, "fuzzy_acceptance_threshold"},
		{"negative date window", func(c *Config) { c.DateWindowDays = -1 }, "date_window_days"},
		{"zero decay", func(c *Config) { c.DateDecayDays = 0 }, "date_decay_days"},
		{"shared length", func(c *Config) { c.MinSharedLength = 0 }, "min_shared_length"},
		{"parallelism", func(c *Config) { c.MaxParallelism = 0 }, "max_parallelism"},
		{"negative weight", func(c *Config) { c.PhaseWeights.Fuzzy.Date = -0.1 }, "phase_weights.fuzzy.date"},
		{"several negative weights", func(c *Config) {
			c.PhaseWeights.Partial.Supplier = -1
			c.PhaseWeights.Partial.Amount = -1
			c.PhaseWeights.Partial.Identifier = -1
		}, "phase_weights.partial.identifier"},
		{"all weights zero", func(c *Config) { c.PhaseWeights.Contextual = Weights{} }, "phase_weights.contextual"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.IsInvalidConfiguration(err) {
				t.Fatalf("expected invalid configuration error, got %v", err)
			}
			re, _ := errors.AsReconcilerError(err)
			if got := re.ContextString("setting"); got != tt.setting {
				t.Errorf("expected setting %q, got %q", tt.setting, got)
			}
		})
	}
}

func TestConfigValidateAcceptsWideSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"contextual threshold below plausibility", func(c *Config) { c.ContextualAcceptanceThreshold = 30 }},
		{"plausibility above acceptance", func(c *Config) { c.PlausibilityThreshold = 45 }},
		{"wide exact tolerance", func(c *Config) { c.ExactTolerancePct = 10 }},
		{"expanded tolerance beyond zero point", func(c *Config) { c.FuzzyToleranceMultiplier = 60 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); err != nil {
				t.Errorf("expected config to be accepted, got %v", err)
			}
		})
	}
}

func TestPlausibilityFloor(t *testing.T) {
	config := DefaultConfig()
	if got := config.PlausibilityFloor(); got != 35 {
		t.Errorf("expected floor 35, got %v", got)
	}

	config.ContextualAcceptanceThreshold = 30
	if got := config.PlausibilityFloor(); got != 30 {
		t.Errorf("expected floor clamped to 30, got %v", got)
	}
}

func TestConfigClone(t *testing.T) {
	original := DefaultConfig()
	clone := original.Clone()
	clone.ExactTolerancePct = 2
	clone.PhaseWeights.Exact.Identifier = 0.9

	if original.ExactTolerancePct != 1 || original.PhaseWeights.Exact.Identifier != 0.5 {
		t.Error("expected clone to be independent of the original")
	}
}

func TestAmountTolerance(t *testing.T) {
	got := AmountTolerance(decimal.NewFromInt(-1000), 1)
	if !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected tolerance 10, got %s", got)
	}
}

func TestPhaseString(t *testing.T) {
	expected := []string{"exact", "partial", "fuzzy", "contextual"}
	for i, p := range AllPhases() {
		if p.String() != expected[i] {
			t.Errorf("expected %s, got %s", expected[i], p.String())
		}
		text, _ := p.MarshalText()
		if string(text) != expected[i] {
			t.Errorf("expected text %s, got %s", expected[i], text)
		}
	}
}
