// Package matcher implements the scoring and the four ordered matching
// phases of the invoice to ledger reconciliation engine.
//
// A run walks the invoices through the phases in a fixed order:
//  1. Exact: identical normalized identifiers, with ledger aggregation
//  2. Partial: prefix or suffix identifiers above a minimum shared length
//  3. Fuzzy: any remaining row inside the expanded amount tolerance
//  4. Contextual: same supplier and billing period, last resort
//
// Every phase is greedy and processes invoices in input order. A record
// claimed by one phase is never offered to a later one.
//
// Example usage:
//
//	cfg := matcher.DefaultConfig()
//	cfg.ExactTolerancePct = 0.5
//
//	state := matcher.NewRunState(invoices, ledger)
//	for _, phase := range matcher.NewPhases(cfg, log) {
//		candidates := phase.Run(state)
//		...
//	}
package matcher

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/pkg/errors"
)

// Weights sets the relative importance of each score dimension.
type Weights struct {
	Identifier float64 `json:"identifier" yaml:"identifier" mapstructure:"identifier"`
	Amount     float64 `json:"amount" yaml:"amount" mapstructure:"amount"`
	Date       float64 `json:"date" yaml:"date" mapstructure:"date"`
	Supplier   float64 `json:"supplier" yaml:"supplier" mapstructure:"supplier"`
}

// Total returns the sum of all weights
func (w Weights) Total() float64 {
	return w.Identifier + w.Amount + w.Date + w.Supplier
}

func (w Weights) validate(phase Phase) error {
	setting := fmt.Sprintf("phase_weights.%s", phase)
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"identifier", w.Identifier},
		{"amount", w.Amount},
		{"date", w.Date},
		{"supplier", w.Supplier},
	} {
		if f.value < 0 || math.IsNaN(f.value) {
			return errors.InvalidConfigurationError(setting+"."+f.name, f.value, "weights cannot be negative")
		}
	}
	if w.Total() <= 0 {
		return errors.InvalidConfigurationError(setting, w, "at least one weight must be positive")
	}
	return nil
}

// PhaseWeights holds one weight set per phase.
type PhaseWeights struct {
	Exact      Weights `json:"exact" yaml:"exact" mapstructure:"exact"`
	Partial    Weights `json:"partial" yaml:"partial" mapstructure:"partial"`
	Fuzzy      Weights `json:"fuzzy" yaml:"fuzzy" mapstructure:"fuzzy"`
	Contextual Weights `json:"contextual" yaml:"contextual" mapstructure:"contextual"`
}

// For returns the weights used by phase
func (pw PhaseWeights) For(phase Phase) Weights {
	switch phase {
	case PhaseExact:
		return pw.Exact
	case PhasePartial:
		return pw.Partial
	case PhaseFuzzy:
		return pw.Fuzzy
	default:
		return pw.Contextual
	}
}

// Config holds the tolerances, thresholds and weights of a reconciliation run.
//
// Thresholds are on the 0-100 confidence scale. Tolerances are percentages of
// the invoice amount.
type Config struct {
	// ExactTolerancePct is the relative amount tolerance of the exact phase.
	ExactTolerancePct float64 `json:"exact_tolerance_pct" yaml:"exact_tolerance_pct" mapstructure:"exact_tolerance_pct"`

	// FuzzyToleranceMultiplier widens the exact tolerance for the fuzzy and contextual phases.
	FuzzyToleranceMultiplier float64 `json:"fuzzy_tolerance_multiplier" yaml:"fuzzy_tolerance_multiplier" mapstructure:"fuzzy_tolerance_multiplier"`

	PartialAcceptanceThreshold    float64 `json:"partial_acceptance_threshold" yaml:"partial_acceptance_threshold" mapstructure:"partial_acceptance_threshold"`
	FuzzyAcceptanceThreshold      float64 `json:"fuzzy_acceptance_threshold" yaml:"fuzzy_acceptance_threshold" mapstructure:"fuzzy_acceptance_threshold"`
	ContextualAcceptanceThreshold float64 `json:"contextual_acceptance_threshold" yaml:"contextual_acceptance_threshold" mapstructure:"contextual_acceptance_threshold"`

	// PlausibilityThreshold is the lowest contextual score still reported as a discrepancy.
	PlausibilityThreshold float64 `json:"plausibility_threshold" yaml:"plausibility_threshold" mapstructure:"plausibility_threshold"`

	// DateWindowDays is the gap that still scores full date agreement.
	DateWindowDays int `json:"date_window_days" yaml:"date_window_days" mapstructure:"date_window_days"`

	// DateDecayDays is how far beyond the window the date score reaches zero.
	DateDecayDays int `json:"date_decay_days" yaml:"date_decay_days" mapstructure:"date_decay_days"`

	// AmountZeroScorePct is the relative delta at which the amount score reaches zero.
	AmountZeroScorePct float64 `json:"amount_zero_score_pct" yaml:"amount_zero_score_pct" mapstructure:"amount_zero_score_pct"`

	// PrefixBonus is added to identifier similarity when one key prefixes the other.
	PrefixBonus float64 `json:"prefix_bonus" yaml:"prefix_bonus" mapstructure:"prefix_bonus"`

	// MinSharedLength is the shortest identifier overlap the partial phase accepts.
	MinSharedLength int `json:"min_shared_length" yaml:"min_shared_length" mapstructure:"min_shared_length"`

	// ParallelScoring scores fuzzy candidates concurrently. Claims stay serialized.
	ParallelScoring bool `json:"parallel_scoring" yaml:"parallel_scoring" mapstructure:"parallel_scoring"`
	MaxParallelism  int  `json:"max_parallelism" yaml:"max_parallelism" mapstructure:"max_parallelism"`

	PhaseWeights PhaseWeights `json:"phase_weights" yaml:"phase_weights" mapstructure:"phase_weights"`
}

// DefaultConfig returns the tuned defaults
func DefaultConfig() *Config {
	return &Config{
		ExactTolerancePct:             1.0,
		FuzzyToleranceMultiplier:      5.0,
		PartialAcceptanceThreshold:    70,
		FuzzyAcceptanceThreshold:      55,
		ContextualAcceptanceThreshold: 40,
		PlausibilityThreshold:         35,
		DateWindowDays:                3,
		DateDecayDays:                 30,
		AmountZeroScorePct:            50,
		PrefixBonus:                   15,
		MinSharedLength:               4,
		ParallelScoring:               true,
		MaxParallelism:                4,
		PhaseWeights: PhaseWeights{
			Exact:      Weights{Identifier: 0.5, Amount: 0.3, Date: 0.1, Supplier: 0.1},
			Partial:    Weights{Identifier: 0.4, Amount: 0.35, Date: 0.15, Supplier: 0.1},
			Fuzzy:      Weights{Identifier: 0.1, Amount: 0.45, Date: 0.3, Supplier: 0.15},
			Contextual: Weights{Identifier: 0.3, Amount: 0.5, Date: 0.1, Supplier: 0.1},
		},
	}
}

// Validate rejects configurations that would make results meaningless.
// Every failure is an InvalidConfigurationError.
func (c *Config) Validate() error {
	if c == nil {
		return errors.InvalidConfigurationError("config", nil, "configuration is required")
	}

	positive := []struct {
		name  string
		value float64
	}{
		{"exact_tolerance_pct", c.ExactTolerancePct},
		{"fuzzy_tolerance_multiplier", c.FuzzyToleranceMultiplier},
		{"partial_acceptance_threshold", c.PartialAcceptanceThreshold},
		{"fuzzy_acceptance_threshold", c.FuzzyAcceptanceThreshold},
		{"contextual_acceptance_threshold", c.ContextualAcceptanceThreshold},
		{"plausibility_threshold", c.PlausibilityThreshold},
		{"amount_zero_score_pct", c.AmountZeroScorePct},
	}
	for _, p := range positive {
		if !(p.value > 0) {
			return errors.InvalidConfigurationError(p.name, p.value, "must be positive")
		}
	}

	for _, t := range []struct {
		name  string
		value float64
	}{
		{"partial_acceptance_threshold", c.PartialAcceptanceThreshold},
		{"fuzzy_acceptance_threshold", c.FuzzyAcceptanceThreshold},
		{"contextual_acceptance_threshold", c.ContextualAcceptanceThreshold},
	} {
		if t.value > 100 {
			return errors.InvalidConfigurationError(t.name, t.value, "thresholds are on a 0-100 scale")
		}
	}

	if c.DateWindowDays < 0 {
		return errors.InvalidConfigurationError("date_window_days", c.DateWindowDays, "cannot be negative")
	}
	if c.DateDecayDays <= 0 {
		return errors.InvalidConfigurationError("date_decay_days", c.DateDecayDays, "must be positive")
	}
	if c.PrefixBonus < 0 || c.PrefixBonus > 100 {
		return errors.InvalidConfigurationError("prefix_bonus", c.PrefixBonus, "must be between 0 and 100")
	}
	if c.MinSharedLength < 1 {
		return errors.InvalidConfigurationError("min_shared_length", c.MinSharedLength, "must be at least 1")
	}
	if c.ParallelScoring && c.MaxParallelism < 1 {
		return errors.InvalidConfigurationError("max_parallelism", c.MaxParallelism, "must be at least 1 when parallel scoring is on")
	}

	for _, phase := range AllPhases() {
		if err := c.PhaseWeights.For(phase).validate(phase); err != nil {
			return err
		}
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// PlausibilityFloor is the lowest contextual score claimed as a discrepancy.
// It never exceeds the contextual acceptance threshold.
func (c *Config) PlausibilityFloor() float64 {
	return math.Min(c.PlausibilityThreshold, c.ContextualAcceptanceThreshold)
}

// FuzzyTolerancePct is the expanded tolerance used after the identifier phases.
func (c *Config) FuzzyTolerancePct() float64 {
	return c.ExactTolerancePct * c.FuzzyToleranceMultiplier
}

// TolerancePct returns the amount tolerance a phase scores with
func (c *Config) TolerancePct(phase Phase) float64 {
	switch phase {
	case PhaseFuzzy, PhaseContextual:
		return c.FuzzyTolerancePct()
	default:
		return c.ExactTolerancePct
	}
}

// AmountTolerance converts a percentage into an absolute tolerance for amount.
func AmountTolerance(amount decimal.Decimal, pct float64) decimal.Decimal {
	return amount.Abs().Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
}

// AcceptanceThreshold returns the score a phase needs to claim a match.
// The exact phase decides on identifier equality and tolerance instead.
func (c *Config) AcceptanceThreshold(phase Phase) float64 {
	switch phase {
	case PhasePartial:
		return c.PartialAcceptanceThreshold
	case PhaseFuzzy:
		return c.FuzzyAcceptanceThreshold
	case PhaseContextual:
		return c.ContextualAcceptanceThreshold
	default:
		return 100
	}
}

// String returns a human-readable description of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{ExactTolerance: %.2f%%, FuzzyTolerance: %.2f%%, Thresholds: %.0f/%.0f/%.0f, Plausibility: %.0f, DateWindow: %d days}",
		c.ExactTolerancePct, c.FuzzyTolerancePct(),
		c.PartialAcceptanceThreshold, c.FuzzyAcceptanceThreshold, c.ContextualAcceptanceThreshold,
		c.PlausibilityThreshold, c.DateWindowDays)
}
