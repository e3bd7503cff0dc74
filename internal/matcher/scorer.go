package matcher

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/models"
)

// Score is a weighted confidence together with the sub-scores behind it.
type Score struct {
	Value     float64
	Breakdown Breakdown
}

// Scorer computes the confidence that an invoice and a ledger view refer to
// the same line item. It is pure and safe for concurrent use.
type Scorer struct {
	dateWindowDays int
	dateDecayDays  int
	amountZeroPct  float64
	prefixBonus    float64
}

// NewScorer creates a Scorer from the run configuration
func NewScorer(config *Config) *Scorer {
	return &Scorer{
		dateWindowDays: config.DateWindowDays,
		dateDecayDays:  config.DateDecayDays,
		amountZeroPct:  config.AmountZeroScorePct,
		prefixBonus:    config.PrefixBonus,
	}
}

// Score combines the sub-scores with weights and normalizes by their total.
// The result is on a 0-100 scale rounded to two decimals.
func (s *Scorer) Score(inv, led models.Comparable, weights Weights, tolerancePct float64) Score {
	b := Breakdown{
		Identifier: s.IdentifierScore(inv.Key, led.Key),
		Amount:     s.AmountScore(inv.Amount, led.Amount, tolerancePct),
		Date:       s.DateScore(inv, led),
		Supplier:   SupplierScore(inv.SupplierKey, led.SupplierKey),
	}

	total := weights.Total()
	if total <= 0 {
		return Score{Breakdown: b}
	}

	value := (b.Identifier*weights.Identifier +
		b.Amount*weights.Amount +
		b.Date*weights.Date +
		b.Supplier*weights.Supplier) / total

	return Score{Value: round2(value), Breakdown: b}
}

// IdentifierScore is 100 for equal keys, otherwise the normalized edit
// similarity plus a bonus when one key is a strict prefix of the other.
func (s *Scorer) IdentifierScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	dist := levenshtein.Distance(a, b, nil)
	score := (1 - float64(dist)/float64(maxLen)) * 100

	if strings.HasPrefix(a, b) || strings.HasPrefix(b, a) {
		score += s.prefixBonus
	}
	return clamp(score)
}

// AmountScore is 100 inside the tolerance band and decays linearly to 0 at
// the zero-score relative delta.
func (s *Scorer) AmountScore(inv, led decimal.Decimal, tolerancePct float64) float64 {
	delta := inv.Sub(led).Abs()
	if delta.LessThanOrEqual(AmountTolerance(inv, tolerancePct)) {
		return 100
	}

	base := inv.Abs()
	if base.IsZero() {
		base = led.Abs()
	}
	rel := delta.Div(base).InexactFloat64()

	tol := tolerancePct / 100
	zero := s.amountZeroPct / 100
	if rel >= zero || zero <= tol {
		return 0
	}
	return clamp(100 * (zero - rel) / (zero - tol))
}

// DateScore is 100 when either side is undated or inside the window, then
// decays linearly to 0 over the decay span.
func (s *Scorer) DateScore(inv, led models.Comparable) float64 {
	if !inv.HasDate() || !led.HasDate() {
		return 100
	}
	gap := models.DaysBetween(inv.Date, led.Date)
	if gap <= s.dateWindowDays {
		return 100
	}
	beyond := float64(gap - s.dateWindowDays)
	return clamp(100 * (1 - beyond/float64(s.dateDecayDays)))
}

// SupplierScore is 100 when both canonical suppliers are present and equal.
func SupplierScore(a, b string) float64 {
	if a != "" && a == b {
		return 100
	}
	return 0
}

// withinTolerance reports whether led is inside pct of inv
func withinTolerance(inv, led decimal.Decimal, pct float64) bool {
	return inv.Sub(led).Abs().LessThanOrEqual(AmountTolerance(inv, pct))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
