// Package quality derives a read-only quality report from a reconciliation
// result: rates, a weighted score mapped to a letter grade, an analysis of
// the amount discrepancies and plain-language recommendations.
package quality

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/reconciler"
)

// Grade is a letter grade from A to F
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeFor maps a 0-100 score to its grade
func GradeFor(score float64) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// Assessment returns a one-word label for the grade
func (g Grade) Assessment() string {
	switch g {
	case GradeA:
		return "Excellent"
	case GradeB:
		return "Very good"
	case GradeC:
		return "Fair"
	case GradeD:
		return "Passable"
	default:
		return "Insufficient"
	}
}

// Weights combine the three rates into the quality score. They should sum to 1.
type Weights struct {
	MatchRate  float64 `json:"match_rate" yaml:"match_rate" mapstructure:"match_rate"`
	Coverage   float64 `json:"coverage" yaml:"coverage" mapstructure:"coverage"`
	Confidence float64 `json:"confidence" yaml:"confidence" mapstructure:"confidence"`
}

// DefaultWeights returns 0.90 match rate, 0.05 coverage, 0.05 confidence
func DefaultWeights() Weights {
	return Weights{MatchRate: 0.90, Coverage: 0.05, Confidence: 0.05}
}

// largeDiscrepancy is the average absolute delta above which a recommendation is made.
var largeDiscrepancy = decimal.NewFromInt(50)

// DiscrepancyAnalysis summarizes the absolute amount deltas of discrepancies
type DiscrepancyAnalysis struct {
	Count   int             `json:"count" yaml:"count"`
	Total   decimal.Decimal `json:"total" yaml:"total"`
	Average decimal.Decimal `json:"average" yaml:"average"`
	Max     decimal.Decimal `json:"max" yaml:"max"`
	Min     decimal.Decimal `json:"min" yaml:"min"`
}

// PhasePerformance is the contribution of one matching phase
type PhasePerformance struct {
	Phase             string  `json:"phase" yaml:"phase"`
	Matches           int     `json:"matches" yaml:"matches"`
	Discrepancies     int     `json:"discrepancies" yaml:"discrepancies"`
	AverageConfidence float64 `json:"average_confidence" yaml:"average_confidence"`
}

// QualityReport is recomputed from a result whenever it is needed.
// Rates are fractions in [0, 1]; Score and AverageConfidence are on 0-100.
type QualityReport struct {
	TotalInvoices   int `json:"total_invoices" yaml:"total_invoices"`
	TotalLedgerRows int `json:"total_ledger_rows" yaml:"total_ledger_rows"`
	Matches         int `json:"matches" yaml:"matches"`
	Discrepancies   int `json:"discrepancies" yaml:"discrepancies"`
	OrphanInvoices  int `json:"orphan_invoices" yaml:"orphan_invoices"`
	OrphanLedger    int `json:"orphan_ledger" yaml:"orphan_ledger"`

	MatchRate         float64 `json:"match_rate" yaml:"match_rate"`
	CoverageRate      float64 `json:"coverage_rate" yaml:"coverage_rate"`
	DiscrepancyRate   float64 `json:"discrepancy_rate" yaml:"discrepancy_rate"`
	AverageConfidence float64 `json:"average_confidence" yaml:"average_confidence"`

	Score           float64  `json:"score" yaml:"score"`
	Grade           Grade    `json:"grade" yaml:"grade"`
	Assessment      string   `json:"assessment" yaml:"assessment"`
	Recommendations []string `json:"recommendations" yaml:"recommendations"`

	DiscrepancyAnalysis DiscrepancyAnalysis `json:"discrepancy_analysis" yaml:"discrepancy_analysis"`
	PhasePerformance    []PhasePerformance  `json:"phase_performance" yaml:"phase_performance"`
}

// Summarize builds the report with the default weights
func Summarize(result *reconciler.Result) *QualityReport {
	return SummarizeWithWeights(result, DefaultWeights())
}

// SummarizeWithWeights builds the report. A run without invoices grades F.
func SummarizeWithWeights(result *reconciler.Result, w Weights) *QualityReport {
	r := &QualityReport{
		TotalInvoices:   result.Totals.Invoices,
		TotalLedgerRows: result.Totals.LedgerRows,
		Matches:         len(result.Matches),
		Discrepancies:   len(result.Discrepancies),
		OrphanInvoices:  len(result.OrphanInvoices),
		OrphanLedger:    len(result.OrphanLedger),
	}

	if r.TotalInvoices > 0 {
		total := float64(r.TotalInvoices)
		r.MatchRate = round(float64(r.Matches)/total, 4)
		r.CoverageRate = round(float64(r.Matches+r.Discrepancies)/total, 4)
		r.DiscrepancyRate = round(float64(r.Discrepancies)/total, 4)
	}

	if len(result.Matches) > 0 {
		var sum float64
		for _, m := range result.Matches {
			sum += m.Confidence
		}
		r.AverageConfidence = round(sum/float64(len(result.Matches)), 2)
	}

	r.Score = Score(r.MatchRate, r.CoverageRate, r.AverageConfidence, w)
	r.Grade = GradeFor(r.Score)
	r.Assessment = r.Grade.Assessment()
	r.DiscrepancyAnalysis = analyzeDiscrepancies(result)

	for _, s := range result.PhaseStats {
		r.PhasePerformance = append(r.PhasePerformance, PhasePerformance{
			Phase:             s.Phase.String(),
			Matches:           s.Matches,
			Discrepancies:     s.Discrepancies,
			AverageConfidence: s.AverageConfidence,
		})
	}

	r.Recommendations = generateRecommendations(r)
	return r
}

// Score combines fractional rates and a 0-100 confidence into a 0-100 score.
func Score(matchRate, coverageRate, avgConfidence float64, w Weights) float64 {
	return round(w.MatchRate*matchRate*100+w.Coverage*coverageRate*100+w.Confidence*avgConfidence, 2)
}

func analyzeDiscrepancies(result *reconciler.Result) DiscrepancyAnalysis {
	a := DiscrepancyAnalysis{
		Count:   len(result.Discrepancies),
		Total:   decimal.Zero,
		Average: decimal.Zero,
		Max:     decimal.Zero,
		Min:     decimal.Zero,
	}

	for i, d := range result.Discrepancies {
		delta := d.AmountDelta.Abs()
		a.Total = a.Total.Add(delta)
		if i == 0 || delta.GreaterThan(a.Max) {
			a.Max = delta
		}
		if i == 0 || delta.LessThan(a.Min) {
			a.Min = delta
		}
	}
	if a.Count > 0 {
		a.Average = a.Total.Div(decimal.NewFromInt(int64(a.Count))).Round(2)
	}
	return a
}

func generateRecommendations(r *QualityReport) []string {
	var recs []string

	if r.MatchRate < 0.80 {
		recs = append(recs, "Low match rate: check that order numbers are consistent between invoices and ledger.")
	}
	if r.CoverageRate < 0.90 {
		recs = append(recs, "Incomplete coverage: check that the source data is complete.")
	}
	if r.OrphanInvoices > 0 {
		recs = append(recs, fmt.Sprintf("%d invoice(s) not reconciled: check the invoice extraction.", r.OrphanInvoices))
	}
	if r.OrphanLedger > 0 {
		recs = append(recs, fmt.Sprintf("%d ledger row(s) not reconciled: check that the ledger is up to date.", r.OrphanLedger))
	}
	if r.DiscrepancyAnalysis.Average.GreaterThan(largeDiscrepancy) {
		recs = append(recs, fmt.Sprintf("Large discrepancies (average %s): check the amounts and rates applied.",
			r.DiscrepancyAnalysis.Average.StringFixed(2)))
	}
	if r.MatchRate >= 0.95 && r.CoverageRate >= 0.95 {
		recs = append(recs, "Excellent match rate: the process is working well.")
	}

	if len(recs) == 0 {
		recs = append(recs, "Reconciliation is working. No priority action required.")
	}
	return recs
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
