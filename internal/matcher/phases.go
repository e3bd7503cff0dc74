package matcher

import (
	"strings"
	"unicode/utf8"

	"github.com/sourcegraph/conc/iter"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// parallelScoringMin is the candidate count below which fuzzy scoring stays
// on the calling goroutine.
const parallelScoringMin = 32

// PhaseMatcher is one matching strategy. Run walks the remaining invoices in
// input order and claims the records it accepts from state.
type PhaseMatcher interface {
	Phase() Phase
	Run(state *RunState) ([]*CandidateMatch, error)
}

// NewPhases returns the four phases in execution order
func NewPhases(config *Config, log logger.Logger) []PhaseMatcher {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	b := phaseBase{
		config: config,
		scorer: NewScorer(config),
		logger: log.WithComponent("matcher"),
	}
	return []PhaseMatcher{
		&ExactPhase{b},
		&PartialPhase{b},
		&FuzzyPhase{b},
		&ContextualPhase{b},
	}
}

type phaseBase struct {
	config *Config
	scorer *Scorer
	logger logger.Logger
}

func (b phaseBase) score(phase Phase, inv *models.NormalizedInvoice, s *scored) {
	s.score = b.scorer.Score(inv.Comparable, s.view, b.config.PhaseWeights.For(phase), b.config.TolerancePct(phase))
}

// claim records the candidate in state and logs it
func (b phaseBase) claim(state *RunState, c *CandidateMatch) error {
	if err := state.Claim(c); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, c.Phase.String()+" phase claim", err)
	}
	b.logger.WithFields(logger.Fields{
		logger.FieldPhase: c.Phase.String(),
		"outcome":         c.Outcome.String(),
		"invoice":         c.Invoice.Index,
		"ledger":          c.LedgerIndexes(),
		"confidence":      c.Confidence,
	}).Debug("Record claimed")
	return nil
}

// reject remembers a candidate that scored below the phase threshold
func (b phaseBase) reject(state *RunState, phase Phase, inv *models.NormalizedInvoice, s scored) {
	ledger := make([]int, len(s.rows))
	for i, l := range s.rows {
		ledger[i] = l.Index
	}
	state.RecordAttempt(inv.Index, Attempt{Phase: phase, Confidence: s.score.Value, Ledger: ledger})
}

func (b phaseBase) fromScored(phase Phase, outcome Outcome, inv *models.NormalizedInvoice, s scored) *CandidateMatch {
	c := newCandidate(phase, inv, s.rows, s.view)
	c.Outcome = outcome
	c.Confidence = s.score.Value
	c.Breakdown = s.score.Breakdown
	return c
}

// ExactPhase matches identical identifiers, summing ledger rows that share one.
type ExactPhase struct{ phaseBase }

func (p *ExactPhase) Phase() Phase { return PhaseExact }

func (p *ExactPhase) Run(state *RunState) ([]*CandidateMatch, error) {
	var out []*CandidateMatch
	for _, inv := range state.RemainingInvoices() {
		rows := state.LedgerByKey(inv.Key)
		if len(rows) == 0 {
			continue
		}

		c := p.evaluate(inv, rows)
		if err := p.claim(state, c); err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *ExactPhase) evaluate(inv *models.NormalizedInvoice, rows []*models.NormalizedLedger) *CandidateMatch {
	tol := p.config.ExactTolerancePct

	if len(rows) > 1 {
		group := newScored(inv, rows, aggregateView(rows))
		if withinTolerance(inv.Amount, group.view.Amount, tol) {
			return p.accept(inv, group)
		}

		// A single row of the group may carry the whole invoice on its own.
		var singles []scored
		for _, r := range rows {
			if withinTolerance(inv.Amount, r.Amount, tol) {
				singles = append(singles, newScored(inv, []*models.NormalizedLedger{r}, r.Comparable))
			}
		}
		if len(singles) > 0 {
			rank(singles, exactOrder)
			return p.accept(inv, singles[0])
		}

		p.score(PhaseExact, inv, &group)
		return p.fromScored(PhaseExact, OutcomeDiscrepancy, inv, group)
	}

	single := newScored(inv, rows, rows[0].Comparable)
	if withinTolerance(inv.Amount, single.view.Amount, tol) {
		return p.accept(inv, single)
	}
	p.score(PhaseExact, inv, &single)
	return p.fromScored(PhaseExact, OutcomeDiscrepancy, inv, single)
}

// accept builds an exact match. Exact matches always carry confidence 100;
// the breakdown still records date and supplier agreement.
func (p *ExactPhase) accept(inv *models.NormalizedInvoice, s scored) *CandidateMatch {
	p.score(PhaseExact, inv, &s)
	c := p.fromScored(PhaseExact, OutcomeMatch, inv, s)
	c.Confidence = 100
	return c
}

// PartialPhase matches identifiers where one is a prefix or suffix of the
// other, such as truncated order numbers.
type PartialPhase struct{ phaseBase }

func (p *PartialPhase) Phase() Phase { return PhasePartial }

func (p *PartialPhase) Run(state *RunState) ([]*CandidateMatch, error) {
	var out []*CandidateMatch
	for _, inv := range state.RemainingInvoices() {
		var cands []scored
		for _, l := range state.RemainingLedger() {
			if !SharesAffix(inv.Key, l.Key, p.config.MinSharedLength) {
				continue
			}
			s := newScored(inv, []*models.NormalizedLedger{l}, l.Comparable)
			p.score(PhasePartial, inv, &s)
			cands = append(cands, s)
		}
		if len(cands) == 0 {
			continue
		}

		rank(cands, partialOrder)
		if cands[0].score.Value < p.config.PartialAcceptanceThreshold {
			p.reject(state, PhasePartial, inv, cands[0])
			continue
		}

		c := p.fromScored(PhasePartial, OutcomeMatch, inv, cands[0])
		if err := p.claim(state, c); err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

// SharesAffix reports whether one identifier starts or ends with the other
// and the shorter one has at least minShared characters. Equal identifiers
// belong to the exact phase and are not reported.
func SharesAffix(a, b string, minShared int) bool {
	if a == b {
		return false
	}
	short, long := a, b
	if utf8.RuneCountInString(short) > utf8.RuneCountInString(long) {
		short, long = long, short
	}
	if utf8.RuneCountInString(short) < minShared {
		return false
	}
	return strings.HasPrefix(long, short) || strings.HasSuffix(long, short)
}

// FuzzyPhase ignores identifiers as a filter and considers every remaining
// row inside the expanded amount tolerance.
type FuzzyPhase struct{ phaseBase }

func (p *FuzzyPhase) Phase() Phase { return PhaseFuzzy }

func (p *FuzzyPhase) Run(state *RunState) ([]*CandidateMatch, error) {
	tol := p.config.FuzzyTolerancePct()

	var out []*CandidateMatch
	for _, inv := range state.RemainingInvoices() {
		var rows []*models.NormalizedLedger
		for _, l := range state.RemainingLedger() {
			if withinTolerance(inv.Amount, l.Amount, tol) {
				rows = append(rows, l)
			}
		}
		if len(rows) == 0 {
			continue
		}

		cands := p.scoreAll(inv, rows)
		rank(cands, fuzzyOrder)
		if cands[0].score.Value < p.config.FuzzyAcceptanceThreshold {
			p.reject(state, PhaseFuzzy, inv, cands[0])
			continue
		}

		c := p.fromScored(PhaseFuzzy, OutcomeMatch, inv, cands[0])
		if err := p.claim(state, c); err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

// scoreAll scores candidates, concurrently when the set is large. Output
// order matches input order, so ranking is unaffected.
func (p *FuzzyPhase) scoreAll(inv *models.NormalizedInvoice, rows []*models.NormalizedLedger) []scored {
	score := func(l **models.NormalizedLedger) scored {
		s := newScored(inv, []*models.NormalizedLedger{*l}, (*l).Comparable)
		p.score(PhaseFuzzy, inv, &s)
		return s
	}

	if p.config.ParallelScoring && len(rows) >= parallelScoringMin {
		mapper := iter.Mapper[*models.NormalizedLedger, scored]{MaxGoroutines: p.config.MaxParallelism}
		return mapper.Map(rows, score)
	}

	out := make([]scored, len(rows))
	for i := range rows {
		out[i] = score(&rows[i])
	}
	return out
}

// ContextualPhase is the last resort: an invoice is compared with rows of the
// same supplier in the same billing period. Rows whose amount is beyond the
// zero-score delta are never candidates.
type ContextualPhase struct{ phaseBase }

func (p *ContextualPhase) Phase() Phase { return PhaseContextual }

func (p *ContextualPhase) Run(state *RunState) ([]*CandidateMatch, error) {
	var out []*CandidateMatch
	for _, inv := range state.RemainingInvoices() {
		if inv.SupplierKey == "" {
			continue
		}

		var cands []scored
		for _, l := range state.LedgerBySupplier(inv.SupplierKey) {
			if !samePeriod(inv.Comparable, l.Comparable) {
				continue
			}
			s := newScored(inv, []*models.NormalizedLedger{l}, l.Comparable)
			p.score(PhaseContextual, inv, &s)
			if s.score.Breakdown.Amount == 0 {
				continue
			}
			cands = append(cands, s)
		}
		if len(cands) == 0 {
			continue
		}

		rank(cands, contextualOrder)
		best := cands[0]

		var outcome Outcome
		switch {
		case best.score.Value >= p.config.ContextualAcceptanceThreshold:
			outcome = OutcomeMatch
		case best.score.Value >= p.config.PlausibilityFloor():
			outcome = OutcomeDiscrepancy
		default:
			p.reject(state, PhaseContextual, inv, best)
			continue
		}

		c := p.fromScored(PhaseContextual, outcome, inv, best)
		if err := p.claim(state, c); err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

// samePeriod treats an undated side as belonging to every period
func samePeriod(a, b models.Comparable) bool {
	if !a.HasDate() || !b.HasDate() {
		return true
	}
	return a.BillingPeriod() == b.BillingPeriod()
}
