package matcher

import (
	"sort"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/models"
)

// scored is a ledger candidate evaluated against one invoice.
type scored struct {
	rows     []*models.NormalizedLedger
	view     models.Comparable
	score    Score
	absDelta decimal.Decimal
	gap      int // -1 when undated
}

func newScored(inv *models.NormalizedInvoice, rows []*models.NormalizedLedger, view models.Comparable) scored {
	s := scored{
		rows:     rows,
		view:     view,
		absDelta: inv.Amount.Sub(view.Amount).Abs(),
		gap:      -1,
	}
	if inv.HasDate() && view.HasDate() {
		s.gap = models.DaysBetween(inv.Date, view.Date)
	}
	return s
}

func (s scored) firstIndex() int {
	return s.rows[0].Index
}

// comparator returns -1, 0 or 1; the first non-zero comparator decides.
type comparator func(a, b scored) int

func byScore(a, b scored) int {
	switch {
	case a.score.Value > b.score.Value:
		return -1
	case a.score.Value < b.score.Value:
		return 1
	}
	return 0
}

func byAmountDelta(a, b scored) int {
	return a.absDelta.Cmp(b.absDelta)
}

// byEarliestDate puts undated candidates last
func byEarliestDate(a, b scored) int {
	switch {
	case a.view.HasDate() && !b.view.HasDate():
		return -1
	case !a.view.HasDate() && b.view.HasDate():
		return 1
	case !a.view.HasDate():
		return 0
	case a.view.Date.Before(b.view.Date):
		return -1
	case b.view.Date.Before(a.view.Date):
		return 1
	}
	return 0
}

func bySupplierAgreement(a, b scored) int {
	sa, sb := a.score.Breakdown.Supplier, b.score.Breakdown.Supplier
	switch {
	case sa > sb:
		return -1
	case sa < sb:
		return 1
	}
	return 0
}

// byDateProximity puts undated candidates last
func byDateProximity(a, b scored) int {
	switch {
	case a.gap >= 0 && b.gap < 0:
		return -1
	case a.gap < 0 && b.gap >= 0:
		return 1
	case a.gap < b.gap:
		return -1
	case a.gap > b.gap:
		return 1
	}
	return 0
}

// byInputOrder makes every ordering total so results never depend on map
// iteration or scheduling.
func byInputOrder(a, b scored) int {
	switch {
	case a.firstIndex() < b.firstIndex():
		return -1
	case a.firstIndex() > b.firstIndex():
		return 1
	}
	return 0
}

var (
	exactOrder      = []comparator{byAmountDelta, byEarliestDate, byInputOrder}
	partialOrder    = []comparator{byScore, byAmountDelta, byEarliestDate, byInputOrder}
	fuzzyOrder      = []comparator{byScore, bySupplierAgreement, byDateProximity, byInputOrder}
	contextualOrder = []comparator{byScore, byAmountDelta, byEarliestDate, byInputOrder}
)

// rank sorts candidates best first using the given tie-break chain.
func rank(cands []scored, order []comparator) {
	sort.SliceStable(cands, func(i, j int) bool {
		for _, cmp := range order {
			if c := cmp(cands[i], cands[j]); c != 0 {
				return c < 0
			}
		}
		return false
	})
}
