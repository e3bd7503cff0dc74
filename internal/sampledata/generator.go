// Package sampledata generates synthetic invoice and ledger datasets with a
// known share of counterparts, for trying out tolerances and for load tests.
package sampledata

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/models"
)

// Config controls a generated dataset
type Config struct {
	Count       int     // invoices to generate
	MatchRatio  float64 // share of invoices that get a ledger counterpart
	NoiseRatio  float64 // share of counterparts that differ from their invoice
	ExtraLedger int     // ledger rows without any invoice
	Suppliers   []string
	StartDate   time.Time
	Days        int
	MinAmount   decimal.Decimal
	MaxAmount   decimal.Decimal
	Seed        int64
}

// DefaultConfig returns a small, mostly clean dataset
func DefaultConfig() Config {
	return Config{
		Count:       100,
		MatchRatio:  0.9,
		NoiseRatio:  0.2,
		ExtraLedger: 5,
		Suppliers:   []string{"ACME SARL", "Select TT", "Groupe Martin", "Nordik Conseil", "Atelier Blanc"},
		StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:        90,
		MinAmount:   decimal.NewFromInt(50),
		MaxAmount:   decimal.NewFromInt(25000),
		Seed:        1,
	}
}

// Validate checks the ratios and ranges
func (c Config) Validate() error {
	if c.Count < 0 || c.ExtraLedger < 0 {
		return fmt.Errorf("counts cannot be negative")
	}
	if c.MatchRatio < 0 || c.MatchRatio > 1 {
		return fmt.Errorf("match ratio must be between 0 and 1, got %v", c.MatchRatio)
	}
	if c.NoiseRatio < 0 || c.NoiseRatio > 1 {
		return fmt.Errorf("noise ratio must be between 0 and 1, got %v", c.NoiseRatio)
	}
	if len(c.Suppliers) == 0 {
		return fmt.Errorf("at least one supplier is required")
	}
	if c.Days <= 0 {
		return fmt.Errorf("days must be positive, got %d", c.Days)
	}
	if !c.MinAmount.IsPositive() || c.MaxAmount.LessThan(c.MinAmount) {
		return fmt.Errorf("amount range %s..%s is invalid", c.MinAmount, c.MaxAmount)
	}
	return nil
}

// Noise is the way a counterpart differs from its invoice
type Noise string

const (
	NoiseNone       Noise = "none"
	NoiseAmount     Noise = "amount"     // within half a percent
	NoiseDate       Noise = "date"       // one or two days apart
	NoisePrefix     Noise = "prefix"     // PO- prefix dropped on the ledger side
	NoiseTypo       Noise = "typo"       // one identifier digit changed
	NoiseNoSupplier Noise = "nosupplier" // supplier left empty on the ledger side
)

var noiseKinds = []Noise{NoiseAmount, NoiseDate, NoisePrefix, NoiseTypo, NoiseNoSupplier}

// Pair links an invoice to the ledger row generated for it
type Pair struct {
	Invoice int
	Ledger  int
	Noise   Noise
}

// Dataset is a generated reconciliation input with its answer key
type Dataset struct {
	Invoices []models.InvoiceRecord
	Ledger   []models.LedgerRecord
	Pairs    []Pair
}

// Clean counts the pairs without noise
func (d *Dataset) Clean() int {
	n := 0
	for _, p := range d.Pairs {
		if p.Noise == NoiseNone {
			n++
		}
	}
	return n
}

// Generate builds a dataset. The same config always yields the same data.
func Generate(cfg Config) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	g := &generator{cfg: cfg, rng: rng}

	ds := &Dataset{}
	matchCount := int(float64(cfg.Count) * cfg.MatchRatio)

	for i := 0; i < cfg.Count; i++ {
		inv := g.invoice(i)
		ds.Invoices = append(ds.Invoices, inv)

		if i >= matchCount {
			continue
		}
		noise := NoiseNone
		if rng.Float64() < cfg.NoiseRatio {
			noise = noiseKinds[rng.Intn(len(noiseKinds))]
		}
		ds.Ledger = append(ds.Ledger, g.counterpart(inv, noise))
		ds.Pairs = append(ds.Pairs, Pair{Invoice: i, Ledger: len(ds.Ledger) - 1, Noise: noise})
	}

	for i := 0; i < cfg.ExtraLedger; i++ {
		ds.Ledger = append(ds.Ledger, g.stray(i))
	}

	// Ledger exports are not in invoice order.
	perm := rng.Perm(len(ds.Ledger))
	shuffled := make([]models.LedgerRecord, len(ds.Ledger))
	position := make([]int, len(ds.Ledger))
	for to, from := range perm {
		shuffled[to] = ds.Ledger[from]
		position[from] = to
	}
	ds.Ledger = shuffled
	for i := range ds.Pairs {
		ds.Pairs[i].Ledger = position[ds.Pairs[i].Ledger]
	}

	return ds, nil
}

type generator struct {
	cfg Config
	rng *rand.Rand
}

func (g *generator) amount() decimal.Decimal {
	span := g.cfg.MaxAmount.Sub(g.cfg.MinAmount)
	return decimal.NewFromFloat(g.rng.Float64()).Mul(span).Add(g.cfg.MinAmount).Round(2)
}

func (g *generator) date() time.Time {
	return g.cfg.StartDate.AddDate(0, 0, g.rng.Intn(g.cfg.Days))
}

func (g *generator) supplier() string {
	return g.cfg.Suppliers[g.rng.Intn(len(g.cfg.Suppliers))]
}

func (g *generator) invoice(i int) models.InvoiceRecord {
	return models.InvoiceRecord{
		Identifier: fmt.Sprintf("PO-56%08d", 1000+i),
		NetAmount:  g.amount().StringFixed(2),
		Date:       g.date().Format("2006-01-02"),
		Supplier:   g.supplier(),
	}
}

func (g *generator) counterpart(inv models.InvoiceRecord, noise Noise) models.LedgerRecord {
	row := models.LedgerRecord{
		Identifier: inv.Identifier,
		NetAmount:  inv.NetAmount,
		Date:       inv.Date,
		Supplier:   strings.ToUpper(inv.Supplier),
	}

	switch noise {
	case NoisePrefix:
		row.Identifier = strings.TrimPrefix(inv.Identifier, "PO-")
	case NoiseAmount:
		amount := decimal.RequireFromString(inv.NetAmount)
		drift := decimal.NewFromFloat((g.rng.Float64() - 0.5) * 0.01)
		row.NetAmount = amount.Add(amount.Mul(drift)).Round(2).StringFixed(2)
	case NoiseDate:
		d, _ := time.Parse("2006-01-02", inv.Date)
		days := 1 + g.rng.Intn(2)
		if g.rng.Intn(2) == 0 {
			days = -days
		}
		row.Date = d.AddDate(0, 0, days).Format("2006-01-02")
	case NoiseTypo:
		row.Identifier = typo(g.rng, inv.Identifier)
	case NoiseNoSupplier:
		row.Supplier = ""
	}
	return row
}

func (g *generator) stray(i int) models.LedgerRecord {
	return models.LedgerRecord{
		Identifier: fmt.Sprintf("77%08d", 5000+i),
		NetAmount:  g.amount().StringFixed(2),
		Date:       g.date().Format("2006-01-02"),
		Supplier:   strings.ToUpper(g.supplier()),
	}
}

// typo changes the second digit, which keeps the result clear of every
// generated invoice number
func typo(rng *rand.Rand, id string) string {
	b := []byte(id)
	var digits []int
	for i, c := range b {
		if c >= '0' && c <= '9' {
			digits = append(digits, i)
		}
	}
	if len(digits) == 0 {
		return id + "X"
	}
	pos := digits[min(1, len(digits)-1)]
	b[pos] = '0' + (b[pos]-'0'+1+byte(rng.Intn(8)))%10
	return string(b)
}
