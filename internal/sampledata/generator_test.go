package sampledata

import (
	"bytes"
	"math/rand"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/matcher"
	"invoice-reconciliation-service/internal/parsers"
	"invoice-reconciliation-service/internal/reconciler"
	"invoice-reconciliation-service/pkg/logger"
)

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 42

	a, err := Generate(cfg)
	if err != nil {
		t.Fatalf("failed to generate: %v", err)
	}
	b, err := Generate(cfg)
	if err != nil {
		t.Fatalf("failed to generate: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("expected the same dataset for the same seed")
	}

	cfg.Seed = 43
	c, _ := Generate(cfg)
	if reflect.DeepEqual(a.Invoices, c.Invoices) {
		t.Error("expected a different dataset for another seed")
	}
}

func TestGenerateCounts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Count = 50
	cfg.MatchRatio = 0.8
	cfg.ExtraLedger = 7

	ds, err := Generate(cfg)
	if err != nil {
		t.Fatalf("failed to generate: %v", err)
	}

	if len(ds.Invoices) != 50 {
		t.Errorf("expected 50 invoices, got %d", len(ds.Invoices))
	}
	if len(ds.Pairs) != 40 {
		t.Errorf("expected 40 pairs, got %d", len(ds.Pairs))
	}
	if len(ds.Ledger) != 47 {
		t.Errorf("expected 47 ledger rows, got %d", len(ds.Ledger))
	}

	for _, p := range ds.Pairs {
		inv, row := ds.Invoices[p.Invoice], ds.Ledger[p.Ledger]
		switch p.Noise {
		case NoiseNone:
			if row.Identifier != inv.Identifier || row.NetAmount != inv.NetAmount || row.Date != inv.Date {
				t.Errorf("expected clean pair %d to be identical, got %+v and %+v", p.Invoice, inv, row)
			}
		case NoisePrefix:
			if "PO-"+row.Identifier != inv.Identifier {
				t.Errorf("expected prefix dropped, got %s for %s", row.Identifier, inv.Identifier)
			}
		case NoiseTypo:
			if row.Identifier == inv.Identifier || len(row.Identifier) != len(inv.Identifier) {
				t.Errorf("expected one changed digit, got %s for %s", row.Identifier, inv.Identifier)
			}
		case NoiseAmount:
			a := decimal.RequireFromString(inv.NetAmount)
			b := decimal.RequireFromString(row.NetAmount)
			if b.Sub(a).Abs().GreaterThan(a.Mul(decimal.NewFromFloat(0.006))) {
				t.Errorf("expected drift within half a percent, got %s for %s", b, a)
			}
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative count", func(c *Config) { c.Count = -1 }},
		{"match ratio above one", func(c *Config) { c.MatchRatio = 1.5 }},
		{"negative noise", func(c *Config) { c.NoiseRatio = -0.1 }},
		{"no suppliers", func(c *Config) { c.Suppliers = nil }},
		{"no days", func(c *Config) { c.Days = 0 }},
		{"inverted amounts", func(c *Config) { c.MaxAmount = decimal.NewFromInt(1) }},
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestTypo(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		got := typo(rng, "PO-5600001234")
		if got == "PO-5600001234" || len(got) != len("PO-5600001234") {
			t.Fatalf("expected a changed identifier, got %s", got)
		}
		if got[:4] != "PO-5" || got[4] == '6' || got[5:] != "00001234" {
			t.Fatalf("expected only the second digit changed, got %s", got)
		}
	}
	if got := typo(rng, "ABC"); got != "ABCX" {
		t.Errorf("expected ABCX, got %s", got)
	}
}

func TestFrenchAmount(t *testing.T) {
	tests := []struct {
		input, expected string
	}{
		{"1234.56", "1 234,56"},
		{"980.00", "980,00"},
		{"1234567.8", "1 234 567,8"},
		{"-25000.00", "-25 000,00"},
		{"100", "100"},
	}
	for _, tt := range tests {
		if got := frenchAmount(tt.input); got != tt.expected {
			t.Errorf("frenchAmount(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestWrittenFilesParseBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Count = 20
	ds, err := Generate(cfg)
	if err != nil {
		t.Fatalf("failed to generate: %v", err)
	}
	log := logger.Discard()

	var invoices bytes.Buffer
	if err := WriteInvoicesJSON(&invoices, ds.Invoices); err != nil {
		t.Fatalf("failed to write invoices: %v", err)
	}
	ip, _ := parsers.NewInvoiceParser(nil, log)
	parsedInvoices, _, err := ip.Parse("invoices.json", invoices.Bytes())
	if err != nil {
		t.Fatalf("failed to parse invoices: %v", err)
	}
	if len(parsedInvoices) != len(ds.Invoices) {
		t.Errorf("expected %d invoices, got %d", len(ds.Invoices), len(parsedInvoices))
	}

	lp, _ := parsers.NewLedgerParser(nil, log)

	var csvLedger bytes.Buffer
	if err := WriteLedgerCSV(&csvLedger, ds.Ledger); err != nil {
		t.Fatalf("failed to write csv ledger: %v", err)
	}
	rows, _, err := lp.Parse("registre.csv", csvLedger.Bytes())
	if err != nil {
		t.Fatalf("failed to parse csv ledger: %v", err)
	}
	if len(rows) != len(ds.Ledger) {
		t.Fatalf("expected %d csv rows, got %d", len(ds.Ledger), len(rows))
	}
	if rows[0].NetAmount != frenchAmount(ds.Ledger[0].NetAmount) {
		t.Errorf("expected amount %s, got %s", frenchAmount(ds.Ledger[0].NetAmount), rows[0].NetAmount)
	}

	var xlsxLedger bytes.Buffer
	if err := WriteLedgerXLSX(&xlsxLedger, ds.Ledger); err != nil {
		t.Fatalf("failed to write xlsx ledger: %v", err)
	}
	rows, _, err = lp.Parse("registre.xlsx", xlsxLedger.Bytes())
	if err != nil {
		t.Fatalf("failed to parse xlsx ledger: %v", err)
	}
	if len(rows) != len(ds.Ledger) {
		t.Errorf("expected %d xlsx rows, got %d", len(ds.Ledger), len(rows))
	}
}

func TestGeneratedDatasetReconciles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Count = 60
	ds, err := Generate(cfg)
	if err != nil {
		t.Fatalf("failed to generate: %v", err)
	}

	result, err := reconciler.Reconcile(ds.Invoices, ds.Ledger, matcher.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to reconcile: %v", err)
	}
	if len(result.Matches) < ds.Clean() {
		t.Errorf("expected at least the %d clean pairs matched, got %d", ds.Clean(), len(result.Matches))
	}
}
