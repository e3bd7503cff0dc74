package parsers

import (
	"fmt"
	"strings"
)

// Standard field names a header can resolve to
const (
	FieldIdentifier   = "identifier"
	FieldAmount       = "net_amount"
	FieldDate         = "date"
	FieldSupplier     = "supplier"
	FieldCollaborator = "collaborator"
)

// DefaultColumnAliases lists the headers recognised for each field, in
// French and English as found in payment register exports.
func DefaultColumnAliases() map[string][]string {
	return map[string][]string{
		FieldIdentifier: {
			"N° commande", "Numero commande", "Numéro de commande", "Order Number", "Purchase Order",
			"Commande", "PO", "PO Number", "Bon de commande", "identifier", "order_number",
		},
		FieldAmount: {
			"Montant net à payer au fournisseur", "Montant net", "Net Amount", "Total net",
			"Amount", "Montant", "Total", "net_amount",
		},
		FieldDate: {
			"Date relevé", "Statement Date", "Date", "Invoice Date", "Date facture", "Billing Date",
		},
		FieldSupplier: {
			"Fournisseur", "Supplier", "Vendor", "Company", "Société",
		},
		FieldCollaborator: {
			"Collaborateur", "Employee", "Worker", "Consultant", "Contractor",
		},
	}
}

// ParseConfig holds configuration shared by the ledger and invoice parsers
type ParseConfig struct {
	Delimiter        rune                `json:"delimiter" mapstructure:"delimiter"`
	TrimLeadingSpace bool                `json:"trim_leading_space" mapstructure:"trim_leading_space"`
	ValidateEncoding bool                `json:"validate_encoding" mapstructure:"validate_encoding"`
	Sheet            string              `json:"sheet" mapstructure:"sheet"` // xlsx only; empty means every sheet
	HeaderSearchRows int                 `json:"header_search_rows" mapstructure:"header_search_rows"`
	MaxErrors        int                 `json:"max_errors" mapstructure:"max_errors"`
	MaxConcurrency   int                 `json:"max_concurrency" mapstructure:"max_concurrency"`
	ColumnAliases    map[string][]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        0,
		TrimLeadingSpace: true,
		ValidateEncoding: true,
		HeaderSearchRows: 10,
		MaxErrors:        100,
		MaxConcurrency:   4,
		ColumnAliases:    DefaultColumnAliases(),
	}
}

// Validate checks if the parse configuration is valid
func (c *ParseConfig) Validate() error {
	switch c.Delimiter {
	case '"', '\r', '\n':
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}

	if c.HeaderSearchRows <= 0 {
		return fmt.Errorf("header search rows must be positive, got %d", c.HeaderSearchRows)
	}

	if c.MaxErrors < 0 {
		return fmt.Errorf("max errors cannot be negative, got %d", c.MaxErrors)
	}

	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got %d", c.MaxConcurrency)
	}

	for _, field := range []string{FieldIdentifier, FieldAmount} {
		if len(c.ColumnAliases[field]) == 0 {
			return fmt.Errorf("no column aliases configured for %s", field)
		}
	}

	return nil
}

// WithAliases returns a copy whose aliases for field are extended by extra.
// Extra aliases are tried first.
func (c *ParseConfig) WithAliases(field string, extra ...string) *ParseConfig {
	clone := *c
	clone.ColumnAliases = make(map[string][]string, len(c.ColumnAliases))
	for k, v := range c.ColumnAliases {
		clone.ColumnAliases[k] = append([]string(nil), v...)
	}

	var cleaned []string
	for _, e := range extra {
		if e = strings.TrimSpace(e); e != "" {
			cleaned = append(cleaned, e)
		}
	}
	clone.ColumnAliases[field] = append(cleaned, clone.ColumnAliases[field]...)
	return &clone
}
