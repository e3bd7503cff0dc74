package models

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

var (
	spreadsheetFloat = regexp.MustCompile(`^(\d+)\.0+$`)
	currencyTokens   = []string{"EUR", "USD", "GBP", "CHF", "€", "$", "£"}
	dateFormats      = []string{
		"2006-01-02",
		"2006/01/02",
		"02/01/2006",
		"02-01-2006",
		"02.01.2006",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		time.RFC3339,
		"02/01/06",
	}
)

// Normalizer canonicalizes identifiers, amounts, dates and suppliers.
// It holds no per-run state and is safe for concurrent use.
type Normalizer struct {
	aliases []supplierAlias
	logger  logger.Logger
}

type supplierAlias struct {
	needle    string
	canonical string
}

// NewNormalizer creates a Normalizer. supplierAliases maps a fragment found
// in a supplier name (e.g. "randstad") to the name every match is folded to.
func NewNormalizer(supplierAliases map[string]string, log logger.Logger) *Normalizer {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	aliases := make([]supplierAlias, 0, len(supplierAliases))
	for needle, canonical := range supplierAliases {
		n := foldSupplier(needle)
		if n == "" {
			continue
		}
		aliases = append(aliases, supplierAlias{needle: n, canonical: foldSupplier(canonical)})
	}
	// Longest fragment first so "select tt" wins over "select".
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i].needle) != len(aliases[j].needle) {
			return len(aliases[i].needle) > len(aliases[j].needle)
		}
		return aliases[i].needle < aliases[j].needle
	})

	return &Normalizer{
		aliases: aliases,
		logger:  log.WithComponent("normalizer"),
	}
}

// NormalizeInvoice converts an invoice record. A MalformedRecordError is
// returned when the identifier or amount cannot be normalized.
func (n *Normalizer) NormalizeInvoice(rec *InvoiceRecord, index int) (*NormalizedInvoice, error) {
	cmp, err := n.normalize(rec.Identifier, rec.NetAmount, rec.Date, rec.Supplier)
	if err != nil {
		n.logger.WithFields(logger.Fields{
			"side":   "invoice",
			"index":  index,
			"source": rec.Source.String(),
		}).WithError(err).Debug("Record excluded from matching")
		return nil, err
	}
	return &NormalizedInvoice{Comparable: cmp, Index: index, Record: rec}, nil
}

// NormalizeLedger converts a ledger record.
func (n *Normalizer) NormalizeLedger(rec *LedgerRecord, index int) (*NormalizedLedger, error) {
	cmp, err := n.normalize(rec.Identifier, rec.NetAmount, rec.Date, rec.Supplier)
	if err != nil {
		n.logger.WithFields(logger.Fields{
			"side":   "ledger",
			"index":  index,
			"source": rec.Source.String(),
		}).WithError(err).Debug("Record excluded from matching")
		return nil, err
	}
	return &NormalizedLedger{Comparable: cmp, Index: index, Record: rec}, nil
}

func (n *Normalizer) normalize(identifier, amount, date, supplier string) (Comparable, error) {
	key, err := NormalizeIdentifier(identifier)
	if err != nil {
		return Comparable{}, err
	}

	value, err := ParseAmount(amount)
	if err != nil {
		return Comparable{}, err
	}

	parsed, _ := ParseDate(date)

	return Comparable{
		Key:         key,
		Amount:      value,
		Date:        parsed,
		SupplierKey: n.CanonicalSupplier(supplier),
	}, nil
}

// CanonicalSupplier folds a supplier name to its comparison key
func (n *Normalizer) CanonicalSupplier(raw string) string {
	folded := foldSupplier(raw)
	if folded == "" {
		return ""
	}
	for _, a := range n.aliases {
		if strings.Contains(folded, a.needle) {
			return a.canonical
		}
	}
	return folded
}

// foldSupplier strips accents and punctuation, lower-cases and collapses spaces.
func foldSupplier(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, raw)
	if err != nil {
		s = raw
	}

	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == '\'':
			// "S.A." and "T.T." fold to "sa" and "tt"
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeIdentifier upper-cases an identifier and drops everything that is
// not a letter or digit. Spreadsheet float artefacts ("5600002101.0") lose
// their fractional suffix first.
func NormalizeIdentifier(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if m := spreadsheetFloat.FindStringSubmatch(s); m != nil {
		s = m[1]
	}

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}

	if b.Len() == 0 {
		return "", errors.MalformedRecordError("identifier", raw, nil)
	}
	return b.String(), nil
}

// ParseAmount parses a monetary amount into a fixed-precision decimal.
//
// Currency symbols and codes, spaces, non-breaking spaces and apostrophes are
// ignored. When both '.' and ',' appear the right-most one is the decimal
// mark. A separator that appears more than once is a thousands separator and
// must be followed by groups of three digits. A single separator followed by
// exactly three digits after a short non-zero lead ("1,000", "12.500") is a
// thousands separator too; any other single separator is a decimal mark.
// Negative amounts use a leading or trailing '-' or parentheses.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, errors.MalformedRecordError("amount", raw, nil)
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	upper := strings.ToUpper(s)
	for _, tok := range currencyTokens {
		upper = strings.ReplaceAll(upper, tok, "")
	}

	var b strings.Builder
	for _, r := range upper {
		switch {
		case unicode.IsSpace(r), r == '\u202f', r == '\'', r == '’':
		default:
			b.WriteRune(r)
		}
	}
	s = b.String()

	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else if strings.HasSuffix(s, "-") {
		negative = !negative
		s = s[:len(s)-1]
	} else {
		s = strings.TrimPrefix(s, "+")
	}

	canonical, ok := canonicalDecimal(s)
	if !ok {
		return decimal.Zero, errors.MalformedRecordError("amount", raw, nil)
	}

	value, err := decimal.NewFromString(canonical)
	if err != nil {
		return decimal.Zero, errors.MalformedRecordError("amount", raw, err)
	}
	if negative {
		value = value.Neg()
	}
	return value, nil
}

// canonicalDecimal rewrites digits with '.'/',' separators as "1234.56".
func canonicalDecimal(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return "", false
		}
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	var thousands, decimalMark string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			thousands, decimalMark = ",", "."
		} else {
			thousands, decimalMark = ".", ","
		}
		if strings.Count(s, decimalMark) > 1 {
			return "", false
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || singleThousands(s, lastComma) {
			thousands = ","
		} else {
			decimalMark = ","
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || singleThousands(s, lastDot) {
			thousands = "."
		} else {
			decimalMark = "."
		}
	}

	intPart, fracPart := s, ""
	if decimalMark != "" {
		idx := strings.LastIndex(s, decimalMark)
		intPart, fracPart = s[:idx], s[idx+1:]
		if fracPart == "" {
			return "", false
		}
	}

	if thousands != "" {
		groups := strings.Split(intPart, thousands)
		if len(groups[0]) == 0 || len(groups[0]) > 3 {
			return "", false
		}
		for _, g := range groups[1:] {
			if len(g) != 3 {
				return "", false
			}
		}
		intPart = strings.Join(groups, "")
	}

	if intPart == "" {
		intPart = "0"
	}
	if fracPart != "" {
		return intPart + "." + fracPart, true
	}
	return intPart, true
}

// singleThousands reports whether the only separator in s, at idx, groups
// thousands: one to three leading digits not starting with 0, then exactly
// three digits. "1,000" and "12.500" qualify; "0,500" and "1,50" do not.
func singleThousands(s string, idx int) bool {
	lead, rest := s[:idx], s[idx+1:]
	return len(rest) == 3 && len(lead) >= 1 && len(lead) <= 3 && lead[0] != '0'
}

// ParseDate parses a calendar date in any of the accepted layouts. The
// second result is false when the value is empty or unparseable; the date is
// then treated as absent.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
