package normalizer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bherila/k1flow/src/models"
	"github.com/bherila/k1flow/src/security/validation"
)

// RawRow holds the direct string values of one source row as extracted by a
// format parser. Parsers only move text into these fields; all coercion
// happens here so every source goes through the same rules.
type RawRow struct {
	LineNumber int

	Date        string
	Type        string
	Description string
	Symbol      string
	Quantity    string
	Price       string
	Commission  string
	Fee         string
	Amount      string
	Debit       string
	Credit      string
	Memo        string
	PostDate    string
	Balance     string

	CUSIP            string
	OptionType       string
	OptionStrike     string
	OptionExpiration string
}

// NormalizationError reports a single row that could not be normalized.
// The row is rejected and reported; sibling rows still proceed.
type NormalizationError struct {
	Line   int
	Field  string
	Value  string
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("row %d: field %s: cannot interpret %q: %s", e.Line, e.Field, e.Value, e.Reason)
}

// Date pattern recognizers, tried in order. The first layout that parses
// wins. Padded and unpadded variants are listed separately because
// time.Parse requires exactly two digits for zero-padded verbs.
var dateLayouts = []string{
	"2006-01-02",          // ISO
	"02 Jan 2006",         // DD MMM YYYY
	"2 Jan 2006",          // D MMM YYYY
	"Jan 2 '06",           // MMM D 'YY
	"01/02/2006",          // MM/DD/YYYY
	"1/2/2006",            // M/D/YYYY
	"1/2/06",              // M/D/YY
	"January 2, 2006",     // full month name
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05.000Z07:00",
	time.RFC3339,
	"20060102150405", // QFX timestamp
	"20060102",       // QFX compact date
}

// ParseDate tries the fixed, ordered list of date recognizers and returns
// the first successful match, truncated to a UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("no date recognizer matched %q", cleaned)
}

// CleanNumeric strips currency symbols, thousands separators and whitespace
// from a numeric string. Parenthesized values become negative.
func CleanNumeric(s string) string {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.Trim(cleaned, "\"")

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}

	replacer := strings.NewReplacer(
		"$", "", "£", "", "€", "",
		",", "", " ", "", " ", "",
	)
	cleaned = replacer.Replace(cleaned)

	if negative && cleaned != "" && !strings.HasPrefix(cleaned, "-") {
		cleaned = "-" + cleaned
	}
	return cleaned
}

// parseOptionalFloat parses a numeric field, defaulting to zero when the
// value is empty or unparseable. Only the amount field is strict.
func parseOptionalFloat(s string) float64 {
	cleaned := CleanNumeric(s)
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// Verbs that mark a transaction as an outflow when the source encodes
// direction in a type column instead of a signed amount.
var debitVerbs = []string{"withdrawal", "debit", "fee", "charge", "payment", "purchase", "check"}
var creditVerbs = []string{"deposit", "credit", "refund", "interest", "dividend"}

func matchesVerb(typ string, verbs []string) bool {
	lower := strings.ToLower(strings.TrimSpace(typ))
	for _, v := range verbs {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

// Normalize converts one raw row into a canonical line item. A row whose
// date or amount cannot be interpreted is rejected with a
// NormalizationError naming the offending value.
func Normalize(row RawRow) (models.LineItem, error) {
	date, err := ParseDate(row.Date)
	if err != nil {
		return models.LineItem{}, &NormalizationError{Line: row.LineNumber, Field: "date", Value: row.Date, Reason: err.Error()}
	}

	amount, err := normalizeAmount(row)
	if err != nil {
		return models.LineItem{}, err
	}

	item := models.LineItem{
		Date:        date,
		Type:        strings.TrimSpace(row.Type),
		Description: cleanText(row.Description),
		Symbol:      strings.ToUpper(strings.TrimSpace(row.Symbol)),
		Quantity:    parseOptionalFloat(row.Quantity),
		Price:       parseOptionalFloat(row.Price),
		Commission:  parseOptionalFloat(row.Commission),
		Fee:         parseOptionalFloat(row.Fee),
		Amount:      amount,
		Memo:        cleanText(row.Memo),
		CUSIP:       strings.TrimSpace(row.CUSIP),
	}

	if row.PostDate != "" {
		if pd, err := ParseDate(row.PostDate); err == nil {
			item.PostDate = &pd
		}
	}
	if strings.TrimSpace(row.Balance) != "" {
		if bal, err := strconv.ParseFloat(CleanNumeric(row.Balance), 64); err == nil {
			item.AccountBalance = &bal
		}
	}
	if row.OptionType != "" {
		item.OptionType = strings.ToUpper(strings.TrimSpace(row.OptionType))
		item.OptionStrike = parseOptionalFloat(row.OptionStrike)
		if exp, err := ParseDate(row.OptionExpiration); err == nil {
			item.OptionExpiration = &exp
		}
	}

	return item, nil
}

// cleanText strips markup and unprintable characters from free-text fields
// that originate in uploaded files.
func cleanText(s string) string {
	return strings.TrimSpace(validation.SanitizeText(validation.StripUnprintable(s)))
}

// normalizeAmount resolves the signed amount from whichever encoding the
// source used: a signed amount column, separate debit/credit columns, or an
// unsigned amount with a direction verb in the type column.
func normalizeAmount(row RawRow) (float64, error) {
	if strings.TrimSpace(row.Debit) != "" {
		v, err := strconv.ParseFloat(CleanNumeric(row.Debit), 64)
		if err != nil {
			return 0, &NormalizationError{Line: row.LineNumber, Field: "debit", Value: row.Debit, Reason: err.Error()}
		}
		return -abs(v), nil
	}
	if strings.TrimSpace(row.Credit) != "" {
		v, err := strconv.ParseFloat(CleanNumeric(row.Credit), 64)
		if err != nil {
			return 0, &NormalizationError{Line: row.LineNumber, Field: "credit", Value: row.Credit, Reason: err.Error()}
		}
		return abs(v), nil
	}

	cleaned := CleanNumeric(row.Amount)
	if cleaned == "" {
		return 0, &NormalizationError{Line: row.LineNumber, Field: "amount", Value: row.Amount, Reason: "amount is required"}
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, &NormalizationError{Line: row.LineNumber, Field: "amount", Value: row.Amount, Reason: err.Error()}
	}

	// Sources that encode direction in the type column carry unsigned
	// amounts; translate the verb into a sign so downstream logic can
	// treat amount uniformly.
	if amount > 0 && matchesVerb(row.Type, debitVerbs) && !matchesVerb(row.Type, creditVerbs) {
		amount = -amount
	}
	return amount, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
