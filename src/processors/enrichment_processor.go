package processors

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bherila/k1flow/src/models"
)

// EnrichmentProcessor fills in fields that are not source-specific after
// normalization: option contract details parsed out of the symbol column
// and a transaction type inferred from the description when the source had
// no type column.
type EnrichmentProcessor struct{}

func NewEnrichmentProcessor() *EnrichmentProcessor { return &EnrichmentProcessor{} }

// osiSymbolRe matches OCC-style option symbols: underlying, yymmdd expiry,
// C or P, strike in thousandths. Example: "AAPL  250117C00150000".
var osiSymbolRe = regexp.MustCompile(`^([A-Z]{1,6})\s*(\d{6})([CP])(\d{8})$`)

// verboseOptionRe matches broker trade-report symbols like
// "AAPL 17JAN25 150 C" or "SPY 20DEC24 450.5 P".
var verboseOptionRe = regexp.MustCompile(`^([A-Z]{1,6})\s+(\d{1,2})([A-Z]{3})(\d{2})\s+(\d+(?:\.\d+)?)\s+([CP])$`)

var monthAbbrevs = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// typeVerbs maps description keywords to an inferred transaction type,
// checked in order so more specific phrases win.
var typeVerbs = []struct {
	keyword string
	typ     string
}{
	{"dividend", "dividend"},
	{"interest", "interest"},
	{"commission", "fee"},
	{"fee", "fee"},
	{"wire", "transfer"},
	{"transfer", "transfer"},
	{"deposit", "deposit"},
	{"withdrawal", "withdrawal"},
	{"bought", "buy"},
	{"sold", "sell"},
}

// Process enriches items in place and returns the same slice.
func (p *EnrichmentProcessor) Process(items []models.LineItem) []models.LineItem {
	for i := range items {
		p.enrichOption(&items[i])
		p.inferType(&items[i])
	}
	return items
}

// enrichOption recognizes option contracts in the symbol column and
// splits them into underlying, type, strike and expiration. Items that
// already carry option details are left alone.
func (p *EnrichmentProcessor) enrichOption(item *models.LineItem) {
	if item.OptionType != "" || item.Symbol == "" {
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(item.Symbol))

	if m := osiSymbolRe.FindStringSubmatch(symbol); m != nil {
		exp, err := time.Parse("060102", m[2])
		if err != nil {
			return
		}
		strikeThousandths, err := strconv.ParseInt(m[4], 10, 64)
		if err != nil {
			return
		}
		item.Symbol = m[1]
		item.OptionType = optionTypeName(m[3])
		item.OptionStrike = float64(strikeThousandths) / 1000
		expUTC := exp.UTC()
		item.OptionExpiration = &expUTC
		return
	}

	if m := verboseOptionRe.FindStringSubmatch(symbol); m != nil {
		month, ok := monthAbbrevs[m[3]]
		if !ok {
			return
		}
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[4])
		strike, err := strconv.ParseFloat(m[5], 64)
		if err != nil {
			return
		}
		exp := time.Date(2000+year, month, day, 0, 0, 0, 0, time.UTC)
		item.Symbol = m[1]
		item.OptionType = optionTypeName(m[6])
		item.OptionStrike = strike
		item.OptionExpiration = &exp
	}
}

// inferType fills an empty type column from description keywords.
func (p *EnrichmentProcessor) inferType(item *models.LineItem) {
	if item.Type != "" || item.Description == "" {
		return
	}
	desc := strings.ToLower(item.Description)
	for _, v := range typeVerbs {
		if strings.Contains(desc, v.keyword) {
			item.Type = v.typ
			return
		}
	}
}

func optionTypeName(cp string) string {
	if cp == "C" {
		return "CALL"
	}
	return "PUT"
}
