package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bherila/k1flow/src/models"
)

func TestEnrichOSISymbol(t *testing.T) {
	items := []models.LineItem{{Symbol: "AAPL  250117C00150000", Type: "buy"}}
	NewEnrichmentProcessor().Process(items)

	item := items[0]
	assert.Equal(t, "AAPL", item.Symbol)
	assert.Equal(t, "CALL", item.OptionType)
	assert.Equal(t, 150.0, item.OptionStrike)
	require.NotNil(t, item.OptionExpiration)
	assert.Equal(t, "2025-01-17", item.OptionExpiration.Format("2006-01-02"))
}

func TestEnrichOSIFractionalStrike(t *testing.T) {
	items := []models.LineItem{{Symbol: "SPY241220P00450500"}}
	NewEnrichmentProcessor().Process(items)

	item := items[0]
	assert.Equal(t, "SPY", item.Symbol)
	assert.Equal(t, "PUT", item.OptionType)
	assert.Equal(t, 450.5, item.OptionStrike)
}

func TestEnrichVerboseSymbol(t *testing.T) {
	items := []models.LineItem{{Symbol: "AAPL 17JAN25 150 C"}}
	NewEnrichmentProcessor().Process(items)

	item := items[0]
	assert.Equal(t, "AAPL", item.Symbol)
	assert.Equal(t, "CALL", item.OptionType)
	assert.Equal(t, 150.0, item.OptionStrike)
	require.NotNil(t, item.OptionExpiration)
	assert.Equal(t, time.Date(2025, time.January, 17, 0, 0, 0, 0, time.UTC), *item.OptionExpiration)
}

func TestEnrichLeavesEquitySymbolAlone(t *testing.T) {
	items := []models.LineItem{{Symbol: "AAPL"}}
	NewEnrichmentProcessor().Process(items)

	assert.Equal(t, "AAPL", items[0].Symbol)
	assert.Empty(t, items[0].OptionType)
	assert.Nil(t, items[0].OptionExpiration)
}

func TestEnrichSkipsAlreadyEnriched(t *testing.T) {
	exp := time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC)
	items := []models.LineItem{{Symbol: "MSFT 20JUN25 400 P", OptionType: "PUT", OptionStrike: 400, OptionExpiration: &exp}}
	NewEnrichmentProcessor().Process(items)

	// Symbol is kept in its source form when option details already exist.
	assert.Equal(t, "MSFT 20JUN25 400 P", items[0].Symbol)
}

func TestInferTypeFromDescription(t *testing.T) {
	tests := []struct {
		description string
		want        string
	}{
		{"Ordinary Dividend AAPL", "dividend"},
		{"Credit Interest", "interest"},
		{"Commission Adjustment", "fee"},
		{"Monthly Account Fee", "fee"},
		{"Wire In from Checking", "transfer"},
		{"ACH Transfer", "transfer"},
		{"Cash Deposit", "deposit"},
		{"ATM Withdrawal", "withdrawal"},
		{"Bought 100 AAPL", "buy"},
		{"Sold 50 MSFT", "sell"},
		{"Grocery Store", ""},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			items := []models.LineItem{{Description: tt.description}}
			NewEnrichmentProcessor().Process(items)
			assert.Equal(t, tt.want, items[0].Type)
		})
	}
}

func TestInferTypeKeepsExistingType(t *testing.T) {
	items := []models.LineItem{{Description: "Dividend payment", Type: "credit"}}
	NewEnrichmentProcessor().Process(items)
	assert.Equal(t, "credit", items[0].Type)
}
