package custodial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `Statement,Header,Field Name,Field Value
Statement,Data,BrokerName,Example Securities LLC
Statement,Data,Account,U1234567 - Individual
Statement,Data,Period,"January 1, 2024 - March 31, 2024"
Statement,Data,BaseCurrency,USD
Statement,Data,WhenGenerated,"2024-04-02, 06:15:00 EDT"
Net Asset Value,Header,Asset Class,Prior Total,Current Total
Net Asset Value,Data,Cash,1000.00,1200.00
Net Asset Value,Data,Stock,5000.00,5500.00
Open Positions,Header,Symbol,Quantity,Price,Value,Cost Basis
Open Positions,Data,AAPL,100,150.00,15000.00,14250.00
Cash Report,Header,Label,Amount
Cash Report,Data,Starting Cash,1000.00
Cash Report,Data,Ending Cash,1200.00
Change in NAV,Header,Label,Amount
Change in NAV,Data,Mark-to-Market,500.00
Trades,Header,Date,Type,Symbol,Description,Quantity,Price,Commission,Fee,Amount
Trades,Data,2024-02-15,BUY,AAPL,AAPL 100 @ 150.00,100,150.00,1.00,0.35,"-15,001.35"
Deposits & Withdrawals,Header,Date,Description,Amount
Deposits & Withdrawals,Data,2024-01-10,Wire In,"10,000.00"
`

func TestParseSections(t *testing.T) {
	rows, statement, err := Parse([]byte(fixture))
	require.NoError(t, err)
	require.NotNil(t, statement)

	assert.Equal(t, "Example Securities LLC", statement.BrokerName)
	assert.Equal(t, "U1234567 - Individual", statement.AccountLabel)
	assert.Equal(t, "January 1, 2024", statement.PeriodStart)
	assert.Equal(t, "March 31, 2024", statement.PeriodEnd)
	assert.Equal(t, "USD", statement.BaseCurrency)
	assert.Equal(t, "2024-04-02, 06:15:00 EDT", statement.StatementDate)

	require.Len(t, statement.NAVRows, 2)
	assert.Equal(t, "Cash", statement.NAVRows[0].AssetClass)
	assert.Equal(t, 1000.00, statement.NAVRows[0].PriorValue)
	assert.Equal(t, 1200.00, statement.NAVRows[0].Value)
	assert.Equal(t, 6700.00, statement.TotalNAV, "total is the sum of current values")

	require.Len(t, statement.Positions, 1)
	assert.Equal(t, "AAPL", statement.Positions[0].Symbol)
	assert.Equal(t, 14250.00, statement.Positions[0].CostBasis)

	require.Len(t, statement.CashReport, 2)
	assert.Equal(t, "Ending Cash", statement.CashReport[1].Label)

	require.Len(t, statement.Performance, 1)
	assert.Equal(t, 500.00, statement.Performance[0].Amount)

	require.Len(t, rows, 2)
	trade := rows[0]
	assert.Equal(t, "2024-02-15", trade.Date)
	assert.Equal(t, "BUY", trade.Type)
	assert.Equal(t, "AAPL", trade.Symbol)
	assert.Equal(t, "100", trade.Quantity)
	assert.Equal(t, "-15,001.35", trade.Amount, "numeric cleanup happens at normalization")

	cash := rows[1]
	assert.Equal(t, "2024-01-10", cash.Date)
	assert.Equal(t, "Wire In", cash.Description)
	assert.Equal(t, "10,000.00", cash.Amount)
}

func TestParseIgnoresHeaderAndUnknownSections(t *testing.T) {
	doc := `Codes,Header,Code,Meaning
Codes,Data,O,Opening trade
Statement,Data,BrokerName,Some Broker
`
	rows, statement, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, "Some Broker", statement.BrokerName)
}

func TestParsePeriodWithoutRange(t *testing.T) {
	doc := "Statement,Data,Period,March 2024\n"
	_, statement, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "March 2024", statement.PeriodStart)
	assert.Empty(t, statement.PeriodEnd)
}

func TestParseNoRecognizedSections(t *testing.T) {
	_, _, err := Parse([]byte("Foo,Data,x,y\nBar,Header,a,b\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recognized statement sections found")
}
