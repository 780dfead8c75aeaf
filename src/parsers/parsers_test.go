package parsers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delimitedCSV = `Date,Description,Amount
2024-03-01,Grocery Store,-42.00
2024-03-02,Salary,1500.00
`

const debitCreditCSV = "Date\tDescription\tWithdrawal\tDeposit\n" +
	"01/05/2024\tATM\t100.00\t\n" +
	"01/06/2024\tPayroll\t\t2000.00\n"

const qfxSample = `OFXHEADER:100
DATA:OFXSGML
<OFX>
<BANKTRANLIST>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240105120000[-5:EST]
<TRNAMT>-42.00
<FITID>9001
<NAME>Grocery Store
<MEMO>card purchase
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240106
<TRNAMT>1500.00
<FITID>9002
<NAME>Payroll
</STMTTRN>
</BANKTRANLIST>
</OFX>
`

const historyJSON = `[
  {"date": "2024-03-01", "description": "Grocery Store", "amount": -42.00, "type": "debit"},
  {"date": "2024-03-02", "description": "Salary", "amount": "1500.00"}
]`

const aiExtractJSON = `{"transactions": [
  {"date": "2024-03-01", "description": "Grocery Store", "amount": -42.00},
  {"date": "2024-03-02", "description": "Salary", "amount": 1500.00}
]}`

const custodialCSV = `Statement,Header,Field Name,Field Value
Statement,Data,BrokerName,Example Securities LLC
Statement,Data,Account,U1234567 - Individual
Statement,Data,Period,"January 1, 2024 - March 31, 2024"
Statement,Data,BaseCurrency,USD
Net Asset Value,Header,Asset Class,Prior Total,Current Total
Net Asset Value,Data,Cash,1000.00,1200.00
Net Asset Value,Data,Stock,5000.00,5500.00
Trades,Header,Date,Type,Symbol,Description,Quantity,Price,Commission,Fee,Amount
Trades,Data,2024-02-15,BUY,AAPL,AAPL 100 @ 150.00,100,150.00,1.00,0.35,-15001.35
Deposits & Withdrawals,Header,Date,Description,Amount
Deposits & Withdrawals,Data,2024-01-10,Wire In,10000.00
`

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     string
		expected Format
	}{
		{"csv header", "export.csv", delimitedCSV, FormatDelimited},
		{"tsv debit credit", "export.tsv", debitCreditCSV, FormatDelimited},
		{"qfx content", "statement.txt", qfxSample, FormatQFX},
		{"qfx extension", "statement.qfx", "<OFX></OFX>", FormatQFX},
		{"history array", "history.json", historyJSON, FormatHistory},
		{"aiextract envelope", "extract.json", aiExtractJSON, FormatAIExtract},
		{"custodial sections", "statement.csv", custodialCSV, FormatCustodial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, err := DetectFormat(tt.filename, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, format)
		})
	}
}

func TestDetectFormatUnrecognized(t *testing.T) {
	_, err := DetectFormat("notes.txt", []byte("just some prose\nwith lines\n"))
	require.Error(t, err)

	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestDetectFormatEmptyInput(t *testing.T) {
	_, err := DetectFormat("empty.csv", []byte("  \n"))
	require.Error(t, err)
}

func TestParseDelimited(t *testing.T) {
	result, err := Parse([]byte(delimitedCSV), "export.csv")
	require.NoError(t, err)
	assert.Equal(t, FormatDelimited, result.Format)
	require.Len(t, result.LineItems, 2)
	assert.Equal(t, -42.00, result.LineItems[0].Amount)
	assert.Equal(t, "Grocery Store", result.LineItems[0].Description)
	assert.Equal(t, 1500.00, result.LineItems[1].Amount)
	assert.Empty(t, result.RowErrors)
	assert.Nil(t, result.Statement)
}

func TestParseDelimitedDebitCreditColumns(t *testing.T) {
	result, err := Parse([]byte(debitCreditCSV), "export.tsv")
	require.NoError(t, err)
	require.Len(t, result.LineItems, 2)
	assert.Equal(t, -100.00, result.LineItems[0].Amount)
	assert.Equal(t, 2000.00, result.LineItems[1].Amount)
}

func TestParseQFX(t *testing.T) {
	result, err := Parse([]byte(qfxSample), "statement.qfx")
	require.NoError(t, err)
	assert.Equal(t, FormatQFX, result.Format)
	require.Len(t, result.LineItems, 2)

	first := result.LineItems[0]
	assert.Equal(t, "2024-01-05", first.Date.Format("2006-01-02"))
	assert.Equal(t, -42.00, first.Amount)
	assert.Equal(t, "Grocery Store", first.Description)
	assert.Contains(t, first.Memo, "FITID:9001")
	assert.Contains(t, first.Memo, "card purchase")

	second := result.LineItems[1]
	assert.Equal(t, "2024-01-06", second.Date.Format("2006-01-02"))
	assert.Equal(t, 1500.00, second.Amount)
}

func TestParseHistory(t *testing.T) {
	result, err := Parse([]byte(historyJSON), "history.json")
	require.NoError(t, err)
	assert.Equal(t, FormatHistory, result.Format)
	require.Len(t, result.LineItems, 2)
	assert.Equal(t, -42.00, result.LineItems[0].Amount)
	assert.Equal(t, 1500.00, result.LineItems[1].Amount, "string-encoded amounts are accepted")
}

func TestParseAIExtract(t *testing.T) {
	result, err := Parse([]byte(aiExtractJSON), "extract.json")
	require.NoError(t, err)
	assert.Equal(t, FormatAIExtract, result.Format)
	require.Len(t, result.LineItems, 2)
}

func TestParseCustodial(t *testing.T) {
	result, err := Parse([]byte(custodialCSV), "statement.csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCustodial, result.Format)

	require.Len(t, result.LineItems, 2)
	trade := result.LineItems[0]
	assert.Equal(t, "AAPL", trade.Symbol)
	assert.Equal(t, 100.0, trade.Quantity)
	assert.Equal(t, 150.0, trade.Price)
	assert.Equal(t, 1.0, trade.Commission)
	assert.Equal(t, 0.35, trade.Fee)
	assert.Equal(t, -15001.35, trade.Amount)

	wire := result.LineItems[1]
	assert.Equal(t, "Wire In", wire.Description)
	assert.Equal(t, 10000.00, wire.Amount)

	require.NotNil(t, result.Statement)
	st := result.Statement
	assert.Equal(t, "Example Securities LLC", st.BrokerName)
	assert.Equal(t, "U1234567 - Individual", st.AccountLabel)
	assert.Equal(t, "January 1, 2024", st.PeriodStart)
	assert.Equal(t, "March 31, 2024", st.PeriodEnd)
	assert.Equal(t, "USD", st.BaseCurrency)
	require.Len(t, st.NAVRows, 2)
	assert.Equal(t, 6700.00, st.TotalNAV)
}

func TestParseAggregatesRowErrors(t *testing.T) {
	csv := `Date,Description,Amount
2024-03-01,Good Row,-10.00
bad-date,Broken Row,-5.00
2024-03-02,Another Good Row,20.00
2024-03-03,No Amount,
`
	result, err := Parse([]byte(csv), "export.csv")
	require.NoError(t, err, "row failures do not abort the import")

	assert.Len(t, result.LineItems, 2)
	require.Len(t, result.RowErrors, 2)
	assert.Contains(t, result.RowErrors[0], "bad-date")
	assert.Contains(t, result.RowErrors[1], "amount")
}
