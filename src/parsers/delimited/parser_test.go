package delimited

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecognizesHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"date and amount", "Date,Description,Amount", true},
		{"date and debit credit", "Date,Payee,Withdrawal,Deposit", true},
		{"trade date variant", "Trade Date,Action,Symbol,Qty,Price,Amount", true},
		{"tab separated", "Date\tDetails\tPaid Out\tPaid In\tBalance", true},
		{"quoted cells", `"Date","Description","Amount"`, true},
		{"no date column", "Description,Amount", false},
		{"no amount column", "Date,Description,Balance", false},
		{"prose line", "Dear customer thank you for banking with us", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecognizesHeader(tt.header))
		})
	}
}

func TestParseMapsColumnVariants(t *testing.T) {
	csv := `Trade Date,Action,Ticker,Qty,Price,Fees & Comm,Amount,Notes
2024-02-15,BUY,AAPL,100,150.00,1.35,-15001.35,opening position
`
	rows, statement, err := Parse([]byte(csv))
	require.NoError(t, err)
	assert.Nil(t, statement)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, 2, row.LineNumber)
	assert.Equal(t, "2024-02-15", row.Date)
	assert.Equal(t, "BUY", row.Type)
	assert.Equal(t, "AAPL", row.Symbol)
	assert.Equal(t, "100", row.Quantity)
	assert.Equal(t, "150.00", row.Price)
	assert.Equal(t, "1.35", row.Fee)
	assert.Equal(t, "-15001.35", row.Amount)
	assert.Equal(t, "opening position", row.Memo)
}

func TestParseDebitCreditColumns(t *testing.T) {
	csv := `Date,Description,Debit,Credit,Running Balance
2024-01-05,ATM,100.00,,900.00
2024-01-06,Payroll,,2000.00,2900.00
`
	rows, _, err := Parse([]byte(csv))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "100.00", rows[0].Debit)
	assert.Empty(t, rows[0].Credit)
	assert.Equal(t, "2000.00", rows[1].Credit)
	assert.Equal(t, "2900.00", rows[1].Balance)
}

func TestParseTSV(t *testing.T) {
	tsv := "Date\tDescription\tAmount\n2024-01-05\tCoffee\t-4.50\n"
	rows, _, err := Parse([]byte(tsv))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Coffee", rows[0].Description)
	assert.Equal(t, "-4.50", rows[0].Amount)
}

func TestParseSkipsBlankRows(t *testing.T) {
	csv := "Date,Description,Amount\n2024-01-05,Coffee,-4.50\n,,\n2024-01-06,Lunch,-12.00\n"
	rows, _, err := Parse([]byte(csv))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// Line numbers reflect file position, so the skipped blank row leaves a gap.
	assert.Equal(t, 2, rows[0].LineNumber)
	assert.Equal(t, 4, rows[1].LineNumber)
}

func TestParseStripsBOM(t *testing.T) {
	csv := "\xef\xbb\xbfDate,Description,Amount\n2024-01-05,Coffee,-4.50\n"
	rows, _, err := Parse([]byte(csv))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestParseVariableFieldCount(t *testing.T) {
	csv := "Date,Description,Amount,Memo\n2024-01-05,Coffee,-4.50\n"
	rows, _, err := Parse([]byte(csv))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Memo)
}

func TestParseRejectsUnusableHeader(t *testing.T) {
	_, _, err := Parse([]byte("Foo,Bar,Baz\n1,2,3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized header row")
}
