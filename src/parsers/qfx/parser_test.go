package qfx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `OFXHEADER:100
DATA:OFXSGML
<OFX>
<BANKMSGSRSV1>
<STMTTRNRS>
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
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

func TestParseExtractsTransactionBlocks(t *testing.T) {
	rows, statement, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Nil(t, statement)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, 1, first.LineNumber)
	assert.Equal(t, "20240105120000", first.Date, "timezone suffix is stripped")
	assert.Equal(t, "DEBIT", first.Type)
	assert.Equal(t, "Grocery Store", first.Description)
	assert.Equal(t, "-42.00", first.Amount)
	assert.Equal(t, "card purchase FITID:9001", first.Memo)

	second := rows[1]
	assert.Equal(t, "20240106", second.Date)
	assert.Equal(t, "1500.00", second.Amount)
	assert.Equal(t, "FITID:9002", second.Memo, "FITID stands alone when no memo")
}

func TestParseDatelessSuffixVariants(t *testing.T) {
	doc := "<STMTTRN><TRNTYPE>DEBIT\n<DTPOSTED>20240105 120000\n<TRNAMT>-1.00\n<NAME>X\n</STMTTRN>"
	rows, _, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "20240105", rows[0].Date)
}

func TestParseNoBlocks(t *testing.T) {
	_, _, err := Parse([]byte("OFXHEADER:100\n<OFX></OFX>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no STMTTRN blocks found")
}
