package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAcceptsStringAndNumericAmounts(t *testing.T) {
	doc := `[
  {"date": "2024-03-01", "description": "Grocery Store", "amount": -42.5, "type": "debit", "memo": "weekly"},
  {"date": "2024-03-02", "description": "Salary", "amount": "1500.00", "symbol": ""}
]`
	rows, statement, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Nil(t, statement)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].LineNumber)
	assert.Equal(t, "2024-03-01", rows[0].Date)
	assert.Equal(t, "-42.5", rows[0].Amount)
	assert.Equal(t, "debit", rows[0].Type)
	assert.Equal(t, "weekly", rows[0].Memo)

	assert.Equal(t, "1500.00", rows[1].Amount)
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, _, err := Parse([]byte("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid history export JSON")
}

func TestParseRejectsEmptyExport(t *testing.T) {
	_, _, err := Parse([]byte("[]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entries")
}
