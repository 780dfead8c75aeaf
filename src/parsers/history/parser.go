package history

import (
	"encoding/json"
	"fmt"

	"github.com/bherila/k1flow/src/models"
	"github.com/bherila/k1flow/src/normalizer"
)

// historyRow matches one entry of the history-screen JSON export.
type historyRow struct {
	Date        string     `json:"date"`
	Description string     `json:"description"`
	Amount      flexString `json:"amount"`
	Type        string     `json:"type"`
	Memo        string     `json:"memo"`
	Symbol      string     `json:"symbol"`
}

// flexString accepts both JSON numbers and strings, since exports from
// different app versions disagree on how amounts are encoded.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Parse reads a browser-exported transaction history (JSON array).
func Parse(data []byte) ([]normalizer.RawRow, *models.StatementData, error) {
	var entries []historyRow
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, fmt.Errorf("invalid history export JSON: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("history export contains no entries")
	}

	rows := make([]normalizer.RawRow, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, normalizer.RawRow{
			LineNumber:  i + 1,
			Date:        e.Date,
			Description: e.Description,
			Amount:      string(e.Amount),
			Type:        e.Type,
			Memo:        e.Memo,
			Symbol:      e.Symbol,
		})
	}
	return rows, nil, nil
}
