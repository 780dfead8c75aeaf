package aiextract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bherila/k1flow/src/models"
	"github.com/bherila/k1flow/src/normalizer"
)

// Envelope is the strict-JSON shape the extraction model is prompted to
// produce for a PDF statement. Amounts are signed: money in positive, money
// out negative.
type Envelope struct {
	Transactions []Transaction `json:"transactions"`
}

// Transaction is one extracted row of the envelope.
type Transaction struct {
	Date        string     `json:"date"`
	Description string     `json:"description"`
	Amount      flexString `json:"amount"`
	Symbol      string     `json:"symbol,omitempty"`
	Quantity    flexString `json:"quantity,omitempty"`
	Price       flexString `json:"price,omitempty"`
	Commission  flexString `json:"commission,omitempty"`
	Fee         flexString `json:"fee,omitempty"`
	Type        string     `json:"type,omitempty"`
	Memo        string     `json:"memo,omitempty"`
}

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
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// CleanModelJSON strips Markdown code fences the model sometimes wraps its
// output in despite instructions.
func CleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// Parse reads an AI-extraction envelope. It accepts both a bare JSON
// object and model output still wrapped in code fences.
func Parse(data []byte) ([]normalizer.RawRow, *models.StatementData, error) {
	clean := CleanModelJSON(string(data))

	var env Envelope
	if err := json.Unmarshal([]byte(clean), &env); err != nil {
		return nil, nil, fmt.Errorf("invalid extraction envelope: %w", err)
	}
	if len(env.Transactions) == 0 {
		return nil, nil, fmt.Errorf("extraction envelope contains no transactions")
	}

	rows := make([]normalizer.RawRow, 0, len(env.Transactions))
	for i, t := range env.Transactions {
		rows = append(rows, normalizer.RawRow{
			LineNumber:  i + 1,
			Date:        t.Date,
			Description: t.Description,
			Amount:      string(t.Amount),
			Symbol:      t.Symbol,
			Quantity:    string(t.Quantity),
			Price:       string(t.Price),
			Commission:  string(t.Commission),
			Fee:         string(t.Fee),
			Type:        t.Type,
			Memo:        t.Memo,
		})
	}
	return rows, nil, nil
}
