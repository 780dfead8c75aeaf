package delimited

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/bherila/k1flow/src/models"
	"github.com/bherila/k1flow/src/normalizer"
)

// columnFields maps recognized header names onto RawRow fields. Bank and
// brokerage exports disagree on naming; this table absorbs the common
// variants so one parser covers them all.
var columnFields = map[string]string{
	"date":             "date",
	"trade date":       "date",
	"transaction date": "date",
	"post date":        "postdate",
	"posting date":     "postdate",
	"description":      "description",
	"details":          "description",
	"payee":            "description",
	"type":             "type",
	"transaction type": "type",
	"action":           "type",
	"symbol":           "symbol",
	"ticker":           "symbol",
	"quantity":         "quantity",
	"qty":              "quantity",
	"shares":           "quantity",
	"price":            "price",
	"commission":       "commission",
	"fee":              "fee",
	"fees":             "fee",
	"fees & comm":      "fee",
	"amount":           "amount",
	"debit":            "debit",
	"withdrawal":       "debit",
	"withdrawals":      "debit",
	"paid out":         "debit",
	"credit":           "credit",
	"deposit":          "credit",
	"deposits":         "credit",
	"paid in":          "credit",
	"balance":          "balance",
	"running balance":  "balance",
	"memo":             "memo",
	"notes":            "memo",
	"cusip":            "cusip",
}

func sniffDelimiter(headerLine string) rune {
	if strings.Count(headerLine, "\t") > strings.Count(headerLine, ",") {
		return '\t'
	}
	return ','
}

func mapHeader(cells []string) map[int]string {
	mapping := make(map[int]string)
	for i, cell := range cells {
		name := strings.ToLower(strings.TrimSpace(strings.Trim(cell, "\"")))
		if field, ok := columnFields[name]; ok {
			mapping[i] = field
		}
	}
	return mapping
}

func headerUsable(mapping map[int]string) bool {
	var hasDate, hasAmount, hasDebitOrCredit bool
	for _, field := range mapping {
		switch field {
		case "date":
			hasDate = true
		case "amount":
			hasAmount = true
		case "debit", "credit":
			hasDebitOrCredit = true
		}
	}
	return hasDate && (hasAmount || hasDebitOrCredit)
}

// RecognizesHeader reports whether the first line of a file looks like a
// delimited export this parser can handle. Used by format sniffing.
func RecognizesHeader(headerLine string) bool {
	delim := sniffDelimiter(headerLine)
	reader := csv.NewReader(strings.NewReader(headerLine))
	reader.Comma = delim
	cells, err := reader.Read()
	if err != nil {
		return false
	}
	return headerUsable(mapHeader(cells))
}

// Parse reads a delimited bank or brokerage export and converts its rows
// into raw rows for normalization. Parsing is pure: it only reads input
// bytes.
func Parse(data []byte) ([]normalizer.RawRow, *models.StatementData, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	firstLine := string(data)
	if idx := strings.IndexAny(firstLine, "\r\n"); idx >= 0 {
		firstLine = firstLine[:idx]
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(firstLine)
	reader.FieldsPerRecord = -1 // Allow variable number of fields per record

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header row: %w", err)
	}
	mapping := mapHeader(header)
	if !headerUsable(mapping) {
		return nil, nil, fmt.Errorf("unrecognized header row: %q", firstLine)
	}

	var rows []normalizer.RawRow
	lineNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read record after line %d: %w", lineNum, err)
		}
		lineNum++

		if isBlank(record) {
			continue
		}

		row := normalizer.RawRow{LineNumber: lineNum}
		for i, cell := range record {
			field, ok := mapping[i]
			if !ok {
				continue
			}
			value := strings.TrimSpace(cell)
			switch field {
			case "date":
				row.Date = value
			case "postdate":
				row.PostDate = value
			case "description":
				row.Description = value
			case "type":
				row.Type = value
			case "symbol":
				row.Symbol = value
			case "quantity":
				row.Quantity = value
			case "price":
				row.Price = value
			case "commission":
				row.Commission = value
			case "fee":
				row.Fee = value
			case "amount":
				row.Amount = value
			case "debit":
				row.Debit = value
			case "credit":
				row.Credit = value
			case "balance":
				row.Balance = value
			case "memo":
				row.Memo = value
			case "cusip":
				row.CUSIP = value
			}
		}
		rows = append(rows, row)
	}

	return rows, nil, nil
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
