package custodial

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bherila/k1flow/src/models"
	"github.com/bherila/k1flow/src/normalizer"
	"github.com/bherila/k1flow/src/utils"
)

// Custodial statements are sectioned CSVs: the first column names the
// section ("Statement", "Net Asset Value", "Trades", ...) and the second
// marks the row kind ("Header" or "Data"). Trades and cash movements become
// line items; the report sections become StatementData.
const (
	secStatement   = "Statement"
	secNAV         = "Net Asset Value"
	secPositions   = "Open Positions"
	secCashReport  = "Cash Report"
	secPerformance = "Change in NAV"
	secTrades      = "Trades"
	secCash        = "Deposits & Withdrawals"
)

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(normalizer.CleanNumeric(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// Parse reads a sectioned custodial statement, producing both raw
// transaction rows and the statement report structure.
func Parse(data []byte) ([]normalizer.RawRow, *models.StatementData, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // Section widths vary

	statement := &models.StatementData{}
	var rows []normalizer.RawRow
	sawSection := false
	lineNum := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read statement record after line %d: %w", lineNum, err)
		}
		lineNum++

		if len(record) < 2 {
			continue
		}
		section := strings.TrimSpace(record[0])
		kind := strings.TrimSpace(record[1])
		if kind != "Data" {
			continue // Header rows only label columns
		}
		fields := record[2:]

		switch section {
		case secStatement:
			if len(fields) >= 2 {
				applyStatementField(statement, fields[0], fields[1])
				sawSection = true
			}
		case secNAV:
			if len(fields) >= 3 {
				statement.NAVRows = append(statement.NAVRows, models.NAVRow{
					AssetClass: strings.TrimSpace(fields[0]),
					PriorValue: parseFloat(fields[1]),
					Value:      parseFloat(fields[2]),
				})
				sawSection = true
			}
		case secPositions:
			if len(fields) >= 4 {
				pos := models.PositionRow{
					Symbol:   strings.TrimSpace(fields[0]),
					Quantity: parseFloat(fields[1]),
					Price:    parseFloat(fields[2]),
					Value:    parseFloat(fields[3]),
				}
				if len(fields) >= 5 {
					pos.CostBasis = parseFloat(fields[4])
				}
				statement.Positions = append(statement.Positions, pos)
				sawSection = true
			}
		case secCashReport:
			if len(fields) >= 2 {
				statement.CashReport = append(statement.CashReport, models.CashReportRow{
					Label:  strings.TrimSpace(fields[0]),
					Amount: parseFloat(fields[1]),
				})
				sawSection = true
			}
		case secPerformance:
			if len(fields) >= 2 {
				statement.Performance = append(statement.Performance, models.PerformanceRow{
					Label:  strings.TrimSpace(fields[0]),
					Amount: parseFloat(fields[1]),
				})
				sawSection = true
			}
		case secTrades:
			// Date,Type,Symbol,Description,Quantity,Price,Commission,Fee,Amount
			if len(fields) >= 9 {
				rows = append(rows, normalizer.RawRow{
					LineNumber:  lineNum,
					Date:        fields[0],
					Type:        fields[1],
					Symbol:      fields[2],
					Description: fields[3],
					Quantity:    fields[4],
					Price:       fields[5],
					Commission:  fields[6],
					Fee:         fields[7],
					Amount:      fields[8],
				})
				sawSection = true
			}
		case secCash:
			// Date,Description,Amount
			if len(fields) >= 3 {
				rows = append(rows, normalizer.RawRow{
					LineNumber:  lineNum,
					Date:        fields[0],
					Description: fields[1],
					Amount:      fields[2],
				})
				sawSection = true
			}
		}
	}

	if !sawSection {
		return nil, nil, fmt.Errorf("no recognized statement sections found")
	}

	for _, nav := range statement.NAVRows {
		statement.TotalNAV += nav.Value
	}
	statement.TotalNAV = utils.RoundFloat(statement.TotalNAV, 2)

	return rows, statement, nil
}

func applyStatementField(st *models.StatementData, name, value string) {
	value = strings.TrimSpace(value)
	switch strings.TrimSpace(name) {
	case "BrokerName", "Broker":
		st.BrokerName = value
	case "Account", "AccountLabel":
		st.AccountLabel = value
	case "Period":
		// "January 1, 2024 - March 31, 2024"
		if parts := strings.SplitN(value, " - ", 2); len(parts) == 2 {
			st.PeriodStart = strings.TrimSpace(parts[0])
			st.PeriodEnd = strings.TrimSpace(parts[1])
		} else {
			st.PeriodStart = value
		}
	case "BaseCurrency":
		st.BaseCurrency = value
	case "WhenGenerated", "StatementDate":
		st.StatementDate = value
	}
}
