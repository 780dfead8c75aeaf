package model

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/bherila/k1flow/src/models"
)

var ErrStatementNotFound = errors.New("statement not found")

// InsertStatementDetail stores the structured sub-tables of a custodial
// statement alongside its header fields. The sub-tables are kept as one
// JSON payload since they are read back whole, never queried by column.
func InsertStatementDetail(db *sql.DB, accountID int64, data *models.StatementData) (int64, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, err
	}
	stmt, err := db.Prepare(`
	INSERT INTO statements (account_id, broker_name, account_label, period_start, period_end,
	                        base_currency, statement_date, total_nav, payload, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	res, err := stmt.Exec(
		accountID,
		data.BrokerName,
		data.AccountLabel,
		data.PeriodStart,
		data.PeriodEnd,
		data.BaseCurrency,
		data.StatementDate,
		data.TotalNAV,
		string(payload),
		time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetStatementDetail returns the most recent stored statement for an
// account.
func GetStatementDetail(db *sql.DB, accountID int64) (*models.StatementData, error) {
	row := db.QueryRow(`
	SELECT payload FROM statements
	WHERE account_id = ?
	ORDER BY created_at DESC, id DESC
	LIMIT 1`, accountID)

	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatementNotFound
		}
		return nil, err
	}
	var data models.StatementData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, err
	}
	return &data, nil
}
