package model

import (
	"database/sql"
	"errors"
	"time"

	"github.com/bherila/k1flow/src/models"
)

var ErrAccountNotFound = errors.New("account not found")

// CreateAccount inserts a new ledger account and writes the ID back.
func CreateAccount(db *sql.DB, account *models.Account) error {
	account.CreatedAt = time.Now()
	stmt, err := db.Prepare(`INSERT INTO accounts (name, kind, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(account.Name, account.Kind, account.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	account.ID = id
	return nil
}

func GetAccountByID(db *sql.DB, id int64) (*models.Account, error) {
	row := db.QueryRow(`SELECT id, name, kind, created_at FROM accounts WHERE id = ?`, id)
	var account models.Account
	var kind sql.NullString
	err := row.Scan(&account.ID, &account.Name, &kind, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	account.Kind = kind.String
	return &account, nil
}

func ListAccounts(db *sql.DB) ([]models.Account, error) {
	rows, err := db.Query(`SELECT id, name, kind, created_at FROM accounts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var account models.Account
		var kind sql.NullString
		if err := rows.Scan(&account.ID, &account.Name, &kind, &account.CreatedAt); err != nil {
			return nil, err
		}
		account.Kind = kind.String
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account and everything imported into it.
func DeleteAccount(db *sql.DB, id int64) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE line_items SET parent_id = NULL
		WHERE parent_id IN (SELECT id FROM line_items WHERE account_id = ?)`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM line_item_tags
		WHERE line_item_id IN (SELECT id FROM line_items WHERE account_id = ?)`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM line_items WHERE account_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM statements WHERE account_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return tx.Commit()
}
