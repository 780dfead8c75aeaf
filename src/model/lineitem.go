package model

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bherila/k1flow/src/models"
	"github.com/bherila/k1flow/src/normalizer"
)

var ErrLineItemNotFound = errors.New("line item not found")

// updatableFields whitelists the columns PATCH-style edits may touch.
var updatableFields = map[string]bool{
	"date":        true,
	"type":        true,
	"description": true,
	"symbol":      true,
	"quantity":    true,
	"price":       true,
	"commission":  true,
	"fee":         true,
	"amount":      true,
	"memo":        true,
}

var numericFields = map[string]bool{
	"quantity":   true,
	"price":      true,
	"commission": true,
	"fee":        true,
	"amount":     true,
}

const lineItemColumns = `
	id, account_id, date, post_date, type, description, symbol,
	quantity, price, commission, fee, amount, memo, account_balance,
	cusip, option_type, option_strike, option_expiration, parent_id`

// InsertLineItems writes one chunk of items inside a single transaction.
// Either every item in the chunk is committed or none is. Inserted IDs are
// written back into the slice.
func InsertLineItems(db *sql.DB, accountID int64, items []models.LineItem) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
	INSERT INTO line_items (account_id, date, post_date, type, description, symbol,
	                        quantity, price, commission, fee, amount, memo, account_balance,
	                        cusip, option_type, option_strike, option_expiration, parent_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	tagStmt, err := tx.Prepare(`INSERT INTO line_item_tags (line_item_id, tag) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer tagStmt.Close()

	now := time.Now()
	for i := range items {
		item := &items[i]
		res, err := stmt.Exec(
			accountID,
			item.Date,
			nullableTime(item.PostDate),
			item.Type,
			item.Description,
			item.Symbol,
			item.Quantity,
			item.Price,
			item.Commission,
			item.Fee,
			item.Amount,
			item.Memo,
			nullableFloat(item.AccountBalance),
			item.CUSIP,
			item.OptionType,
			item.OptionStrike,
			nullableTime(item.OptionExpiration),
			nullableInt(item.ParentID),
			now,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		item.ID = id
		item.AccountID = accountID
		for _, tag := range item.Tags {
			if _, err := tagStmt.Exec(id, tag); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// ListLineItems returns an account's items, optionally restricted to one
// calendar year (year 0 means all years), with tags and linked-leg IDs
// populated.
func ListLineItems(db *sql.DB, accountID int64, year int) ([]models.LineItem, error) {
	query := `SELECT ` + lineItemColumns + `
	FROM line_items
	WHERE account_id = ?`
	args := []interface{}{accountID}
	if year > 0 {
		query += ` AND date >= ? AND date < ?`
		args = append(args,
			time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC))
	}
	query += ` ORDER BY date, id`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanLineItems(rows)
	if err != nil {
		return nil, err
	}
	if err := attachRelations(db, items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListOtherAccountItems returns every line item NOT belonging to the given
// account, the candidate pool for transfer linking.
func ListOtherAccountItems(db *sql.DB, accountID int64) ([]models.LineItem, error) {
	rows, err := db.Query(`SELECT `+lineItemColumns+`
	FROM line_items
	WHERE account_id != ?
	ORDER BY date, id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanLineItems(rows)
	if err != nil {
		return nil, err
	}
	if err := attachRelations(db, items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetLineItem loads one item with its tags and linked-leg IDs.
func GetLineItem(db *sql.DB, id int64) (*models.LineItem, error) {
	rows, err := db.Query(`SELECT `+lineItemColumns+`
	FROM line_items
	WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanLineItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrLineItemNotFound
	}
	if err := attachRelations(db, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// GetLineItems loads several items by ID, in ID order.
func GetLineItems(db *sql.DB, ids []int64) ([]models.LineItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + lineItemColumns + `
	FROM line_items
	WHERE id IN (` + placeholders(len(ids)) + `)
	ORDER BY id`
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanLineItems(rows)
	if err != nil {
		return nil, err
	}
	if err := attachRelations(db, items); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateLineItemField updates one whitelisted column on one item. The value
// is coerced to the column's type first, so a bad edit is rejected instead
// of leaving a row the scanners can no longer read.
func UpdateLineItemField(db *sql.DB, id int64, field string, value interface{}) error {
	if !updatableFields[field] {
		return fmt.Errorf("field %q is not editable", field)
	}
	coerced, err := coerceFieldValue(field, value)
	if err != nil {
		return err
	}
	stmt, err := db.Prepare(`UPDATE line_items SET ` + field + ` = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(coerced, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLineItemNotFound
	}
	return nil
}

// coerceFieldValue maps a client-supplied value onto the column's Go type.
// The date column stores time.Time; numeric columns store float64; the rest
// are text.
func coerceFieldValue(field string, value interface{}) (interface{}, error) {
	switch {
	case field == "date":
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			t, err := normalizer.ParseDate(v)
			if err != nil {
				return nil, fmt.Errorf("invalid date value %q: %w", v, err)
			}
			return t, nil
		default:
			return nil, fmt.Errorf("date requires a date string, got %T", value)
		}
	case numericFields[field]:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("invalid numeric value for %s: %w", field, err)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("%s requires a numeric value, got %T", field, value)
		}
	default:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%s requires a string value, got %T", field, value)
		}
		return s, nil
	}
}

// DeleteLineItem removes one item. Children linked to it are detached, not
// deleted, so the other account's ledger stays intact.
func DeleteLineItem(db *sql.DB, id int64) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE line_items SET parent_id = NULL WHERE parent_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM line_item_tags WHERE line_item_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM line_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLineItemNotFound
	}
	return tx.Commit()
}

// DeleteLineItems removes a set of items in one transaction, used when a
// duplicate group's extra copies are confirmed for removal.
func DeleteLineItems(db *sql.DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ph := placeholders(len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := tx.Exec(`UPDATE line_items SET parent_id = NULL WHERE parent_id IN (`+ph+`)`, args...); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM line_item_tags WHERE line_item_id IN (`+ph+`)`, args...); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM line_items WHERE id IN (`+ph+`)`, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// LinkItems records child as a transfer leg of parent.
func LinkItems(db *sql.DB, parentID, childID int64) error {
	stmt, err := db.Prepare(`UPDATE line_items SET parent_id = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(parentID, childID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLineItemNotFound
	}
	return nil
}

// UnlinkItems removes the transfer link between parent and child. Both
// items survive unchanged otherwise.
func UnlinkItems(db *sql.DB, parentID, childID int64) error {
	res, err := db.Exec(`UPDATE line_items SET parent_id = NULL WHERE id = ? AND parent_id = ?`, childID, parentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLineItemNotFound
	}
	return nil
}

func scanLineItems(rows *sql.Rows) ([]models.LineItem, error) {
	var items []models.LineItem
	for rows.Next() {
		var item models.LineItem
		var postDate, optExp sql.NullTime
		var balance, optStrike sql.NullFloat64
		var parentID sql.NullInt64
		var typ, description, symbol, memo, cusip, optType sql.NullString

		err := rows.Scan(
			&item.ID, &item.AccountID, &item.Date, &postDate, &typ, &description, &symbol,
			&item.Quantity, &item.Price, &item.Commission, &item.Fee, &item.Amount,
			&memo, &balance, &cusip, &optType, &optStrike, &optExp, &parentID,
		)
		if err != nil {
			return nil, err
		}
		item.Type = typ.String
		item.Description = description.String
		item.Symbol = symbol.String
		item.Memo = memo.String
		item.CUSIP = cusip.String
		item.OptionType = optType.String
		item.OptionStrike = optStrike.Float64
		if optExp.Valid {
			t := optExp.Time
			item.OptionExpiration = &t
		}
		if postDate.Valid {
			t := postDate.Time
			item.PostDate = &t
		}
		if balance.Valid {
			v := balance.Float64
			item.AccountBalance = &v
		}
		if parentID.Valid {
			v := parentID.Int64
			item.ParentID = &v
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// attachRelations fills Tags and ChildIDs for the loaded items.
func attachRelations(db *sql.DB, items []models.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[int64]*models.LineItem, len(items))
	args := make([]interface{}, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
		args[i] = items[i].ID
	}
	ph := placeholders(len(items))

	rows, err := db.Query(`SELECT line_item_id, tag FROM line_item_tags WHERE line_item_id IN (`+ph+`) ORDER BY tag`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return err
		}
		if item := byID[id]; item != nil {
			item.Tags = append(item.Tags, tag)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	childRows, err := db.Query(`SELECT parent_id, id FROM line_items WHERE parent_id IN (`+ph+`) ORDER BY id`, args...)
	if err != nil {
		return err
	}
	defer childRows.Close()
	for childRows.Next() {
		var parentID, childID int64
		if err := childRows.Scan(&parentID, &childID); err != nil {
			return err
		}
		if item := byID[parentID]; item != nil {
			item.ChildIDs = append(item.ChildIDs, childID)
		}
	}
	return childRows.Err()
}

// MarkNotDuplicate records a set of item IDs as confirmed distinct so the
// duplicate review stops flagging groups fully covered by the set.
func MarkNotDuplicate(db *sql.DB, ids []int64) error {
	if len(ids) < 2 {
		return errors.New("a not-duplicate set needs at least two items")
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO not_duplicate_groups (created_at) VALUES (?)`, time.Now())
	if err != nil {
		return err
	}
	groupID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO not_duplicate_members (group_id, line_item_id) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.Exec(groupID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListNotDuplicateSets returns every confirmed-distinct ID set.
func ListNotDuplicateSets(db *sql.DB) ([][]int64, error) {
	rows, err := db.Query(`SELECT group_id, line_item_id FROM not_duplicate_members ORDER BY group_id, line_item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byGroup := map[int64][]int64{}
	var order []int64
	for rows.Next() {
		var groupID, itemID int64
		if err := rows.Scan(&groupID, &itemID); err != nil {
			return nil, err
		}
		if _, seen := byGroup[groupID]; !seen {
			order = append(order, groupID)
		}
		byGroup[groupID] = append(byGroup[groupID], itemID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	sets := make([][]int64, 0, len(order))
	for _, g := range order {
		sets = append(sets, byGroup[g])
	}
	return sets, nil
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	s := "?"
	for i := 1; i < n; i++ {
		s += ", ?"
	}
	return s
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullableInt(i *int64) interface{} {
	if i == nil {
		return nil
	}
	return *i
}
