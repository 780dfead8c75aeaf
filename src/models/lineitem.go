package models

import (
	"math"
	"time"
)

// LineItem is the canonical representation of a single financial transaction.
// Every parser maps its source rows onto this shape; the duplicate detector,
// transfer linker and batch importer all operate on it. An item that has not
// been persisted yet carries ID == 0.
type LineItem struct {
	ID        int64 `json:"id,omitempty"`
	AccountID int64 `json:"account_id,omitempty"`

	Date        time.Time `json:"date"`
	Type        string    `json:"type,omitempty"`
	Description string    `json:"description,omitempty"`
	Symbol      string    `json:"symbol,omitempty"`
	Quantity    float64   `json:"quantity,omitempty"`
	Price       float64   `json:"price,omitempty"`
	Commission  float64   `json:"commission,omitempty"`
	Fee         float64   `json:"fee,omitempty"`
	Amount      float64   `json:"amount"`
	Memo        string    `json:"memo,omitempty"`

	PostDate       *time.Time `json:"post_date,omitempty"`
	AccountBalance *float64   `json:"account_balance,omitempty"`

	// Extended fields populated only by certain broker sources.
	CUSIP            string     `json:"cusip,omitempty"`
	OptionType       string     `json:"option_type,omitempty"`
	OptionStrike     float64    `json:"option_strike,omitempty"`
	OptionExpiration *time.Time `json:"option_expiration,omitempty"`

	// ParentID is set when this item is the child leg of a transfer;
	// ChildIDs when it is the parent leg. A child never has children.
	ParentID *int64  `json:"parent_id,omitempty"`
	ChildIDs []int64 `json:"child_ids,omitempty"`

	Tags []string `json:"tags,omitempty"`
}

// AmountCents returns the amount rounded to whole cents. Matching rules
// compare amounts at cent precision so float noise cannot split a match.
func (li LineItem) AmountCents() int64 {
	return int64(math.Round(li.Amount * 100))
}

// DateOnly truncates the item date to a calendar day in UTC.
func (li LineItem) DateOnly() time.Time {
	y, m, d := li.Date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DuplicateGroup is an ephemeral cluster of already-persisted line items that
// match each other under the duplicate rule. KeepID is the member with the
// highest identifier; the rest are candidates for deletion. Groups are
// computed on demand and never stored.
type DuplicateGroup struct {
	KeepID    int64      `json:"keep_id"`
	DeleteIDs []int64    `json:"delete_ids"`
	Items     []LineItem `json:"items"`
}

// MemberIDs returns the full member set of the group.
func (g DuplicateGroup) MemberIDs() []int64 {
	ids := make([]int64, 0, len(g.DeleteIDs)+1)
	ids = append(ids, g.KeepID)
	ids = append(ids, g.DeleteIDs...)
	return ids
}

// LinkablePair is an ephemeral proposal that an item in another account is
// the opposite leg of the same transfer. Only the resulting parent/child
// assignment is ever persisted.
type LinkablePair struct {
	Item             LineItem `json:"item"`
	AreOppositeSigns bool     `json:"are_opposite_signs"`
	AmountDiff       float64  `json:"amount_diff"`
	DateDiffDays     int      `json:"date_diff_days"`
}
