package models

import "time"

// Account is a ledger account that line items belong to.
type Account struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind,omitempty"` // e.g. "checking", "brokerage", "credit"
	CreatedAt time.Time `json:"created_at"`
}
