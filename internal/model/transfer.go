package model

import "time"

// Transfer records one custody handoff. Transfers are immutable once appended.
type Transfer struct {
	ProductID int64     `json:"product_id"`
	From      Account   `json:"from"`
	To        Account   `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Location  string    `json:"location"`
	Verified  bool      `json:"verified"`
}
