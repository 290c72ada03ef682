// Package snapshot persists the full exchange state at a command
// sequence boundary, so the command log can be truncated. Amounts are
// stored as decimal strings to keep the file precision-exact.
package snapshot

import "time"

type Snapshot struct {
	Seq      uint64
	EventSeq uint64
	Created  time.Time
	LastID   uint64
	Trading  bool
	Orders   []OrderEntry
	Balances []BalanceEntry
}

// Meta is the replay cursor a loaded snapshot hands back to the
// service: where the command log resumes, where event numbering
// resumes, and the trading-gate state to re-apply.
type Meta struct {
	Seq      uint64
	EventSeq uint64
	Trading  bool
}

type OrderEntry struct {
	ID         uint64
	SellAmount string
	SellToken  string
	BuyAmount  string
	BuyToken   string
	Owner      string
	Expiry     int64
}

type BalanceEntry struct {
	Account string
	Token   string
	Amount  string
}
