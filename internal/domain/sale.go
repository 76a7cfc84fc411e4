// Package domain defines the core types, sentinel errors, and the store and
// collaborator interfaces shared by every layer of tokengate.
package domain

import "time"

// Sale is the persistent record of one token sale: its configuration and the
// running total of units sold. One sale exists per governed asset.
//
// The creation invariants (SoftCap <= HardCap, HardCap > 0,
// StartTime < EndTime, EndTime in the future) are enforced once by the sale
// engine and never re-checked. TotalRaised never exceeds HardCap and only
// increases, only through a settled purchase.
type Sale struct {
	Creator      string // wallet that created the sale and receives payments
	Asset        string // governed asset identifier
	SoftCap      uint64 // minimum funding target, in asset units
	HardCap      uint64 // maximum units sellable
	StartTime    int64  // epoch seconds, inclusive
	EndTime      int64  // epoch seconds, inclusive
	Vault        string // escrow identity holding the sale inventory
	TotalRaised  uint64 // units sold so far
	PricePerUnit uint64 // native-asset cost of one unit
	CreatedAt    time.Time
}

// ActiveAt reports whether the sale window is open at the given time.
// Both ends of the window are inclusive.
func (s Sale) ActiveAt(now int64) bool {
	return now >= s.StartTime && now <= s.EndTime
}

// VaultRecord records the inventory deposited into escrow when the sale was
// created. It is written once and never mutated; the live balance truth is
// the asset ledger.
type VaultRecord struct {
	Asset     string
	Creator   string
	Deposited uint64
	CreatedAt time.Time
}

// Receipt is the settled outcome of a single purchase.
type Receipt struct {
	ID          string // uuid
	Asset       string
	Buyer       string
	Amount      uint64 // asset units delivered
	Cost        uint64 // native amount paid
	TotalRaised uint64 // sale total after this purchase
	PurchasedAt int64  // epoch seconds, from the ledger clock
	CreatedAt   time.Time
}
