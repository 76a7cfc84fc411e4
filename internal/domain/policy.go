package domain

import "time"

// MinutesPerDay bounds the valid range of OpenMinute / CloseMinute.
const MinutesPerDay = 1440

// Policy is the transfer-policy configuration for one governed asset. Each of
// the four gates is independently toggleable; a disabled gate is vacuously
// true. Only the owner may mutate the record.
//
// No cross-field validation is applied on write: OpenMinute == CloseMinute is
// stored as-is and evaluates as an always-closed window.
type Policy struct {
	Owner       string
	Asset       string
	GatingAsset string // asset whose holding is required when HoldingGated

	WhitelistEnabled   bool
	TradingTimeEnabled bool
	MaxTransferEnabled bool
	HoldingGated       bool

	OpenMinute  *uint16 // minute of day in [0,1440), nil when unset
	CloseMinute *uint16

	MaxTransferAmount uint64
	MinTransferAmount uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PolicyFlags carries the four gate toggles for an owner update.
type PolicyFlags struct {
	Whitelist    bool
	TradingTime  bool
	MaxTransfer  bool
	HoldingGated bool
}

// TransferRequest describes one proposed movement of a governed asset. The
// evaluator gates on the sending wallet.
type TransferRequest struct {
	Asset  string
	Wallet string // sender, the wallet the gates apply to
	To     string // recipient, not consulted by any gate
	Amount uint64
}

// Decision is the recorded outcome of one policy evaluation.
type Decision struct {
	ID        string // uuid
	Asset     string
	Wallet    string
	Amount    uint64
	Allowed   bool
	Rule      string // failing gate name, empty when allowed
	DecidedAt int64  // epoch seconds
	CreatedAt time.Time
}

// AllowListEntry is a presence-only marker granting transfer permission to a
// wallet for one asset. Existence is the entire payload.
type AllowListEntry struct {
	Asset     string
	Wallet    string
	GrantedAt time.Time
}
