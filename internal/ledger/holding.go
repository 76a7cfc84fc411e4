package ledger

import (
	"encoding/binary"

	"github.com/hyades-labs/tokengate/internal/domain"
)

// Raw holding-account layout. The record format is owned by the external
// token program, not by us: the holder balance is a little-endian u64 at a
// fixed byte offset. Keep the offsets in one place so a format change stays
// a one-file fix.
//
//	bytes  0..32   asset identifier, zero-padded
//	bytes 32..64   owner wallet, zero-padded
//	bytes 64..72   balance, little-endian u64
const (
	holdingAssetOffset   = 0
	holdingOwnerOffset   = 32
	holdingBalanceOffset = 64
	holdingRecordLen     = 72
)

// decodeHoldingBalance extracts the balance field from a raw holding-account
// record. A record too short to contain the field is treated the same as a
// missing account.
func decodeHoldingBalance(data []byte) (uint64, error) {
	if len(data) < holdingRecordLen {
		return 0, domain.ErrAccountMissing
	}
	return binary.LittleEndian.Uint64(data[holdingBalanceOffset : holdingBalanceOffset+8]), nil
}

// encodeHoldingRecord builds a raw holding-account record for the given
// asset, owner, and balance.
func encodeHoldingRecord(asset, owner string, balance uint64) []byte {
	data := make([]byte, holdingRecordLen)
	copy(data[holdingAssetOffset:holdingOwnerOffset], asset)
	copy(data[holdingOwnerOffset:holdingBalanceOffset], owner)
	binary.LittleEndian.PutUint64(data[holdingBalanceOffset:], balance)
	return data
}

// setHoldingBalance writes a new balance into an existing record in place.
func setHoldingBalance(data []byte, balance uint64) {
	binary.LittleEndian.PutUint64(data[holdingBalanceOffset:], balance)
}
