// Package ledger provides the in-process asset ledger: atomic native and
// fungible transfers, balance reads, and the fixed-offset holding-account
// decode behind the HoldingLookup contract.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyades-labs/tokengate/internal/domain"
)

type acctKey struct {
	wallet string
	asset  string
}

// Memory is an in-memory asset ledger. Holding accounts are stored in their
// raw external byte layout so balance reads go through the same fixed-offset
// decode a remote account fetch would.
//
// All methods are safe for concurrent use; each transfer is atomic under the
// ledger mutex.
type Memory struct {
	mu        sync.RWMutex
	native    map[string]uint64
	holdings  map[acctKey][]byte
	delegates map[string]map[string]bool // wallet -> authorized delegates
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		native:    make(map[string]uint64),
		holdings:  make(map[acctKey][]byte),
		delegates: make(map[string]map[string]bool),
	}
}

// CreditNative adds native-asset value to a wallet. Seeding helper for
// standalone mode and tests.
func (m *Memory) CreditNative(wallet string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.native[wallet] += amount
}

// Mint credits asset units to a wallet, creating the holding account on
// first use. Seeding helper for standalone mode and tests.
func (m *Memory) Mint(wallet, asset string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credit(wallet, asset, amount)
}

// Delegate authorizes a delegate to move assets out of the given wallet.
func (m *Memory) Delegate(wallet, delegate string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delegates[wallet] == nil {
		m.delegates[wallet] = make(map[string]bool)
	}
	m.delegates[wallet][delegate] = true
}

// NativeTransfer atomically moves native value between wallets.
func (m *Memory) NativeTransfer(ctx context.Context, from, to string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.native[from] < amount {
		return fmt.Errorf("ledger: native transfer from %s: %w", from, domain.ErrInsufficientBalance)
	}
	m.native[from] -= amount
	m.native[to] += amount
	return nil
}

// AssetTransfer atomically moves fungible units between wallets. The
// authority must be the holding wallet itself or a registered delegate.
func (m *Memory) AssetTransfer(ctx context.Context, from, asset, to, authority string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if authority != from && !m.delegates[from][authority] {
		return fmt.Errorf("ledger: authority %s for wallet %s: %w", authority, from, domain.ErrUnauthorized)
	}

	src, ok := m.holdings[acctKey{wallet: from, asset: asset}]
	if !ok {
		return fmt.Errorf("ledger: asset transfer from %s: %w", from, domain.ErrAccountMissing)
	}
	balance, err := decodeHoldingBalance(src)
	if err != nil {
		return fmt.Errorf("ledger: asset transfer from %s: %w", from, err)
	}
	if balance < amount {
		return fmt.Errorf("ledger: asset transfer from %s: %w", from, domain.ErrInsufficientBalance)
	}

	setHoldingBalance(src, balance-amount)
	m.credit(to, asset, amount)
	return nil
}

// NativeBalance returns a wallet's native-asset balance. Unknown wallets
// have balance zero.
func (m *Memory) NativeBalance(ctx context.Context, wallet string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.native[wallet], nil
}

// AssetBalance returns a wallet's balance of an asset, zero when no holding
// account exists.
func (m *Memory) AssetBalance(ctx context.Context, wallet, asset string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.holdings[acctKey{wallet: wallet, asset: asset}]
	if !ok {
		return 0, nil
	}
	return decodeHoldingBalance(data)
}

// HoldingBalance reads the raw holding-account record for (wallet, asset)
// and decodes the fixed-offset balance field. A wallet without an account
// for the asset fails with ErrAccountMissing.
func (m *Memory) HoldingBalance(ctx context.Context, wallet, gatingAsset string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.holdings[acctKey{wallet: wallet, asset: gatingAsset}]
	if !ok {
		return 0, domain.ErrAccountMissing
	}
	return decodeHoldingBalance(data)
}

// credit adds units to a wallet's holding account, creating the raw record
// on first use. Caller holds the mutex.
func (m *Memory) credit(wallet, asset string, amount uint64) {
	key := acctKey{wallet: wallet, asset: asset}
	if data, ok := m.holdings[key]; ok {
		balance, _ := decodeHoldingBalance(data)
		setHoldingBalance(data, balance+amount)
		return
	}
	m.holdings[key] = encodeHoldingRecord(asset, wallet, amount)
}

// Compile-time interface checks.
var (
	_ domain.AssetLedger   = (*Memory)(nil)
	_ domain.HoldingLookup = (*Memory)(nil)
)
