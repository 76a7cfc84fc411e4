package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyades-labs/tokengate/internal/domain"
	"github.com/hyades-labs/tokengate/internal/ledger"
	"github.com/hyades-labs/tokengate/internal/policy"
	"github.com/hyades-labs/tokengate/internal/store/memory"
	"github.com/hyades-labs/tokengate/internal/testutil"
)

// fakeCache is a map-backed policy cache counting hits and invalidations.
type fakeCache struct {
	policies    map[string]domain.Policy
	hits        int
	invalidated int
}

func newFakeCache() *fakeCache {
	return &fakeCache{policies: make(map[string]domain.Policy)}
}

func (c *fakeCache) Set(ctx context.Context, p domain.Policy) error {
	c.policies[p.Asset] = p
	return nil
}

func (c *fakeCache) Get(ctx context.Context, asset string) (domain.Policy, error) {
	p, ok := c.policies[asset]
	if !ok {
		return domain.Policy{}, domain.ErrNotFound
	}
	c.hits++
	return p, nil
}

func (c *fakeCache) Invalidate(ctx context.Context, asset string) error {
	c.invalidated++
	delete(c.policies, asset)
	return nil
}

type policyFixture struct {
	svc    *PolicyService
	store  *memory.Store
	ledger *ledger.Memory
	clock  *testutil.Clock
	bus    *fakeBus
	cache  *fakeCache
}

func newPolicyFixture(t *testing.T, treasury string, fee uint64) *policyFixture {
	t.Helper()
	store := memory.New()
	led := ledger.NewMemory()
	clock := testutil.NewClock(10 * 3600)
	bus := newFakeBus()
	cache := newFakeCache()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eval := policy.NewEvaluator(store.Allowlist(), led, clock)
	svc := NewPolicyService(
		store.Policies(), cache, store.Allowlist(), eval,
		store.Decisions(), led, clock, store.Audit(), bus, logger,
		treasury, fee,
	)
	return &policyFixture{svc: svc, store: store, ledger: led, clock: clock, bus: bus, cache: cache}
}

func initParams() InitParams {
	return InitParams{
		Owner:       "wallet-owner",
		Asset:       "asset-gov",
		GatingAsset: "asset-gate",
		MaxTransfer: 100,
		MinTransfer: 10,
	}
}

func TestInitializePolicy(t *testing.T) {
	f := newPolicyFixture(t, "", 0)
	ctx := context.Background()

	pol, err := f.svc.InitializePolicy(ctx, initParams())
	require.NoError(t, err)

	// Every gate starts disabled; the fixed fields are recorded.
	assert.False(t, pol.WhitelistEnabled)
	assert.False(t, pol.TradingTimeEnabled)
	assert.False(t, pol.MaxTransferEnabled)
	assert.False(t, pol.HoldingGated)
	assert.Equal(t, "wallet-owner", pol.Owner)
	assert.Equal(t, "asset-gate", pol.GatingAsset)
	assert.Equal(t, uint64(100), pol.MaxTransferAmount)

	_, err = f.svc.InitializePolicy(ctx, initParams())
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestInitializePolicy_RegistryFee(t *testing.T) {
	f := newPolicyFixture(t, "wallet-treasury", 50)
	ctx := context.Background()

	// Owner cannot cover the fee; no policy is written.
	_, err := f.svc.InitializePolicy(ctx, initParams())
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	_, err = f.store.Policies().Get(ctx, "asset-gov")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.ledger.CreditNative("wallet-owner", 60)
	_, err = f.svc.InitializePolicy(ctx, initParams())
	require.NoError(t, err)

	bal, _ := f.ledger.NativeBalance(ctx, "wallet-treasury")
	assert.Equal(t, uint64(50), bal)
	bal, _ = f.ledger.NativeBalance(ctx, "wallet-owner")
	assert.Equal(t, uint64(10), bal)
}

func TestUpdateFlags(t *testing.T) {
	f := newPolicyFixture(t, "", 0)
	ctx := context.Background()
	_, err := f.svc.InitializePolicy(ctx, initParams())
	require.NoError(t, err)

	_, err = f.svc.UpdateFlags(ctx, "wallet-intruder", "asset-gov", domain.PolicyFlags{Whitelist: true})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	pol, err := f.svc.UpdateFlags(ctx, "wallet-owner", "asset-gov", domain.PolicyFlags{
		Whitelist:   true,
		MaxTransfer: true,
	})
	require.NoError(t, err)
	assert.True(t, pol.WhitelistEnabled)
	assert.True(t, pol.MaxTransferEnabled)
	assert.False(t, pol.TradingTimeEnabled)
	assert.Equal(t, 1, f.cache.invalidated)

	// Toggles replace, they do not accumulate.
	pol, err = f.svc.UpdateFlags(ctx, "wallet-owner", "asset-gov", domain.PolicyFlags{HoldingGated: true})
	require.NoError(t, err)
	assert.False(t, pol.WhitelistEnabled)
	assert.True(t, pol.HoldingGated)
}

func TestGrantRevoke_OwnerOnly(t *testing.T) {
	f := newPolicyFixture(t, "", 0)
	ctx := context.Background()
	_, err := f.svc.InitializePolicy(ctx, initParams())
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Grant(ctx, "wallet-intruder", "asset-gov", "wallet-a"), domain.ErrUnauthorized)
	require.NoError(t, f.svc.Grant(ctx, "wallet-owner", "asset-gov", "wallet-a"))

	entries, err := f.svc.ListWhitelist(ctx, "asset-gov")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "wallet-a", entries[0].Wallet)

	assert.ErrorIs(t, f.svc.Revoke(ctx, "wallet-intruder", "asset-gov", "wallet-a"), domain.ErrUnauthorized)
	require.NoError(t, f.svc.Revoke(ctx, "wallet-owner", "asset-gov", "wallet-a"))
	assert.ErrorIs(t, f.svc.Revoke(ctx, "wallet-owner", "asset-gov", "wallet-a"), domain.ErrNotFound)
}

func TestGetPolicy_CacheReadThrough(t *testing.T) {
	f := newPolicyFixture(t, "", 0)
	ctx := context.Background()
	_, err := f.svc.InitializePolicy(ctx, initParams())
	require.NoError(t, err)

	// First read misses the cache and fills it, second read hits.
	_, err = f.svc.GetPolicy(ctx, "asset-gov")
	require.NoError(t, err)
	assert.Equal(t, 0, f.cache.hits)

	_, err = f.svc.GetPolicy(ctx, "asset-gov")
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.hits)
}

func TestCheck_RecordsDecision(t *testing.T) {
	f := newPolicyFixture(t, "", 0)
	ctx := context.Background()
	_, err := f.svc.InitializePolicy(ctx, initParams())
	require.NoError(t, err)
	_, err = f.svc.UpdateFlags(ctx, "wallet-owner", "asset-gov", domain.PolicyFlags{Whitelist: true})
	require.NoError(t, err)

	// Denied: the wallet carries no marker. A denied check is not an error.
	dec, err := f.svc.Check(ctx, domain.TransferRequest{Asset: "asset-gov", Wallet: "wallet-a", Amount: 5})
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, "whitelist", dec.Rule)
	assert.Equal(t, int64(10*3600), dec.DecidedAt)

	require.NoError(t, f.svc.Grant(ctx, "wallet-owner", "asset-gov", "wallet-a"))
	dec, err = f.svc.Check(ctx, domain.TransferRequest{Asset: "asset-gov", Wallet: "wallet-a", Amount: 5})
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Empty(t, dec.Rule)

	decisions, err := f.store.Decisions().ListByAsset(ctx, "asset-gov", domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, decisions, 2)

	events := f.bus.published("policy")
	require.Len(t, events, 2)
	assert.Equal(t, "policy_decision", events[0]["event"])
	assert.Equal(t, false, events[0]["allowed"])
	assert.Equal(t, true, events[1]["allowed"])
}

func TestTransfer_DeniedMovesNothing(t *testing.T) {
	f := newPolicyFixture(t, "", 0)
	ctx := context.Background()
	_, err := f.svc.InitializePolicy(ctx, initParams())
	require.NoError(t, err)
	_, err = f.svc.UpdateFlags(ctx, "wallet-owner", "asset-gov", domain.PolicyFlags{MaxTransfer: true})
	require.NoError(t, err)
	f.ledger.Mint("wallet-a", "asset-gov", 1_000)

	dec, err := f.svc.Transfer(ctx, domain.TransferRequest{
		Asset:  "asset-gov",
		Wallet: "wallet-a",
		To:     "wallet-b",
		Amount: 500, // above the max of 100
	})
	assert.ErrorIs(t, err, domain.ErrExceedsMaxTransfer)
	assert.False(t, dec.Allowed)
	assert.Equal(t, "transfer_bounds", dec.Rule)

	bal, _ := f.ledger.AssetBalance(ctx, "wallet-a", "asset-gov")
	assert.Equal(t, uint64(1_000), bal)
	bal, _ = f.ledger.AssetBalance(ctx, "wallet-b", "asset-gov")
	assert.Zero(t, bal)

	events := f.bus.published("transfers")
	require.Len(t, events, 1)
	assert.Equal(t, "transfer_denied", events[0]["event"])
	assert.Equal(t, "transfer_bounds", events[0]["rule"])
}

func TestTransfer_AllowedExecutes(t *testing.T) {
	f := newPolicyFixture(t, "", 0)
	ctx := context.Background()
	_, err := f.svc.InitializePolicy(ctx, initParams())
	require.NoError(t, err)
	_, err = f.svc.UpdateFlags(ctx, "wallet-owner", "asset-gov", domain.PolicyFlags{MaxTransfer: true})
	require.NoError(t, err)
	f.ledger.Mint("wallet-a", "asset-gov", 1_000)

	dec, err := f.svc.Transfer(ctx, domain.TransferRequest{
		Asset:  "asset-gov",
		Wallet: "wallet-a",
		To:     "wallet-b",
		Amount: 50,
	})
	require.NoError(t, err)
	assert.True(t, dec.Allowed)

	bal, _ := f.ledger.AssetBalance(ctx, "wallet-a", "asset-gov")
	assert.Equal(t, uint64(950), bal)
	bal, _ = f.ledger.AssetBalance(ctx, "wallet-b", "asset-gov")
	assert.Equal(t, uint64(50), bal)

	events := f.bus.published("transfers")
	require.Len(t, events, 1)
	assert.Equal(t, "transfer_executed", events[0]["event"])
}
