package sale_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyades-labs/tokengate/internal/domain"
	"github.com/hyades-labs/tokengate/internal/ledger"
	"github.com/hyades-labs/tokengate/internal/sale"
	"github.com/hyades-labs/tokengate/internal/store/memory"
	"github.com/hyades-labs/tokengate/internal/testutil"
)

const (
	saleAsset = "asset-sale"
	creator   = "wallet-creator"
	buyer     = "wallet-buyer"
)

type fixture struct {
	engine *sale.Engine
	store  *memory.Store
	ledger *ledger.Memory
	clock  *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	led := ledger.NewMemory()
	clock := testutil.NewClock(1_000)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		engine: sale.NewEngine(store, store.Vaults(), led, clock, logger),
		store:  store,
		ledger: led,
		clock:  clock,
	}
}

func validParams() sale.CreateParams {
	return sale.CreateParams{
		Creator:       creator,
		Asset:         saleAsset,
		SoftCap:       500,
		HardCap:       1_000,
		StartTime:     500,
		EndTime:       5_000,
		PricePerUnit:  2,
		DepositAmount: 1_000,
	}
}

// createSale seeds the creator with inventory and runs a successful creation.
func (f *fixture) createSale(t *testing.T, p sale.CreateParams) domain.Sale {
	t.Helper()
	f.ledger.Mint(creator, p.Asset, p.DepositAmount)
	s, err := f.engine.CreateSale(context.Background(), p)
	require.NoError(t, err)
	return s
}

func TestCreateSale_Invariants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*sale.CreateParams)
		want   error
	}{
		{
			name:   "soft cap above hard cap",
			mutate: func(p *sale.CreateParams) { p.SoftCap = 2_000 },
			want:   domain.ErrInvalidCapRange,
		},
		{
			name:   "zero hard cap",
			mutate: func(p *sale.CreateParams) { p.SoftCap, p.HardCap = 0, 0 },
			want:   domain.ErrZeroCap,
		},
		{
			name:   "start equals end",
			mutate: func(p *sale.CreateParams) { p.StartTime = p.EndTime },
			want:   domain.ErrInvalidTimeWindow,
		},
		{
			name:   "start after end",
			mutate: func(p *sale.CreateParams) { p.StartTime = p.EndTime + 1 },
			want:   domain.ErrInvalidTimeWindow,
		},
		{
			name:   "end in the past",
			mutate: func(p *sale.CreateParams) { p.StartTime, p.EndTime = 100, 900 },
			want:   domain.ErrTimeInPast,
		},
		{
			name:   "end at now",
			mutate: func(p *sale.CreateParams) { p.StartTime, p.EndTime = 100, 1_000 },
			want:   domain.ErrTimeInPast,
		},
		{
			name:   "zero deposit",
			mutate: func(p *sale.CreateParams) { p.DepositAmount = 0 },
			want:   domain.ErrZeroAmount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := validParams()
			tt.mutate(&p)
			_, err := f.engine.CreateSale(context.Background(), p)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateSale_Success(t *testing.T) {
	f := newFixture(t)
	s := f.createSale(t, validParams())

	assert.Equal(t, saleAsset, s.Asset)
	assert.Equal(t, creator, s.Creator)
	assert.Equal(t, sale.VaultAddress(saleAsset), s.Vault)
	assert.Zero(t, s.TotalRaised)
	assert.Equal(t, time.Unix(1_000, 0).UTC(), s.CreatedAt)

	// The deposit moved out of the creator and into the vault.
	bal, err := f.ledger.AssetBalance(context.Background(), creator, saleAsset)
	require.NoError(t, err)
	assert.Zero(t, bal)
	bal, err = f.ledger.AssetBalance(context.Background(), s.Vault, saleAsset)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), bal)

	// Sale and vault records both written.
	_, err = f.store.Get(context.Background(), saleAsset)
	assert.NoError(t, err)
	rec, err := f.store.Vaults().Get(context.Background(), saleAsset)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), rec.Deposited)
}

func TestCreateSale_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.createSale(t, validParams())

	f.ledger.Mint(creator, saleAsset, 1_000)
	_, err := f.engine.CreateSale(context.Background(), validParams())
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestCreateSale_InsufficientDeposit(t *testing.T) {
	f := newFixture(t)

	// Creator holds less inventory than the declared deposit; no records are
	// written on failure.
	f.ledger.Mint(creator, saleAsset, 10)
	_, err := f.engine.CreateSale(context.Background(), validParams())
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = f.store.Get(context.Background(), saleAsset)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// failingSaleStore and failingVaultStore reject every write so the
// record-write failure paths can be exercised against a live ledger.
type failingSaleStore struct {
	domain.SaleStore
}

func (failingSaleStore) Create(context.Context, domain.Sale) error {
	return errors.New("store offline")
}

type failingVaultStore struct {
	domain.VaultStore
}

func (failingVaultStore) Create(context.Context, domain.VaultRecord) error {
	return errors.New("store offline")
}

func TestCreateSale_RecordWriteFailureRefundsDeposit(t *testing.T) {
	tests := []struct {
		name  string
		build func(s *memory.Store) (domain.SaleStore, domain.VaultStore)
	}{
		{
			name: "sale record write fails",
			build: func(s *memory.Store) (domain.SaleStore, domain.VaultStore) {
				return failingSaleStore{SaleStore: s}, s.Vaults()
			},
		},
		{
			name: "vault record write fails",
			build: func(s *memory.Store) (domain.SaleStore, domain.VaultStore) {
				return s, failingVaultStore{VaultStore: s.Vaults()}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			led := ledger.NewMemory()
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			sales, vaults := tt.build(store)
			engine := sale.NewEngine(sales, vaults, led, testutil.NewClock(1_000), logger)
			ctx := context.Background()

			led.Mint(creator, saleAsset, 1_000)
			_, err := engine.CreateSale(ctx, validParams())
			require.Error(t, err)

			// The escrowed deposit came back to the creator and the vault
			// holds nothing.
			bal, err := led.AssetBalance(ctx, creator, saleAsset)
			require.NoError(t, err)
			assert.Equal(t, uint64(1_000), bal)
			bal, err = led.AssetBalance(ctx, sale.VaultAddress(saleAsset), saleAsset)
			require.NoError(t, err)
			assert.Zero(t, bal)
		})
	}
}

func TestPurchase_Success(t *testing.T) {
	f := newFixture(t)
	s := f.createSale(t, validParams())
	f.ledger.CreditNative(buyer, 500)

	receipt, err := f.engine.Purchase(context.Background(), saleAsset, buyer, 100)
	require.NoError(t, err)

	assert.NotEmpty(t, receipt.ID)
	assert.Equal(t, uint64(100), receipt.Amount)
	assert.Equal(t, uint64(200), receipt.Cost) // 100 units at price 2
	assert.Equal(t, uint64(100), receipt.TotalRaised)
	assert.Equal(t, int64(1_000), receipt.PurchasedAt)
	assert.Equal(t, time.Unix(1_000, 0).UTC(), receipt.CreatedAt)

	// Payment leg: buyer paid the creator.
	funds, _ := f.ledger.NativeBalance(context.Background(), buyer)
	assert.Equal(t, uint64(300), funds)
	funds, _ = f.ledger.NativeBalance(context.Background(), creator)
	assert.Equal(t, uint64(200), funds)

	// Delivery leg: units moved from the vault to the buyer.
	bal, _ := f.ledger.AssetBalance(context.Background(), buyer, saleAsset)
	assert.Equal(t, uint64(100), bal)
	bal, _ = f.ledger.AssetBalance(context.Background(), s.Vault, saleAsset)
	assert.Equal(t, uint64(900), bal)

	// Running total committed.
	got, err := f.store.Get(context.Background(), saleAsset)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got.TotalRaised)
}

func TestPurchase_ZeroAmount(t *testing.T) {
	f := newFixture(t)
	f.createSale(t, validParams())

	_, err := f.engine.Purchase(context.Background(), saleAsset, buyer, 0)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
}

func TestPurchase_UnknownSale(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Purchase(context.Background(), "asset-none", buyer, 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPurchase_WindowInclusive(t *testing.T) {
	f := newFixture(t)
	f.createSale(t, validParams())
	f.ledger.CreditNative(buyer, 100_000)

	tests := []struct {
		name string
		now  int64
		want error
	}{
		{name: "before start", now: 499, want: domain.ErrSaleNotActive},
		{name: "at start", now: 500, want: nil},
		{name: "mid window", now: 2_000, want: nil},
		{name: "at end", now: 5_000, want: nil},
		{name: "after end", now: 5_001, want: domain.ErrSaleNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.clock.Set(tt.now)
			_, err := f.engine.Purchase(context.Background(), saleAsset, buyer, 1)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestPurchase_HardCap(t *testing.T) {
	f := newFixture(t)
	f.createSale(t, validParams())
	f.ledger.CreditNative(buyer, 100_000)
	ctx := context.Background()

	// 600 of the 1000-unit cap sold.
	_, err := f.engine.Purchase(ctx, saleAsset, buyer, 600)
	require.NoError(t, err)

	// 500 more would cross the cap; nothing moves.
	before, _ := f.ledger.NativeBalance(ctx, buyer)
	_, err = f.engine.Purchase(ctx, saleAsset, buyer, 500)
	assert.ErrorIs(t, err, domain.ErrHardCapReached)
	after, _ := f.ledger.NativeBalance(ctx, buyer)
	assert.Equal(t, before, after)

	got, err := f.store.Get(ctx, saleAsset)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), got.TotalRaised)

	// Filling the cap exactly is allowed.
	receipt, err := f.engine.Purchase(ctx, saleAsset, buyer, 400)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), receipt.TotalRaised)

	// The cap is now exhausted for any further amount.
	_, err = f.engine.Purchase(ctx, saleAsset, buyer, 1)
	assert.ErrorIs(t, err, domain.ErrHardCapReached)
}

func TestPurchase_CostOverflow(t *testing.T) {
	f := newFixture(t)
	p := validParams()
	p.HardCap = math.MaxUint64
	p.SoftCap = 0
	p.PricePerUnit = math.MaxUint64
	f.createSale(t, p)
	f.ledger.CreditNative(buyer, 1_000)

	_, err := f.engine.Purchase(context.Background(), saleAsset, buyer, 2)
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestPurchase_TotalRaisedOverflow(t *testing.T) {
	f := newFixture(t)
	p := validParams()
	p.HardCap = math.MaxUint64
	p.SoftCap = 0
	p.PricePerUnit = 0
	p.DepositAmount = math.MaxUint64
	f.createSale(t, p)
	f.ledger.CreditNative(buyer, 1)
	ctx := context.Background()

	_, err := f.engine.Purchase(ctx, saleAsset, buyer, math.MaxUint64-1)
	require.NoError(t, err)

	// The next purchase would wrap the running total.
	_, err = f.engine.Purchase(ctx, saleAsset, buyer, 2)
	assert.ErrorIs(t, err, domain.ErrOverflow)

	got, err := f.store.Get(ctx, saleAsset)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64-1), got.TotalRaised)
}

func TestPurchase_InsufficientInventory(t *testing.T) {
	f := newFixture(t)
	p := validParams()
	p.HardCap = 10_000
	p.DepositAmount = 50 // vault holds less than the cap allows
	f.createSale(t, p)
	f.ledger.CreditNative(buyer, 100_000)

	_, err := f.engine.Purchase(context.Background(), saleAsset, buyer, 100)
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
}

func TestPurchase_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.createSale(t, validParams())
	f.ledger.CreditNative(buyer, 199) // one short of the 200 cost

	_, err := f.engine.Purchase(context.Background(), saleAsset, buyer, 100)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Balance untouched.
	funds, _ := f.ledger.NativeBalance(context.Background(), buyer)
	assert.Equal(t, uint64(199), funds)
}

func TestPurchase_FailureLeavesTotalUntouched(t *testing.T) {
	f := newFixture(t)
	f.createSale(t, validParams())
	f.ledger.CreditNative(buyer, 100_000)
	ctx := context.Background()

	_, err := f.engine.Purchase(ctx, saleAsset, buyer, 300)
	require.NoError(t, err)

	f.clock.Set(9_000) // close the window
	_, err = f.engine.Purchase(ctx, saleAsset, buyer, 100)
	assert.ErrorIs(t, err, domain.ErrSaleNotActive)

	got, err := f.store.Get(ctx, saleAsset)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), got.TotalRaised)
}
