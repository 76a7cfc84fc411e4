// Package sale implements the token-sale settlement engine: sale creation
// under the funding-cap and time-window invariants, and purchase settlement
// as an atomic dual-asset exchange.
package sale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"time"

	"github.com/google/uuid"

	"github.com/hyades-labs/tokengate/internal/domain"
)

// Engine validates and settles sales. It holds no state of its own; every
// record lives in the stores and every balance in the ledger.
type Engine struct {
	sales  domain.SaleStore
	vaults domain.VaultStore
	ledger domain.AssetLedger
	clock  domain.Clock
	logger *slog.Logger
}

// NewEngine creates an Engine with all required dependencies.
func NewEngine(
	sales domain.SaleStore,
	vaults domain.VaultStore,
	ledger domain.AssetLedger,
	clock domain.Clock,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		sales:  sales,
		vaults: vaults,
		ledger: ledger,
		clock:  clock,
		logger: logger,
	}
}

// VaultAddress derives the escrow identity for an asset's sale. One vault
// exists per asset, same as one sale.
func VaultAddress(asset string) string {
	return "vault:" + asset
}

// CreateParams carries the configuration for a new sale.
type CreateParams struct {
	Creator       string
	Asset         string
	SoftCap       uint64
	HardCap       uint64
	StartTime     int64 // epoch seconds, inclusive
	EndTime       int64 // epoch seconds, inclusive
	PricePerUnit  uint64
	DepositAmount uint64 // inventory moved into escrow up front
}

// CreateSale validates the creation invariants, moves the deposit into the
// sale vault, and writes the sale and vault records. The invariants are
// checked here once and never again:
//
//	SoftCap <= HardCap, HardCap > 0, StartTime < EndTime, EndTime > now.
func (e *Engine) CreateSale(ctx context.Context, p CreateParams) (domain.Sale, error) {
	if p.SoftCap > p.HardCap {
		return domain.Sale{}, domain.ErrInvalidCapRange
	}
	if p.HardCap == 0 {
		return domain.Sale{}, domain.ErrZeroCap
	}
	if p.StartTime >= p.EndTime {
		return domain.Sale{}, domain.ErrInvalidTimeWindow
	}
	now := e.clock.Now()
	if p.EndTime <= now {
		return domain.Sale{}, domain.ErrTimeInPast
	}
	if p.DepositAmount == 0 {
		return domain.Sale{}, domain.ErrZeroAmount
	}

	if _, err := e.sales.Get(ctx, p.Asset); err == nil {
		return domain.Sale{}, fmt.Errorf("sale: asset %s: %w", p.Asset, domain.ErrAlreadyExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Sale{}, fmt.Errorf("sale: check existing sale for %s: %w", p.Asset, err)
	}

	vault := VaultAddress(p.Asset)
	if err := e.ledger.AssetTransfer(ctx, p.Creator, p.Asset, vault, p.Creator, p.DepositAmount); err != nil {
		return domain.Sale{}, fmt.Errorf("sale: deposit inventory: %w", err)
	}

	s := domain.Sale{
		Creator:      p.Creator,
		Asset:        p.Asset,
		SoftCap:      p.SoftCap,
		HardCap:      p.HardCap,
		StartTime:    p.StartTime,
		EndTime:      p.EndTime,
		Vault:        vault,
		TotalRaised:  0,
		PricePerUnit: p.PricePerUnit,
		CreatedAt:    time.Unix(now, 0).UTC(),
	}
	if err := e.sales.Create(ctx, s); err != nil {
		e.refundDeposit(ctx, vault, p)
		return domain.Sale{}, fmt.Errorf("sale: create sale record: %w", err)
	}

	rec := domain.VaultRecord{
		Asset:     p.Asset,
		Creator:   p.Creator,
		Deposited: p.DepositAmount,
		CreatedAt: s.CreatedAt,
	}
	if err := e.vaults.Create(ctx, rec); err != nil {
		e.refundDeposit(ctx, vault, p)
		return domain.Sale{}, fmt.Errorf("sale: create vault record: %w", err)
	}

	e.logger.InfoContext(ctx, "sale: created",
		slog.String("asset", p.Asset),
		slog.String("creator", p.Creator),
		slog.Uint64("hard_cap", p.HardCap),
		slog.Uint64("deposit", p.DepositAmount),
	)
	return s, nil
}

// refundDeposit returns escrowed inventory to the creator after a failed
// record write so creation stays all-or-nothing.
func (e *Engine) refundDeposit(ctx context.Context, vault string, p CreateParams) {
	if err := e.ledger.AssetTransfer(ctx, vault, p.Asset, p.Creator, vault, p.DepositAmount); err != nil {
		e.logger.ErrorContext(ctx, "sale: refund deposit after failed record write",
			slog.String("asset", p.Asset),
			slog.String("creator", p.Creator),
			slog.String("error", err.Error()),
		)
	}
}

// Purchase settles one purchase against an active sale. Each step
// short-circuits on failure with nothing mutated; the running total is
// committed last and only after both transfer legs have succeeded, so no
// state ever reflects a sale that did not actually move funds and tokens.
func (e *Engine) Purchase(ctx context.Context, asset, buyer string, amount uint64) (domain.Receipt, error) {
	// Zero-amount purchases are rejected, mirroring the zero-deposit rule
	// at creation.
	if amount == 0 {
		return domain.Receipt{}, domain.ErrZeroAmount
	}

	s, err := e.sales.Get(ctx, asset)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("sale: load sale for %s: %w", asset, err)
	}

	now := e.clock.Now()
	if !s.ActiveAt(now) {
		return domain.Receipt{}, domain.ErrSaleNotActive
	}

	cost, ok := mulChecked(amount, s.PricePerUnit)
	if !ok {
		return domain.Receipt{}, domain.ErrOverflow
	}
	newTotal, ok := addChecked(s.TotalRaised, amount)
	if !ok {
		return domain.Receipt{}, domain.ErrOverflow
	}
	if newTotal > s.HardCap {
		return domain.Receipt{}, domain.ErrHardCapReached
	}

	inventory, err := e.ledger.AssetBalance(ctx, s.Vault, asset)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("sale: vault balance: %w", err)
	}
	if inventory < amount {
		return domain.Receipt{}, domain.ErrInsufficientInventory
	}

	funds, err := e.ledger.NativeBalance(ctx, buyer)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("sale: buyer balance: %w", err)
	}
	if funds < cost {
		return domain.Receipt{}, domain.ErrInsufficientFunds
	}

	// Payment leg, then delivery leg under the vault's own authority. If the
	// delivery leg fails the payment is refunded so the pair stays
	// all-or-nothing.
	if err := e.ledger.NativeTransfer(ctx, buyer, s.Creator, cost); err != nil {
		return domain.Receipt{}, fmt.Errorf("sale: payment transfer: %w", err)
	}
	if err := e.ledger.AssetTransfer(ctx, s.Vault, asset, buyer, s.Vault, amount); err != nil {
		if refundErr := e.ledger.NativeTransfer(ctx, s.Creator, buyer, cost); refundErr != nil {
			e.logger.ErrorContext(ctx, "sale: refund after failed delivery",
				slog.String("asset", asset),
				slog.String("buyer", buyer),
				slog.String("error", refundErr.Error()),
			)
		}
		return domain.Receipt{}, fmt.Errorf("sale: delivery transfer: %w", err)
	}

	if err := e.sales.UpdateTotalRaised(ctx, asset, newTotal); err != nil {
		return domain.Receipt{}, fmt.Errorf("sale: commit total raised: %w", err)
	}

	e.logger.InfoContext(ctx, "sale: purchase settled",
		slog.String("asset", asset),
		slog.String("buyer", buyer),
		slog.Uint64("amount", amount),
		slog.Uint64("cost", cost),
		slog.Uint64("total_raised", newTotal),
	)

	return domain.Receipt{
		ID:          uuid.NewString(),
		Asset:       asset,
		Buyer:       buyer,
		Amount:      amount,
		Cost:        cost,
		TotalRaised: newTotal,
		PurchasedAt: now,
		CreatedAt:   time.Unix(now, 0).UTC(),
	}, nil
}

// Get returns the sale record for an asset.
func (e *Engine) Get(ctx context.Context, asset string) (domain.Sale, error) {
	s, err := e.sales.Get(ctx, asset)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("sale: get %s: %w", asset, err)
	}
	return s, nil
}

// mulChecked multiplies two u64 values, reporting overflow.
func mulChecked(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

// addChecked adds two u64 values, reporting overflow.
func addChecked(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}
