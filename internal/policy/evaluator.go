// Package policy implements the transfer-policy evaluator: four
// independently toggleable gates, AND-combined, consulted before any
// movement of a governed asset.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyades-labs/tokengate/internal/domain"
)

// MarkerLookup is the narrow allow-list read the evaluator needs. The
// allowlist store satisfies it.
type MarkerLookup interface {
	Has(ctx context.Context, asset, wallet string) (bool, error)
}

// Evaluator decides whether a proposed transfer of a governed asset may
// proceed. It is stateless and side-effect-free: every call reads the policy
// it is handed plus the external lookups, and returns nil for pass or the
// violated gate's error for fail. It is safe for concurrent use.
type Evaluator struct {
	markers  MarkerLookup
	holdings domain.HoldingLookup
	clock    domain.Clock
}

// NewEvaluator creates an Evaluator over the given lookups and clock.
func NewEvaluator(markers MarkerLookup, holdings domain.HoldingLookup, clock domain.Clock) *Evaluator {
	return &Evaluator{
		markers:  markers,
		holdings: holdings,
		clock:    clock,
	}
}

// Evaluate runs every enabled gate against the request. Disabled gates are
// vacuously true. Gates run in a fixed order (holding, trading window,
// bounds, allow-list) and the first violation wins.
func (e *Evaluator) Evaluate(ctx context.Context, p domain.Policy, req domain.TransferRequest) error {
	if p.HoldingGated {
		if err := e.checkHolding(ctx, p, req.Wallet); err != nil {
			return err
		}
	}

	if p.TradingTimeEnabled && p.OpenMinute != nil && p.CloseMinute != nil {
		minute := MinuteOfDay(e.clock.Now())
		if !WindowOpen(*p.OpenMinute, *p.CloseMinute, minute) {
			return domain.ErrTradingClosed
		}
	}

	if p.MaxTransferEnabled {
		if req.Amount > p.MaxTransferAmount {
			return domain.ErrExceedsMaxTransfer
		}
		if req.Amount < p.MinTransferAmount {
			return domain.ErrBelowMinTransfer
		}
	}

	if p.WhitelistEnabled {
		ok, err := e.markers.Has(ctx, req.Asset, req.Wallet)
		if err != nil {
			return fmt.Errorf("policy: allow-list lookup: %w", err)
		}
		if !ok {
			return domain.ErrNotWhitelisted
		}
	}

	return nil
}

// checkHolding requires the wallet to hold a non-zero balance of the
// configured gating asset. A missing account and a zero balance fail the
// same way.
func (e *Evaluator) checkHolding(ctx context.Context, p domain.Policy, wallet string) error {
	balance, err := e.holdings.HoldingBalance(ctx, wallet, p.GatingAsset)
	if err != nil {
		if errors.Is(err, domain.ErrAccountMissing) {
			return domain.ErrMissingRequiredHolding
		}
		return fmt.Errorf("policy: holding lookup: %w", err)
	}
	if balance == 0 {
		return domain.ErrMissingRequiredHolding
	}
	return nil
}

// RuleName maps a gate failure to the name recorded on a Decision. It
// returns the empty string for nil or non-policy errors.
func RuleName(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingRequiredHolding):
		return "holding"
	case errors.Is(err, domain.ErrTradingClosed):
		return "trading_time"
	case errors.Is(err, domain.ErrExceedsMaxTransfer), errors.Is(err, domain.ErrBelowMinTransfer):
		return "transfer_bounds"
	case errors.Is(err, domain.ErrNotWhitelisted):
		return "whitelist"
	default:
		return ""
	}
}
