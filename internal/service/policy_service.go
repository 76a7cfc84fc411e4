package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hyades-labs/tokengate/internal/domain"
	"github.com/hyades-labs/tokengate/internal/policy"
)

// PolicyService owns the transfer-policy lifecycle: registry initialization,
// owner-only mutation, allow-list grants, and gated transfer execution.
type PolicyService struct {
	policies  domain.PolicyStore
	cache     domain.PolicyCache
	markers   domain.AllowlistStore
	evaluator *policy.Evaluator
	decisions domain.DecisionStore
	ledger    domain.AssetLedger
	clock     domain.Clock
	audit     domain.AuditStore
	bus       domain.SignalBus
	logger    *slog.Logger

	treasury    string
	registryFee uint64
}

// NewPolicyService creates a PolicyService. The cache and bus may be nil.
// When treasury is non-empty and registryFee non-zero, every registry
// initialization charges the fee from the owner to the treasury.
func NewPolicyService(
	policies domain.PolicyStore,
	cache domain.PolicyCache,
	markers domain.AllowlistStore,
	evaluator *policy.Evaluator,
	decisions domain.DecisionStore,
	ledger domain.AssetLedger,
	clock domain.Clock,
	audit domain.AuditStore,
	bus domain.SignalBus,
	logger *slog.Logger,
	treasury string,
	registryFee uint64,
) *PolicyService {
	return &PolicyService{
		policies:    policies,
		cache:       cache,
		markers:     markers,
		evaluator:   evaluator,
		decisions:   decisions,
		ledger:      ledger,
		clock:       clock,
		audit:       audit,
		bus:         bus,
		logger:      logger,
		treasury:    treasury,
		registryFee: registryFee,
	}
}

// InitParams carries the configuration for a new transfer policy.
type InitParams struct {
	Owner       string
	Asset       string
	GatingAsset string
	OpenMinute  *uint16
	CloseMinute *uint16
	MaxTransfer uint64
	MinTransfer uint64
}

// InitializePolicy charges the registry fee, then writes a policy with every
// gate disabled. Minutes, bounds, and the gating asset are fixed here; the
// toggles are flipped later through UpdateFlags.
func (s *PolicyService) InitializePolicy(ctx context.Context, p InitParams) (domain.Policy, error) {
	if s.registryFee > 0 && s.treasury != "" {
		if err := s.ledger.NativeTransfer(ctx, p.Owner, s.treasury, s.registryFee); err != nil {
			return domain.Policy{}, fmt.Errorf("policy_service: registry fee: %w", err)
		}
	}

	now := time.Now().UTC()
	pol := domain.Policy{
		Owner:             p.Owner,
		Asset:             p.Asset,
		GatingAsset:       p.GatingAsset,
		OpenMinute:        p.OpenMinute,
		CloseMinute:       p.CloseMinute,
		MaxTransferAmount: p.MaxTransfer,
		MinTransferAmount: p.MinTransfer,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.policies.Create(ctx, pol); err != nil {
		return domain.Policy{}, fmt.Errorf("policy_service: create policy for %s: %w", p.Asset, err)
	}

	s.logAudit(ctx, "policy_initialized", map[string]any{
		"asset": p.Asset,
		"owner": p.Owner,
	})
	s.logger.InfoContext(ctx, "policy_service: policy initialized",
		slog.String("asset", p.Asset),
		slog.String("owner", p.Owner),
	)
	return pol, nil
}

// UpdateFlags replaces the four gate toggles. Only the stored owner may
// call it; no cross-field validation is applied.
func (s *PolicyService) UpdateFlags(ctx context.Context, caller, asset string, flags domain.PolicyFlags) (domain.Policy, error) {
	pol, err := s.policies.Get(ctx, asset)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("policy_service: load policy for %s: %w", asset, err)
	}
	if caller != pol.Owner {
		return domain.Policy{}, fmt.Errorf("policy_service: caller %s is not the owner: %w", caller, domain.ErrUnauthorized)
	}

	pol.WhitelistEnabled = flags.Whitelist
	pol.TradingTimeEnabled = flags.TradingTime
	pol.MaxTransferEnabled = flags.MaxTransfer
	pol.HoldingGated = flags.HoldingGated
	pol.UpdatedAt = time.Now().UTC()

	if err := s.policies.Update(ctx, pol); err != nil {
		return domain.Policy{}, fmt.Errorf("policy_service: update policy for %s: %w", asset, err)
	}
	s.invalidateCache(ctx, asset)

	s.logAudit(ctx, "policy_flags_updated", map[string]any{
		"asset":        asset,
		"whitelist":    flags.Whitelist,
		"trading_time": flags.TradingTime,
		"max_transfer": flags.MaxTransfer,
		"holding_gate": flags.HoldingGated,
	})
	return pol, nil
}

// Grant creates an allow-list marker for (asset, wallet). Owner-only.
func (s *PolicyService) Grant(ctx context.Context, caller, asset, wallet string) error {
	if err := s.requireOwner(ctx, caller, asset); err != nil {
		return err
	}
	if err := s.markers.Grant(ctx, asset, wallet); err != nil {
		return fmt.Errorf("policy_service: grant %s/%s: %w", asset, wallet, err)
	}
	s.logAudit(ctx, "whitelist_granted", map[string]any{"asset": asset, "wallet": wallet})
	return nil
}

// Revoke destroys the allow-list marker for (asset, wallet). Owner-only.
func (s *PolicyService) Revoke(ctx context.Context, caller, asset, wallet string) error {
	if err := s.requireOwner(ctx, caller, asset); err != nil {
		return err
	}
	if err := s.markers.Revoke(ctx, asset, wallet); err != nil {
		return fmt.Errorf("policy_service: revoke %s/%s: %w", asset, wallet, err)
	}
	s.logAudit(ctx, "whitelist_revoked", map[string]any{"asset": asset, "wallet": wallet})
	return nil
}

// GetPolicy returns the policy for an asset, reading through the cache when
// one is configured.
func (s *PolicyService) GetPolicy(ctx context.Context, asset string) (domain.Policy, error) {
	if s.cache != nil {
		if pol, err := s.cache.Get(ctx, asset); err == nil {
			return pol, nil
		}
	}
	pol, err := s.policies.Get(ctx, asset)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("policy_service: load policy for %s: %w", asset, err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, pol); err != nil {
			s.logger.WarnContext(ctx, "policy_service: cache set failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()),
			)
		}
	}
	return pol, nil
}

// ListWhitelist returns the allow-list entries for an asset.
func (s *PolicyService) ListWhitelist(ctx context.Context, asset string) ([]domain.AllowListEntry, error) {
	entries, err := s.markers.List(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("policy_service: list whitelist for %s: %w", asset, err)
	}
	return entries, nil
}

// Check evaluates the transfer policy for a request without moving anything.
// The recorded decision is returned; a denied transfer is not an error here,
// only an infrastructure fault is.
func (s *PolicyService) Check(ctx context.Context, req domain.TransferRequest) (domain.Decision, error) {
	pol, err := s.GetPolicy(ctx, req.Asset)
	if err != nil {
		return domain.Decision{}, err
	}

	evalErr := s.evaluator.Evaluate(ctx, pol, req)
	if evalErr != nil && !domain.IsPolicyViolation(evalErr) {
		return domain.Decision{}, fmt.Errorf("policy_service: evaluate: %w", evalErr)
	}

	dec := domain.Decision{
		ID:        uuid.NewString(),
		Asset:     req.Asset,
		Wallet:    req.Wallet,
		Amount:    req.Amount,
		Allowed:   evalErr == nil,
		Rule:      policy.RuleName(evalErr),
		DecidedAt: s.clock.Now(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.decisions.Insert(ctx, dec); err != nil {
		s.logger.WarnContext(ctx, "policy_service: persist decision failed",
			slog.String("decision_id", dec.ID),
			slog.String("error", err.Error()),
		)
	}
	s.publish(ctx, "policy", map[string]any{
		"event":   "policy_decision",
		"asset":   dec.Asset,
		"wallet":  dec.Wallet,
		"allowed": dec.Allowed,
		"rule":    dec.Rule,
	})

	return dec, nil
}

// Transfer evaluates the policy for the request and, on pass, executes the
// asset movement. The hook and the transfer run as one operation: a denied
// evaluation means nothing moves.
func (s *PolicyService) Transfer(ctx context.Context, req domain.TransferRequest) (domain.Decision, error) {
	pol, err := s.GetPolicy(ctx, req.Asset)
	if err != nil {
		return domain.Decision{}, err
	}

	evalErr := s.evaluator.Evaluate(ctx, pol, req)
	if evalErr != nil && !domain.IsPolicyViolation(evalErr) {
		return domain.Decision{}, fmt.Errorf("policy_service: evaluate: %w", evalErr)
	}

	dec := domain.Decision{
		ID:        uuid.NewString(),
		Asset:     req.Asset,
		Wallet:    req.Wallet,
		Amount:    req.Amount,
		Allowed:   evalErr == nil,
		Rule:      policy.RuleName(evalErr),
		DecidedAt: s.clock.Now(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.decisions.Insert(ctx, dec); err != nil {
		s.logger.WarnContext(ctx, "policy_service: persist decision failed",
			slog.String("decision_id", dec.ID),
			slog.String("error", err.Error()),
		)
	}

	if evalErr != nil {
		s.publish(ctx, "transfers", map[string]any{
			"event":  "transfer_denied",
			"asset":  req.Asset,
			"wallet": req.Wallet,
			"rule":   dec.Rule,
		})
		return dec, evalErr
	}

	if err := s.ledger.AssetTransfer(ctx, req.Wallet, req.Asset, req.To, req.Wallet, req.Amount); err != nil {
		return dec, fmt.Errorf("policy_service: execute transfer: %w", err)
	}

	s.logAudit(ctx, "transfer_executed", map[string]any{
		"asset":  req.Asset,
		"from":   req.Wallet,
		"to":     req.To,
		"amount": req.Amount,
	})
	s.publish(ctx, "transfers", map[string]any{
		"event":  "transfer_executed",
		"asset":  req.Asset,
		"from":   req.Wallet,
		"to":     req.To,
		"amount": req.Amount,
	})

	return dec, nil
}

// requireOwner loads the policy and checks the caller against its owner.
func (s *PolicyService) requireOwner(ctx context.Context, caller, asset string) error {
	pol, err := s.policies.Get(ctx, asset)
	if err != nil {
		return fmt.Errorf("policy_service: load policy for %s: %w", asset, err)
	}
	if caller != pol.Owner {
		return fmt.Errorf("policy_service: caller %s is not the owner: %w", caller, domain.ErrUnauthorized)
	}
	return nil
}

func (s *PolicyService) invalidateCache(ctx context.Context, asset string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, asset); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "policy_service: cache invalidate failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PolicyService) logAudit(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "policy_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PolicyService) publish(ctx context.Context, channel string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	data, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, data); err != nil {
		s.logger.WarnContext(ctx, "policy_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
