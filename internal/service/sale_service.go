// Package service orchestrates the core engines with persistence, rate
// limiting, audit logging, and event publication.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyades-labs/tokengate/internal/domain"
	"github.com/hyades-labs/tokengate/internal/sale"
)

// purchaseRateLimit caps settlement attempts per buyer.
const (
	purchaseRateLimit  = 10
	purchaseRateWindow = time.Second
)

// SaleService fronts the sale engine with rate limiting, receipt
// persistence, audit logging, and event publication.
type SaleService struct {
	engine   *sale.Engine
	receipts domain.ReceiptStore
	limiter  domain.RateLimiter
	bus      domain.SignalBus
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewSaleService creates a SaleService. The limiter and bus may be nil, in
// which case rate limiting and event publication are skipped (standalone
// mode).
func NewSaleService(
	engine *sale.Engine,
	receipts domain.ReceiptStore,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *SaleService {
	return &SaleService{
		engine:   engine,
		receipts: receipts,
		limiter:  limiter,
		bus:      bus,
		audit:    audit,
		logger:   logger,
	}
}

// CreateSale runs the engine's creation path, then records the event. The
// caller must be the sale creator; handlers resolve the caller identity
// before invoking this.
func (s *SaleService) CreateSale(ctx context.Context, caller string, p sale.CreateParams) (domain.Sale, error) {
	if caller != p.Creator {
		return domain.Sale{}, fmt.Errorf("sale_service: caller %s is not the creator: %w", caller, domain.ErrUnauthorized)
	}

	created, err := s.engine.CreateSale(ctx, p)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_created", map[string]any{
		"asset":    created.Asset,
		"creator":  created.Creator,
		"soft_cap": created.SoftCap,
		"hard_cap": created.HardCap,
		"deposit":  p.DepositAmount,
	})
	s.publish(ctx, "sales", map[string]any{
		"event":   "sale_created",
		"asset":   created.Asset,
		"creator": created.Creator,
	})

	return created, nil
}

// Purchase settles a purchase for the buyer, persists the receipt, and
// records the event. Buyers are rate limited individually.
func (s *SaleService) Purchase(ctx context.Context, asset, buyer string, amount uint64) (domain.Receipt, error) {
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "purchase:"+buyer, purchaseRateLimit, purchaseRateWindow)
		if err != nil {
			return domain.Receipt{}, fmt.Errorf("sale_service: rate limiter: %w", err)
		}
		if !allowed {
			return domain.Receipt{}, domain.ErrRateLimited
		}
	}

	receipt, err := s.engine.Purchase(ctx, asset, buyer, amount)
	if err != nil {
		return domain.Receipt{}, err
	}

	if err := s.receipts.Create(ctx, receipt); err != nil {
		// The exchange is already settled; a receipt write failure must not
		// surface as a failed purchase.
		s.logger.ErrorContext(ctx, "sale_service: persist receipt failed",
			slog.String("receipt_id", receipt.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logAudit(ctx, "purchase_settled", map[string]any{
		"receipt_id":   receipt.ID,
		"asset":        receipt.Asset,
		"buyer":        receipt.Buyer,
		"amount":       receipt.Amount,
		"cost":         receipt.Cost,
		"total_raised": receipt.TotalRaised,
	})
	s.publish(ctx, "purchases", map[string]any{
		"event":      "purchase_settled",
		"receipt_id": receipt.ID,
		"asset":      receipt.Asset,
		"buyer":      receipt.Buyer,
		"amount":     receipt.Amount,
	})

	return receipt, nil
}

// GetSale returns the sale record for an asset.
func (s *SaleService) GetSale(ctx context.Context, asset string) (domain.Sale, error) {
	return s.engine.Get(ctx, asset)
}

// ListReceipts returns settled receipts for an asset with pagination.
func (s *SaleService) ListReceipts(ctx context.Context, asset string, opts domain.ListOpts) ([]domain.Receipt, error) {
	receipts, err := s.receipts.ListByAsset(ctx, asset, opts)
	if err != nil {
		return nil, fmt.Errorf("sale_service: list receipts for %s: %w", asset, err)
	}
	return receipts, nil
}

func (s *SaleService) logAudit(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "sale_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SaleService) publish(ctx context.Context, channel string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	data, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, data); err != nil {
		s.logger.WarnContext(ctx, "sale_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
