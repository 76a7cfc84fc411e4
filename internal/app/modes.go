package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hyades-labs/tokengate/internal/domain"
	"github.com/hyades-labs/tokengate/internal/notify"
	"github.com/hyades-labs/tokengate/internal/policy"
	"github.com/hyades-labs/tokengate/internal/sale"
	"github.com/hyades-labs/tokengate/internal/server"
	"github.com/hyades-labs/tokengate/internal/server/handler"
	"github.com/hyades-labs/tokengate/internal/server/ws"
	"github.com/hyades-labs/tokengate/internal/service"
)

// archiveLockTTL bounds how long one instance may hold the archive lock.
const archiveLockTTL = 10 * time.Minute

// services bundles the orchestration layer built on top of the wired
// dependencies.
type services struct {
	sales    *service.SaleService
	policies *service.PolicyService
}

// buildServices constructs the engine, evaluator, and services from the
// wired dependencies. Nil redis-backed dependencies degrade gracefully:
// no rate limiting, no cache, no event publication.
func (a *App) buildServices(deps *Dependencies) *services {
	engine := sale.NewEngine(
		deps.SaleStore,
		deps.VaultStore,
		deps.Ledger,
		deps.Clock,
		a.logger,
	)
	evaluator := policy.NewEvaluator(deps.AllowlistStore, deps.Ledger, deps.Clock)

	return &services{
		sales: service.NewSaleService(
			engine,
			deps.ReceiptStore,
			deps.RateLimiter,
			deps.SignalBus,
			deps.AuditStore,
			a.logger,
		),
		policies: service.NewPolicyService(
			deps.PolicyStore,
			deps.PolicyCache,
			deps.AllowlistStore,
			evaluator,
			deps.DecisionStore,
			deps.Ledger,
			deps.Clock,
			deps.AuditStore,
			deps.SignalBus,
			a.logger,
			a.cfg.Platform.Treasury,
			a.cfg.Platform.RegistryFee,
		),
	}
}

// newHandlers builds the HTTP handler set over the services. The health
// endpoint reports the operator address so callers can confirm which
// custodied identity the server signs as.
func (a *App) newHandlers(svc *services, deps *Dependencies) server.Handlers {
	operator := ""
	if deps.Operator != nil {
		operator = deps.Operator.Address().Hex()
	}
	return server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Mode, operator, a.logger),
		Sales:     handler.NewSaleHandler(svc.sales, a.logger),
		Policies:  handler.NewPolicyHandler(svc.policies, a.logger),
		Transfers: handler.NewTransferHandler(svc.policies, a.logger),
	}
}

// ServeMode runs the full service: HTTP API, WebSocket hub fed by the Redis
// signal bus, and the optional cold-storage archive loop. It blocks until the
// context is cancelled or a component fails.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	svc := a.buildServices(deps)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, a.newHandlers(svc, deps), hub, deps.RateLimiter, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := hub.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(srv.Start)

	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			a.archiveLoop(gctx, deps)
			return nil
		})
	}

	if deps.Notifier != nil {
		bridge := notify.NewBridge(deps.SignalBus, deps.Notifier, a.logger)
		g.Go(func() error {
			err := bridge.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// StandaloneMode runs the HTTP API against in-memory stores and the
// in-process ledger. There is no Redis, no WebSocket hub, and no archival;
// everything lives and dies with the process.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	svc := a.buildServices(deps)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, a.newHandlers(svc, deps), nil, nil, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// archiveLoop periodically sweeps settled receipts and policy decisions older
// than the retention window into cold storage. A distributed lock keeps
// concurrent instances from uploading the same batch.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) {
	interval := a.cfg.ArchiveInterval()
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	a.logger.InfoContext(ctx, "archive loop started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runArchiveSweep(ctx, deps, retention)
		}
	}
}

func (a *App) runArchiveSweep(ctx context.Context, deps *Dependencies, retention time.Duration) {
	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, "archive_sweep", archiveLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				a.logger.DebugContext(ctx, "archive sweep skipped, lock held elsewhere")
				return
			}
			a.logger.WarnContext(ctx, "archive lock failed",
				slog.String("error", err.Error()),
			)
			return
		}
		defer unlock()
	}

	before := time.Now().UTC().Add(-retention)

	receipts, err := deps.Archiver.ArchiveReceipts(ctx, before)
	if err != nil {
		a.logger.ErrorContext(ctx, "archive receipts failed",
			slog.String("error", err.Error()),
		)
	}

	decisions, err := deps.Archiver.ArchiveDecisions(ctx, before)
	if err != nil {
		a.logger.ErrorContext(ctx, "archive decisions failed",
			slog.String("error", err.Error()),
		)
	}

	if receipts > 0 || decisions > 0 {
		a.logger.InfoContext(ctx, "archive sweep complete",
			slog.Int64("receipts", receipts),
			slog.Int64("decisions", decisions),
		)
	}
}
