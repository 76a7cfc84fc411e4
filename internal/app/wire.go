package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/hyades-labs/tokengate/internal/blob/s3"
	"github.com/hyades-labs/tokengate/internal/cache/redis"
	"github.com/hyades-labs/tokengate/internal/config"
	"github.com/hyades-labs/tokengate/internal/crypto"
	"github.com/hyades-labs/tokengate/internal/domain"
	"github.com/hyades-labs/tokengate/internal/ledger"
	"github.com/hyades-labs/tokengate/internal/notify"
	"github.com/hyades-labs/tokengate/internal/store/memory"
	"github.com/hyades-labs/tokengate/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	SaleStore      domain.SaleStore
	VaultStore     domain.VaultStore
	PolicyStore    domain.PolicyStore
	AllowlistStore domain.AllowlistStore
	ReceiptStore   domain.ReceiptStore
	DecisionStore  domain.DecisionStore
	AuditStore     domain.AuditStore

	// Ledger. Balances live in process; the stores above persist the
	// records the engine derives from them.
	Ledger *ledger.Memory
	Clock  domain.Clock

	// Redis-backed infrastructure, nil in standalone mode.
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	PolicyCache domain.PolicyCache

	// Blob storage, nil unless archival is enabled.
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Operator is the custodied platform signing identity, nil when no key
	// is configured.
	Operator *crypto.Signer

	// Notifier delivers operator alerts; it is always non-nil but may have
	// no senders configured.
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	return mode == "serve"
}

// needsRedis returns true for modes that require Redis.
func needsRedis(mode string) bool {
	return mode == "serve"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Ledger: ledger.NewMemory(),
		Clock:  ledger.SystemClock{},
	}

	// --- Stores ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		saleStore := postgres.NewSaleStore(pool)
		deps.SaleStore = saleStore
		deps.VaultStore = postgres.NewVaultStore(pool)
		policyStore := postgres.NewPolicyStore(pool)
		deps.PolicyStore = policyStore
		deps.AllowlistStore = postgres.NewAllowlistStore(pool)
		deps.ReceiptStore = postgres.NewReceiptStore(pool)
		deps.DecisionStore = postgres.NewDecisionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	} else {
		mem := memory.New()
		deps.SaleStore = mem
		deps.VaultStore = mem.Vaults()
		deps.PolicyStore = mem.Policies()
		deps.AllowlistStore = mem.Allowlist()
		deps.ReceiptStore = mem.Receipts()
		deps.DecisionStore = mem.Decisions()
		deps.AuditStore = mem.Audit()
	}

	// --- Redis ---
	if needsRedis(mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.PolicyCache = redis.NewPolicyCache(redisClient)
	}

	// --- S3 blob storage ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			archiveReceiptSource(deps.ReceiptStore),
			archiveDecisionSource(deps.DecisionStore),
			deps.AuditStore,
			cfg.Archive.Prefix,
		)
	}

	// --- Operator key ---
	if cfg.Platform.OperatorKey != "" || cfg.Platform.EncryptedKeyPath != "" {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Platform.OperatorKey,
			EncryptedKeyPath: cfg.Platform.EncryptedKeyPath,
			KeyPassword:      cfg.Platform.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}
		signer, err := crypto.NewSigner(keyHex)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}
		deps.Operator = signer
		logger.InfoContext(ctx, "wire: operator key loaded",
			slog.String("address", signer.Address().Hex()),
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// archiveReceiptSource narrows a ReceiptStore to the archiver's read
// interface.
func archiveReceiptSource(s domain.ReceiptStore) s3blob.ReceiptArchiveStore {
	return s
}

// archiveDecisionSource narrows a DecisionStore to the archiver's read
// interface.
func archiveDecisionSource(s domain.DecisionStore) s3blob.DecisionArchiveStore {
	return s
}
