package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyades-labs/tokengate/internal/domain"
)

// PolicyStore implements domain.PolicyStore using PostgreSQL.
type PolicyStore struct {
	pool *pgxpool.Pool
}

// NewPolicyStore creates a PolicyStore backed by the given connection pool.
func NewPolicyStore(pool *pgxpool.Pool) *PolicyStore {
	return &PolicyStore{pool: pool}
}

// Create inserts a new policy record.
func (p *PolicyStore) Create(ctx context.Context, pol domain.Policy) error {
	const query = `
		INSERT INTO policies (
			asset, owner, gating_asset,
			whitelist_enabled, trading_time_enabled, max_transfer_enabled, holding_gated,
			open_minute, close_minute, max_transfer_amount, min_transfer_amount,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := p.pool.Exec(ctx, query,
		pol.Asset, pol.Owner, pol.GatingAsset,
		pol.WhitelistEnabled, pol.TradingTimeEnabled, pol.MaxTransferEnabled, pol.HoldingGated,
		minutePtr(pol.OpenMinute), minutePtr(pol.CloseMinute),
		int64(pol.MaxTransferAmount), int64(pol.MinTransferAmount),
		pol.CreatedAt, pol.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: policy %s: %w", pol.Asset, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: insert policy %s: %w", pol.Asset, err)
	}
	return nil
}

// Get returns the policy keyed by asset.
func (p *PolicyStore) Get(ctx context.Context, asset string) (domain.Policy, error) {
	const query = `
		SELECT asset, owner, gating_asset,
		       whitelist_enabled, trading_time_enabled, max_transfer_enabled, holding_gated,
		       open_minute, close_minute, max_transfer_amount, min_transfer_amount,
		       created_at, updated_at
		FROM policies WHERE asset = $1`

	var pol domain.Policy
	var open, close *int16
	var maxAmount, minAmount int64
	err := p.pool.QueryRow(ctx, query, asset).Scan(
		&pol.Asset, &pol.Owner, &pol.GatingAsset,
		&pol.WhitelistEnabled, &pol.TradingTimeEnabled, &pol.MaxTransferEnabled, &pol.HoldingGated,
		&open, &close, &maxAmount, &minAmount,
		&pol.CreatedAt, &pol.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Policy{}, fmt.Errorf("postgres: policy %s: %w", asset, domain.ErrNotFound)
		}
		return domain.Policy{}, fmt.Errorf("postgres: get policy %s: %w", asset, err)
	}
	pol.OpenMinute = minuteVal(open)
	pol.CloseMinute = minuteVal(close)
	pol.MaxTransferAmount = uint64(maxAmount)
	pol.MinTransferAmount = uint64(minAmount)
	return pol, nil
}

// Update replaces the mutable fields of a policy record.
func (p *PolicyStore) Update(ctx context.Context, pol domain.Policy) error {
	const query = `
		UPDATE policies SET
			gating_asset = $2,
			whitelist_enabled = $3, trading_time_enabled = $4,
			max_transfer_enabled = $5, holding_gated = $6,
			open_minute = $7, close_minute = $8,
			max_transfer_amount = $9, min_transfer_amount = $10,
			updated_at = $11
		WHERE asset = $1`

	tag, err := p.pool.Exec(ctx, query,
		pol.Asset, pol.GatingAsset,
		pol.WhitelistEnabled, pol.TradingTimeEnabled,
		pol.MaxTransferEnabled, pol.HoldingGated,
		minutePtr(pol.OpenMinute), minutePtr(pol.CloseMinute),
		int64(pol.MaxTransferAmount), int64(pol.MinTransferAmount),
		pol.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update policy %s: %w", pol.Asset, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: policy %s: %w", pol.Asset, domain.ErrNotFound)
	}
	return nil
}

func minutePtr(m *uint16) *int16 {
	if m == nil {
		return nil
	}
	v := int16(*m)
	return &v
}

func minuteVal(m *int16) *uint16 {
	if m == nil {
		return nil
	}
	v := uint16(*m)
	return &v
}

// AllowlistStore implements domain.AllowlistStore using PostgreSQL.
type AllowlistStore struct {
	pool *pgxpool.Pool
}

// NewAllowlistStore creates an AllowlistStore backed by the given pool.
func NewAllowlistStore(pool *pgxpool.Pool) *AllowlistStore {
	return &AllowlistStore{pool: pool}
}

// Grant inserts a presence marker for (asset, wallet).
func (a *AllowlistStore) Grant(ctx context.Context, asset, wallet string) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO allowlist_markers (asset, wallet) VALUES ($1, $2)`,
		asset, wallet,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: marker %s/%s: %w", asset, wallet, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: grant %s/%s: %w", asset, wallet, err)
	}
	return nil
}

// Revoke deletes the marker for (asset, wallet).
func (a *AllowlistStore) Revoke(ctx context.Context, asset, wallet string) error {
	tag, err := a.pool.Exec(ctx,
		`DELETE FROM allowlist_markers WHERE asset = $1 AND wallet = $2`,
		asset, wallet,
	)
	if err != nil {
		return fmt.Errorf("postgres: revoke %s/%s: %w", asset, wallet, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: marker %s/%s: %w", asset, wallet, domain.ErrNotFound)
	}
	return nil
}

// Has reports whether a marker exists for (asset, wallet).
func (a *AllowlistStore) Has(ctx context.Context, asset, wallet string) (bool, error) {
	var exists bool
	err := a.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM allowlist_markers WHERE asset = $1 AND wallet = $2)`,
		asset, wallet,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check marker %s/%s: %w", asset, wallet, err)
	}
	return exists, nil
}

// List returns all markers for an asset ordered by wallet.
func (a *AllowlistStore) List(ctx context.Context, asset string) ([]domain.AllowListEntry, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT asset, wallet, granted_at FROM allowlist_markers WHERE asset = $1 ORDER BY wallet`,
		asset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markers for %s: %w", asset, err)
	}
	defer rows.Close()

	var entries []domain.AllowListEntry
	for rows.Next() {
		var e domain.AllowListEntry
		if err := rows.Scan(&e.Asset, &e.Wallet, &e.GrantedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan marker: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Compile-time interface checks.
var (
	_ domain.PolicyStore    = (*PolicyStore)(nil)
	_ domain.AllowlistStore = (*AllowlistStore)(nil)
)
