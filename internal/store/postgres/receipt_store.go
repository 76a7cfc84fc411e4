package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyades-labs/tokengate/internal/domain"
)

// ReceiptStore implements domain.ReceiptStore using PostgreSQL.
type ReceiptStore struct {
	pool *pgxpool.Pool
}

// NewReceiptStore creates a ReceiptStore backed by the given pool.
func NewReceiptStore(pool *pgxpool.Pool) *ReceiptStore {
	return &ReceiptStore{pool: pool}
}

// Create inserts a settled receipt.
func (r *ReceiptStore) Create(ctx context.Context, rec domain.Receipt) error {
	const query = `
		INSERT INTO receipts (id, asset, buyer, amount, cost, total_raised, purchased_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.Asset, rec.Buyer,
		int64(rec.Amount), int64(rec.Cost), int64(rec.TotalRaised),
		rec.PurchasedAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert receipt %s: %w", rec.ID, err)
	}
	return nil
}

// ListByAsset returns receipts for an asset, newest first.
func (r *ReceiptStore) ListByAsset(ctx context.Context, asset string, opts domain.ListOpts) ([]domain.Receipt, error) {
	const query = `
		SELECT id, asset, buyer, amount, cost, total_raised, purchased_at, created_at
		FROM receipts WHERE asset = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, query, asset, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list receipts for %s: %w", asset, err)
	}
	defer rows.Close()
	return collectReceipts(rows)
}

// ListBefore returns receipts created strictly before the cutoff.
func (r *ReceiptStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Receipt, error) {
	const query = `
		SELECT id, asset, buyer, amount, cost, total_raised, purchased_at, created_at
		FROM receipts WHERE created_at < $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list receipts before %s: %w", before, err)
	}
	defer rows.Close()
	return collectReceipts(rows)
}

func collectReceipts(rows pgx.Rows) ([]domain.Receipt, error) {
	var receipts []domain.Receipt
	for rows.Next() {
		var rec domain.Receipt
		var amount, cost, total int64
		err := rows.Scan(
			&rec.ID, &rec.Asset, &rec.Buyer,
			&amount, &cost, &total,
			&rec.PurchasedAt, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan receipt: %w", err)
		}
		rec.Amount = uint64(amount)
		rec.Cost = uint64(cost)
		rec.TotalRaised = uint64(total)
		receipts = append(receipts, rec)
	}
	return receipts, rows.Err()
}

// DecisionStore implements domain.DecisionStore using PostgreSQL.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a DecisionStore backed by the given pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

// Insert records a policy decision.
func (d *DecisionStore) Insert(ctx context.Context, dec domain.Decision) error {
	const query = `
		INSERT INTO decisions (id, asset, wallet, amount, allowed, rule, decided_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := d.pool.Exec(ctx, query,
		dec.ID, dec.Asset, dec.Wallet,
		int64(dec.Amount), dec.Allowed, dec.Rule,
		dec.DecidedAt, dec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert decision %s: %w", dec.ID, err)
	}
	return nil
}

// ListByAsset returns decisions for an asset, newest first.
func (d *DecisionStore) ListByAsset(ctx context.Context, asset string, opts domain.ListOpts) ([]domain.Decision, error) {
	const query = `
		SELECT id, asset, wallet, amount, allowed, rule, decided_at, created_at
		FROM decisions WHERE asset = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.pool.Query(ctx, query, asset, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions for %s: %w", asset, err)
	}
	defer rows.Close()
	return collectDecisions(rows)
}

// ListBefore returns decisions created strictly before the cutoff.
func (d *DecisionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Decision, error) {
	const query = `
		SELECT id, asset, wallet, amount, allowed, rule, decided_at, created_at
		FROM decisions WHERE created_at < $1 ORDER BY created_at`

	rows, err := d.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions before %s: %w", before, err)
	}
	defer rows.Close()
	return collectDecisions(rows)
}

func collectDecisions(rows pgx.Rows) ([]domain.Decision, error) {
	var decisions []domain.Decision
	for rows.Next() {
		var dec domain.Decision
		var amount int64
		err := rows.Scan(
			&dec.ID, &dec.Asset, &dec.Wallet,
			&amount, &dec.Allowed, &dec.Rule,
			&dec.DecidedAt, &dec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}
		dec.Amount = uint64(amount)
		decisions = append(decisions, dec)
	}
	return decisions, rows.Err()
}

// Compile-time interface checks.
var (
	_ domain.ReceiptStore  = (*ReceiptStore)(nil)
	_ domain.DecisionStore = (*DecisionStore)(nil)
)
