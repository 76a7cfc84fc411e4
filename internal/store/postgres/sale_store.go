package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyades-labs/tokengate/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// SaleStore implements domain.SaleStore using PostgreSQL.
type SaleStore struct {
	pool *pgxpool.Pool
}

// NewSaleStore creates a SaleStore backed by the given connection pool.
func NewSaleStore(pool *pgxpool.Pool) *SaleStore {
	return &SaleStore{pool: pool}
}

// Create inserts a new sale record.
func (s *SaleStore) Create(ctx context.Context, sale domain.Sale) error {
	const query = `
		INSERT INTO sales (
			asset, creator, soft_cap, hard_cap, start_time, end_time,
			vault, total_raised, price_per_unit, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		sale.Asset, sale.Creator,
		int64(sale.SoftCap), int64(sale.HardCap),
		sale.StartTime, sale.EndTime,
		sale.Vault, int64(sale.TotalRaised), int64(sale.PricePerUnit),
		sale.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: sale %s: %w", sale.Asset, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: insert sale %s: %w", sale.Asset, err)
	}
	return nil
}

// Get returns the sale keyed by asset.
func (s *SaleStore) Get(ctx context.Context, asset string) (domain.Sale, error) {
	const query = `
		SELECT asset, creator, soft_cap, hard_cap, start_time, end_time,
		       vault, total_raised, price_per_unit, created_at
		FROM sales WHERE asset = $1`

	sale, err := scanSale(s.pool.QueryRow(ctx, query, asset))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Sale{}, fmt.Errorf("postgres: sale %s: %w", asset, domain.ErrNotFound)
		}
		return domain.Sale{}, fmt.Errorf("postgres: get sale %s: %w", asset, err)
	}
	return sale, nil
}

// UpdateTotalRaised commits the post-purchase running total.
func (s *SaleStore) UpdateTotalRaised(ctx context.Context, asset string, total uint64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sales SET total_raised = $2 WHERE asset = $1`,
		asset, int64(total),
	)
	if err != nil {
		return fmt.Errorf("postgres: update total raised for %s: %w", asset, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: sale %s: %w", asset, domain.ErrNotFound)
	}
	return nil
}

// List returns sales ordered by asset with pagination.
func (s *SaleStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Sale, error) {
	const query = `
		SELECT asset, creator, soft_cap, hard_cap, start_time, end_time,
		       vault, total_raised, price_per_unit, created_at
		FROM sales ORDER BY asset LIMIT $1 OFFSET $2`

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sales: %w", err)
	}
	defer rows.Close()

	var sales []domain.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func scanSale(row pgx.Row) (domain.Sale, error) {
	var sale domain.Sale
	var softCap, hardCap, totalRaised, price int64
	err := row.Scan(
		&sale.Asset, &sale.Creator,
		&softCap, &hardCap,
		&sale.StartTime, &sale.EndTime,
		&sale.Vault, &totalRaised, &price,
		&sale.CreatedAt,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.SoftCap = uint64(softCap)
	sale.HardCap = uint64(hardCap)
	sale.TotalRaised = uint64(totalRaised)
	sale.PricePerUnit = uint64(price)
	return sale, nil
}

// VaultStore implements domain.VaultStore using PostgreSQL.
type VaultStore struct {
	pool *pgxpool.Pool
}

// NewVaultStore creates a VaultStore backed by the given connection pool.
func NewVaultStore(pool *pgxpool.Pool) *VaultStore {
	return &VaultStore{pool: pool}
}

// Create inserts the write-once vault record.
func (v *VaultStore) Create(ctx context.Context, rec domain.VaultRecord) error {
	_, err := v.pool.Exec(ctx,
		`INSERT INTO vaults (asset, creator, deposited, created_at) VALUES ($1, $2, $3, $4)`,
		rec.Asset, rec.Creator, int64(rec.Deposited), rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: vault %s: %w", rec.Asset, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: insert vault %s: %w", rec.Asset, err)
	}
	return nil
}

// Get returns the vault record keyed by asset.
func (v *VaultStore) Get(ctx context.Context, asset string) (domain.VaultRecord, error) {
	var rec domain.VaultRecord
	var deposited int64
	err := v.pool.QueryRow(ctx,
		`SELECT asset, creator, deposited, created_at FROM vaults WHERE asset = $1`,
		asset,
	).Scan(&rec.Asset, &rec.Creator, &deposited, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VaultRecord{}, fmt.Errorf("postgres: vault %s: %w", asset, domain.ErrNotFound)
		}
		return domain.VaultRecord{}, fmt.Errorf("postgres: get vault %s: %w", asset, err)
	}
	rec.Deposited = uint64(deposited)
	return rec, nil
}

// Compile-time interface checks.
var (
	_ domain.SaleStore  = (*SaleStore)(nil)
	_ domain.VaultStore = (*VaultStore)(nil)
)
