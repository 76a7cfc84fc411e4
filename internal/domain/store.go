package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// SaleStore persists sale records, keyed by governed-asset identifier.
type SaleStore interface {
	Create(ctx context.Context, sale Sale) error
	Get(ctx context.Context, asset string) (Sale, error)
	// UpdateTotalRaised commits the post-purchase running total. It is the
	// only mutation a sale record ever receives.
	UpdateTotalRaised(ctx context.Context, asset string, total uint64) error
	List(ctx context.Context, opts ListOpts) ([]Sale, error)
}

// VaultStore persists the write-once vault deposit records.
type VaultStore interface {
	Create(ctx context.Context, rec VaultRecord) error
	Get(ctx context.Context, asset string) (VaultRecord, error)
}

// PolicyStore persists transfer-policy configurations, keyed by asset.
type PolicyStore interface {
	Create(ctx context.Context, p Policy) error
	Get(ctx context.Context, asset string) (Policy, error)
	Update(ctx context.Context, p Policy) error
}

// AllowlistStore persists presence-only allow-list markers keyed by
// (asset, wallet). Grant fails with ErrAlreadyExists for a duplicate pair,
// Revoke fails with ErrNotFound for a missing one.
type AllowlistStore interface {
	Grant(ctx context.Context, asset, wallet string) error
	Revoke(ctx context.Context, asset, wallet string) error
	Has(ctx context.Context, asset, wallet string) (bool, error)
	List(ctx context.Context, asset string) ([]AllowListEntry, error)
}

// ReceiptStore persists settled purchase receipts.
type ReceiptStore interface {
	Create(ctx context.Context, r Receipt) error
	ListByAsset(ctx context.Context, asset string, opts ListOpts) ([]Receipt, error)
	// ListBefore returns receipts created strictly before the cutoff,
	// used by the cold-storage archiver.
	ListBefore(ctx context.Context, before time.Time) ([]Receipt, error)
}

// DecisionStore persists policy evaluation outcomes.
type DecisionStore interface {
	Insert(ctx context.Context, d Decision) error
	ListByAsset(ctx context.Context, asset string, opts ListOpts) ([]Decision, error)
	ListBefore(ctx context.Context, before time.Time) ([]Decision, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
