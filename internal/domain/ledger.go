package domain

import (
	"context"
	"io"
	"time"
)

// Clock supplies wall-clock time in whole seconds since the Unix epoch. The
// sale window and trading-hours checks both read through this interface so
// tests can pin time.
type Clock interface {
	Now() int64
}

// AssetLedger executes atomic value transfers and reports balances. Each call
// is all-or-nothing; a returned error means no movement happened.
type AssetLedger interface {
	// NativeTransfer moves native-asset value between wallets.
	NativeTransfer(ctx context.Context, from, to string, amount uint64) error

	// AssetTransfer moves fungible-asset units. The authority must be the
	// holding wallet itself or a delegate registered for it; anything else
	// fails with ErrUnauthorized.
	AssetTransfer(ctx context.Context, from, asset, to, authority string, amount uint64) error

	NativeBalance(ctx context.Context, wallet string) (uint64, error)
	AssetBalance(ctx context.Context, wallet, asset string) (uint64, error)
}

// HoldingLookup reads the balance a wallet holds of a gating asset. The
// balance lives at a fixed byte offset inside an externally owned account
// record (bytes 64..72, little-endian u64); implementations own that ABI
// contract. A wallet with no account for the asset gets ErrAccountMissing.
type HoldingLookup interface {
	HoldingBalance(ctx context.Context, wallet, gatingAsset string) (uint64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// SignalBus provides pub/sub fan-out of settlement and policy events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager provides distributed mutual exclusion. Acquire returns an
// unlock function, or ErrLockHeld when another party holds the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// PolicyCache provides fast policy lookups in front of the policy store.
type PolicyCache interface {
	Set(ctx context.Context, p Policy) error
	Get(ctx context.Context, asset string) (Policy, error)
	Invalidate(ctx context.Context, asset string) error
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver moves settled records from the database to cold storage.
type Archiver interface {
	ArchiveReceipts(ctx context.Context, before time.Time) (int64, error)
	ArchiveDecisions(ctx context.Context, before time.Time) (int64, error)
}
