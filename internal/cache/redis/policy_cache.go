package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyades-labs/tokengate/internal/domain"
)

const policyTTL = 5 * time.Minute

// PolicyCache implements domain.PolicyCache using Redis hashes with
// JSON-serialized policy data.
//
// Key schema:
//
//	policy:{asset} - hash with field "data" containing JSON
type PolicyCache struct {
	rdb *redis.Client
}

// NewPolicyCache creates a PolicyCache backed by the given Client.
func NewPolicyCache(c *Client) *PolicyCache {
	return &PolicyCache{rdb: c.Underlying()}
}

func policyKey(asset string) string { return "policy:" + asset }

// Set stores a policy in the cache with a 5-minute TTL.
func (pc *PolicyCache) Set(ctx context.Context, p domain.Policy) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redis: marshal policy %s: %w", p.Asset, err)
	}

	key := policyKey(p.Asset)

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, policyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set policy %s: %w", p.Asset, err)
	}
	return nil
}

// Get retrieves a policy by its governed asset from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PolicyCache) Get(ctx context.Context, asset string) (domain.Policy, error) {
	data, err := pc.rdb.HGet(ctx, policyKey(asset), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Policy{}, domain.ErrNotFound
		}
		return domain.Policy{}, fmt.Errorf("redis: get policy %s: %w", asset, err)
	}

	var p domain.Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Policy{}, fmt.Errorf("redis: unmarshal policy %s: %w", asset, err)
	}
	return p, nil
}

// Invalidate removes a policy from the cache. Callers invalidate after every
// flag or allow-list mutation so readers never see a stale configuration for
// longer than one round trip.
func (pc *PolicyCache) Invalidate(ctx context.Context, asset string) error {
	if err := pc.rdb.Del(ctx, policyKey(asset)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate policy %s: %w", asset, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PolicyCache = (*PolicyCache)(nil)
