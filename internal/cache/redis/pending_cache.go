package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/awestray/backlay/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PendingCache implements domain.PendingCache using Redis string keys with
// JSON-serialized execution contexts.
//
// Key schema:
//
//	pending:{id} - JSON-encoded ExecutionContext, expiring after the TTL
type PendingCache struct {
	rdb *redis.Client
}

// NewPendingCache creates a PendingCache backed by the given Client.
func NewPendingCache(c *Client) *PendingCache {
	return &PendingCache{rdb: c.Underlying()}
}

func pendingKey(id string) string { return "pending:" + id }

// Put stores an execution context with the given TTL. Expiry is the safety
// net: a context nobody acted on disappears rather than lingering with
// detection-time prices.
func (pc *PendingCache) Put(ctx context.Context, ec domain.ExecutionContext, ttl time.Duration) error {
	data, err := json.Marshal(ec)
	if err != nil {
		return fmt.Errorf("redis: marshal pending context %s: %w", ec.ID, err)
	}
	if err := pc.rdb.Set(ctx, pendingKey(ec.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: put pending context %s: %w", ec.ID, err)
	}
	return nil
}

// Get retrieves a pending context without consuming it.
// It returns domain.ErrNotFound when the entry does not exist or has expired.
func (pc *PendingCache) Get(ctx context.Context, id string) (domain.ExecutionContext, error) {
	data, err := pc.rdb.Get(ctx, pendingKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ExecutionContext{}, domain.ErrNotFound
		}
		return domain.ExecutionContext{}, fmt.Errorf("redis: get pending context %s: %w", id, err)
	}
	return decodePending(id, data)
}

// Take atomically fetches and removes a pending context via GETDEL, so two
// operators pressing the same button race for a single winner.
func (pc *PendingCache) Take(ctx context.Context, id string) (domain.ExecutionContext, error) {
	data, err := pc.rdb.GetDel(ctx, pendingKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ExecutionContext{}, domain.ErrNotFound
		}
		return domain.ExecutionContext{}, fmt.Errorf("redis: take pending context %s: %w", id, err)
	}
	return decodePending(id, data)
}

func decodePending(id string, data []byte) (domain.ExecutionContext, error) {
	var ec domain.ExecutionContext
	if err := json.Unmarshal(data, &ec); err != nil {
		return domain.ExecutionContext{}, fmt.Errorf("redis: unmarshal pending context %s: %w", id, err)
	}
	return ec, nil
}

// Compile-time interface check.
var _ domain.PendingCache = (*PendingCache)(nil)
