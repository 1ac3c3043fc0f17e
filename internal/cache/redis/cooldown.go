package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/awestray/backlay/internal/domain"
	"github.com/redis/go-redis/v9"
)

// CooldownGate implements domain.CooldownGate using Redis SET NX with an
// expiry: the first caller in a period claims the key, everyone else is
// suppressed until it expires.
type CooldownGate struct {
	rdb *redis.Client
}

// NewCooldownGate creates a CooldownGate backed by the given Client.
func NewCooldownGate(c *Client) *CooldownGate {
	return &CooldownGate{rdb: c.Underlying()}
}

func cooldownKey(key string) string { return "cooldown:" + key }

// Allow returns true at most once per period for a key; the winning call
// starts the period.
func (cg *CooldownGate) Allow(ctx context.Context, key string, period time.Duration) (bool, error) {
	ok, err := cg.rdb.SetNX(ctx, cooldownKey(key), 1, period).Result()
	if err != nil {
		return false, fmt.Errorf("redis: cooldown allow %s: %w", key, err)
	}
	return ok, nil
}

// Clear resets the cooldown so the next Allow succeeds immediately.
func (cg *CooldownGate) Clear(ctx context.Context, key string) error {
	if err := cg.rdb.Del(ctx, cooldownKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: cooldown clear %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.CooldownGate = (*CooldownGate)(nil)
