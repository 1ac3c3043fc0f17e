package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// PendingCache holds execution contexts awaiting operator approval. Entries
// expire on their own after the TTL so a forgotten alert can never be acted
// on with stale prices.
type PendingCache interface {
	Put(ctx context.Context, ec ExecutionContext, ttl time.Duration) error
	Get(ctx context.Context, id string) (ExecutionContext, error)
	// Take atomically fetches and removes an entry so two operators cannot
	// both trigger the same context.
	Take(ctx context.Context, id string) (ExecutionContext, error)
}

// CooldownGate suppresses repeat events per key for a fixed period.
type CooldownGate interface {
	// Allow returns true at most once per period for a key; the winning call
	// starts the period.
	Allow(ctx context.Context, key string, period time.Duration) (bool, error)
	Clear(ctx context.Context, key string) error
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
