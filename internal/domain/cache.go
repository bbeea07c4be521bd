package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Lock is a held distributed lock.
type Lock interface {
	// Refresh extends the lock's TTL. It fails with ErrLockHeld when the lock
	// has been lost to another holder.
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub for live fan-out and durable streams for
// consumers that must not miss messages.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe delivers messages from every channel matching pattern until
	// ctx is cancelled.
	Subscribe(ctx context.Context, pattern string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	// StreamRead returns up to count messages after lastID, blocking up to
	// block for new ones. A zero block returns immediately.
	StreamRead(ctx context.Context, stream, lastID string, count int, block time.Duration) ([]StreamMessage, error)
}
