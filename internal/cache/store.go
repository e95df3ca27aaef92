// Package cache provides the shared key/value store used for browser
// sessions and rate limit counters. Redis is used when configured, the
// primary database otherwise.
package cache

import (
	"context"
	"time"
)

// Store is the key/value contract shared by the Redis and database backends.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
