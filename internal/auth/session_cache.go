package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/saudema/saudema/internal/cache"
	"github.com/saudema/saudema/internal/models"
)

const sessionCacheKeyPrefix = "auth:sessions:"

var errSessionCacheMiss = errors.New("session cache miss")

// SessionCache keeps recently used sessions keyed by token hash.
type SessionCache interface {
	Get(ctx context.Context, tokenHash string) (*models.Session, error)
	Set(ctx context.Context, session *models.Session, ttl time.Duration) error
	Delete(ctx context.Context, tokenHashes ...string) error
}

// NewSessionCache adapts a cache.Store. A nil store yields a nil cache.
func NewSessionCache(store cache.Store) SessionCache {
	if store == nil {
		return nil
	}
	return &storeSessionCache{store: store}
}

type storeSessionCache struct {
	store cache.Store
}

func (c *storeSessionCache) Get(ctx context.Context, tokenHash string) (*models.Session, error) {
	if tokenHash == "" {
		return nil, errSessionCacheMiss
	}
	data, found, err := c.store.Get(ctx, sessionCacheKeyPrefix+tokenHash)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errSessionCacheMiss
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("session cache: decode: %w", err)
	}
	// TokenHash is excluded from JSON
	session.TokenHash = tokenHash
	return &session, nil
}

func (c *storeSessionCache) Set(ctx context.Context, session *models.Session, ttl time.Duration) error {
	if session == nil || session.TokenHash == "" {
		return errors.New("session cache: session without token hash")
	}
	cached := *session
	cached.User = nil
	payload, err := json.Marshal(&cached)
	if err != nil {
		return fmt.Errorf("session cache: marshal: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.store.Set(ctx, sessionCacheKeyPrefix+session.TokenHash, payload, ttl)
}

func (c *storeSessionCache) Delete(ctx context.Context, tokenHashes ...string) error {
	keys := make([]string, 0, len(tokenHashes))
	for _, h := range tokenHashes {
		if h != "" {
			keys = append(keys, sessionCacheKeyPrefix+h)
		}
	}
	return c.store.Delete(ctx, keys...)
}
