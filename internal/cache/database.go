package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/saudema/saudema/internal/models"
)

// ErrStoreClosed is returned by a nil store.
var ErrStoreClosed = errors.New("cache: store not initialised")

// DatabaseStore implements Store on the cache_entries table. It backs
// sessions and rate limits when Redis is not configured, so every replica
// sharing the database sees the same counters.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// DatabaseOption tunes a DatabaseStore.
type DatabaseOption func(*DatabaseStore)

// WithStoreClock replaces time.Now for expiry decisions.
func WithStoreClock(now func() time.Time) DatabaseOption {
	return func(s *DatabaseStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewDatabaseStore(db *gorm.DB, opts ...DatabaseOption) *DatabaseStore {
	if db == nil {
		return nil
	}
	s := &DatabaseStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IncrementWithTTL bumps the counter under key inside a row-locked
// transaction. An expired counter restarts at one with a fresh window.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, ErrStoreClosed
	}
	if window <= 0 {
		window = time.Minute
	}
	key = normalizeKey(key)

	now := s.now()
	var (
		count     int64
		expiresAt time.Time
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.CacheEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&entry, "key = ?", key).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			count, expiresAt = 1, now.Add(window)
			return tx.Create(&models.CacheEntry{
				Key:       key,
				Value:     counterValue(count),
				ExpiresAt: expiresAt,
			}).Error
		case err != nil:
			return err
		}

		if entry.Expired(now) {
			count, expiresAt = 1, now.Add(window)
		} else {
			current, _ := strconv.ParseInt(string(entry.Value), 10, 64)
			count, expiresAt = current+1, entry.ExpiresAt
		}
		entry.Value = counterValue(count)
		entry.ExpiresAt = expiresAt
		return tx.Save(&entry).Error
	})
	if err != nil {
		return 0, 0, err
	}

	return count, expiresAt.Sub(now), nil
}

// Set upserts key. A non-positive ttl stores the value without expiry.
func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return ErrStoreClosed
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(&models.CacheEntry{Key: normalizeKey(key), Value: value, ExpiresAt: expiresAt}).Error
}

// Get returns the value under key. Expired rows are removed lazily and
// reported as missing.
func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, ErrStoreClosed
	}
	key = normalizeKey(key)

	var entry models.CacheEntry
	err := s.db.WithContext(ctx).Take(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if entry.Expired(s.now()) {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	return entry.Value, true, nil
}

func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return ErrStoreClosed
	}
	if len(keys) == 0 {
		return nil
	}
	normalized := make([]string, len(keys))
	for i, key := range keys {
		normalized[i] = normalizeKey(key)
	}
	return s.db.WithContext(ctx).Where("key IN ?", normalized).Delete(&models.CacheEntry{}).Error
}

// PurgeExpired deletes entries whose expiry passed before now and returns
// how many were removed. Entries without expiry are kept.
func (s *DatabaseStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if s == nil {
		return 0, ErrStoreClosed
	}
	res := s.db.WithContext(ctx).
		Where("expires_at > ? AND expires_at < ?", time.Time{}, now).
		Delete(&models.CacheEntry{})
	return res.RowsAffected, res.Error
}

func counterValue(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}
