package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/saudema/saudema/internal/cache"
)

// RateDecision is the outcome of one rate limit check.
type RateDecision struct {
	Allowed   bool
	Remaining int
	Reset     time.Duration
}

// RateStore decides whether another request for key fits in limit per window.
type RateStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error)
}

// MemoryRateStore keeps one token bucket per key in process memory. Idle
// buckets are dropped by a janitor goroutine until Close is called.
type MemoryRateStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	clock   func() time.Time
	idle    time.Duration
	stop    chan struct{}
	once    sync.Once
}

type memoryBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryRateStore constructs an in-memory rate store.
func NewMemoryRateStore() *MemoryRateStore {
	return newMemoryRateStore(time.Now, 10*time.Minute, time.Minute)
}

func newMemoryRateStore(clock func() time.Time, idle, sweep time.Duration) *MemoryRateStore {
	store := &MemoryRateStore{
		buckets: make(map[string]*memoryBucket),
		clock:   clock,
		idle:    idle,
		stop:    make(chan struct{}),
	}
	go store.janitor(sweep)
	return store
}

func (s *MemoryRateStore) janitor(every time.Duration) {
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-tick.C:
			s.sweep()
		}
	}
}

func (s *MemoryRateStore) sweep() {
	cutoff := s.clock().Add(-s.idle)
	s.mu.Lock()
	for key, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
	s.mu.Unlock()
}

// Close stops the janitor.
func (s *MemoryRateStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *MemoryRateStore) Allow(_ context.Context, key string, limit int, window time.Duration) (RateDecision, error) {
	if limit <= 0 {
		return RateDecision{Allowed: true}, nil
	}
	if window <= 0 {
		window = time.Minute
	}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &memoryBucket{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		s.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	decision := RateDecision{Allowed: allowed, Remaining: max(0, int(tokens))}
	if tokens < 1 {
		perToken := window / time.Duration(limit)
		decision.Reset = time.Duration((1 - tokens) * float64(perToken))
	}
	return decision, nil
}

// storeRateStore counts requests in fixed windows on a shared cache, so every
// instance behind a load balancer sees the same counters.
type storeRateStore struct {
	store cache.Store
}

// NewRedisRateStore wraps a Redis-backed cache store in a RateStore implementation.
func NewRedisRateStore(store *cache.RedisStore) RateStore {
	if store == nil {
		return nil
	}
	return &storeRateStore{store: store}
}

// NewDatabaseRateStore builds a RateStore based on the SQL database cache.
func NewDatabaseRateStore(store *cache.DatabaseStore) RateStore {
	if store == nil {
		return nil
	}
	return &storeRateStore{store: store}
}

func (s *storeRateStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, "ratelimit:"+key, window)
	if err != nil {
		return RateDecision{}, err
	}
	return RateDecision{
		Allowed:   count <= int64(limit),
		Remaining: max(0, limit-int(count)),
		Reset:     ttl,
	}, nil
}
