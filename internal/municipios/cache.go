// Package municipios serves the list of Maranhão municipalities through a
// read-through cache that falls back to the last good list when IBGE fails.
package municipios

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saudema/saudema/pkg/metrics"
)

// DefaultTTL is how long a fetched list is served without refreshing.
const DefaultTTL = 24 * time.Hour

var (
	// ErrUpstreamUnavailable covers transport errors, non-2xx answers and
	// malformed payloads from the municipality provider.
	ErrUpstreamUnavailable = errors.New("municipios: upstream unavailable")
	// ErrNoDataAvailable is returned by List when the upstream failed and no
	// list was ever cached.
	ErrNoDataAvailable = errors.New("municipios: no data available")
)

// Fetcher retrieves the current municipality names from the source of truth.
type Fetcher interface {
	Fetch(ctx context.Context) ([]string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]string, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]string, error) { return f(ctx) }

// Snapshotter persists a copy of every successfully refreshed list.
type Snapshotter interface {
	SaveSnapshot(ctx context.Context, names []string, fetchedAt time.Time) error
}

// State describes the freshness of the cached list.
type State string

const (
	StateEmpty State = "empty"
	StateFresh State = "fresh"
	StateStale State = "stale"
)

// Status is a point-in-time view of the cache.
type Status struct {
	State     State         `json:"state"`
	FetchedAt *time.Time    `json:"fetched_at,omitempty"`
	ItemCount int           `json:"item_count"`
	TTL       time.Duration `json:"ttl"`
}

type entry struct {
	names     []string
	fetchedAt time.Time
}

// Cache is the read-through entry point. The zero value is not usable; build
// one with NewCache and share the pointer.
type Cache struct {
	fetcher  Fetcher
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger
	snapshot Snapshotter

	coalesce bool
	group    singleflight.Group

	mu    sync.RWMutex
	entry *entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the time source used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for hit, refresh and fallback events.
func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

// WithCoalescing makes concurrent misses share one upstream fetch.
func WithCoalescing(enabled bool) Option {
	return func(c *Cache) {
		c.coalesce = enabled
	}
}

// WithSnapshotter records each refreshed list. Snapshot failures are logged
// and never affect List.
func WithSnapshotter(s Snapshotter) Option {
	return func(c *Cache) {
		c.snapshot = s
	}
}

// NewCache builds an empty cache in front of fetcher.
func NewCache(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns the sorted, deduplicated municipality names. Inside the TTL it
// never touches the network. After the TTL it refetches; when that fails the
// previous list is returned unchanged, and ErrNoDataAvailable is returned only
// if there is no previous list.
func (c *Cache) List(ctx context.Context) ([]string, error) {
	names, _, err := c.ListWithStatus(ctx)
	return names, err
}

// ListWithStatus is List plus the status of the entry the names were read
// from, so callers can report freshness without racing a concurrent refresh.
func (c *Cache) ListWithStatus(ctx context.Context) ([]string, Status, error) {
	if current := c.current(); current != nil && c.isFresh(current) {
		metrics.MunicipioCacheEvents.WithLabelValues("hit").Inc()
		c.log.Debug("serving municipios from cache", zap.Int("items", len(current.names)))
		return clone(current.names), c.statusOf(current), nil
	}

	metrics.MunicipioCacheEvents.WithLabelValues("miss").Inc()
	fetched, err := c.refresh(ctx)
	if err == nil {
		return clone(fetched.names), c.statusOf(fetched), nil
	}

	if current := c.current(); current != nil {
		metrics.MunicipioCacheEvents.WithLabelValues("stale").Inc()
		c.log.Warn("municipio refresh failed, serving stale list",
			zap.Error(err),
			zap.Time("fetched_at", current.fetchedAt),
			zap.Int("items", len(current.names)),
		)
		return clone(current.names), c.statusOf(current), nil
	}

	metrics.MunicipioCacheEvents.WithLabelValues("error").Inc()
	c.log.Error("municipio list unavailable", zap.Error(err))
	return nil, c.statusOf(nil), fmt.Errorf("%w: %w", ErrNoDataAvailable, err)
}

// Status reports the cache state without triggering a fetch.
func (c *Cache) Status() Status {
	return c.statusOf(c.current())
}

func (c *Cache) current() *entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry
}

// statusOf describes e. Entries are never mutated after they are stored.
func (c *Cache) statusOf(e *entry) Status {
	status := Status{State: StateEmpty, TTL: c.ttl}
	if e == nil {
		return status
	}

	fetchedAt := e.fetchedAt
	status.FetchedAt = &fetchedAt
	status.ItemCount = len(e.names)
	status.State = StateStale
	if c.isFresh(e) {
		status.State = StateFresh
	}
	return status
}

func (c *Cache) isFresh(e *entry) bool {
	return c.now().Sub(e.fetchedAt) < c.ttl
}

func (c *Cache) refresh(ctx context.Context) (*entry, error) {
	if !c.coalesce {
		return c.fetchAndStore(ctx)
	}

	ch := c.group.DoChan("municipios", func() (interface{}, error) {
		return c.fetchAndStore(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entry), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, ctx.Err())
	}
}

// fetchAndStore performs one upstream fetch and, on success, overwrites the
// slot. Concurrent calls race and the last to finish wins.
func (c *Cache) fetchAndStore(ctx context.Context) (*entry, error) {
	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", ErrUpstreamUnavailable)
	}

	c.log.Info("fetching municipio list from upstream")
	raw, err := c.fetcher.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
		return nil, err
	}

	names := Normalize(raw)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: empty municipio list", ErrUpstreamUnavailable)
	}

	stored := &entry{names: names, fetchedAt: c.now()}
	c.mu.Lock()
	c.entry = stored
	c.mu.Unlock()

	metrics.MunicipioCacheEvents.WithLabelValues("refresh").Inc()
	c.log.Info("municipio cache refreshed", zap.Int("items", len(names)))

	if c.snapshot != nil {
		if err := c.snapshot.SaveSnapshot(ctx, clone(names), stored.fetchedAt); err != nil {
			c.log.Warn("failed to persist municipio snapshot", zap.Error(err))
		}
	}

	return stored, nil
}

// Normalize sorts names and drops duplicates and blank entries.
func Normalize(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name != "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)

	deduped := out[:0]
	for _, name := range out {
		if len(deduped) > 0 && deduped[len(deduped)-1] == name {
			continue
		}
		deduped = append(deduped, name)
	}
	return deduped
}

func clone(names []string) []string {
	if names == nil {
		return nil
	}
	out := make([]string, len(names))
	copy(out, names)
	return out
}
