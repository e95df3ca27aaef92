package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/saudema/saudema/internal/cache"
	"github.com/saudema/saudema/internal/database/testutil"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestRateLimitMemoryStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	clock := &manualClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	store := newMemoryRateStore(clock.Now, time.Hour, time.Hour)
	defer store.Close()

	r := gin.New()
	r.POST("/login", RateLimit(store, 2, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/register", RateLimit(store, 2, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	first := serve(r, http.MethodPost, "/login")
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/login").Code)

	limited := serve(r, http.MethodPost, "/login")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.Equal(t, "Muitas requisições, tente novamente mais tarde.", decodeError(t, limited).Message)
	require.NotEmpty(t, limited.Header().Get("Retry-After"))

	// other routes keep their own bucket
	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/register").Code)

	// one token refills every window/limit
	clock.Advance(31 * time.Second)
	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/login").Code)
	require.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodPost, "/login").Code)
}

func TestMemoryRateStoreSweep(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	store := newMemoryRateStore(clock.Now, time.Minute, time.Hour)
	defer store.Close()

	_, err := store.Allow(context.Background(), "a", 1, time.Minute)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	_, err = store.Allow(context.Background(), "b", 1, time.Minute)
	require.NoError(t, err)

	store.sweep()
	store.mu.Lock()
	defer store.mu.Unlock()
	require.NotContains(t, store.buckets, "a")
	require.Contains(t, store.buckets, "b")
}

func TestRateLimitDatabaseStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseRateStore(cache.NewDatabaseStore(db))

	r := gin.New()
	r.POST("/forgot-password", RateLimit(store, 1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/forgot-password").Code)
	limited := serve(r, http.MethodPost, "/forgot-password")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.Equal(t, "0", limited.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/ping", RateLimit(nil, 1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping").Code)
	}
	require.Nil(t, NewRedisRateStore(nil))
}
