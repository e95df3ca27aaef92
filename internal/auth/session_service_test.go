package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/saudema/saudema/internal/cache"
	"github.com/saudema/saudema/internal/database/testutil"
	"github.com/saudema/saudema/internal/models"
)

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{Username: "usuario", Email: email, Role: models.RoleUser}
	require.NoError(t, db.Create(user).Error)
	return user
}

func setupSessionService(t *testing.T, withCache bool) (*gorm.DB, *SessionService, *testClock) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()
	cfg := SessionConfig{Clock: clock.Now}
	if withCache {
		cfg.Cache = NewSessionCache(cache.NewDatabaseStore(db))
	}
	svc, err := NewSessionService(db, cfg)
	require.NoError(t, err)
	return db, svc, clock
}

func TestSessionCreateStoresOnlyHash(t *testing.T) {
	db, svc, clock := setupSessionService(t, false)
	user := createTestUser(t, db, "maria@example.com")

	token, session, err := svc.Create(context.Background(), user.ID, SessionMetadata{
		Provider:  "google",
		IPAddress: " 10.0.0.1 ",
		UserAgent: "teste",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, "10.0.0.1", session.IPAddress)

	var stored models.Session
	require.NoError(t, db.Take(&stored, "id = ?", session.ID).Error)
	require.Equal(t, hashToken(token), stored.TokenHash)
	require.NotEqual(t, token, stored.TokenHash)
	require.True(t, stored.ExpiresAt.Equal(clock.Now().Add(DefaultSessionTTL)))
}

func TestSessionResolve(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		db, svc, clock := setupSessionService(t, withCache)
		user := createTestUser(t, db, "joao@example.com")

		token, _, err := svc.Create(context.Background(), user.ID, SessionMetadata{Provider: "github"})
		require.NoError(t, err)

		got, session, err := svc.Resolve(context.Background(), token)
		require.NoError(t, err)
		require.Equal(t, user.ID, got.ID)
		require.Equal(t, "github", session.Provider)

		_, _, err = svc.Resolve(context.Background(), "desconhecido")
		require.ErrorIs(t, err, ErrSessionNotFound)

		_, _, err = svc.Resolve(context.Background(), "")
		require.ErrorIs(t, err, ErrSessionInvalidToken)

		clock.Advance(DefaultSessionTTL)
		_, _, err = svc.Resolve(context.Background(), token)
		require.ErrorIs(t, err, ErrSessionExpired)
	}
}

func TestSessionRevoke(t *testing.T) {
	db, svc, _ := setupSessionService(t, true)
	user := createTestUser(t, db, "ana@example.com")

	token, _, err := svc.Create(context.Background(), user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), token))
	_, _, err = svc.Resolve(context.Background(), token)
	require.ErrorIs(t, err, ErrSessionRevoked)

	require.ErrorIs(t, svc.Revoke(context.Background(), token), ErrSessionNotFound)
}

func TestSessionCleanupExpired(t *testing.T) {
	db, svc, clock := setupSessionService(t, true)
	user := createTestUser(t, db, "pedro@example.com")
	ctx := context.Background()

	expired, _, err := svc.Create(ctx, user.ID, SessionMetadata{})
	require.NoError(t, err)
	revoked, _, err := svc.Create(ctx, user.ID, SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, revoked))

	clock.Advance(DefaultSessionTTL + time.Minute)
	active, _, err := svc.Create(ctx, user.ID, SessionMetadata{})
	require.NoError(t, err)

	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	_, _, err = svc.Resolve(ctx, expired)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, _, err = svc.Resolve(ctx, active)
	require.NoError(t, err)
}
