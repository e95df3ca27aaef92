package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	iauth "github.com/saudema/saudema/internal/auth"
	"github.com/saudema/saudema/internal/auth/providers"
	"github.com/saudema/saudema/internal/cache"
	testutil "github.com/saudema/saudema/internal/database/testutil"
	"github.com/saudema/saudema/internal/models"
	"github.com/saudema/saudema/internal/monitoring"
)

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

type failingPurger struct{ err error }

func (p failingPurger) CleanupExpired(context.Context) (int64, error) { return 0, p.err }

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &fixedClock{current: time.Now().UTC()}

	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{TTL: time.Hour, Clock: clock.Now})
	require.NoError(t, err)
	local, err := providers.NewLocalProvider(db, providers.LocalConfig{PasswordCost: 4})
	require.NoError(t, err)
	resets, err := iauth.NewPasswordResetService(db, nil, local, iauth.PasswordResetConfig{Clock: clock.Now})
	require.NoError(t, err)
	store := cache.NewDatabaseStore(db)

	user, err := local.Register(context.Background(), providers.RegisterInput{
		Username: "limpeza",
		Email:    "limpeza@example.com",
		Password: "Limpeza#123",
	})
	require.NoError(t, err)

	_, expired, err := sessions.Create(context.Background(), user.ID, iauth.SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Session{}).Where("id = ?", expired.ID).
		Update("expires_at", clock.Now().Add(-2*time.Hour)).Error)
	_, active, err := sessions.Create(context.Background(), user.ID, iauth.SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.PasswordResetToken{
		UserID:    user.ID,
		Token:     "reset-expired",
		ExpiresAt: clock.Now().Add(-time.Hour),
	}).Error)
	require.NoError(t, db.Create(&models.PasswordResetToken{
		UserID:    user.ID,
		Token:     "reset-active",
		ExpiresAt: clock.Now().Add(time.Hour),
	}).Error)

	require.NoError(t, store.Set(context.Background(), "short", []byte("x"), time.Minute))
	require.NoError(t, store.Set(context.Background(), "long", []byte("y"), 24*time.Hour))

	tracker := monitoring.NewJobTracker()
	c := NewCleaner(resets, sessions,
		WithCache(store),
		WithTracker(tracker),
		WithNow(func() time.Time { return time.Now().Add(time.Hour) }),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)
	require.NoError(t, c.RunOnce(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.Session{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
	var remaining models.Session
	require.NoError(t, db.First(&remaining, "id = ?", active.ID).Error)

	require.NoError(t, db.Model(&models.PasswordResetToken{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	_, found, err := store.Get(context.Background(), "long")
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	jobs := tracker.Jobs()
	require.Len(t, jobs, 3)
	for _, job := range jobs {
		require.Equal(t, "success", job.LastStatus, job.Job)
	}
}

func TestCleanerRunOnceCombinesFailures(t *testing.T) {
	tracker := monitoring.NewJobTracker()
	boom := errors.New("database is locked")
	c := NewCleaner(failingPurger{boom}, failingPurger{boom}, WithTracker(tracker))

	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), JobPasswordResets)
	require.Contains(t, err.Error(), JobSessions)

	jobs := tracker.Jobs()
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		require.Equal(t, "failure", job.LastStatus)
		require.EqualValues(t, 1, job.ConsecutiveFailures)
	}
}

func TestCleanerStartWithoutJobs(t *testing.T) {
	c := NewCleaner(nil, nil)
	require.NoError(t, c.Start())
	<-c.Stop().Done()
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	c := NewCleaner(failingPurger{}, nil, WithSchedule("every now and then"))
	require.Error(t, c.Start())
}
