package auth

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/saudema/saudema/internal/auth/providers"
	"github.com/saudema/saudema/internal/database/testutil"
	"github.com/saudema/saudema/internal/models"
)

type fakeSocialProvider struct {
	meta     providers.Metadata
	identity providers.Identity
	lastReq  providers.CallbackRequest
	err      error
}

func (p *fakeSocialProvider) Metadata() providers.Metadata { return p.meta }

func (p *fakeSocialProvider) AuthCodeURL(req providers.BeginRequest) (string, error) {
	q := url.Values{}
	q.Set("state", req.State)
	q.Set("nonce", req.Nonce)
	q.Set("code_challenge", req.PKCEChallenge)
	return "https://provider.example/authorize?" + q.Encode(), nil
}

func (p *fakeSocialProvider) Exchange(_ context.Context, req providers.CallbackRequest) (*providers.Identity, error) {
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	identity := p.identity
	return &identity, nil
}

type socialFixture struct {
	db      *gorm.DB
	manager *SocialManager
	google  *fakeSocialProvider
	logs    *observer.ObservedLogs
	clock   *testClock
}

func setupSocialManager(t *testing.T) socialFixture {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()

	sessions, err := NewSessionService(db, SessionConfig{Clock: clock.Now})
	require.NoError(t, err)
	states, err := NewStateCodec([]byte("0123456789abcdef0123456789abcdef"), 10*time.Minute, clock.Now)
	require.NoError(t, err)

	google := &fakeSocialProvider{
		meta:     providers.Metadata{Type: "google", DisplayName: "Google"},
		identity: providers.Identity{Provider: "google", Subject: "g-1", Email: "Maria@Example.com", DisplayName: "Maria"},
	}
	registry := providers.NewRegistry()
	require.NoError(t, registry.Register(google))

	core, logs := observer.New(zap.InfoLevel)
	manager, err := NewSocialManager(db, registry, states, sessions, SocialConfig{Clock: clock.Now, Logger: zap.New(core)})
	require.NoError(t, err)

	return socialFixture{db: db, manager: manager, google: google, logs: logs, clock: clock}
}

func TestFindOrCreateUserCreatesAccount(t *testing.T) {
	f := setupSocialManager(t)

	user, err := f.manager.FindOrCreateUser(context.Background(), providers.Identity{
		Provider:    "google",
		Subject:     "g-1",
		Email:       "Maria@Example.com",
		DisplayName: "Maria",
	})
	require.NoError(t, err)
	require.Equal(t, "maria@example.com", user.Email)
	require.Equal(t, "Maria", user.Username)
	require.True(t, user.EmailVerified)
	require.Equal(t, models.RoleUser, user.Role)
	require.NotNil(t, user.GoogleID)
	require.Equal(t, "g-1", *user.GoogleID)

	again, err := f.manager.FindOrCreateUser(context.Background(), providers.Identity{Provider: "google", Subject: "g-1"})
	require.NoError(t, err)
	require.Equal(t, user.ID, again.ID)

	var count int64
	require.NoError(t, f.db.Model(&models.User{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestFindOrCreateUserWithoutEmail(t *testing.T) {
	f := setupSocialManager(t)

	user, err := f.manager.FindOrCreateUser(context.Background(), providers.Identity{Provider: "github", Subject: "42"})
	require.NoError(t, err)
	require.Equal(t, "42@github.com", user.Email)
	require.Equal(t, "GitHubUser42", user.Username)
	require.False(t, user.EmailVerified)
	require.NotNil(t, user.GitHubID)
	require.Nil(t, user.GoogleID)
}

func TestFindOrCreateUserLinksExistingEmail(t *testing.T) {
	f := setupSocialManager(t)
	existing := createTestUser(t, f.db, "maria@example.com")

	user, err := f.manager.FindOrCreateUser(context.Background(), providers.Identity{
		Provider: "github",
		Subject:  "77",
		Email:    "maria@example.com",
		Login:    "maria-gh",
	})
	require.NoError(t, err)
	require.Equal(t, existing.ID, user.ID)

	var stored models.User
	require.NoError(t, f.db.Take(&stored, "id = ?", existing.ID).Error)
	require.NotNil(t, stored.GitHubID)
	require.Equal(t, "77", *stored.GitHubID)
	require.Equal(t, 1, f.logs.FilterMessage("existing account linked").Len())
}

func TestFindOrCreateUserKeepsConflictingLink(t *testing.T) {
	f := setupSocialManager(t)
	existing := createTestUser(t, f.db, "maria@example.com")
	linked := "g-original"
	require.NoError(t, f.db.Model(existing).Update("google_id", linked).Error)

	user, err := f.manager.FindOrCreateUser(context.Background(), providers.Identity{
		Provider: "google",
		Subject:  "g-other",
		Email:    "maria@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, existing.ID, user.ID)
	require.Equal(t, "g-original", *user.GoogleID)
	require.Equal(t, 1, f.logs.FilterMessage("email already linked to another provider id").Len())
}

func TestFindOrCreateUserMakesUsernameUnique(t *testing.T) {
	f := setupSocialManager(t)
	require.NoError(t, f.db.Create(&models.User{Username: "maria", Email: "outra@example.com", Role: models.RoleUser}).Error)

	user, err := f.manager.FindOrCreateUser(context.Background(), providers.Identity{
		Provider: "github",
		Subject:  "9",
		Email:    "maria@example.org",
		Login:    "maria",
	})
	require.NoError(t, err)
	require.Equal(t, "maria2", user.Username)
}

func TestFindOrCreateUserRejectsUnknownProvider(t *testing.T) {
	f := setupSocialManager(t)

	_, err := f.manager.FindOrCreateUser(context.Background(), providers.Identity{Provider: "ldap", Subject: "x"})
	require.ErrorIs(t, err, ErrUnknownProvider)

	_, err = f.manager.FindOrCreateUser(context.Background(), providers.Identity{Provider: "google"})
	require.ErrorIs(t, err, ErrSubjectRequired)
}

func TestSocialBeginAndComplete(t *testing.T) {
	f := setupSocialManager(t)

	redirect, err := f.manager.Begin("google")
	require.NoError(t, err)
	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	nonce := parsed.Query().Get("nonce")
	require.NotEmpty(t, state)
	require.NotEmpty(t, parsed.Query().Get("code_challenge"))

	result, err := f.manager.Complete(context.Background(), "google", state, "code-1", SessionMetadata{IPAddress: "10.0.0.5"})
	require.NoError(t, err)
	require.NotEmpty(t, result.SessionToken)
	require.Equal(t, "google", result.Session.Provider)
	require.Equal(t, "maria@example.com", result.User.Email)
	require.NotNil(t, result.User.LastLoginAt)

	require.Equal(t, "code-1", f.google.lastReq.Code)
	require.Equal(t, nonce, f.google.lastReq.ExpectedNonce)
	require.NotEmpty(t, f.google.lastReq.PKCEVerifier)

	resolved, _, err := f.manager.sessions.Resolve(context.Background(), result.SessionToken)
	require.NoError(t, err)
	require.Equal(t, result.User.ID, resolved.ID)
}

func TestSocialCompleteRejectsBadState(t *testing.T) {
	f := setupSocialManager(t)

	_, err := f.manager.Begin("github")
	require.ErrorIs(t, err, ErrUnknownProvider)

	_, err = f.manager.Complete(context.Background(), "google", "not-a-state", "code", SessionMetadata{})
	require.ErrorIs(t, err, ErrStateInvalid)

	foreign, err := f.manager.states.Encode(StatePayload{Provider: "github"})
	require.NoError(t, err)
	_, err = f.manager.Complete(context.Background(), "google", foreign, "code", SessionMetadata{})
	require.ErrorIs(t, err, ErrProviderMismatch)

	redirect, err := f.manager.Begin("google")
	require.NoError(t, err)
	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	f.clock.Advance(11 * time.Minute)
	_, err = f.manager.Complete(context.Background(), "google", parsed.Query().Get("state"), "code", SessionMetadata{})
	require.ErrorIs(t, err, ErrStateExpired)
}

func TestSocialCompleteWrapsExchangeFailure(t *testing.T) {
	f := setupSocialManager(t)
	upstream := errors.New("invalid_grant")
	f.google.err = upstream

	redirect, err := f.manager.Begin("google")
	require.NoError(t, err)
	parsed, err := url.Parse(redirect)
	require.NoError(t, err)

	_, err = f.manager.Complete(context.Background(), "google", parsed.Query().Get("state"), "bad-code", SessionMetadata{})
	require.ErrorIs(t, err, ErrExchangeFailed)
	require.ErrorIs(t, err, upstream)
}
