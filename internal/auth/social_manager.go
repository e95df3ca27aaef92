package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/saudema/saudema/internal/auth/providers"
	"github.com/saudema/saudema/internal/database"
	"github.com/saudema/saudema/internal/models"
	"github.com/saudema/saudema/pkg/crypto"
	"github.com/saudema/saudema/pkg/metrics"
)

var (
	ErrUnknownProvider  = errors.New("social login: provider not enabled")
	ErrProviderMismatch = errors.New("social login: state issued for another provider")
	ErrSubjectRequired  = errors.New("social login: provider returned no subject")
	ErrExchangeFailed   = errors.New("social login: code exchange failed")
)

// SocialConfig tunes SocialManager.
type SocialConfig struct {
	Clock  func() time.Time
	Logger *zap.Logger
}

// SocialManager drives the Google and GitHub redirect flows and maps the
// returned identities onto local accounts.
type SocialManager struct {
	db       *gorm.DB
	registry *providers.Registry
	states   *StateCodec
	sessions *SessionService
	clock    func() time.Time
	log      *zap.Logger
}

func NewSocialManager(db *gorm.DB, registry *providers.Registry, states *StateCodec, sessions *SessionService, cfg SocialConfig) (*SocialManager, error) {
	if db == nil {
		return nil, errors.New("social login: db is required")
	}
	if registry == nil || states == nil || sessions == nil {
		return nil, errors.New("social login: registry, state codec and sessions are required")
	}
	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &SocialManager{
		db:       db,
		registry: registry,
		states:   states,
		sessions: sessions,
		clock:    clock,
		log:      log,
	}, nil
}

// Providers lists the enabled redirect providers.
func (m *SocialManager) Providers() []providers.Metadata {
	return m.registry.Metadata()
}

// Begin returns the provider URL the browser is sent to.
func (m *SocialManager) Begin(providerType string) (string, error) {
	p, ok := m.registry.Get(providerType)
	if !ok {
		return "", ErrUnknownProvider
	}
	method := strings.ToLower(strings.TrimSpace(providerType))

	nonce, err := crypto.GenerateToken(16)
	if err != nil {
		return "", fmt.Errorf("social login: generate nonce: %w", err)
	}
	pkce, err := GeneratePKCE()
	if err != nil {
		return "", err
	}

	state, err := m.states.Encode(StatePayload{
		Provider: method,
		Nonce:    nonce,
		PKCE:     pkce.Verifier,
	})
	if err != nil {
		return "", err
	}

	return p.AuthCodeURL(providers.BeginRequest{
		State:         state,
		Nonce:         nonce,
		PKCEChallenge: pkce.Challenge,
	})
}

// CallbackResult is what a successful callback produces.
type CallbackResult struct {
	User         *models.User
	SessionToken string
	Session      *models.Session
}

// Complete validates the state, exchanges the code, links or creates the
// account and opens a browser session.
func (m *SocialManager) Complete(ctx context.Context, providerType, state, code string, meta SessionMetadata) (*CallbackResult, error) {
	p, ok := m.registry.Get(providerType)
	if !ok {
		return nil, ErrUnknownProvider
	}
	method := strings.ToLower(strings.TrimSpace(providerType))

	payload, err := m.states.Decode(state)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(method, "failure").Inc()
		return nil, err
	}
	if payload.Provider != method {
		metrics.AuthAttempts.WithLabelValues(method, "failure").Inc()
		return nil, ErrProviderMismatch
	}

	identity, err := p.Exchange(ctx, providers.CallbackRequest{
		Code:          code,
		PKCEVerifier:  payload.PKCE,
		ExpectedNonce: payload.Nonce,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(method, "failure").Inc()
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}

	user, err := m.FindOrCreateUser(ctx, *identity)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(method, "failure").Inc()
		return nil, err
	}

	meta.Provider = method
	token, session, err := m.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	if err := m.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Update("last_login_at", now).Error; err == nil {
		user.LastLoginAt = &now
	}

	metrics.AuthAttempts.WithLabelValues(method, "success").Inc()
	return &CallbackResult{User: user, SessionToken: token, Session: session}, nil
}

// FindOrCreateUser matches the identity by provider id, then by e-mail
// (linking the provider id when the account has none), and finally creates
// a new account.
func (m *SocialManager) FindOrCreateUser(ctx context.Context, identity providers.Identity) (*models.User, error) {
	subject := strings.TrimSpace(identity.Subject)
	if subject == "" {
		return nil, ErrSubjectRequired
	}
	column, label, domain, err := providerFields(identity.Provider)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = m.db.WithContext(ctx).Where(column+" = ?", subject).Take(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("social login: find by %s: %w", column, err)
	}

	email := strings.ToLower(strings.TrimSpace(identity.Email))
	if email != "" {
		linked, err := m.linkByEmail(ctx, email, column, label, subject)
		if err != nil || linked != nil {
			return linked, err
		}
	}

	return m.create(ctx, identity, column, label, domain, subject, email)
}

func (m *SocialManager) linkByEmail(ctx context.Context, email, column, label, subject string) (*models.User, error) {
	var user models.User
	err := m.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("social login: find by email: %w", err)
	}

	current := providerID(&user, column)
	switch {
	case current == "":
		if err := m.db.WithContext(ctx).Model(&user).Update(column, subject).Error; err != nil {
			return nil, fmt.Errorf("social login: link %s: %w", label, err)
		}
		setProviderID(&user, column, subject)
		m.log.Info("existing account linked", zap.String("provider", label), zap.String("email", email))
	case current != subject:
		m.log.Warn("email already linked to another provider id",
			zap.String("provider", label), zap.String("email", email))
	}
	return &user, nil
}

func (m *SocialManager) create(ctx context.Context, identity providers.Identity, column, label, domain, subject, email string) (*models.User, error) {
	verified := email != ""
	if email == "" {
		email = fmt.Sprintf("%s@%s", subject, domain)
	}

	base := firstNonEmpty(identity.Login, identity.DisplayName, fmt.Sprintf("%sUser%s", label, subject))
	username, err := m.uniqueUsername(ctx, base)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:      username,
		Email:         email,
		EmailVerified: verified,
		Role:          models.RoleUser,
	}
	setProviderID(user, column, subject)

	m.log.Info("creating social account", zap.String("provider", label), zap.String("email", email))
	if err := m.db.WithContext(ctx).Create(user).Error; err != nil {
		if database.IsUniqueConstraintError(err) {
			// a concurrent callback created the same account
			var existing models.User
			if lerr := m.db.WithContext(ctx).Where(column+" = ?", subject).Take(&existing).Error; lerr == nil {
				return &existing, nil
			}
		}
		return nil, fmt.Errorf("social login: create user: %w", err)
	}
	return user, nil
}

func (m *SocialManager) uniqueUsername(ctx context.Context, base string) (string, error) {
	for attempt := 0; attempt < 50; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s%d", base, attempt+1)
		}
		var count int64
		if err := m.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", candidate).Count(&count).Error; err != nil {
			return "", fmt.Errorf("social login: check username: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", errors.New("social login: unable to generate unique username")
}

func providerFields(provider string) (column, label, domain string, err error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "google":
		return "google_id", "Google", "google.com", nil
	case "github":
		return "github_id", "GitHub", "github.com", nil
	}
	return "", "", "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
}

func providerID(user *models.User, column string) string {
	var id *string
	if column == "google_id" {
		id = user.GoogleID
	} else {
		id = user.GitHubID
	}
	if id == nil {
		return ""
	}
	return *id
}

func setProviderID(user *models.User, column, subject string) {
	id := subject
	if column == "google_id" {
		user.GoogleID = &id
	} else {
		user.GitHubID = &id
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
