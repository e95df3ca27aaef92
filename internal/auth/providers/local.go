package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/saudema/saudema/internal/database"
	"github.com/saudema/saudema/internal/models"
	"github.com/saudema/saudema/pkg/crypto"
)

var (
	// ErrInvalidCredentials covers unknown e-mails, wrong passwords and
	// accounts without a local password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrEmailTaken is returned by Register for an e-mail already in use.
	ErrEmailTaken = errors.New("auth: email already registered")
	// ErrPasswordTooLong is returned for passwords bcrypt cannot hash whole.
	ErrPasswordTooLong = errors.New("auth: password exceeds 72 bytes")
)

// maxPasswordBytes is bcrypt's input limit; longer passwords would be
// silently truncated.
const maxPasswordBytes = 72

// LocalConfig tunes LocalProvider.
type LocalConfig struct {
	PasswordCost int
	Clock        func() time.Time
}

// RegisterInput holds the sign-up fields.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LocalProvider implements e-mail and password accounts.
type LocalProvider struct {
	db    *gorm.DB
	cost  int
	clock func() time.Time

	decoyHash func() string
}

func NewLocalProvider(db *gorm.DB, cfg LocalConfig) (*LocalProvider, error) {
	if db == nil {
		return nil, errors.New("local provider: db is required")
	}
	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}
	p := &LocalProvider{db: db, cost: cfg.PasswordCost, clock: clock}
	p.decoyHash = sync.OnceValue(func() string {
		hashed, _ := crypto.HashPassword("saudema-decoy-password", p.cost)
		return hashed
	})
	return p, nil
}

func (p *LocalProvider) hash(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := crypto.HashPassword(password, p.cost)
	if err != nil {
		return "", fmt.Errorf("local provider: hash password: %w", err)
	}
	return hashed, nil
}

// Register creates a user with the default role. The unique index on email
// decides races between concurrent sign-ups.
func (p *LocalProvider) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || email == "" || input.Password == "" {
		return nil, errors.New("local provider: username, email and password are required")
	}

	hashed, err := p.hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{Username: username, Email: email, Password: hashed, Role: models.RoleUser}
	switch err := p.db.WithContext(ctx).Create(user).Error; {
	case database.IsUniqueConstraintError(err):
		return nil, ErrEmailTaken
	case err != nil:
		return nil, fmt.Errorf("local provider: create user: %w", err)
	}
	return user, nil
}

// Authenticate checks email and password and stamps LastLoginAt.
func (p *LocalProvider) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var user models.User
	err := p.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// spend one bcrypt comparison anyway so response time does not
		// reveal which e-mails are registered
		crypto.VerifyPassword(p.decoyHash(), password)
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("local provider: query user: %w", err)
	case !crypto.VerifyPassword(user.Password, password):
		return nil, ErrInvalidCredentials
	}

	now := p.clock()
	if err := p.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("local provider: update user: %w", err)
	}
	user.LastLoginAt = &now
	return &user, nil
}

// SetPassword replaces the password of userID without checking the old one.
func (p *LocalProvider) SetPassword(ctx context.Context, userID, newPassword string) error {
	if strings.TrimSpace(userID) == "" || newPassword == "" {
		return errors.New("local provider: user id and new password are required")
	}
	hashed, err := p.hash(newPassword)
	if err != nil {
		return err
	}
	res := p.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("password", hashed)
	if res.Error != nil {
		return fmt.Errorf("local provider: update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindByID loads the account for a validated token.
func (p *LocalProvider) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := p.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
