package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/saudema/saudema/internal/models"
	"github.com/saudema/saudema/pkg/crypto"
	"github.com/saudema/saudema/pkg/mail"
	"github.com/saudema/saudema/pkg/metrics"
)

const (
	DefaultResetTokenTTL = time.Hour
	resetTokenBytes      = 32

	resetSubject        = "Redefinição de Senha para sua Conta"
	confirmationSubject = "Senha alterada com sucesso!"
)

var (
	// ErrResetTokenInvalid covers unknown, expired and already used tokens.
	ErrResetTokenInvalid = errors.New("password reset: invalid or expired token")
	// ErrResetUserNotFound means the token outlived its account.
	ErrResetUserNotFound = errors.New("password reset: user not found")
)

// PasswordSetter stores a new password hash for a user.
type PasswordSetter interface {
	SetPassword(ctx context.Context, userID, newPassword string) error
}

// PasswordResetConfig tunes PasswordResetService.
type PasswordResetConfig struct {
	// BaseURL is the front-end origin the reset link points at.
	BaseURL string
	From    string
	TTL     time.Duration
	Clock   func() time.Time
	Logger  *zap.Logger
}

// PasswordResetService issues reset links and applies new passwords.
type PasswordResetService struct {
	db        *gorm.DB
	mailer    mail.Mailer
	passwords PasswordSetter
	baseURL   string
	from      string
	ttl       time.Duration
	now       func() time.Time
	log       *zap.Logger
}

func NewPasswordResetService(db *gorm.DB, mailer mail.Mailer, passwords PasswordSetter, cfg PasswordResetConfig) (*PasswordResetService, error) {
	if db == nil {
		return nil, errors.New("password reset: db is required")
	}
	if passwords == nil {
		return nil, errors.New("password reset: password setter is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &PasswordResetService{
		db:        db,
		mailer:    mailer,
		passwords: passwords,
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		from:      strings.TrimSpace(cfg.From),
		ttl:       ttl,
		now:       now,
		log:       log,
	}, nil
}

// Request mails a reset link when email belongs to an account. Unknown
// addresses succeed silently so callers cannot enumerate accounts.
func (s *PasswordResetService) Request(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Info("password reset requested for unknown email", zap.String("email", email))
		return nil
	}
	if err != nil {
		return fmt.Errorf("password reset: find user: %w", err)
	}

	token, err := crypto.GenerateHexToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("password reset: generate token: %w", err)
	}
	if err := s.storeToken(ctx, user.ID, token); err != nil {
		return err
	}

	if s.mailer == nil {
		return errors.New("password reset: mailer not configured")
	}
	link := s.ResetLink(token)
	if err := s.mailer.Send(ctx, mail.Message{
		From:    s.from,
		To:      []string{user.Email},
		Subject: resetSubject,
		HTML:    resetBody(link),
	}); err != nil {
		return fmt.Errorf("password reset: send email: %w", err)
	}

	metrics.PasswordResets.WithLabelValues("requested").Inc()
	s.log.Info("password reset email sent", zap.String("user_id", user.ID))
	return nil
}

// storeToken replaces the user's unused token, or creates one.
func (s *PasswordResetService) storeToken(ctx context.Context, userID, token string) error {
	expiresAt := s.now().Add(s.ttl)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.PasswordResetToken
		err := tx.Where("user_id = ? AND used = ?", userID, false).Take(&existing).Error
		switch {
		case err == nil:
			return tx.Model(&existing).Updates(map[string]any{
				"token":      hashToken(token),
				"expires_at": expiresAt,
			}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.PasswordResetToken{
				UserID:    userID,
				Token:     hashToken(token),
				ExpiresAt: expiresAt,
			}).Error
		default:
			return fmt.Errorf("password reset: load token: %w", err)
		}
	})
}

// ResetLink is the front-end URL carrying token.
func (s *PasswordResetService) ResetLink(token string) string {
	return s.baseURL + "/redefinir-senha?token=" + token
}

// Reset consumes token and sets newPassword. The confirmation email is best
// effort.
func (s *PasswordResetService) Reset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrResetTokenInvalid
	}

	var record models.PasswordResetToken
	err := s.db.WithContext(ctx).Where("token = ?", hashToken(token)).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.PasswordResets.WithLabelValues("rejected").Inc()
		return ErrResetTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("password reset: load token: %w", err)
	}
	now := s.now()
	if !record.Usable(now) {
		metrics.PasswordResets.WithLabelValues("rejected").Inc()
		return ErrResetTokenInvalid
	}

	var user models.User
	err = s.db.WithContext(ctx).Where("id = ?", record.UserID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrResetUserNotFound
	}
	if err != nil {
		return fmt.Errorf("password reset: load user: %w", err)
	}

	if err := s.passwords.SetPassword(ctx, user.ID, newPassword); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrResetUserNotFound
		}
		return fmt.Errorf("password reset: set password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&record).Updates(map[string]any{
		"used":    true,
		"used_at": now,
	}).Error; err != nil {
		return fmt.Errorf("password reset: mark token used: %w", err)
	}
	metrics.PasswordResets.WithLabelValues("completed").Inc()

	if s.mailer != nil {
		if err := s.mailer.Send(ctx, mail.Message{
			From:    s.from,
			To:      []string{user.Email},
			Subject: confirmationSubject,
			HTML:    confirmationBody,
		}); err != nil {
			s.log.Warn("failed to send password change confirmation", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

// CleanupExpired removes tokens that can no longer be used.
func (s *PasswordResetService) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR used = ?", s.now(), true).
		Delete(&models.PasswordResetToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("password reset: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func resetBody(link string) string {
	href := html.EscapeString(link)
	return `<p>Olá,</p>
<p>Você solicitou uma redefinição de senha para sua conta.</p>
<p>Clique no link a seguir para redefinir sua senha:</p>
<p><a href="` + href + `">Redefinir Senha</a></p>
<p>Este link expirará em 1 hora.</p>
<p>Se você não solicitou isso, por favor, ignore este e-mail.</p>
<p>Atenciosamente,<br>Sua Equipe de Suporte</p>
<p style="font-size: 0.8em; color: #888;"><span style="font-weight: bold;">Por favor, verifique também sua caixa de spam ou lixo eletrônico.</span></p>`
}

const confirmationBody = `<p>Olá,</p>
<p>Sua senha em nossa aplicação foi alterada com sucesso.</p>
<p>Se você não realizou essa alteração, entre em contato conosco imediatamente.</p>
<p>Atenciosamente,<br>Sua Equipe de Suporte</p>`
