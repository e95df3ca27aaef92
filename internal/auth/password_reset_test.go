package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/saudema/saudema/internal/auth/providers"
	"github.com/saudema/saudema/internal/database/testutil"
	"github.com/saudema/saudema/internal/models"
	"github.com/saudema/saudema/pkg/crypto"
	"github.com/saudema/saudema/pkg/mail"
)

type captureMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *captureMailer) last(t *testing.T) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages)
	return m.messages[len(m.messages)-1]
}

func setupPasswordReset(t *testing.T) (*gorm.DB, *PasswordResetService, *captureMailer, *testClock) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()
	local, err := providers.NewLocalProvider(db, providers.LocalConfig{PasswordCost: 4, Clock: clock.Now})
	require.NoError(t, err)

	mailer := &captureMailer{}
	svc, err := NewPasswordResetService(db, mailer, local, PasswordResetConfig{
		BaseURL: "https://saudema.example/",
		From:    "suporte@saudema.example",
		Clock:   clock.Now,
	})
	require.NoError(t, err)
	return db, svc, mailer, clock
}

func tokenFromLink(t *testing.T, body string) string {
	t.Helper()
	const marker = "/redefinir-senha?token="
	idx := strings.Index(body, marker)
	require.GreaterOrEqual(t, idx, 0)
	rest := body[idx+len(marker):]
	end := strings.IndexByte(rest, '"')
	require.Greater(t, end, 0)
	return rest[:end]
}

func TestPasswordResetRequestSendsLink(t *testing.T) {
	db, svc, mailer, clock := setupPasswordReset(t)
	user := createTestUser(t, db, "maria@example.com")

	require.NoError(t, svc.Request(context.Background(), " Maria@Example.com "))

	msg := mailer.last(t)
	require.Equal(t, []string{"maria@example.com"}, msg.To)
	require.Equal(t, "Redefinição de Senha para sua Conta", msg.Subject)
	require.Contains(t, msg.HTML, "https://saudema.example/redefinir-senha?token=")

	token := tokenFromLink(t, msg.HTML)
	require.Len(t, token, 64)

	var stored models.PasswordResetToken
	require.NoError(t, db.Where("user_id = ?", user.ID).Take(&stored).Error)
	require.Equal(t, hashToken(token), stored.Token)
	require.True(t, stored.ExpiresAt.Equal(clock.Now().Add(time.Hour)))
}

func TestPasswordResetRequestUnknownEmail(t *testing.T) {
	_, svc, mailer, _ := setupPasswordReset(t)

	require.NoError(t, svc.Request(context.Background(), "ninguem@example.com"))
	require.Empty(t, mailer.messages)
}

func TestPasswordResetRequestReplacesUnusedToken(t *testing.T) {
	db, svc, mailer, _ := setupPasswordReset(t)
	user := createTestUser(t, db, "maria@example.com")

	require.NoError(t, svc.Request(context.Background(), user.Email))
	first := tokenFromLink(t, mailer.last(t).HTML)
	require.NoError(t, svc.Request(context.Background(), user.Email))
	second := tokenFromLink(t, mailer.last(t).HTML)
	require.NotEqual(t, first, second)

	var count int64
	require.NoError(t, db.Model(&models.PasswordResetToken{}).Where("user_id = ?", user.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)

	require.ErrorIs(t, svc.Reset(context.Background(), first, "NovaSenha#1"), ErrResetTokenInvalid)
}

func TestPasswordResetRequestMailFailure(t *testing.T) {
	db, svc, mailer, _ := setupPasswordReset(t)
	createTestUser(t, db, "maria@example.com")
	mailer.err = errors.New("smtp down")

	require.Error(t, svc.Request(context.Background(), "maria@example.com"))
}

func TestPasswordResetAppliesNewPassword(t *testing.T) {
	db, svc, mailer, _ := setupPasswordReset(t)
	user := createTestUser(t, db, "maria@example.com")

	require.NoError(t, svc.Request(context.Background(), user.Email))
	token := tokenFromLink(t, mailer.last(t).HTML)

	require.NoError(t, svc.Reset(context.Background(), token, "NovaSenha#1"))

	var stored models.User
	require.NoError(t, db.Take(&stored, "id = ?", user.ID).Error)
	require.True(t, crypto.VerifyPassword(stored.Password, "NovaSenha#1"))

	confirmation := mailer.last(t)
	require.Equal(t, "Senha alterada com sucesso!", confirmation.Subject)

	var record models.PasswordResetToken
	require.NoError(t, db.Where("user_id = ?", user.ID).Take(&record).Error)
	require.True(t, record.Used)
	require.NotNil(t, record.UsedAt)

	require.ErrorIs(t, svc.Reset(context.Background(), token, "OutraSenha#2"), ErrResetTokenInvalid)
}

func TestPasswordResetRejectsExpiredAndUnknown(t *testing.T) {
	db, svc, mailer, clock := setupPasswordReset(t)
	user := createTestUser(t, db, "maria@example.com")

	require.ErrorIs(t, svc.Reset(context.Background(), "", "NovaSenha#1"), ErrResetTokenInvalid)
	require.ErrorIs(t, svc.Reset(context.Background(), "deadbeef", "NovaSenha#1"), ErrResetTokenInvalid)

	require.NoError(t, svc.Request(context.Background(), user.Email))
	token := tokenFromLink(t, mailer.last(t).HTML)
	clock.Advance(time.Hour + time.Second)
	require.ErrorIs(t, svc.Reset(context.Background(), token, "NovaSenha#1"), ErrResetTokenInvalid)
}

func TestPasswordResetConfirmationFailureIsNotFatal(t *testing.T) {
	db, svc, mailer, _ := setupPasswordReset(t)
	user := createTestUser(t, db, "maria@example.com")

	require.NoError(t, svc.Request(context.Background(), user.Email))
	token := tokenFromLink(t, mailer.last(t).HTML)
	mailer.err = errors.New("smtp down")

	require.NoError(t, svc.Reset(context.Background(), token, "NovaSenha#1"))
}

func TestPasswordResetMissingUser(t *testing.T) {
	db, svc, mailer, _ := setupPasswordReset(t)
	user := createTestUser(t, db, "maria@example.com")

	require.NoError(t, svc.Request(context.Background(), user.Email))
	token := tokenFromLink(t, mailer.last(t).HTML)
	require.NoError(t, db.Unscoped().Delete(&models.User{}, "id = ?", user.ID).Error)

	require.ErrorIs(t, svc.Reset(context.Background(), token, "NovaSenha#1"), ErrResetUserNotFound)
}

func TestPasswordResetCleanupExpired(t *testing.T) {
	db, svc, _, clock := setupPasswordReset(t)
	user := createTestUser(t, db, "maria@example.com")

	require.NoError(t, db.Create(&models.PasswordResetToken{UserID: user.ID, Token: "a", ExpiresAt: clock.Now().Add(-time.Minute)}).Error)
	require.NoError(t, db.Create(&models.PasswordResetToken{UserID: user.ID, Token: "b", ExpiresAt: clock.Now().Add(time.Hour), Used: true}).Error)
	require.NoError(t, db.Create(&models.PasswordResetToken{UserID: user.ID, Token: "c", ExpiresAt: clock.Now().Add(time.Hour)}).Error)

	removed, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)
}
