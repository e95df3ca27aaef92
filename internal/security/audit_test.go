package security

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saudema/saudema/internal/app"
	testutil "github.com/saudema/saudema/internal/database/testutil"
)

func findCheck(t *testing.T, result Result, id string) Check {
	t.Helper()
	for _, check := range result.Checks {
		if check.ID == id {
			return check
		}
	}
	t.Fatalf("check %q not found", id)
	return Check{}
}

func hardenedConfig() *app.Config {
	return &app.Config{
		Server: app.ServerConfig{
			ClientURL: "https://saudema.netlify.app",
			CORS:      app.CORSConfig{AllowedOrigins: []string{"https://saudema.netlify.app", "http://localhost:5500"}},
		},
		Cache: app.CacheConfig{Redis: app.RedisCacheConfig{Enabled: true, Address: "cache.internal:6380", TLS: true}},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: strings.Repeat("s", 64)},
			Session: app.SessionSettings{
				Secret: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
				TTL:    24 * time.Hour,
				Secure: true,
			},
		},
	}
}

func TestAuditServiceRun(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAdmin("admin@saudema.test", "Admin#Passw0rd"))

	svc := NewAuditService(db, hardenedConfig())
	fixed := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	result := svc.Run(context.Background())
	require.Equal(t, fixed, result.CheckedAt)
	require.Len(t, result.Checks, 7)
	for _, check := range result.Checks {
		require.Equal(t, StatusPass, check.Status, check.ID+": "+check.Message)
	}
	require.Equal(t, map[string]any{"encoding": app.KeyHex}, findCheck(t, result, "session_state_key").Details)
}

func TestAuditServiceFlagsWeakConfiguration(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	cfg := &app.Config{
		Server: app.ServerConfig{
			ClientURL: "https://saudema.netlify.app",
			CORS:      app.CORSConfig{AllowedOrigins: []string{"http://saudema.example"}},
		},
		Cache: app.CacheConfig{Redis: app.RedisCacheConfig{Enabled: true, Address: "10.0.0.5:6379"}},
		Auth: app.AuthConfig{
			JWT:     app.JWTSettings{Secret: "short"},
			Session: app.SessionSettings{Secret: "a passphrase", TTL: 90 * 24 * time.Hour},
		},
	}

	result := NewAuditService(db, cfg).Run(context.Background())

	for id, want := range map[string]CheckStatus{
		"admin_user_present":    StatusWarn,
		"jwt_secret_strength":   StatusFail,
		"session_state_key":     StatusWarn,
		"session_cookie_secure": StatusWarn,
		"session_ttl":           StatusWarn,
		"cors_origins":          StatusWarn,
		"redis_transport":       StatusWarn,
	} {
		require.Equal(t, want, findCheck(t, result, id).Status, id)
	}
	require.Equal(t, 1, result.Summary[string(StatusFail)])
	require.Equal(t, map[string]any{"encoding": app.KeyRaw}, findCheck(t, result, "session_state_key").Details)
}

func TestAuditServiceRejectsWildcardOrigin(t *testing.T) {
	cfg := hardenedConfig()
	cfg.Server.CORS.AllowedOrigins = []string{"*"}

	result := NewAuditService(nil, cfg).Run(context.Background())
	require.Equal(t, StatusFail, findCheck(t, result, "cors_origins").Status)
}

func TestAuditServiceAcceptsLocalRedisWithoutTLS(t *testing.T) {
	cfg := hardenedConfig()
	cfg.Cache.Redis = app.RedisCacheConfig{Enabled: true, Address: "127.0.0.1:6379"}

	result := NewAuditService(nil, cfg).Run(context.Background())
	require.Equal(t, StatusPass, findCheck(t, result, "redis_transport").Status)
}

func TestAuditServiceWithoutDependencies(t *testing.T) {
	result := NewAuditService(nil, nil).Run(context.Background())
	require.Len(t, result.Checks, 7)
	require.Equal(t, len(result.Checks), result.Summary[string(StatusWarn)])
}
