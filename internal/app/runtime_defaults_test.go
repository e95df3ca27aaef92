package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyRuntimeDefaultsGeneratesMissingSecrets(t *testing.T) {
	cfg := &Config{}

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)

	require.NotEmpty(t, cfg.Auth.JWT.Secret)
	require.True(t, generated["auth.jwt.secret"])

	require.True(t, generated["auth.session.secret"])
	key, ok := AESKey(cfg.Auth.Session.Secret)
	require.True(t, ok, "generated session secret should be a usable AES key")
	require.Len(t, key, 32)
}

func TestApplyRuntimeDefaultsPreservesExistingSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = strings.Repeat("a", 10)
	cfg.Auth.Session.Secret = strings.Repeat("b", 10)

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Empty(t, generated)
	require.Equal(t, strings.Repeat("a", 10), cfg.Auth.JWT.Secret)
}

func TestApplyRuntimeDefaultsClientURLFromCORS(t *testing.T) {
	cfg := &Config{}
	cfg.Server.CORS.AllowedOrigins = []string{"https://front.example/", "http://localhost:5500"}

	_, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Equal(t, "https://front.example", cfg.Server.ClientURL)

	cfg.Server.ClientURL = "https://other.example"
	_, err = ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Equal(t, "https://other.example", cfg.Server.ClientURL)
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	require.ErrorContains(t, err, "config is nil")
}

func TestApplyRuntimeDefaultsFillsOnlyBlankSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = "   "
	cfg.Auth.Session.Secret = "configured"

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"auth.jwt.secret": true}, generated)
	require.NotEqual(t, "   ", cfg.Auth.JWT.Secret)
	require.Equal(t, "configured", cfg.Auth.Session.Secret)
}
