package app

import (
	"strings"
	"time"

	"github.com/saudema/saudema/internal/auth"
	"github.com/saudema/saudema/internal/auth/providers"
)

const (
	defaultBcryptCost = 10
	defaultStateTTL   = 10 * time.Minute
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:          c.JWT.Secret,
		PreviousSecrets: c.JWT.PreviousSecrets,
		Issuer:          c.JWT.Issuer,
		AccessTokenTTL:  ttl,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig(cache auth.SessionCache) auth.SessionConfig {
	ttl := c.Session.TTL
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}

	return auth.SessionConfig{
		TTL:   ttl,
		Cache: cache,
	}
}

// LocalProviderConfig converts AuthConfig into LocalProvider parameters.
func (c AuthConfig) LocalProviderConfig() providers.LocalConfig {
	cost := c.Password.BcryptCost
	if cost <= 0 {
		cost = defaultBcryptCost
	}
	return providers.LocalConfig{PasswordCost: cost}
}

// PasswordResetConfig converts AuthConfig into PasswordResetService
// parameters. The reset link falls back to the front-end URL.
func (c AuthConfig) PasswordResetConfig(clientURL, from string) auth.PasswordResetConfig {
	base := strings.TrimSpace(c.PasswordReset.BaseURL)
	if base == "" {
		base = strings.TrimSpace(clientURL)
	}
	ttl := c.PasswordReset.TTL
	if ttl <= 0 {
		ttl = auth.DefaultResetTokenTTL
	}
	return auth.PasswordResetConfig{
		BaseURL: base,
		From:    from,
		TTL:     ttl,
	}
}

// StateTTL bounds how long a social login redirect stays valid.
func (c AuthConfig) StateTTL() time.Duration {
	if c.Social.StateTTL <= 0 {
		return defaultStateTTL
	}
	return c.Social.StateTTL
}

// GoogleProviderConfig converts the Google settings for the provider.
func (c AuthConfig) GoogleProviderConfig() providers.GoogleConfig {
	return providers.GoogleConfig{
		ClientID:     strings.TrimSpace(c.Google.ClientID),
		ClientSecret: c.Google.ClientSecret,
		CallbackURL:  strings.TrimSpace(c.Google.CallbackURL),
		Scopes:       c.Google.Scopes,
	}
}

// GitHubProviderConfig converts the GitHub settings for the provider.
func (c AuthConfig) GitHubProviderConfig() providers.GitHubConfig {
	return providers.GitHubConfig{
		ClientID:     strings.TrimSpace(c.GitHub.ClientID),
		ClientSecret: c.GitHub.ClientSecret,
		CallbackURL:  strings.TrimSpace(c.GitHub.CallbackURL),
		Scopes:       c.GitHub.Scopes,
	}
}
