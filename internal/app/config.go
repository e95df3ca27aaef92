package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration of the saudema API.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Email       EmailConfig       `mapstructure:"email"`
	Municipios  MunicipiosConfig  `mapstructure:"municipios"`
	Places      PlacesConfig      `mapstructure:"places"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int        `mapstructure:"port"`
	LogLevel  string     `mapstructure:"log_level"`
	LogFormat string     `mapstructure:"log_format"`
	ClientURL string     `mapstructure:"client_url"`
	CORS      CORSConfig `mapstructure:"cors"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
	Pool     DBPoolConfig `mapstructure:"pool"`
	// SlowQuery logs statements slower than this at warn level.
	SlowQuery time.Duration `mapstructure:"slow_query"`
}

// DBPoolConfig sizes the PostgreSQL and MySQL connection pool. Zero values
// keep the defaults.
type DBPoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Options  string `mapstructure:"options"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT           JWTSettings           `mapstructure:"jwt"`
	Session       SessionSettings       `mapstructure:"session"`
	Password      PasswordSettings      `mapstructure:"password"`
	PasswordReset PasswordResetSettings `mapstructure:"password_reset"`
	Google        OAuthSettings         `mapstructure:"google"`
	GitHub        OAuthSettings         `mapstructure:"github"`
	Social        SocialSettings        `mapstructure:"social"`
	Admin         AdminSeedSettings     `mapstructure:"admin"`
}

// JWTSettings configures bearer tokens.
type JWTSettings struct {
	Secret          string        `mapstructure:"secret"`
	PreviousSecrets []string      `mapstructure:"previous_secrets"`
	Issuer          string        `mapstructure:"issuer"`
	TTL             time.Duration `mapstructure:"token_ttl"`
}

// SessionSettings configures browser sessions created by social login.
type SessionSettings struct {
	Secret     string        `mapstructure:"secret"`
	TTL        time.Duration `mapstructure:"ttl"`
	CookieName string        `mapstructure:"cookie_name"`
	Secure     bool          `mapstructure:"secure"`
}

// PasswordSettings controls password hashing.
type PasswordSettings struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

// PasswordResetSettings controls the forgot-password flow.
type PasswordResetSettings struct {
	BaseURL string        `mapstructure:"base_url"`
	TTL     time.Duration `mapstructure:"token_ttl"`
}

// OAuthSettings holds client credentials of a social login provider.
type OAuthSettings struct {
	Enabled      bool     `mapstructure:"enabled"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	CallbackURL  string   `mapstructure:"callback_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// SocialSettings tunes what happens after a successful social login.
type SocialSettings struct {
	TokenRedirect bool          `mapstructure:"token_redirect"`
	StateTTL      time.Duration `mapstructure:"state_ttl"`
}

// AdminSeedSettings optionally provisions an administrator at startup.
type AdminSeedSettings struct {
	Username string `mapstructure:"username"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MunicipiosConfig configures the IBGE municipality list cache.
type MunicipiosConfig struct {
	SourceURL string        `mapstructure:"source_url"`
	TTL       time.Duration `mapstructure:"ttl"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Coalesce  bool          `mapstructure:"coalesce"`
	Snapshot  bool          `mapstructure:"snapshot"`
}

// PlacesConfig configures the Google Places text search client.
type PlacesConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	Endpoint          string        `mapstructure:"endpoint"`
	LanguageCode      string        `mapstructure:"language_code"`
	StateName         string        `mapstructure:"state_name"`
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig throttles the authentication endpoints. Store selects the
// counter backend: auto (redis, else database), memory, redis or database.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Store    string        `mapstructure:"store"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// MaintenanceConfig schedules periodic cleanup jobs.
type MaintenanceConfig struct {
	CleanupSchedule string `mapstructure:"cleanup_schedule"`
}

// LoadConfig reads config.yaml from ./config and paths, then applies
// SAUDEMA_* environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		if strings.TrimSpace(path) != "" {
			v.AddConfigPath(path)
		}
	}

	setDefaults(v)

	v.SetEnvPrefix("SAUDEMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.client_url", "")
	v.SetDefault("server.cors.allowed_origins", []string{
		"https://seu-frontend.netlify.app",
		"http://127.0.0.1:5500",
		"http://localhost:5500",
		"http://localhost:3001",
	})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/saudema.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.username", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.options", "")
	v.SetDefault("database.mysql.host", "")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.database", "")
	v.SetDefault("database.mysql.username", "")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.options", "")
	v.SetDefault("database.pool.max_open", 20)
	v.SetDefault("database.pool.max_idle", 5)
	v.SetDefault("database.pool.max_lifetime", 30*time.Minute)
	v.SetDefault("database.slow_query", 500*time.Millisecond)

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "saudema")
	v.SetDefault("auth.jwt.token_ttl", "24h")
	v.SetDefault("auth.session.secret", "")
	v.SetDefault("auth.session.ttl", "24h")
	v.SetDefault("auth.session.cookie_name", "saudema.sid")
	v.SetDefault("auth.session.secure", false)
	v.SetDefault("auth.password.bcrypt_cost", 10)
	v.SetDefault("auth.password_reset.base_url", "http://localhost:5500")
	v.SetDefault("auth.password_reset.token_ttl", "1h")
	v.SetDefault("auth.google.enabled", false)
	v.SetDefault("auth.google.client_id", "")
	v.SetDefault("auth.google.client_secret", "")
	v.SetDefault("auth.google.callback_url", "http://localhost:3001/api/auth/google/callback")
	v.SetDefault("auth.google.scopes", []string{"profile", "email"})
	v.SetDefault("auth.github.enabled", false)
	v.SetDefault("auth.github.client_id", "")
	v.SetDefault("auth.github.client_secret", "")
	v.SetDefault("auth.github.callback_url", "http://localhost:3001/api/auth/github/callback")
	v.SetDefault("auth.github.scopes", []string{"user:email"})
	v.SetDefault("auth.social.token_redirect", false)
	v.SetDefault("auth.social.state_ttl", "10m")
	v.SetDefault("auth.admin.username", "")
	v.SetDefault("auth.admin.email", "")
	v.SetDefault("auth.admin.password", "")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "smtp.sendgrid.net")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.username", "apikey")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.from", "")
	v.SetDefault("email.smtp.use_tls", false)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("municipios.source_url", "https://servicodados.ibge.gov.br/api/v1/localidades/estados/21/municipios")
	v.SetDefault("municipios.ttl", "24h")
	v.SetDefault("municipios.timeout", "15s")
	v.SetDefault("municipios.coalesce", false)
	v.SetDefault("municipios.snapshot", true)

	v.SetDefault("places.api_key", "")
	v.SetDefault("places.endpoint", "https://places.googleapis.com/v1/places:searchText")
	v.SetDefault("places.language_code", "pt-BR")
	v.SetDefault("places.state_name", "Maranhão")
	v.SetDefault("places.max_concurrency", 8)
	v.SetDefault("places.requests_per_second", 10)
	v.SetDefault("places.burst", 10)
	v.SetDefault("places.timeout", "10s")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 20)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.store", "auto")

	v.SetDefault("maintenance.cleanup_schedule", "@every 1h")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
