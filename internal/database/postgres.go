package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var postgresDefaults = map[string]string{"sslmode": "disable", "TimeZone": "UTC"}

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), gormConfig(cfg))
}

// buildPostgresDSN returns a postgres:// URL. The result is parsed by pgconn
// before use so a bad sslmode fails at startup, not at the first query.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres configuration requires user and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	query := url.Values{}
	for key, value := range postgresDefaults {
		query.Set(key, value)
	}
	for key, value := range cfg.Options {
		query.Set(key, value)
	}

	dsn := (&url.URL{
		Scheme:   "postgres",
		User:     postgresUser(cfg),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}).String()

	if _, err := pgconn.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("postgres options: %w", err)
	}
	return dsn, nil
}

func postgresUser(cfg Config) *url.Userinfo {
	if cfg.Password == "" {
		return url.User(cfg.User)
	}
	return url.UserPassword(cfg.User, cfg.Password)
}
