// Package security audits the running configuration at startup and reports
// settings that weaken authentication or expose the API.
package security

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/saudema/saudema/internal/app"
	"github.com/saudema/saudema/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a per-status count.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

const (
	maxRecommendedSessionTTL = 30 * 24 * time.Hour
	minJWTSecret             = 32
	recommendedJWTSecret     = 48
)

// AuditService evaluates the security posture of the running configuration.
type AuditService struct {
	db  *gorm.DB
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service. Missing inputs degrade the
// affected checks to warnings.
func NewAuditService(db *gorm.DB, cfg *app.Config) *AuditService {
	return &AuditService{db: db, cfg: cfg, now: time.Now}
}

// WithClock overrides the clock stamped on results.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

type configCheck struct {
	id  string
	run func(cfg *app.Config) Check
}

var configChecks = []configCheck{
	{"jwt_secret_strength", checkJWTSecret},
	{"session_state_key", checkSessionSecret},
	{"session_cookie_secure", checkSessionCookie},
	{"session_ttl", checkSessionTTL},
	{"cors_origins", checkCORSOrigins},
	{"redis_transport", checkRedisTransport},
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := make([]Check, 0, len(configChecks)+1)
	checks = append(checks, s.checkAdminUser(ctx))
	for _, cc := range configChecks {
		var check Check
		if s.cfg == nil {
			check = warn("Configuration not loaded, check skipped.", "Load configuration before running the security audit.")
		} else {
			check = cc.run(s.cfg)
		}
		check.ID = cc.id
		checks = append(checks, check)
	}

	summary := map[string]int{string(StatusPass): 0, string(StatusWarn): 0, string(StatusFail): 0}
	for _, check := range checks {
		summary[string(check.Status)]++
	}
	return Result{CheckedAt: s.now().UTC(), Checks: checks, Summary: summary}
}

func pass(message string, details any) Check {
	return Check{Status: StatusPass, Message: message, Details: details}
}

func warn(message, remediation string) Check {
	return Check{Status: StatusWarn, Message: message, Remediation: remediation}
}

func fail(message, remediation string) Check {
	return Check{Status: StatusFail, Message: message, Remediation: remediation}
}

func (s *AuditService) checkAdminUser(ctx context.Context) Check {
	check := func() Check {
		if s.db == nil {
			return warn("Database unavailable, unable to confirm an administrator exists.",
				"Ensure database connectivity before running the audit.")
		}
		var count int64
		err := s.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error
		switch {
		case err != nil:
			return warn(fmt.Sprintf("Could not verify administrators: %v", err), "Retry after resolving database errors.")
		case count == 0:
			return warn("No administrator account found; search statistics and the log level endpoint are unreachable.",
				"Set auth.admin.email and auth.admin.password to seed one.")
		}
		return pass("Administrator present.", map[string]any{"count": count})
	}()
	check.ID = "admin_user_present"
	return check
}

func checkJWTSecret(cfg *app.Config) Check {
	length := len(strings.TrimSpace(cfg.Auth.JWT.Secret))
	details := map[string]any{"length": length, "previous_secrets": len(cfg.Auth.JWT.PreviousSecrets)}

	var check Check
	switch {
	case length == 0:
		check = fail("Missing JWT signing secret.", "Set SAUDEMA_AUTH_JWT_SECRET to a random value of at least 32 bytes.")
	case length < minJWTSecret:
		check = fail(fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			"Use a randomly generated secret of at least 32 bytes.")
	case length < recommendedJWTSecret:
		check = warn(fmt.Sprintf("JWT signing secret is %d bytes; 48 or more is recommended.", length),
			"Rotate to a longer secret and keep the current one in auth.jwt.previous_secrets.")
	default:
		check = pass(fmt.Sprintf("JWT signing secret length is %d bytes.", length), nil)
	}
	check.Details = details
	return check
}

func checkSessionSecret(cfg *app.Config) Check {
	_, encoding, err := app.ParseKey(cfg.Auth.Session.Secret)
	if err != nil {
		return fail("Session secret is not configured.", "Set SAUDEMA_AUTH_SESSION_SECRET to a 32 byte hex or base64 key.")
	}
	if _, ok := app.AESKey(cfg.Auth.Session.Secret); ok {
		return pass("Session secret is a valid AES key.", map[string]any{"encoding": encoding})
	}
	check := warn("Session secret is not an AES key; the state key is derived from it.",
		"Use a random 32 byte key encoded as hex or base64.")
	check.Details = map[string]any{"encoding": encoding}
	return check
}

func checkSessionCookie(cfg *app.Config) Check {
	if isHTTPS(cfg.Server.ClientURL) && !cfg.Auth.Session.Secure {
		check := warn("Front-end is served over HTTPS but the session cookie is not marked Secure.",
			"Set auth.session.secure to true.")
		check.Details = map[string]any{"client_url": cfg.Server.ClientURL}
		return check
	}
	return pass(fmt.Sprintf("Session cookie secure flag is %t.", cfg.Auth.Session.Secure), nil)
}

func checkSessionTTL(cfg *app.Config) Check {
	ttl := cfg.Auth.Session.TTL
	switch {
	case ttl <= 0:
		return warn("Session TTL is not configured; using default duration.",
			"Set SAUDEMA_AUTH_SESSION_TTL to control session lifetime.")
	case ttl > maxRecommendedSessionTTL:
		check := warn(fmt.Sprintf("Session TTL (%s) exceeds recommended maximum (%s).", ttl, maxRecommendedSessionTTL),
			"Reduce the session TTL to 30 days or lower.")
		check.Details = map[string]any{"ttl": ttl.String()}
		return check
	}
	return pass(fmt.Sprintf("Session TTL is %s.", ttl), map[string]any{"ttl": ttl.String()})
}

// checkCORSOrigins flags wildcard origins, which credentialed requests
// cannot use, and plain HTTP origins outside localhost.
func checkCORSOrigins(cfg *app.Config) Check {
	var insecure []string
	for _, origin := range cfg.Server.CORS.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return fail("CORS allows any origin.", "List the front-end origins in server.cors.allowed_origins.")
		}
		if origin != "" && !isHTTPS(origin) && !isLoopback(origin) {
			insecure = append(insecure, origin)
		}
	}
	if len(insecure) > 0 {
		check := warn("CORS allows origins served over plain HTTP.", "Serve the front-end over HTTPS.")
		check.Details = map[string]any{"origins": insecure}
		return check
	}
	return pass(fmt.Sprintf("%d CORS origins configured.", len(cfg.Server.CORS.AllowedOrigins)), nil)
}

// checkRedisTransport warns when sessions and rate limit counters travel to
// a remote Redis without TLS.
func checkRedisTransport(cfg *app.Config) Check {
	redis := cfg.Cache.Redis
	if !redis.Enabled {
		return pass("Redis disabled; sessions are stored in the database.", nil)
	}
	host, _, err := net.SplitHostPort(redis.Address)
	if err != nil {
		host = redis.Address
	}
	if !redis.TLS && !loopbackHost(host) {
		check := warn("Redis is reached over an unencrypted connection.", "Set cache.redis.tls to true.")
		check.Details = map[string]any{"address": redis.Address}
		return check
	}
	return pass("Redis transport is local or encrypted.", nil)
}

func isHTTPS(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && strings.EqualFold(u.Scheme, "https")
}

func isLoopback(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && loopbackHost(u.Hostname())
}

func loopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
