package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/saudema/saudema/internal/api"
	"github.com/saudema/saudema/internal/app"
	iauth "github.com/saudema/saudema/internal/auth"
	"github.com/saudema/saudema/internal/auth/providers"
	sharedtestutil "github.com/saudema/saudema/internal/database/testutil"
	"github.com/saudema/saudema/internal/middleware"
	"github.com/saudema/saudema/internal/models"
	"github.com/saudema/saudema/internal/monitoring"
	"github.com/saudema/saudema/internal/monitoring/checks"
	"github.com/saudema/saudema/internal/municipios"
	"github.com/saudema/saudema/internal/places"
	"github.com/saudema/saudema/pkg/crypto"
	"github.com/saudema/saudema/pkg/mail"
	"github.com/saudema/saudema/pkg/response"
)

const (
	AdminEmail    = "admin@saudema.test"
	AdminPassword = "Admin#Passw0rd"
	ClientURL     = "http://front.test"
	CookieName    = "saudema.sid"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T          *testing.T
	DB         *gorm.DB
	Router     *gin.Engine
	JWT        *iauth.JWTService
	Sessions   *iauth.SessionService
	Mailer     *CaptureMailer
	Upstream   *FakeMunicipios
	Places     *FakeSearcher
	Google     *FakeProvider
	Municipios *municipios.Cache
}

// EnvOption customises NewEnv.
type EnvOption func(*envConfig)

type envConfig struct {
	noPlacesKey   bool
	tokenRedirect bool
	rateLimit     int
}

// WithoutPlacesKey leaves the Places client unconfigured.
func WithoutPlacesKey() EnvOption {
	return func(c *envConfig) { c.noPlacesKey = true }
}

// WithTokenRedirect makes social logins redirect with a JWT.
func WithTokenRedirect() EnvOption {
	return func(c *envConfig) { c.tokenRedirect = true }
}

// WithRateLimit limits /api/auth mutations to n requests per minute.
func WithRateLimit(n int) EnvOption {
	return func(c *envConfig) { c.rateLimit = n }
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	var ec envConfig
	for _, opt := range opts {
		opt(&ec)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAdmin(AdminEmail, AdminPassword))

	cfg := &app.Config{
		Server: app.ServerConfig{
			ClientURL: ClientURL,
			CORS:      app.CORSConfig{AllowedOrigins: []string{ClientURL}},
		},
		Auth: app.AuthConfig{
			Session: app.SessionSettings{CookieName: CookieName, TTL: 24 * time.Hour},
			Social:  app.SocialSettings{TokenRedirect: ec.tokenRedirect},
		},
		RateLimit: app.RateLimitConfig{
			Enabled:  ec.rateLimit > 0,
			Requests: ec.rateLimit,
			Window:   time.Minute,
		},
	}

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "test-suite-super-secret-key-32-bytes!!",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{TTL: cfg.Auth.Session.TTL})
	require.NoError(t, err)

	local, err := providers.NewLocalProvider(db, providers.LocalConfig{PasswordCost: 4})
	require.NoError(t, err)

	mailer := &CaptureMailer{}
	resets, err := iauth.NewPasswordResetService(db, mailer, local, iauth.PasswordResetConfig{
		BaseURL: ClientURL,
		From:    "no-reply@saudema.test",
	})
	require.NoError(t, err)

	google := &FakeProvider{
		Identity: providers.Identity{Provider: "google", Subject: "g-100", Email: "social@example.com", DisplayName: "Social"},
	}
	registry := providers.NewRegistry()
	require.NoError(t, registry.Register(google))

	states, err := iauth.NewStateCodecFromSecret("test-suite-state-secret", 10*time.Minute, nil)
	require.NoError(t, err)
	social, err := iauth.NewSocialManager(db, registry, states, sessions, iauth.SocialConfig{})
	require.NoError(t, err)

	upstream := &FakeMunicipios{names: []string{"São Luís", "Imperatriz", "Caxias"}}
	snapshots := municipios.NewSnapshotStore(db)
	cache := municipios.NewCache(municipios.FetcherFunc(upstream.Fetch), municipios.WithSnapshotter(snapshots))

	searcher := &FakeSearcher{results: map[string][]places.Place{}}
	var search places.Searcher = searcher
	if ec.noPlacesKey {
		search = nil
	}
	store := places.NewStore(db)
	service := places.NewService(search, store, cache, places.ServiceConfig{MaxConcurrency: 2}, nil)

	health := monitoring.NewHealthManager()
	health.RegisterReadiness(checks.Database(db, time.Second))
	health.RegisterReadiness(checks.Municipios(cache))

	router, err := api.NewRouter(cfg, api.Services{
		JWT:        jwtSvc,
		Sessions:   sessions,
		Local:      local,
		Resets:     resets,
		Social:     social,
		Municipios: cache,
		Snapshots:  snapshots,
		Search:     service,
		Stats:      store,
		Health:     health,
		RateStore:  middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	return &Env{
		T:          t,
		DB:         db,
		Router:     router,
		JWT:        jwtSvc,
		Sessions:   sessions,
		Mailer:     mailer,
		Upstream:   upstream,
		Places:     searcher,
		Google:     google,
		Municipios: cache,
	}
}

// CreateUser inserts an account with the given password and role.
func (e *Env) CreateUser(password, role string) *models.User {
	e.T.Helper()

	username := "user-" + uuid.NewString()[:8]
	hashed, err := crypto.HashPassword(password, 4)
	require.NoError(e.T, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hashed,
		Role:     role,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// AdminUser returns the seeded administrator.
func (e *Env) AdminUser() *models.User {
	e.T.Helper()
	var user models.User
	require.NoError(e.T, e.DB.Where("email = ?", AdminEmail).Take(&user).Error)
	return &user
}

// UserPayload mirrors the account shape returned by auth endpoints.
type UserPayload struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Token    string `json:"token"`
}

// Login authenticates with e-mail and password and returns the payload.
func (e *Env) Login(email, password string) UserPayload {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result UserPayload
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Token)
	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// ErrorMessage returns the user facing error message of a failed response.
func ErrorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := DecodeResponse(t, w)
	require.False(t, resp.Success, w.Body.String())
	require.NotNil(t, resp.Error, w.Body.String())
	return resp.Error.Message
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.T, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// SessionCookie extracts the session cookie set by a response.
func SessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == CookieName {
			return cookie
		}
	}
	t.Fatalf("cookie %s not set", CookieName)
	return nil
}

// StateFromRedirect extracts the state parameter of a provider redirect.
func StateFromRedirect(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	parsed, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

// CaptureMailer records every message instead of sending it.
type CaptureMailer struct {
	mu   sync.Mutex
	Sent []mail.Message
	Err  error
}

func (m *CaptureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, msg)
	return nil
}

// Last returns the most recent message.
func (m *CaptureMailer) Last(t *testing.T) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.Sent)
	return m.Sent[len(m.Sent)-1]
}

// ResetToken extracts the token from the last reset link sent.
func (m *CaptureMailer) ResetToken(t *testing.T) string {
	t.Helper()
	body := m.Last(t).HTML
	idx := strings.Index(body, "token=")
	require.GreaterOrEqual(t, idx, 0, body)
	token := body[idx+len("token="):]
	if end := strings.IndexFunc(token, func(r rune) bool {
		return !strings.ContainsRune("0123456789abcdef", r)
	}); end >= 0 {
		token = token[:end]
	}
	return token
}

// FakeMunicipios stands in for the IBGE endpoint.
type FakeMunicipios struct {
	mu    sync.Mutex
	names []string
	err   error
	calls int
}

func (f *FakeMunicipios) Fetch(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.names...), nil
}

// Fail makes subsequent fetches fail.
func (f *FakeMunicipios) Fail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = errors.New("ibge: 503 Service Unavailable")
}

// Calls reports how many fetches were made.
func (f *FakeMunicipios) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeSearcher answers places text searches from a table keyed by municipality.
type FakeSearcher struct {
	mu      sync.Mutex
	results map[string][]places.Place
	failing map[string]bool
	queries []string
}

// Set registers the places returned for queries mentioning municipio.
func (f *FakeSearcher) Set(municipio string, found ...places.Place) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[municipio] = found
}

// FailFor makes searches mentioning municipio fail.
func (f *FakeSearcher) FailFor(municipio string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing == nil {
		f.failing = map[string]bool{}
	}
	f.failing[municipio] = true
}

// Queries returns the queries seen so far.
func (f *FakeSearcher) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *FakeSearcher) SearchText(_ context.Context, query string) ([]places.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	for municipio := range f.failing {
		if strings.Contains(query, " em "+municipio+",") {
			return nil, places.ErrUpstream
		}
	}
	for municipio, found := range f.results {
		if strings.Contains(query, " em "+municipio+",") {
			return found, nil
		}
	}
	return nil, nil
}

// FakeProvider is a social provider that accepts any code.
type FakeProvider struct {
	Identity providers.Identity
	Err      error
}

func (p *FakeProvider) Metadata() providers.Metadata {
	return providers.Metadata{Type: "google", DisplayName: "Google", LoginPath: "/api/auth/google"}
}

func (p *FakeProvider) AuthCodeURL(req providers.BeginRequest) (string, error) {
	q := url.Values{}
	q.Set("state", req.State)
	q.Set("code_challenge", req.PKCEChallenge)
	return "https://accounts.example/authorize?" + q.Encode(), nil
}

func (p *FakeProvider) Exchange(context.Context, providers.CallbackRequest) (*providers.Identity, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	identity := p.Identity
	return &identity, nil
}
