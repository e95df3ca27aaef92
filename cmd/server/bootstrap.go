package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/saudema/saudema/internal/api"
	"github.com/saudema/saudema/internal/app"
	"github.com/saudema/saudema/internal/app/maintenance"
	iauth "github.com/saudema/saudema/internal/auth"
	"github.com/saudema/saudema/internal/auth/providers"
	"github.com/saudema/saudema/internal/cache"
	"github.com/saudema/saudema/internal/database"
	"github.com/saudema/saudema/internal/middleware"
	"github.com/saudema/saudema/internal/monitoring"
	"github.com/saudema/saudema/internal/monitoring/checks"
	"github.com/saudema/saudema/internal/municipios"
	"github.com/saudema/saudema/internal/places"
	"github.com/saudema/saudema/internal/security"
	"github.com/saudema/saudema/pkg/logger"
	"github.com/saudema/saudema/pkg/mail"
)

const (
	healthProbeTimeout = 3 * time.Second
	// maintenanceMaxAge tolerates two missed hourly cleanup runs.
	maintenanceMaxAge = 3 * time.Hour
)

// requiredTables back the public unit search and the session store.
var requiredTables = []string{"places", "reference_lists", "cache_entries", "sessions"}

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      *redis.Client
	RedisStore *cache.RedisStore
	Cleaner    *maintenance.Cleaner
	RateStore  middleware.RateStore
	Router     *gin.Engine
}

// authStack groups the account services shared by the router and the cleaner.
type authStack struct {
	JWT      *iauth.JWTService
	Sessions *iauth.SessionService
	Local    *providers.LocalProvider
	Resets   *iauth.PasswordResetService
	Social   *iauth.SocialManager
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
		} else {
			stack.RedisStore = cache.NewRedisStore(stack.Redis)
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	var sessionStore cache.Store = dbStore
	if stack.RedisStore != nil {
		sessionStore = stack.RedisStore
	}

	auth, err := buildAuth(ctx, cfg, stack.DB, sessionStore, log)
	if err != nil {
		return nil, err
	}

	municipioCache, snapshots := buildMunicipios(cfg, stack.DB)

	placeStore := places.NewStore(stack.DB)
	searcher, err := buildSearcher(cfg, log)
	if err != nil {
		return nil, err
	}
	placeService := places.NewService(searcher, placeStore, municipioCache, cfg.Places.ServiceConfig(), logger.WithModule("places"))

	tracker := monitoring.NewJobTracker()
	stack.Cleaner = maintenance.NewCleaner(auth.Resets, auth.Sessions,
		maintenance.WithCache(dbStore),
		maintenance.WithTracker(tracker),
		maintenance.WithSchedule(cfg.Maintenance.CleanupSchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	var redisPinger checks.RedisPinger
	if stack.RedisStore != nil {
		redisPinger = stack.RedisStore
	}
	health := monitoring.NewHealthManager()
	health.RegisterReadiness(checks.Database(stack.DB, healthProbeTimeout, requiredTables...))
	health.RegisterReadiness(checks.Redis(redisPinger, cfg.Cache.Redis.Enabled, healthProbeTimeout))
	health.RegisterReadiness(checks.Municipios(municipioCache))
	health.RegisterReadiness(checks.Maintenance(tracker, maintenanceMaxAge))

	stack.RateStore, err = buildRateStore(cfg.RateLimit.Store, stack.RedisStore, dbStore)
	if err != nil {
		return nil, err
	}

	stack.Router, err = api.NewRouter(cfg, api.Services{
		JWT:        auth.JWT,
		Sessions:   auth.Sessions,
		Local:      auth.Local,
		Resets:     auth.Resets,
		Social:     auth.Social,
		Municipios: municipioCache,
		Snapshots:  snapshots,
		Search:     placeService,
		Stats:      placeStore,
		Health:     health,
		RateStore:  stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	logSecurityAudit(ctx, security.NewAuditService(stack.DB, cfg), log)

	success = true
	return stack, nil
}

// logSecurityAudit reports every check that did not pass. Findings never
// block startup.
func logSecurityAudit(ctx context.Context, audit *security.AuditService, log *zap.Logger) {
	result := audit.Run(ctx)
	for _, check := range result.Checks {
		if check.Status == security.StatusPass {
			continue
		}
		log.Warn("security audit finding",
			zap.String("check", check.ID),
			zap.String("status", string(check.Status)),
			zap.String("message", check.Message),
			zap.String("remediation", check.Remediation),
		)
	}
	log.Info("security audit completed",
		zap.Int("pass", result.Summary[string(security.StatusPass)]),
		zap.Int("warn", result.Summary[string(security.StatusWarn)]),
		zap.Int("fail", result.Summary[string(security.StatusFail)]),
	)
}

func buildAuth(ctx context.Context, cfg *app.Config, db *gorm.DB, sessionStore cache.Store, log *zap.Logger) (*authStack, error) {
	out := &authStack{}
	var err error

	out.JWT, err = iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	out.Sessions, err = iauth.NewSessionService(db, cfg.Auth.SessionServiceConfig(iauth.NewSessionCache(sessionStore)))
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	out.Local, err = providers.NewLocalProvider(db, cfg.Auth.LocalProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise local provider: %w", err)
	}

	var mailer mail.Mailer
	if cfg.Email.Enabled() {
		mailer, err = mail.NewSMTPMailer(cfg.Email.SMTPSettings())
		if err != nil {
			return nil, fmt.Errorf("initialise smtp mailer: %w", err)
		}
	} else {
		log.Warn("smtp disabled; password reset emails cannot be delivered")
	}

	resetCfg := cfg.Auth.PasswordResetConfig(cfg.Server.ClientURL, cfg.Email.SMTPSettings().From)
	resetCfg.Logger = logger.WithModule("password_reset")
	out.Resets, err = iauth.NewPasswordResetService(db, mailer, out.Local, resetCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise password reset service: %w", err)
	}

	var states *iauth.StateCodec
	if key, ok := app.AESKey(cfg.Auth.Session.Secret); ok {
		states, err = iauth.NewStateCodec(key, cfg.Auth.StateTTL(), nil)
	} else {
		states, err = iauth.NewStateCodecFromSecret(cfg.Auth.Session.Secret, cfg.Auth.StateTTL(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("initialise social state codec: %w", err)
	}

	registry, err := buildProviderRegistry(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	out.Social, err = iauth.NewSocialManager(db, registry, states, out.Sessions, iauth.SocialConfig{
		Logger: logger.WithModule("social"),
	})
	if err != nil {
		return nil, fmt.Errorf("initialise social login: %w", err)
	}

	return out, nil
}

// buildProviderRegistry registers the enabled social providers. A provider
// whose discovery fails is skipped so local login keeps working.
func buildProviderRegistry(ctx context.Context, cfg *app.Config, log *zap.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry()

	if cfg.Auth.Google.Enabled {
		provider, err := providers.NewGoogleProvider(ctx, cfg.Auth.GoogleProviderConfig())
		if err != nil {
			log.Warn("google login disabled", zap.Error(err))
		} else if err := registry.Register(provider); err != nil {
			return nil, fmt.Errorf("register google provider: %w", err)
		}
	}

	if cfg.Auth.GitHub.Enabled {
		provider, err := providers.NewGitHubProvider(cfg.Auth.GitHubProviderConfig())
		if err != nil {
			log.Warn("github login disabled", zap.Error(err))
		} else if err := registry.Register(provider); err != nil {
			return nil, fmt.Errorf("register github provider: %w", err)
		}
	}

	return registry, nil
}

// buildMunicipios returns the cache and, when snapshots are enabled, the
// reader the status endpoint reports them through.
func buildMunicipios(cfg *app.Config, db *gorm.DB) (*municipios.Cache, municipios.SnapshotReader) {
	opts := []municipios.Option{
		municipios.WithTTL(cfg.Municipios.CacheTTL()),
		municipios.WithCoalescing(cfg.Municipios.Coalesce),
		municipios.WithLogger(logger.WithModule("municipios")),
	}
	var snapshots municipios.SnapshotReader
	if cfg.Municipios.Snapshot {
		store := municipios.NewSnapshotStore(db)
		opts = append(opts, municipios.WithSnapshotter(store))
		snapshots = store
	}
	return municipios.NewCache(municipios.NewIBGEClient(cfg.Municipios.IBGEConfig()), opts...), snapshots
}

// buildRateStore picks the rate limit backend. "auto" prefers Redis and falls
// back to the database table shared by every replica.
func buildRateStore(kind string, redisStore *cache.RedisStore, dbStore *cache.DatabaseStore) (middleware.RateStore, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "auto":
		if redisStore != nil {
			return middleware.NewRedisRateStore(redisStore), nil
		}
		return middleware.NewDatabaseRateStore(dbStore), nil
	case "memory":
		return middleware.NewMemoryRateStore(), nil
	case "redis":
		if redisStore == nil {
			return nil, fmt.Errorf("rate_limit.store is redis but redis is unavailable")
		}
		return middleware.NewRedisRateStore(redisStore), nil
	case "database":
		return middleware.NewDatabaseRateStore(dbStore), nil
	default:
		return nil, fmt.Errorf("unsupported rate_limit.store %q", kind)
	}
}

// buildSearcher returns a nil Searcher when no Places API key is configured;
// health unit searches then answer with a configuration error.
func buildSearcher(cfg *app.Config, log *zap.Logger) (places.Searcher, error) {
	if !cfg.Places.Configured() {
		log.Warn("places api key missing; health unit search disabled")
		return nil, nil
	}
	client, err := places.NewClient(cfg.Places.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise places client: %w", err)
	}
	return client, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	var errs error
	if s.Cleaner != nil {
		// wait for in-flight jobs; the returned context is done afterwards
		if stopCtx := s.Cleaner.Stop(); stopCtx != nil {
			<-stopCtx.Done()
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
		s.Cleaner = nil
	}

	if memory, ok := s.RateStore.(*middleware.MemoryRateStore); ok {
		memory.Close()
	}

	if s.Redis != nil {
		errs = multierr.Append(errs, s.Redis.Close())
		s.Redis = nil
	}

	if s.DB != nil {
		errs = multierr.Append(errs, closeDatabase(s.DB))
		s.DB = nil
	}

	for _, err := range multierr.Errors(errs) {
		log.Warn("shutdown", zap.Error(err))
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	log := logger.WithModule("database")
	dbCfg := convertDatabaseConfig(cfg)
	dbCfg.Logger = log
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db, seedOptions(cfg)); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func seedOptions(cfg *app.Config) database.SeedOptions {
	return database.SeedOptions{
		AdminUsername: strings.TrimSpace(cfg.Auth.Admin.Username),
		AdminEmail:    strings.ToLower(strings.TrimSpace(cfg.Auth.Admin.Email)),
		AdminPassword: cfg.Auth.Admin.Password,
		PasswordCost:  cfg.Auth.LocalProviderConfig().PasswordCost,
	}
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	pool := cfg.Database.Pool
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
		Pool: database.PoolConfig{
			MaxOpen:     pool.MaxOpen,
			MaxIdle:     pool.MaxIdle,
			MaxLifetime: pool.MaxLifetime,
		},
		SlowQuery: cfg.Database.SlowQuery,
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		applyDBAuth(&dbCfg, cfg.Database.Postgres)
	case "mysql":
		applyDBAuth(&dbCfg, cfg.Database.MySQL)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func applyDBAuth(dbCfg *database.Config, auth app.DBAuthConfig) {
	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = strings.TrimSpace(auth.Password)
	dbCfg.Options = parseDBOptions(auth.Options)
}

// parseDBOptions reads "key=value" pairs separated by '&' or whitespace.
func parseDBOptions(raw string) map[string]string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '&' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for _, field := range fields {
		key, value, _ := strings.Cut(field, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}

func closeDatabase(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql db: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
