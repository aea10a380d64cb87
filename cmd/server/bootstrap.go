package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/api"
	"github.com/wardenhq/warden/internal/app"
	"github.com/wardenhq/warden/internal/app/maintenance"
	iauth "github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/cache"
	"github.com/wardenhq/warden/internal/database"
	"github.com/wardenhq/warden/internal/jobs"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/monitoring"
	"github.com/wardenhq/warden/internal/monitoring/checks"
	"github.com/wardenhq/warden/internal/users"
	"github.com/wardenhq/warden/pkg/crypto"
	"github.com/wardenhq/warden/pkg/logger"
	"github.com/wardenhq/warden/pkg/mail"
)

// runtimeStack bundles the long-lived services behind the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Redis   cache.Store
	Queue   *jobs.Queue
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// bootstrapRuntime initialises the database, caches, account services,
// background workers, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	success := false

	defer func() {
		if !success {
			stack.Shutdown(ctx, log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	var err error
	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	store := cache.Store(cache.NewDatabaseStore(stack.DB))
	if cfg.Cache.Redis.Enabled {
		client, redisErr := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(redisErr))
		} else {
			stack.Redis = client
			store = client
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}
	aside := cache.NewAside(store, 5*time.Minute)

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	sessionCfg := cfg.Auth.SessionServiceConfig()
	if stack.Redis != nil {
		sessionCfg.Cache = iauth.NewRedisSessionCache(stack.Redis)
	} else {
		sessionCfg.Cache = iauth.NewDatabaseSessionCache(store)
	}

	sessionSvc, err := iauth.NewSessionService(stack.DB, jwtSvc, sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	auditSvc, err := users.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	var mailer mail.Mailer
	if cfg.Email.SMTP.Enabled {
		mailer, err = mail.NewSMTPMailer(cfg.Email.SMTPSettings())
		if err != nil {
			return nil, fmt.Errorf("initialise mailer: %w", err)
		}
	}

	stack.Queue = jobs.NewQueue(
		jobs.WithWorkers(cfg.Jobs.Workers),
		jobs.WithBuffer(cfg.Jobs.Buffer),
		jobs.WithMaxRetries(uint64(cfg.Jobs.MaxRetries)),
		jobs.WithJobTimeout(cfg.Jobs.JobTimeout),
	)

	reconciler, err := users.NewRoleProfileReconciler(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise role profile reconciler: %w", err)
	}
	policy, err := users.NewPasswordPolicy(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise password policy: %w", err)
	}
	pipeline, err := users.NewPipeline(stack.DB, reconciler, policy)
	if err != nil {
		return nil, fmt.Errorf("initialise save pipeline: %w", err)
	}

	resetOpts := []users.ResetOption{
		users.WithResetStore(store),
		users.WithResetBaseURL(cfg.Site.URL),
	}
	if mailer != nil {
		resetOpts = append(resetOpts, users.WithResetMailer(mailer))
	}
	resetSvc, err := users.NewResetService(stack.DB, policy, resetOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise reset service: %w", err)
	}

	sealer, err := crypto.NewSealer([]byte(cfg.Auth.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("initialise secret sealer: %w", err)
	}

	userOpts := []users.UserOption{
		users.WithAudit(auditSvc),
		users.WithCache(aside),
		users.WithQueue(stack.Queue),
		users.WithSessions(sessionSvc),
		users.WithSiteName(cfg.Site.Name),
		users.WithSealer(sealer),
	}
	if mailer != nil {
		userOpts = append(userOpts, users.WithMailer(mailer))
	}
	userSvc, err := users.NewUserService(stack.DB, pipeline, resetSvc, userOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	loginMgr, err := iauth.NewLoginManager(stack.DB, userSvc, sessionSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise login manager: %w", err)
	}

	module, err := setupMonitoring(stack.DB, stack.Redis, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.DB, sessionSvc, auditSvc, maintenanceOptions(cfg)...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	var rateStore middleware.RateStore
	if stack.Redis != nil {
		rateStore = middleware.NewRedisRateStore(stack.Redis)
	} else {
		rateStore = middleware.NewDatabaseRateStore(store)
	}

	stack.Router, err = api.NewRouter(api.Deps{
		DB:         stack.DB,
		Config:     cfg,
		JWT:        jwtSvc,
		Sessions:   sessionSvc,
		Login:      loginMgr,
		Users:      userSvc,
		Reset:      resetSvc,
		Audit:      auditSvc,
		Monitoring: module,
		RateStore:  rateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// setupMonitoring builds the monitoring module and registers the health
// probes. Returns nil when both Prometheus and health checks are off.
func setupMonitoring(db *gorm.DB, redis cache.Store, cfg *app.Config) (*monitoring.Module, error) {
	if !cfg.Monitoring.Prometheus.Enabled && !cfg.Monitoring.Health.Enabled {
		return nil, nil
	}

	module, err := monitoring.NewModule(monitoring.Options{})
	if err != nil {
		return nil, err
	}
	monitoring.SetModule(module)

	health := module.Health()
	health.RegisterReadiness(checks.Database(db, 0))
	health.RegisterReadiness(checks.Maintenance(0))
	if pinger, ok := redis.(checks.RedisPinger); ok {
		health.RegisterReadiness(checks.Redis(pinger, true, 0))
	}

	return module, nil
}

func maintenanceOptions(cfg *app.Config) []maintenance.Option {
	var opts []maintenance.Option
	if cfg.Maintenance.AuditRetentionDays > 0 {
		opts = append(opts, maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays))
	}
	if cfg.Maintenance.NotificationRetention > 0 {
		opts = append(opts, maintenance.WithNotificationRetentionDays(cfg.Maintenance.NotificationRetention))
	}
	if spec := strings.TrimSpace(cfg.Maintenance.SessionSchedule); spec != "" {
		opts = append(opts, maintenance.WithSessionSchedule(spec))
	}
	if spec := strings.TrimSpace(cfg.Maintenance.AuditSchedule); spec != "" {
		opts = append(opts, maintenance.WithAuditSchedule(spec))
	}
	if spec := strings.TrimSpace(cfg.Maintenance.SweepSchedule); spec != "" {
		opts = append(opts, maintenance.WithSweepSchedule(spec))
	}
	return opts
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Queue != nil {
		if err := s.Queue.Close(ctx); err != nil {
			log.Warn("job queue shutdown", zap.Error(err))
		}
	}

	if rc, ok := s.Redis.(*cache.RedisClient); ok && rc != nil {
		if err := rc.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", dbCfg.Driver))
	return db, nil
}

// convertDatabaseConfig flattens the nested config sections into the
// single struct the database package opens with. The driver name is
// normalised; unknown drivers pass through so Open can reject them.
func convertDatabaseConfig(cfg *app.Config) database.Config {
	trimmed := func(s string) string { return strings.TrimSpace(s) }

	dbCfg := database.Config{
		Driver: strings.ToLower(trimmed(cfg.Database.Driver)),
		Path:   trimmed(cfg.Database.Path),
		DSN:    trimmed(cfg.Database.DSN),
	}

	var host *app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		host = &cfg.Database.Postgres
	case "mysql":
		host = &cfg.Database.MySQL
	}

	if host != nil {
		dbCfg.Host = trimmed(host.Host)
		dbCfg.Port = host.Port
		dbCfg.Name = trimmed(host.Database)
		dbCfg.User = trimmed(host.Username)
		dbCfg.Password = trimmed(host.Password)
	}
	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("database close skipped", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("database close", zap.Error(err))
	}
}
