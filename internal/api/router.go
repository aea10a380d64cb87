package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/app"
	iauth "github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/handlers"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/monitoring"
	"github.com/wardenhq/warden/internal/users"
)

// Deps bundles the long-lived services the router hands to handlers.
type Deps struct {
	DB       *gorm.DB
	Config   *app.Config
	JWT      *iauth.JWTService
	Sessions *iauth.SessionService
	Login    *iauth.LoginManager
	Users    *users.UserService
	Reset    *users.ResetService
	Audit    *users.AuditService

	// Monitoring is optional; without it the /metrics endpoint serves
	// the default registry only.
	Monitoring *monitoring.Module

	// RateStore backs the request limiters. Nil falls back to the
	// in-memory store, which is fine for a single instance.
	RateStore middleware.RateStore
}

func (d Deps) validate() error {
	if d.DB == nil {
		return fmt.Errorf("database handle must be provided")
	}
	if d.Config == nil {
		return fmt.Errorf("config must be provided")
	}
	if d.JWT == nil {
		return fmt.Errorf("jwt service must be provided")
	}
	if d.Sessions == nil {
		return fmt.Errorf("session service must be provided")
	}
	if d.Login == nil {
		return fmt.Errorf("login manager must be provided")
	}
	if d.Users == nil {
		return fmt.Errorf("user service must be provided")
	}
	if d.Reset == nil {
		return fmt.Errorf("reset service must be provided")
	}
	if d.Audit == nil {
		return fmt.Errorf("audit service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers the
// account routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	cfg := deps.Config
	if deps.RateStore == nil {
		deps.RateStore = middleware.NewMemoryRateStore()
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	if cfg.Server.CSRF.Enabled {
		r.Use(middleware.CSRF())
	}

	limit, window := cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	r.Use(middleware.RateLimitWithStore(deps.RateStore, limit, window))

	// Health endpoint (public)
	r.GET("/health", handlers.Health(deps.DB))

	// Protected routes present a Bearer JWT or an api_key:api_secret pair.
	requireAuth := middleware.Auth(deps.JWT, deps.Users)

	api := r.Group("/api")
	api.Use(requireAuth)

	registerAuthRoutes(r, api, deps)
	registerAccountRoutes(r, api, deps)
	registerUserRoutes(api, deps)
	registerAuditRoutes(api, deps)
	registerNotificationRoutes(api, deps)
	registerMonitoringRoutes(api, deps)

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(metricsHandler(deps.Monitoring)))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

// metricsHandler merges the default registry (request and account
// counters) with the monitoring module's own registry when one exists.
func metricsHandler(module *monitoring.Module) http.Handler {
	if module == nil {
		return promhttp.Handler()
	}
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, module.Registry()}
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}
