package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the warden backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Site        SiteConfig        `mapstructure:"site"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Email       EmailConfig       `mapstructure:"email"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	LogLevel  string          `mapstructure:"log_level"`
	CSRF      CSRFConfig      `mapstructure:"csrf"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// CSRFConfig controls CSRF protection middleware.
type CSRFConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RateLimitConfig bounds requests per client within a rolling window.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// SiteConfig names the installation and anchors links sent by email.
type SiteConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
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

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT     JWTSettings     `mapstructure:"jwt"`
	Session SessionSettings `mapstructure:"session"`

	// EncryptionKey seals credential material stored at rest, such as
	// API secrets. Generated on startup when absent.
	EncryptionKey string `mapstructure:"encryption_key"`
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

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// SessionSettings configures refresh tokens and session lifetimes.
type SessionSettings struct {
	RefreshTTL    time.Duration `mapstructure:"refresh_token_ttl"`
	RefreshLength int           `mapstructure:"refresh_token_length"`
}

// JobsConfig sizes the background worker pool.
type JobsConfig struct {
	Workers    int           `mapstructure:"workers"`
	Buffer     int           `mapstructure:"buffer"`
	MaxRetries int           `mapstructure:"max_retries"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

// MaintenanceConfig schedules the periodic cleanup jobs.
type MaintenanceConfig struct {
	SessionSchedule       string `mapstructure:"session_schedule"`
	AuditSchedule         string `mapstructure:"audit_schedule"`
	SweepSchedule         string `mapstructure:"sweep_schedule"`
	AuditRetentionDays    int    `mapstructure:"audit_retention_days"`
	NotificationRetention int    `mapstructure:"notification_retention_days"`
}

// configDefaults is applied before any file or environment override.
var configDefaults = map[string]any{
	"server.port":                8000,
	"server.log_level":           "info",
	"server.csrf.enabled":        false,
	"server.rate_limit.requests": 100,
	"server.rate_limit.window":   "1m",

	"site.name": "Warden",
	"site.url":  "http://localhost:8000",

	"database.driver": "sqlite",
	"database.path":   "./data/warden.sqlite",

	"cache.redis.enabled":  false,
	"cache.redis.address":  "127.0.0.1:6379",
	"cache.redis.username": "",
	"cache.redis.password": "",
	"cache.redis.db":       0,
	"cache.redis.tls":      false,
	"cache.redis.timeout":  "5s",

	"monitoring.prometheus.enabled":   true,
	"monitoring.prometheus.endpoint":  "/metrics",
	"monitoring.health_check.enabled": true,

	"auth.jwt.issuer":                   "warden",
	"auth.jwt.access_token_ttl":         "15m",
	"auth.session.refresh_token_ttl":    "720h", // 30 days
	"auth.session.refresh_token_length": 48,

	"email.smtp.enabled": false,
	"email.smtp.host":    "",
	"email.smtp.port":    587,
	"email.smtp.use_tls": true,
	"email.smtp.timeout": "10s",

	"jobs.workers":     4,
	"jobs.buffer":      256,
	"jobs.max_retries": 5,
	"jobs.job_timeout": "30s",

	"maintenance.session_schedule":            "@hourly",
	"maintenance.audit_schedule":              "@daily",
	"maintenance.sweep_schedule":              "@daily",
	"maintenance.audit_retention_days":        90,
	"maintenance.notification_retention_days": 90,
}

// LoadConfig reads config.yaml from ./config and any extra paths, lets
// WARDEN_* environment variables override it, and fills the rest from
// configDefaults. A missing file is not an error.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	for key, value := range configDefaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
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
