package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/database"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/users"
	"github.com/wardenhq/warden/pkg/logger"
)

const (
	defaultAuditRetentionDays        = 90
	defaultNotificationRetentionDays = 90
	defaultSessionSpec               = "@hourly"
	defaultAuditSpec                 = "@daily"
	defaultSweepSpec                 = "@daily"
)

// Cleaner coordinates background maintenance tasks such as purging expired sessions,
// pruning stale audit logs, and sweeping expired reset keys and old notifications.
type Cleaner struct {
	db                    *gorm.DB
	sessions              *iauth.SessionService
	audit                 *users.AuditService
	cron                  *cron.Cron
	now                   func() time.Time
	log                   *zap.Logger
	enabled               bool
	retention             int
	notificationRetention int

	sessionSchedule string
	auditSchedule   string
	sweepSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for scheduling and cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithNotificationRetentionDays adjusts how long read notifications are kept.
func WithNotificationRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.notificationRetention = days
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithSweepSchedule overrides the cron specification for the stale-record sweep.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sweepSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(db *gorm.DB, sessions *iauth.SessionService, audit *users.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:                    db,
		sessions:              sessions,
		audit:                 audit,
		now:                   time.Now,
		retention:             defaultAuditRetentionDays,
		notificationRetention: defaultNotificationRetentionDays,
		sessionSchedule:       defaultSessionSpec,
		auditSchedule:         defaultAuditSpec,
		sweepSchedule:         defaultSweepSpec,
		log:                   logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	// Determine whether any job is enabled.
	cleaner.enabled = cleaner.sessions != nil || cleaner.audit != nil || cleaner.db != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			ctx := context.Background()
			if _, err := c.sessions.CleanupExpired(ctx); err != nil {
				c.log.Warn("session cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			ctx := context.Background()
			if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.sweepSchedule, func() {
			ctx := context.Background()
			if _, err := SweepStaleRecords(ctx, c.db, c.now(), c.notificationRetention); err != nil {
				c.log.Warn("stale record sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		if _, err := c.sessions.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil {
		if _, err := SweepStaleRecords(ctx, c.db, c.now(), c.notificationRetention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// SweepStats captures the number of records touched by a sweep.
type SweepStats struct {
	ResetKeys     int64
	Notifications int64
}

// SweepStaleRecords clears password reset keys that can no longer be redeemed and
// deletes read notifications past the retention window. Reset keys without an expiry
// setting never expire and are left alone.
func SweepStaleRecords(ctx context.Context, db *gorm.DB, now time.Time, notificationRetentionDays int) (SweepStats, error) {
	if db == nil {
		return SweepStats{}, errors.New("sweep stale records: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stats := SweepStats{}

	expirySeconds, err := database.GetSystemSettingInt(ctx, db, models.SettingResetKeyExpirySeconds, 0)
	if err != nil {
		return stats, fmt.Errorf("sweep stale records: load expiry setting: %w", err)
	}
	if expirySeconds > 0 {
		cutoff := now.Add(-time.Duration(expirySeconds) * time.Second)
		// Keys with no issue timestamp are unredeemable and get cleared as well.
		result := db.WithContext(ctx).Model(&models.User{}).
			Where("reset_password_key <> '' AND (last_reset_password_key_at IS NULL OR last_reset_password_key_at < ?)", cutoff).
			Update("reset_password_key", "")
		if result.Error != nil {
			return stats, fmt.Errorf("sweep stale records: reset keys: %w", result.Error)
		}
		stats.ResetKeys = result.RowsAffected
	}

	if notificationRetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -notificationRetentionDays)
		result := db.WithContext(ctx).
			Where("is_read = ? AND created_at < ?", true, cutoff).
			Delete(&models.Notification{})
		if result.Error != nil {
			return stats, fmt.Errorf("sweep stale records: notifications: %w", result.Error)
		}
		stats.Notifications = result.RowsAffected
	}

	return stats, nil
}
