package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/database"
	testutil "github.com/wardenhq/warden/internal/database/testutil"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/users"
)

func TestSweepStaleRecords(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)

	require.NoError(t, database.UpsertSystemSetting(context.Background(), db,
		models.SettingResetKeyExpirySeconds, "3600"))

	staleIssued := now.Add(-2 * time.Hour)
	freshIssued := now.Add(-10 * time.Minute)

	seedSweepUser(t, db, "stale@example.com", "key-stale", &staleIssued)
	seedSweepUser(t, db, "fresh@example.com", "key-fresh", &freshIssued)
	seedSweepUser(t, db, "orphan@example.com", "key-orphan", nil)
	seedSweepUser(t, db, "plain@example.com", "", nil)

	oldRead := models.Notification{
		UserName: "stale@example.com",
		Type:     models.NotificationTypeAlert,
		Subject:  "old and read",
		IsRead:   true,
	}
	recentRead := models.Notification{
		UserName: "stale@example.com",
		Type:     models.NotificationTypeAlert,
		Subject:  "recent and read",
		IsRead:   true,
	}
	oldUnread := models.Notification{
		UserName: "fresh@example.com",
		Type:     models.NotificationTypeAlert,
		Subject:  "old but unread",
	}
	require.NoError(t, db.Create(&oldRead).Error)
	require.NoError(t, db.Create(&recentRead).Error)
	require.NoError(t, db.Create(&oldUnread).Error)

	ancient := now.AddDate(0, 0, -40)
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", oldRead.ID).
		Update("created_at", ancient).Error)
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", oldUnread.ID).
		Update("created_at", ancient).Error)

	stats, err := SweepStaleRecords(context.Background(), db, now, 30)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.ResetKeys)
	require.Equal(t, int64(1), stats.Notifications)

	assertKey := func(name, expected string) {
		var user models.User
		require.NoError(t, db.First(&user, "name = ?", name).Error)
		require.Equal(t, expected, user.ResetPasswordKey)
	}

	assertKey("stale@example.com", "")
	assertKey("orphan@example.com", "")
	assertKey("fresh@example.com", "key-fresh")

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestSweepStaleRecordsWithoutExpirySetting(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)

	issued := now.AddDate(0, -6, 0)
	seedSweepUser(t, db, "keeper@example.com", "key-keeper", &issued)

	stats, err := SweepStaleRecords(context.Background(), db, now, 30)
	require.NoError(t, err)
	require.Equal(t, int64(0), stats.ResetKeys)

	var user models.User
	require.NoError(t, db.First(&user, "name = ?", "keeper@example.com").Error)
	require.Equal(t, "key-keeper", user.ResetPasswordKey)
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	auditSvc, err := users.NewAuditService(db)
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "cleanup-secret",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	clock := fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{
		RefreshTokenTTL: time.Hour,
		RefreshLength:   16,
		Clock:           clock.Now,
	})
	require.NoError(t, err)

	issued := clock.Now().Add(-48 * time.Hour)
	user := seedSweepUser(t, db, "cleanup@example.com", "key-cleanup", &issued)
	require.NoError(t, database.UpsertSystemSetting(context.Background(), db,
		models.SettingResetKeyExpirySeconds, "3600"))

	_, expiredSession, err := sessionSvc.CreateSession(user.Name, iauth.SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Session{}).Where("id = ?", expiredSession.ID).
		Update("expires_at", clock.Now().Add(-2*time.Hour)).Error)

	_, activeSession, err := sessionSvc.CreateSession(user.Name, iauth.SessionMetadata{})
	require.NoError(t, err)

	_, revokedSession, err := sessionSvc.CreateSession(user.Name, iauth.SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, sessionSvc.RevokeSession(revokedSession.ID))

	// Seed an audit log older than the retention window.
	actor := user.Name
	require.NoError(t, auditSvc.Log(context.Background(), users.AuditEntry{
		UserName: &actor,
		Action:   "test.action",
		Result:   "success",
	}))
	var auditLog models.AuditLog
	require.NoError(t, db.First(&auditLog).Error)
	oldTimestamp := clock.Now().AddDate(0, 0, -10)
	require.NoError(t, db.Model(&auditLog).Update("created_at", oldTimestamp).Error)

	c := NewCleaner(db, sessionSvc, auditSvc,
		WithNow(clock.Now),
		WithAuditRetentionDays(7),
		WithNotificationRetentionDays(30),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(context.Background()))

	assertNotFound := func(id string) {
		var s models.Session
		err := db.First(&s, "id = ?", id).Error
		require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	}

	assertNotFound(expiredSession.ID)
	assertNotFound(revokedSession.ID)

	var remaining models.Session
	require.NoError(t, db.First(&remaining, "id = ?", activeSession.ID).Error)

	var auditCount int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&auditCount).Error)
	require.Equal(t, int64(0), auditCount)

	var swept models.User
	require.NoError(t, db.First(&swept, "name = ?", user.Name).Error)
	require.Empty(t, swept.ResetPasswordKey)
}

func seedSweepUser(t *testing.T, db *gorm.DB, name, resetKey string, issuedAt *time.Time) *models.User {
	t.Helper()

	user := &models.User{
		Name:                   name,
		Email:                  name,
		FirstName:              "Sweep",
		Enabled:                true,
		UserType:               models.UserTypeSystem,
		SimultaneousSessions:   5,
		ResetPasswordKey:       resetKey,
		LastResetPasswordKeyAt: issuedAt,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}
