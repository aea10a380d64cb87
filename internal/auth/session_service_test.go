package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/database/testutil"
	"github.com/wardenhq/warden/internal/models"
)

func TestCreateSessionGeneratesTokens(t *testing.T) {
	db, svc, clock := setupSessionService(t)

	user := createSessionUser(t, db, "create@example.com", 1)

	tokens, session, err := svc.CreateSession(user.Name, SessionMetadata{
		IPAddress: "10.0.0.1 ",
		UserAgent: "unit-test",
		Device:    "laptop",
		Claims:    map[string]any{"role": "admin"},
	})
	require.NoError(t, err)

	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.NotNil(t, session)
	require.Equal(t, user.Name, session.UserName)
	require.Equal(t, "10.0.0.1", session.IPAddress)
	require.Equal(t, "unit-test", session.UserAgent)
	require.Equal(t, "laptop", session.DeviceName)

	var reloaded models.Session
	require.NoError(t, db.Take(&reloaded, "id = ?", session.ID).Error)
	require.Equal(t, tokens.RefreshToken, reloaded.RefreshToken)
	require.True(t, reloaded.ExpiresAt.After(clock.Now()))
	require.True(t, reloaded.LastUsedAt.Equal(clock.Now()))
}

func TestCreateSessionEnforcesSeatLimit(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createSessionUser(t, db, "seats@example.com", 2)

	_, first, err := svc.CreateSession(user.Name, SessionMetadata{Device: "first"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, second, err := svc.CreateSession(user.Name, SessionMetadata{Device: "second"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, third, err := svc.CreateSession(user.Name, SessionMetadata{Device: "third"})
	require.NoError(t, err)

	revokedAt := func(id string) *time.Time {
		var s models.Session
		require.NoError(t, db.Take(&s, "id = ?", id).Error)
		return s.RevokedAt
	}

	require.NotNil(t, revokedAt(first.ID), "oldest session is bumped")
	require.Nil(t, revokedAt(second.ID))
	require.Nil(t, revokedAt(third.ID))
}

func TestCreateSessionSingleSeatReplacesPrevious(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createSessionUser(t, db, "solo@example.com", 1)

	_, first, err := svc.CreateSession(user.Name, SessionMetadata{})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, second, err := svc.CreateSession(user.Name, SessionMetadata{})
	require.NoError(t, err)

	var stored models.Session
	require.NoError(t, db.Take(&stored, "id = ?", first.ID).Error)
	require.NotNil(t, stored.RevokedAt)
	stored = models.Session{}
	require.NoError(t, db.Take(&stored, "id = ?", second.ID).Error)
	require.Nil(t, stored.RevokedAt)
}

func TestCreateSessionStampsImpersonator(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createSessionUser(t, db, "puppet@example.com", 1)

	_, session, err := svc.CreateSession(user.Name, SessionMetadata{
		ImpersonatedBy: "Administrator",
	})
	require.NoError(t, err)

	var stored models.Session
	require.NoError(t, db.Take(&stored, "id = ?", session.ID).Error)
	require.Equal(t, "Administrator", stored.ImpersonatedBy)
}

func TestRefreshSessionRotatesToken(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createSessionUser(t, db, "refresh@example.com", 1)

	tokens, session, err := svc.CreateSession(user.Name, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)

	newTokens, updatedSession, err := svc.RefreshSession(tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, tokens.RefreshToken, newTokens.RefreshToken)
	require.NotEqual(t, tokens.AccessToken, newTokens.AccessToken)

	require.Equal(t, session.ID, updatedSession.ID)
	require.Equal(t, newTokens.RefreshToken, updatedSession.RefreshToken)
	require.True(t, updatedSession.LastUsedAt.Equal(clock.Now()))

	var account models.User
	require.NoError(t, db.Take(&account, "name = ?", user.Name).Error)
	require.NotNil(t, account.LastActiveAt)
	require.True(t, account.LastActiveAt.Equal(clock.Now()))

	_, _, err = svc.RefreshSession(tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRefreshSessionExpired(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createSessionUser(t, db, "expired@example.com", 1)

	tokens, session, err := svc.CreateSession(user.Name, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", session.ID).
		Update("expires_at", clock.Now().Add(-time.Minute)).Error)

	_, _, err = svc.RefreshSession(tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestRevokeSessionPreventsRefresh(t *testing.T) {
	db, svc, clock := setupSessionService(t)

	user := createSessionUser(t, db, "revoke@example.com", 1)

	tokens, session, err := svc.CreateSession(user.Name, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(session.ID))

	err = svc.RevokeSession("non-existent")
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, _, err = svc.RefreshSession(tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionRevoked)

	var stored models.Session
	require.NoError(t, db.Take(&stored, "id = ?", session.ID).Error)
	require.NotNil(t, stored.RevokedAt)
	require.True(t, stored.RevokedAt.After(clock.Now().Add(-time.Nanosecond)))
}

func TestRevokeUserSessionsClearsAll(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createSessionUser(t, db, "everywhere@example.com", 3)

	_, _, err := svc.CreateSession(user.Name, SessionMetadata{Device: "desk"})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, _, err = svc.CreateSession(user.Name, SessionMetadata{Device: "phone"})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeUserSessions(user.Name))

	sessions, err := svc.ListUserSessions(context.Background(), user.Name)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		require.NotNil(t, s.RevokedAt)
	}
}

func TestCleanupExpiredDropsDeadSessions(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createSessionUser(t, db, "sweep@example.com", 3)

	_, live, err := svc.CreateSession(user.Name, SessionMetadata{})
	require.NoError(t, err)
	_, dead, err := svc.CreateSession(user.Name, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", dead.ID).
		Update("expires_at", clock.Now().Add(-time.Hour)).Error)

	removed, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var remaining []models.Session
	require.NoError(t, db.Find(&remaining, "user_name = ?", user.Name).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, live.ID, remaining[0].ID)
}

func setupSessionService(t *testing.T) (*gorm.DB, *SessionService, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	clock := &testClock{current: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)}

	jwtService, err := NewJWTService(JWTConfig{
		Secret:         "session-secret",
		AccessTokenTTL: time.Hour,
		Clock:          clock.Now,
	})
	require.NoError(t, err)

	sessionService, err := NewSessionService(db, jwtService, SessionConfig{
		RefreshTokenTTL: 2 * time.Hour,
		RefreshLength:   24,
		Clock:           clock.Now,
	})
	require.NoError(t, err)

	return db, sessionService, clock
}

func createSessionUser(t *testing.T, db *gorm.DB, name string, seats int) *models.User {
	t.Helper()

	user := &models.User{
		Name:                 name,
		Email:                name,
		FirstName:            "Session",
		Enabled:              true,
		UserType:             models.UserTypeSystem,
		SimultaneousSessions: seats,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}
