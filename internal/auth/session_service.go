package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/pkg/crypto"
	"github.com/wardenhq/warden/pkg/metrics"
)

// DefaultRefreshTokenTTL is the fallback refresh token lifetime.
const DefaultRefreshTokenTTL = 30 * 24 * time.Hour

const defaultRefreshTokenLength = 48

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	RefreshTokenTTL time.Duration
	RefreshLength   int
	Clock           func() time.Time
	Cache           SessionCache
}

// SessionMetadata captures contextual information about the client.
// ImpersonatedBy names the administrator the session was opened for on
// the user's behalf, empty for ordinary logins.
type SessionMetadata struct {
	IPAddress      string
	UserAgent      string
	Device         string
	ImpersonatedBy string
	Claims         map[string]any
}

// TokenPair represents an access token and refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

var (
	// ErrSessionNotFound indicates that no session matches the provided token or identifier.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionRevoked marks a session that has been revoked by the user or administrators.
	ErrSessionRevoked = errors.New("session: revoked")
	// ErrSessionExpired signals that a refresh token has reached its expiry.
	ErrSessionExpired = errors.New("session: expired")
	// ErrSessionInvalidToken is returned when the supplied refresh token is malformed.
	ErrSessionInvalidToken = errors.New("session: invalid token")
)

var errSessionCacheMiss = errors.New("session cache miss")

// SessionCache represents a cache backend for session objects keyed by refresh token.
type SessionCache interface {
	Get(ctx context.Context, refreshToken string) (*models.Session, error)
	Set(ctx context.Context, session *models.Session, ttl time.Duration) error
	Delete(ctx context.Context, refreshToken string) error
}

// SessionService manages creation, rotation, and revocation of user sessions.
// The database row is authoritative; the cache only accelerates refresh
// lookups, and every cache write or purge is best effort.
type SessionService struct {
	db         *gorm.DB
	jwt        *JWTService
	refreshTTL time.Duration
	tokenLen   int
	now        func() time.Time
	cache      SessionCache
}

// NewSessionService constructs a session manager backed by the provided database and JWT service.
func NewSessionService(db *gorm.DB, jwtService *JWTService, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("sessions: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("sessions: jwt service is required")
	}

	svc := &SessionService{
		db:         db,
		jwt:        jwtService,
		refreshTTL: cfg.RefreshTokenTTL,
		tokenLen:   cfg.RefreshLength,
		now:        cfg.Clock,
		cache:      cfg.Cache,
	}
	if svc.refreshTTL <= 0 {
		svc.refreshTTL = DefaultRefreshTokenTTL
	}
	if svc.tokenLen <= 0 {
		svc.tokenLen = defaultRefreshTokenLength
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// CreateSession generates a new session and issues a fresh token pair.
// Older sessions beyond the account's simultaneous-session allowance
// are revoked, keeping the one just created.
func (s *SessionService) CreateSession(userName string, meta SessionMetadata) (TokenPair, *models.Session, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return TokenPair{}, nil, errors.New("sessions: user name is required")
	}

	refreshToken, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("sessions: mint refresh token: %w", err)
	}

	issued := s.now()
	session := &models.Session{
		UserName:       userName,
		RefreshToken:   refreshToken,
		IPAddress:      strings.TrimSpace(meta.IPAddress),
		UserAgent:      strings.TrimSpace(meta.UserAgent),
		DeviceName:     strings.TrimSpace(meta.Device),
		ImpersonatedBy: strings.TrimSpace(meta.ImpersonatedBy),
		ExpiresAt:      issued.Add(s.refreshTTL),
		LastUsedAt:     issued,
	}
	if err := s.db.Create(session).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("sessions: persist session: %w", err)
	}
	metrics.ActiveSessions.Inc()

	if err := s.enforceSeatLimit(userName, session.ID); err != nil {
		return TokenPair{}, nil, err
	}

	pair, err := s.issueTokens(session, refreshToken, meta.Claims)
	if err != nil {
		return TokenPair{}, nil, err
	}

	s.cacheSession(session, s.refreshTTL)

	return pair, session, nil
}

func (s *SessionService) issueTokens(session *models.Session, refreshToken string, claims map[string]any) (TokenPair, error) {
	accessToken, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		UserName:  session.UserName,
		SessionID: session.ID,
		Metadata:  cloneMetadata(claims),
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("sessions: mint access token: %w", err)
	}
	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *SessionService) cacheSession(session *models.Session, ttl time.Duration) {
	if s.cache == nil || session == nil {
		return
	}
	if ttl <= 0 {
		ttl = s.refreshTTL
	}
	_ = s.cache.Set(context.Background(), session, ttl)
}

func (s *SessionService) purgeCachedTokens(tokens ...string) {
	if s.cache == nil {
		return
	}
	for _, token := range tokens {
		if strings.TrimSpace(token) == "" {
			continue
		}
		_ = s.cache.Delete(context.Background(), token)
	}
}

// enforceSeatLimit revokes the oldest active sessions that exceed the
// account's simultaneous-session allowance, never the one just issued.
func (s *SessionService) enforceSeatLimit(userName, currentID string) error {
	var user models.User
	err := s.db.Select("simultaneous_sessions").Take(&user, "name = ?", userName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("sessions: load seat limit: %w", err)
	}

	limit := max(user.SimultaneousSessions, 1)

	var ids []string
	err = s.db.Model(&models.Session{}).
		Where("user_name = ? AND revoked_at IS NULL AND id <> ?", userName, currentID).
		Order("last_used_at DESC").
		Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("sessions: list seats: %w", err)
	}
	if len(ids) < limit {
		return nil
	}

	for _, id := range ids[limit-1:] {
		if err := s.RevokeSession(id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return err
		}
	}
	return nil
}

// lookupByRefreshToken consults the cache first and falls back to the
// database.
func (s *SessionService) lookupByRefreshToken(refreshToken string) (models.Session, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(context.Background(), refreshToken); err == nil && cached != nil {
			return *cached, nil
		}
	}

	var session models.Session
	err := s.db.Where("refresh_token = ?", refreshToken).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("sessions: find session: %w", err)
	}
	return session, nil
}

// RefreshSession rotates the refresh token and issues a new access token.
func (s *SessionService) RefreshSession(refreshToken string) (TokenPair, *models.Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, nil, ErrSessionInvalidToken
	}

	session, err := s.lookupByRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, nil, err
	}

	rotatedAt := s.now()
	switch {
	case session.RevokedAt != nil:
		return TokenPair{}, nil, ErrSessionRevoked
	case session.ExpiresAt.Before(rotatedAt):
		return TokenPair{}, nil, ErrSessionExpired
	}

	rotated, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("sessions: mint refresh token: %w", err)
	}

	expiresAt := rotatedAt.Add(s.refreshTTL)
	err = s.db.Model(&session).Updates(map[string]any{
		"refresh_token": rotated,
		"expires_at":    expiresAt,
		"last_used_at":  rotatedAt,
	}).Error
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("sessions: rotate session: %w", err)
	}
	session.RefreshToken = rotated
	session.ExpiresAt = expiresAt
	session.LastUsedAt = rotatedAt

	s.touchLastActive(session.UserName, rotatedAt)

	pair, err := s.issueTokens(&session, rotated, nil)
	if err != nil {
		return TokenPair{}, nil, err
	}

	s.purgeCachedTokens(refreshToken)
	s.cacheSession(&session, time.Until(session.ExpiresAt))

	return pair, &session, nil
}

// touchLastActive keeps the account's activity stamp current so the
// active-user queries see refreshing clients.
func (s *SessionService) touchLastActive(userName string, now time.Time) {
	_ = s.db.Model(&models.User{}).
		Where("name = ?", userName).
		UpdateColumn("last_active_at", now).Error
}

// RevokeSession marks a session as revoked, preventing further refresh operations.
func (s *SessionService) RevokeSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionInvalidToken
	}

	var staleToken string
	if s.cache != nil {
		var session models.Session
		if err := s.db.Select("refresh_token").Take(&session, "id = ?", sessionID).Error; err == nil {
			staleToken = session.RefreshToken
		}
	}

	result := s.db.Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("sessions: revoke session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	s.purgeCachedTokens(staleToken)
	metrics.ActiveSessions.Sub(float64(result.RowsAffected))

	return nil
}

// CleanupExpired removes expired sessions and updates active session metrics accordingly.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := s.now()

	var activeExpired int64
	if err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("expires_at < ? AND revoked_at IS NULL", now).
		Count(&activeExpired).Error; err != nil {
		return 0, fmt.Errorf("sessions: count expired: %w", err)
	}

	if s.cache != nil {
		var tokens []string
		err := s.db.WithContext(ctx).
			Model(&models.Session{}).
			Where("expires_at < ?", now).
			Or("revoked_at IS NOT NULL").
			Pluck("refresh_token", &tokens).Error
		if err == nil {
			s.purgeCachedTokens(tokens...)
		}
	}

	result := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Or("revoked_at IS NOT NULL").
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("sessions: delete expired: %w", result.Error)
	}

	if activeExpired > 0 {
		metrics.ActiveSessions.Sub(float64(activeExpired))
	}

	return result.RowsAffected, nil
}

// RevokeUserSessions revokes every active session belonging to a user.
func (s *SessionService) RevokeUserSessions(userName string) error {
	if strings.TrimSpace(userName) == "" {
		return ErrSessionInvalidToken
	}

	var tokens []string
	if s.cache != nil {
		err := s.db.Model(&models.Session{}).
			Where("user_name = ? AND revoked_at IS NULL", userName).
			Pluck("refresh_token", &tokens).Error
		if err != nil {
			tokens = nil
		}
	}

	result := s.db.Model(&models.Session{}).
		Where("user_name = ? AND revoked_at IS NULL", userName).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}

	s.purgeCachedTokens(tokens...)
	return nil
}

// LogoutUser terminates every session the account holds. It satisfies
// the user service's session terminator, so disabling an account drops
// its sessions without the user package knowing about this one.
func (s *SessionService) LogoutUser(_ context.Context, userName string) error {
	return s.RevokeUserSessions(userName)
}

// ListUserSessions returns the account's sessions, active first.
func (s *SessionService) ListUserSessions(ctx context.Context, userName string) ([]models.Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("user_name = ?", userName).
		Order("revoked_at IS NOT NULL, last_used_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("sessions: list sessions: %w", err)
	}
	return sessions, nil
}
