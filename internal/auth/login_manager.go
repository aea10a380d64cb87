package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/auditctx"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/users"
	apperrors "github.com/wardenhq/warden/pkg/errors"
	"github.com/wardenhq/warden/pkg/logger"
	"github.com/wardenhq/warden/pkg/metrics"
)

var (
	// ErrIPNotAllowed rejects logins from outside the account's
	// restricted IP list.
	ErrIPNotAllowed = &apperrors.AppError{
		Code:       "IP_NOT_ALLOWED",
		Message:    "Access not allowed from this IP Address",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrOutsideLoginHours rejects logins outside the account's allowed
	// login window.
	ErrOutsideLoginHours = &apperrors.AppError{
		Code:       "OUTSIDE_LOGIN_HOURS",
		Message:    "Login not allowed at this time",
		StatusCode: http.StatusUnauthorized,
	}
)

// LoginManager ties credential checks to session issuance. It is the
// session terminator the user service uses when an account is disabled
// or asks to be logged out everywhere.
type LoginManager struct {
	db       *gorm.DB
	users    *users.UserService
	sessions *SessionService
	log      *zap.Logger
	now      func() time.Time
}

// NewLoginManager wires the user service and session service together.
func NewLoginManager(db *gorm.DB, userService *users.UserService, sessionService *SessionService) (*LoginManager, error) {
	if db == nil {
		return nil, errors.New("login manager: db is required")
	}
	if userService == nil {
		return nil, errors.New("login manager: user service is required")
	}
	if sessionService == nil {
		return nil, errors.New("login manager: session service is required")
	}

	return &LoginManager{
		db:       db,
		users:    userService,
		sessions: sessionService,
		log:      logger.WithModule("auth.login"),
		now:      time.Now,
	}, nil
}

// Login authenticates the identifier and password and opens a session.
// The identifier is the account name, or a mobile number or username
// when the matching settings allow it.
func (m *LoginManager) Login(ctx context.Context, identifier, password string, meta SessionMetadata) (TokenPair, *models.Session, error) {
	user, err := m.users.FindByCredentials(ctx, identifier, password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return TokenPair{}, nil, err
	}

	if err := m.admit(user, meta); err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return TokenPair{}, nil, err
	}

	pair, session, err := m.open(user, meta)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return TokenPair{}, nil, err
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return pair, session, nil
}

// LoginAs opens a session without a credential check. Password updates
// use it to hand the fresh session straight back to the user.
func (m *LoginManager) LoginAs(ctx context.Context, name string, meta SessionMetadata) (TokenPair, *models.Session, error) {
	user, err := m.users.Get(ctx, name)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if err := m.admit(user, meta); err != nil {
		return TokenPair{}, nil, err
	}
	return m.open(user, meta)
}

// Impersonate records the takeover through the user service and opens a
// session for the target carrying the administrator's mark.
func (m *LoginManager) Impersonate(ctx context.Context, target, reason string, meta SessionMetadata) (TokenPair, *models.Session, error) {
	user, err := m.users.Impersonate(ctx, target, reason)
	if err != nil {
		return TokenPair{}, nil, err
	}

	if actor, ok := auditctx.FromContext(ctx); ok {
		meta.ImpersonatedBy = actor.UserName
	}

	pair, session, err := m.sessions.CreateSession(user.Name, meta)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, session, nil
}

// Logout revokes a single session.
func (m *LoginManager) Logout(ctx context.Context, sessionID string) error {
	return m.sessions.RevokeSession(sessionID)
}

// LogoutUser terminates every session the account holds.
func (m *LoginManager) LogoutUser(ctx context.Context, name string) error {
	return m.sessions.RevokeUserSessions(name)
}

// admit applies the account's own login restrictions.
func (m *LoginManager) admit(user *models.User, meta SessionMetadata) error {
	if !user.Enabled {
		return apperrors.ErrUserDisabled
	}
	if err := checkRestrictedIP(user, meta.IPAddress); err != nil {
		return err
	}
	return checkLoginHours(user, m.now())
}

// open issues the session and stamps the account's login bookkeeping.
func (m *LoginManager) open(user *models.User, meta SessionMetadata) (TokenPair, *models.Session, error) {
	pair, session, err := m.sessions.CreateSession(user.Name, meta)
	if err != nil {
		return TokenPair{}, nil, err
	}

	now := m.now()
	stamps := map[string]any{
		"last_login_at":  now,
		"last_active_at": now,
	}
	if ip := strings.TrimSpace(meta.IPAddress); ip != "" {
		stamps["last_ip"] = ip
	}
	// UpdateColumns keeps updated_at untouched so a login cannot trip
	// the optimistic check of a save in flight.
	err = m.db.Model(&models.User{}).
		Where("name = ?", user.Name).
		UpdateColumns(stamps).Error
	if err != nil {
		m.log.Warn("failed to stamp login", zap.String("user", user.Name), zap.Error(err))
	}

	return pair, session, nil
}

// checkRestrictedIP matches the client address against the account's
// allowed prefixes, any match admits.
func checkRestrictedIP(user *models.User, ip string) error {
	allowed := users.RestrictedIPs(user)
	if len(allowed) == 0 {
		return nil
	}

	ip = strings.TrimSpace(ip)
	for _, prefix := range allowed {
		if prefix != "" && strings.HasPrefix(ip, prefix) {
			return nil
		}
	}
	return ErrIPNotAllowed
}

// checkLoginHours enforces the account's allowed login window. Zero
// bounds are unset.
func checkLoginHours(user *models.User, now time.Time) error {
	if user.LoginAfter == 0 && user.LoginBefore == 0 {
		return nil
	}

	hour := now.Hour()
	if user.LoginBefore > 0 && hour >= user.LoginBefore {
		return ErrOutsideLoginHours
	}
	if user.LoginAfter > 0 && hour < user.LoginAfter {
		return ErrOutsideLoginHours
	}
	return nil
}
