package users

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/cache"
	"github.com/wardenhq/warden/internal/database"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/pkg/crypto"
	apperrors "github.com/wardenhq/warden/pkg/errors"
	"github.com/wardenhq/warden/pkg/logger"
	"github.com/wardenhq/warden/pkg/mail"
	"github.com/wardenhq/warden/pkg/metrics"
)

// ResetPolicy is consulted before a reset key is issued for an account.
// Deployments can veto the request, for example to enforce per-account
// cooldowns. The default implementation permits everything.
type ResetPolicy interface {
	BeforeIssueResetKey(ctx context.Context, user *models.User) error
}

// NopResetPolicy permits every reset request.
type NopResetPolicy struct{}

func (NopResetPolicy) BeforeIssueResetKey(context.Context, *models.User) error { return nil }

// ResetService issues, redeems, and consumes password reset keys. Only
// the sha256 of a key is ever stored; the raw key lives in the emailed
// link alone.
type ResetService struct {
	db          *gorm.DB
	mailer      mail.Mailer
	store       cache.Store
	policy      ResetPolicy
	policyCheck *PasswordPolicy

	baseURL string
	now     func() time.Time
	log     *zap.Logger
}

// ResetOption customises the reset service.
type ResetOption func(*ResetService)

// WithResetMailer enables email dispatch for reset links.
func WithResetMailer(m mail.Mailer) ResetOption {
	return func(s *ResetService) { s.mailer = m }
}

// WithResetStore wires the cache used for post-login redirect targets.
func WithResetStore(store cache.Store) ResetOption {
	return func(s *ResetService) { s.store = store }
}

// WithResetPolicy replaces the default allow-all issuance policy.
func WithResetPolicy(p ResetPolicy) ResetOption {
	return func(s *ResetService) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithResetBaseURL sets the absolute prefix for generated links.
func WithResetBaseURL(base string) ResetOption {
	return func(s *ResetService) { s.baseURL = strings.TrimRight(base, "/") }
}

// WithResetClock overrides the time source, used by expiry tests.
func WithResetClock(now func() time.Time) ResetOption {
	return func(s *ResetService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewResetService wires a ResetService.
func NewResetService(db *gorm.DB, policyCheck *PasswordPolicy, opts ...ResetOption) (*ResetService, error) {
	if db == nil {
		return nil, errors.New("reset service: db is required")
	}
	if policyCheck == nil {
		return nil, errors.New("reset service: password policy is required")
	}

	s := &ResetService{
		db:          db,
		policy:      NopResetPolicy{},
		policyCheck: policyCheck,
		now:         time.Now,
		log:         logger.WithModule("users.reset"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueOptions control a single key issuance.
type IssueOptions struct {
	SendEmail       bool
	PasswordExpired bool
}

// IssueResetKey generates a fresh key for the user, stores its hash and
// issuance time, and returns the update-password link carrying the raw
// key. Issuing a new key invalidates any previous one. Email dispatch is
// best effort: a failed send is logged, never returned.
func (s *ResetService) IssueResetKey(ctx context.Context, user *models.User, opts IssueOptions) (string, error) {
	ctx = ensureContext(ctx)

	if user == nil || user.Name == "" {
		return "", errors.New("reset service: user is required")
	}

	key, err := crypto.GenerateToken(32)
	if err != nil {
		return "", fmt.Errorf("reset service: generate key: %w", err)
	}

	issuedAt := s.now()
	err = s.db.WithContext(ctx).Model(&models.User{}).
		Where("name = ?", user.Name).
		UpdateColumns(map[string]any{
			"reset_password_key":         crypto.HashToken(key),
			"last_reset_password_key_at": issuedAt,
		}).Error
	if err != nil {
		return "", fmt.Errorf("reset service: store key: %w", err)
	}

	link := s.baseURL + "/update-password?key=" + url.QueryEscape(key)
	if opts.PasswordExpired {
		link += "&password_expired=true"
	}

	metrics.PasswordResets.WithLabelValues("issue", "success").Inc()

	if opts.SendEmail {
		s.sendResetMail(ctx, user, link)
	}
	return link, nil
}

func (s *ResetService) sendResetMail(ctx context.Context, user *models.User, link string) {
	if s.mailer == nil {
		return
	}

	msg := mail.Message{
		To:      []string{user.Email},
		Subject: "Password Reset",
		Body: fmt.Sprintf(
			"Dear %s,\r\n\r\nPlease click on the following link to set a new password:\r\n\r\n%s\r\n",
			firstNameOrFallback(user), link),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		metrics.OutgoingEmails.WithLabelValues("password_reset", "failure").Inc()
		s.log.Warn("failed to send password reset email",
			zap.String("user", user.Name),
			zap.Error(err))
		return
	}
	metrics.OutgoingEmails.WithLabelValues("password_reset", "success").Inc()
}

// RequestReset is the user-facing reset flow: it refuses the built-in
// Administrator account and disabled users, consults the issuance
// policy, then emails a reset link. The user's display name is returned
// so callers can word the confirmation message.
func (s *ResetService) RequestReset(ctx context.Context, name string) (string, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.PasswordResets.WithLabelValues("request", "not_found").Inc()
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reset service: load user: %w", err)
	}

	if identity.Classify(user.Name) == identity.KindAdministrator {
		metrics.PasswordResets.WithLabelValues("request", "rejected").Inc()
		return "", apperrors.ErrProtectedUser
	}
	if !user.Enabled {
		metrics.PasswordResets.WithLabelValues("request", "rejected").Inc()
		return "", apperrors.ErrUserDisabled
	}

	if err := s.policy.BeforeIssueResetKey(ctx, &user); err != nil {
		metrics.PasswordResets.WithLabelValues("request", "rejected").Inc()
		return "", err
	}

	if _, err := s.IssueResetKey(ctx, &user, IssueOptions{SendEmail: true}); err != nil {
		return "", err
	}
	return user.DisplayName(), nil
}

// RedeemResetKey resolves a raw key back to its account. A key that
// matches no account is reported as invalid; a matching key issued
// longer ago than the configured expiry window is reported as expired.
// A window of zero means keys never expire.
func (s *ResetService) RedeemResetKey(ctx context.Context, key string) (*models.User, error) {
	ctx = ensureContext(ctx)

	if key == "" {
		return nil, apperrors.ErrInvalidResetKey
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Take(&user, "reset_password_key = ?", crypto.HashToken(key)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.PasswordResets.WithLabelValues("redeem", "invalid").Inc()
		return nil, apperrors.ErrInvalidResetKey
	}
	if err != nil {
		return nil, fmt.Errorf("reset service: lookup key: %w", err)
	}

	expirySeconds, err := database.GetSystemSettingInt(ctx, s.db, models.SettingResetKeyExpirySeconds, 0)
	if err != nil {
		return nil, fmt.Errorf("reset service: load expiry setting: %w", err)
	}
	if expirySeconds > 0 {
		issuedAt := user.LastResetPasswordKeyAt
		if issuedAt == nil || s.now().After(issuedAt.Add(time.Duration(expirySeconds)*time.Second)) {
			metrics.PasswordResets.WithLabelValues("redeem", "expired").Inc()
			return nil, apperrors.ErrResetKeyExpired
		}
	}

	return &user, nil
}

// VerifyOldPassword checks a user's current password.
func (s *ResetService) VerifyOldPassword(ctx context.Context, name, password string) error {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("reset service: load user: %w", err)
	}

	if user.Password == "" || !crypto.VerifyPassword(user.Password, password) {
		return apperrors.ErrInvalidCredentials
	}
	return nil
}

// UpdatePasswordInput identifies the account either by a reset key or by
// the session user's current password.
type UpdatePasswordInput struct {
	NewPassword       string
	Key               string
	OldPassword       string
	SessionUser       string
	LogoutAllSessions bool
}

// UpdatePasswordResult tells the caller where to send the user and
// whether other sessions must be terminated.
type UpdatePasswordResult struct {
	UserName          string
	UserType          string
	RedirectTo        string
	LogoutAllSessions bool
}

// UpdatePassword applies a new password after strength checks. The reset
// key is single use: the stored hash is cleared together with the saved
// redirect, and the reset date is stamped.
func (s *ResetService) UpdatePassword(ctx context.Context, input UpdatePasswordInput) (*UpdatePasswordResult, error) {
	ctx = ensureContext(ctx)

	if input.NewPassword == "" {
		return nil, apperrors.NewBadRequest("New password is required")
	}
	if err := s.policyCheck.Check(ctx, input.NewPassword, nil); err != nil {
		return nil, err
	}

	user, err := s.resolveUser(ctx, input)
	if err != nil {
		return nil, err
	}

	logoutAll := input.LogoutAllSessions
	if !logoutAll {
		logoutAll, err = database.GetSystemSettingBool(ctx, s.db, models.SettingLogoutOnPasswordReset, false)
		if err != nil {
			return nil, fmt.Errorf("reset service: load logout setting: %w", err)
		}
	}

	hash, err := crypto.HashPassword(input.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("reset service: hash password: %w", err)
	}

	resetDate := s.now()
	err = s.db.WithContext(ctx).Model(&models.User{}).
		Where("name = ?", user.Name).
		Updates(map[string]any{
			"password":                 hash,
			"reset_password_key":       "",
			"redirect_url":             "",
			"last_password_reset_date": resetDate,
		}).Error
	if err != nil {
		metrics.PasswordResets.WithLabelValues("update", "failure").Inc()
		return nil, fmt.Errorf("reset service: update password: %w", err)
	}

	metrics.PasswordResets.WithLabelValues("update", "success").Inc()
	s.log.Info("password updated",
		zap.String("user", user.Name),
		zap.Bool("logout_all_sessions", logoutAll))

	return &UpdatePasswordResult{
		UserName:          user.Name,
		UserType:          user.UserType,
		RedirectTo:        s.redirectAfterUpdate(ctx, user),
		LogoutAllSessions: logoutAll,
	}, nil
}

func (s *ResetService) resolveUser(ctx context.Context, input UpdatePasswordInput) (*models.User, error) {
	switch {
	case input.Key != "":
		return s.RedeemResetKey(ctx, input.Key)
	case input.OldPassword != "":
		if input.SessionUser == "" {
			return nil, apperrors.ErrUnauthorized
		}
		if err := s.VerifyOldPassword(ctx, input.SessionUser, input.OldPassword); err != nil {
			return nil, err
		}
		var user models.User
		if err := s.db.WithContext(ctx).Take(&user, "name = ?", input.SessionUser).Error; err != nil {
			return nil, fmt.Errorf("reset service: load user: %w", err)
		}
		return &user, nil
	default:
		return nil, apperrors.NewBadRequest("A reset key or the old password is required")
	}
}

// redirectAfterUpdate picks the post-login landing page: a target cached
// at sign-up wins over the row's redirect_url; desk users always land on
// the app.
func (s *ResetService) redirectAfterUpdate(ctx context.Context, user *models.User) string {
	if user.UserType == models.UserTypeSystem {
		return "/app"
	}

	redirect := user.RedirectURL
	if s.store != nil {
		key := cache.RedirectAfterLoginKey(user.Name)
		if raw, ok, err := s.store.Get(ctx, key); err == nil && ok && len(raw) > 0 {
			redirect = string(raw)
			if err := s.store.Delete(ctx, key); err != nil {
				s.log.Warn("failed to clear cached redirect", zap.String("user", user.Name), zap.Error(err))
			}
		}
	}

	if redirect == "" {
		return "/"
	}
	return redirect
}

func firstNameOrFallback(user *models.User) string {
	if user.FirstName != "" {
		return user.FirstName
	}
	if user.LastName != "" {
		return user.LastName
	}
	return "user"
}
