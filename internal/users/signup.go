package users

import (
	"context"
	"errors"
	"html"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/cache"
	"github.com/wardenhq/warden/internal/database"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/pkg/crypto"
	apperrors "github.com/wardenhq/warden/pkg/errors"
	"github.com/wardenhq/warden/pkg/metrics"
)

// Sign-up outcome codes. Zero means the address was already taken, one
// means a fresh account was registered and the verification email is on
// its way.
const (
	SignUpExisting = 0
	SignUpMailed   = 1
)

const (
	signupWindow       = time.Minute
	defaultSignupLimit = 300
	redirectTTL        = 24 * time.Hour
)

// ErrSignupDisabled rejects self-registration when the installation has
// turned it off.
var ErrSignupDisabled = apperrors.New("SIGNUP_DISABLED", "Sign Up is disabled", http.StatusForbidden)

// ErrSignupThrottled rejects self-registration while the recent
// creation rate is above the configured limit.
var ErrSignupThrottled = apperrors.New(
	"SIGNUP_THROTTLED",
	"Too many users signed up recently, so the registration is disabled. Please try back in an hour",
	http.StatusTooManyRequests,
)

// SignUpInput is the public self-registration form.
type SignUpInput struct {
	Email      string
	FirstName  string
	LastName   string
	RedirectTo string
	University string
	Major      string
}

// SignUp registers a portal account for an anonymous visitor. The
// returned code distinguishes "already registered" (0) from "account
// created, check your email" (1).
func (s *UserService) SignUp(ctx context.Context, input SignUpInput) (int, string, error) {
	ctx = ensureContext(ctx)

	disabled, err := database.GetSystemSettingBool(ctx, s.db, models.SettingDisableSignup, false)
	if err != nil {
		return 0, "", err
	}
	if disabled {
		metrics.SignUps.WithLabelValues("disabled").Inc()
		return 0, "", ErrSignupDisabled
	}

	email := strings.TrimSpace(strings.ToLower(input.Email))

	var existing models.User
	err = s.db.WithContext(ctx).Take(&existing, "email = ?", email).Error
	switch {
	case err == nil:
		metrics.SignUps.WithLabelValues("already_registered").Inc()
		if existing.Enabled {
			return SignUpExisting, "Already Registered", nil
		}
		return SignUpExisting, "Registered but disabled", nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return 0, "", err
	}

	if err := s.checkSignupRate(ctx); err != nil {
		metrics.SignUps.WithLabelValues("rejected").Inc()
		return 0, "", err
	}

	password, err := crypto.GenerateHash(10)
	if err != nil {
		return 0, "", err
	}

	create := CreateUserInput{
		Email:              email,
		FirstName:          html.EscapeString(strings.TrimSpace(input.FirstName)),
		LastName:           html.EscapeString(strings.TrimSpace(input.LastName)),
		Password:           password,
		UserType:           models.UserTypeWebsite,
		SkipPasswordPolicy: true,
	}
	if profile := s.defaultRoleProfile(ctx); profile != "" {
		create.RoleProfiles = []string{profile}
	}

	result, err := s.Create(ctx, create)
	if err != nil {
		metrics.SignUps.WithLabelValues("rejected").Inc()
		return 0, "", err
	}
	name := result.User.Name

	// Captured once at registration, out of reach of later profile
	// edits, so they bypass the save path.
	once := map[string]any{}
	if v := strings.TrimSpace(input.University); v != "" {
		once["university"] = v
	}
	if v := strings.TrimSpace(input.Major); v != "" {
		once["major"] = v
	}
	if len(once) > 0 {
		err = s.db.WithContext(ctx).Model(&models.User{}).
			Where("name = ?", name).
			UpdateColumns(once).Error
		if err != nil {
			return 0, "", err
		}
	}

	if redirect := strings.TrimSpace(input.RedirectTo); redirect != "" {
		s.cacheRedirect(ctx, name, redirect)
	}

	metrics.SignUps.WithLabelValues("registered").Inc()

	// The welcome email is queued by the save path. Whether it makes it
	// out or not, the visitor gets the same answer.
	return SignUpMailed, "Please check your email for verification", nil
}

// checkSignupRate compares the last minute's account creations against
// the configured ceiling.
func (s *UserService) checkSignupRate(ctx context.Context) error {
	limit, err := database.GetSystemSettingInt(ctx, s.db, models.SettingSignupRateLimit, defaultSignupLimit)
	if err != nil {
		return err
	}
	if limit <= 0 {
		return nil
	}

	var recent int64
	err = s.db.WithContext(ctx).Model(&models.User{}).
		Where("created_at > ?", s.now().Add(-signupWindow)).
		Count(&recent).Error
	if err != nil {
		return err
	}
	if recent > int64(limit) {
		return ErrSignupThrottled
	}
	return nil
}

// defaultRoleProfile reads the portal's default role profile, dropping
// it with a warning when the configured profile no longer exists.
func (s *UserService) defaultRoleProfile(ctx context.Context) string {
	profile, err := database.GetSystemSetting(ctx, s.db, models.SettingDefaultRoleProfile)
	if err != nil || strings.TrimSpace(profile) == "" {
		return ""
	}
	profile = strings.TrimSpace(profile)

	var count int64
	err = s.db.WithContext(ctx).Model(&models.RoleProfile{}).
		Where("name = ?", profile).
		Count(&count).Error
	if err != nil || count == 0 {
		s.log.Warn("default role profile missing, skipping", zap.String("profile", profile))
		return ""
	}
	return profile
}

func (s *UserService) cacheRedirect(ctx context.Context, name, redirect string) {
	if s.reset == nil || s.reset.store == nil {
		return
	}
	key := cache.RedirectAfterLoginKey(name)
	if err := s.reset.store.Set(ctx, key, []byte(redirect), redirectTTL); err != nil {
		s.log.Warn("failed to cache signup redirect", zap.String("user", name), zap.Error(err))
	}
}
