package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/cache"
	"github.com/wardenhq/warden/internal/database"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/pkg/crypto"
	apperrors "github.com/wardenhq/warden/pkg/errors"
)

// activeWindow is how far back a login still counts as "active".
const activeWindow = 72 * time.Hour

// Mention is the compact shape the mention picker consumes.
type Mention struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// GetSystemUsers returns the names of enabled desk users, skipping the
// built-in accounts and any extra names the caller excludes.
func (s *UserService) GetSystemUsers(ctx context.Context, exclude ...string) ([]string, error) {
	ctx = ensureContext(ctx)

	excluded := append([]string{identity.Administrator, identity.Guest}, exclude...)
	var names []string
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("enabled = ?", true).
		Where("user_type <> ?", models.UserTypeWebsite).
		Where("name NOT IN ?", excluded).
		Order("name").
		Pluck("name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

// GetTotalUsers sums the licensed session slots across enabled desk
// users. Built-in accounts do not count against the total.
func (s *UserService) GetTotalUsers(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	var total int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Select("COALESCE(SUM(simultaneous_sessions), 0)").
		Where("enabled = ?", true).
		Where("user_type = ?", models.UserTypeSystem).
		Where("name NOT IN ?", []string{identity.Administrator, identity.Guest}).
		Scan(&total).Error
	return total, err
}

// GetActiveUsers counts enabled desk users seen within the last three
// days.
func (s *UserService) GetActiveUsers(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("enabled = ?", true).
		Where("user_type <> ?", models.UserTypeWebsite).
		Where("name NOT IN ?", []string{identity.Administrator, identity.Guest}).
		Where("last_active_at > ?", s.now().Add(-activeWindow)).
		Count(&count).Error
	return count, err
}

// GetWebsiteUsers counts enabled portal accounts.
func (s *UserService) GetWebsiteUsers(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("enabled = ?", true).
		Where("user_type = ?", models.UserTypeWebsite).
		Count(&count).Error
	return count, err
}

// GetActiveWebsiteUsers counts portal accounts seen within the last
// three days.
func (s *UserService) GetActiveWebsiteUsers(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("enabled = ?", true).
		Where("user_type = ?", models.UserTypeWebsite).
		Where("last_active_at > ?", s.now().Add(-activeWindow)).
		Count(&count).Error
	return count, err
}

// GetEnabledUsers returns every enabled account name, served from cache
// when one is wired.
func (s *UserService) GetEnabledUsers(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)

	compute := func(ctx context.Context) ([]string, error) {
		var names []string
		err := s.db.WithContext(ctx).Model(&models.User{}).
			Where("enabled = ?", true).
			Order("name").
			Pluck("name", &names).Error
		return names, err
	}
	if s.aside == nil {
		return compute(ctx)
	}
	return cache.GetOrCompute(ctx, s.aside, cache.KeyEnabledUsers, compute)
}

// UsersForMentions lists the accounts the mention picker may offer:
// enabled desk users who have opted in, without the built-ins.
func (s *UserService) UsersForMentions(ctx context.Context) ([]Mention, error) {
	ctx = ensureContext(ctx)

	compute := func(ctx context.Context) ([]Mention, error) {
		var rows []models.User
		err := s.db.WithContext(ctx).Model(&models.User{}).
			Select("name", "full_name").
			Where("enabled = ?", true).
			Where("user_type = ?", models.UserTypeSystem).
			Where("allow_in_mentions = ?", true).
			Where("name NOT IN ?", []string{identity.Administrator, identity.Guest}).
			Order("name").
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		mentions := make([]Mention, 0, len(rows))
		for _, row := range rows {
			mentions = append(mentions, Mention{ID: row.Name, Value: row.FullName})
		}
		return mentions, nil
	}
	if s.aside == nil {
		return compute(ctx)
	}
	return cache.GetOrCompute(ctx, s.aside, cache.KeyUsersForMentions, compute)
}

// FindByCredentials resolves a login identifier to an account and
// verifies the password. The identifier always matches the account
// name; usernames and mobile numbers join in when system settings
// allow them. Failures are indistinguishable on purpose.
func (s *UserService) FindByCredentials(ctx context.Context, identifier, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	byMobile, err := database.GetSystemSettingBool(ctx, s.db, models.SettingAllowLoginUsingMobileNumber, false)
	if err != nil {
		return nil, err
	}
	byUsername, err := database.GetSystemSettingBool(ctx, s.db, models.SettingAllowLoginUsingUserName, false)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("name = ?", identifier)
	if byMobile {
		query = query.Or("mobile_no = ?", identifier)
	}
	if byUsername {
		query = query.Or("username = ?", identifier)
	}

	var user models.User
	if err := query.Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.Password == "" || !crypto.VerifyPassword(user.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return &user, nil
}

// AwaitingPasswordMailboxes lists the user's inbound accounts still
// waiting for a password.
func (s *UserService) AwaitingPasswordMailboxes(ctx context.Context, name string) ([]models.UserEmail, error) {
	ctx = ensureContext(ctx)

	var rows []models.UserEmail
	err := s.db.WithContext(ctx).
		Where("user_name = ?", name).
		Where("awaiting_password = ?", true).
		Where("used_oauth = ?", false).
		Order("email_account").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// HasMailboxFor reports whether any user has claimed the given inbound
// email address.
func (s *UserService) HasMailboxFor(ctx context.Context, email string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.UserEmail{}).
		Where("email_id = ?", email).
		Count(&count).Error
	return count > 0, err
}

// RestrictedIPs parses the account's login restriction list. A nil
// result means logins are unrestricted.
func RestrictedIPs(user *models.User) []string {
	if user == nil || strings.TrimSpace(user.RestrictIP) == "" {
		return nil
	}
	var ips []string
	for _, part := range strings.Split(user.RestrictIP, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ips = append(ips, part)
		}
	}
	return ips
}

// SwitchTheme records the desk theme preference for the account.
func (s *UserService) SwitchTheme(ctx context.Context, name, theme string) error {
	ctx = ensureContext(ctx)

	switch theme {
	case "Dark", "Light", "Automatic":
	default:
		return apperrors.NewBadRequest("Invalid theme")
	}

	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("name = ?", name).
		UpdateColumn("desk_theme", theme).Error
}
