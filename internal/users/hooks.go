package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wardenhq/warden/internal/cache"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/jobs"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/pkg/mail"
	"github.com/wardenhq/warden/pkg/metrics"
)

// defaultsParentGlobal scopes installation-wide defaults, as opposed to
// rows whose parent is a user name.
const defaultsParentGlobal = "__default"

// defaultKeyAwaitingPasswords lists users with mailboxes still waiting
// for a password, comma joined.
const defaultKeyAwaitingPasswords = "email_user_password"

// afterSave fans out the side effects of a committed save. Everything
// here is best effort: the row is already persisted, so failures are
// logged and never propagated back to the caller.
func (s *UserService) afterSave(ctx context.Context, d *Draft) {
	user := d.User
	name := user.Name
	reserved := identity.IsReserved(name)

	if d.LogoutSessions && s.sessions != nil {
		if err := s.sessions.LogoutUser(ctx, name); err != nil {
			s.log.Warn("failed to terminate sessions", zap.String("user", name), zap.Error(err))
		}
	}

	if d.ToggleNotifications != nil {
		s.applyNotificationToggle(ctx, name, *d.ToggleNotifications)
	} else if d.IsNew {
		s.applyNotificationToggle(ctx, name, user.Enabled)
	}

	if !reserved {
		s.shareWithSelf(ctx, name)
	}

	if user.TimeZone != "" {
		s.setUserDefault(ctx, name, "time_zone", user.TimeZone)
	}
	if d.IsNew || d.Prior == nil || d.Prior.Language != user.Language {
		if user.Language != "" {
			s.setUserDefault(ctx, name, "lang", user.Language)
		} else if !d.IsNew {
			s.clearUserDefault(ctx, name, "lang")
		}
	}

	if d.RefreshAwaitingPasswords {
		s.rebuildAwaitingPasswords(ctx)
	}

	s.invalidateUserCaches(ctx, d)

	if d.IsNew && !reserved && user.SendWelcomeEmail && user.Enabled {
		s.enqueueWelcomeEmail(name)
	}

	if s.queue != nil {
		s.queue.Enqueue(jobs.Job{Kind: "contact-sync", Run: func(jobCtx context.Context) error {
			return s.syncContact(jobCtx, name)
		}})
		if !reserved && user.UserImage == "" {
			s.queue.Enqueue(jobs.Job{Kind: "gravatar", Run: func(jobCtx context.Context) error {
				return s.updateGravatar(jobCtx, name)
			}})
		}
	}
}

// applyNotificationToggle keeps the notification settings row in step
// with the account status, creating it on first contact.
func (s *UserService) applyNotificationToggle(ctx context.Context, name string, enabled bool) {
	settings := models.NotificationSettings{
		UserName:         name,
		Enabled:          enabled,
		NotifyByEmail:    true,
		NotifyAssignment: true,
		NotifyMentions:   true,
		NotifyShare:      true,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_name"}},
		DoUpdates: clause.Assignments(map[string]any{"enabled": enabled}),
	}).Create(&settings).Error
	if err != nil {
		s.log.Warn("failed to apply notification toggle", zap.String("user", name), zap.Error(err))
	}
}

// shareWithSelf guarantees users keep full access to their own record.
func (s *UserService) shareWithSelf(ctx context.Context, name string) {
	share := models.DocShare{
		UserName:     name,
		SharedBy:     name,
		DocumentType: "User",
		DocumentName: name,
		Read:         true,
		Write:        true,
		Share:        true,
		Owner:        name,
		ModifiedBy:   name,
	}

	var existing models.DocShare
	err := s.db.WithContext(ctx).
		Where("user_name = ? AND document_type = ? AND document_name = ?", name, "User", name).
		Attrs(share).
		FirstOrCreate(&existing).Error
	if err != nil {
		s.log.Warn("failed to share record with owner", zap.String("user", name), zap.Error(err))
	}
}

func (s *UserService) setUserDefault(ctx context.Context, parent, key, value string) {
	err := upsertDefault(s.db.WithContext(ctx), parent, key, value)
	if err != nil {
		s.log.Warn("failed to store user default",
			zap.String("user", parent), zap.String("key", key), zap.Error(err))
	}
}

func (s *UserService) clearUserDefault(ctx context.Context, parent, key string) {
	err := s.db.WithContext(ctx).
		Where("parent = ? AND def_key = ?", parent, key).
		Delete(&models.DefaultValue{}).Error
	if err != nil {
		s.log.Warn("failed to clear user default",
			zap.String("user", parent), zap.String("key", key), zap.Error(err))
	}
}

func upsertDefault(db *gorm.DB, parent, key, value string) error {
	var existing models.DefaultValue
	err := db.Take(&existing, "parent = ? AND def_key = ?", parent, key).Error
	switch {
	case err == nil:
		if existing.DefValue == value {
			return nil
		}
		return db.Model(&existing).Update("def_value", value).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return db.Create(&models.DefaultValue{
			Parent:   parent,
			DefKey:   key,
			DefValue: value,
		}).Error
	default:
		return err
	}
}

// rebuildAwaitingPasswords refreshes the registry of users whose
// mailboxes still wait for a password, excluding OAuth-backed ones.
func (s *UserService) rebuildAwaitingPasswords(ctx context.Context) {
	var names []string
	err := s.db.WithContext(ctx).Model(&models.UserEmail{}).
		Distinct("user_name").
		Where("awaiting_password = ? AND used_oauth = ?", true, false).
		Order("user_name").
		Pluck("user_name", &names).Error
	if err != nil {
		s.log.Warn("failed to list awaiting-password users", zap.Error(err))
		return
	}

	if err := upsertDefault(s.db.WithContext(ctx), defaultsParentGlobal, defaultKeyAwaitingPasswords, strings.Join(names, ",")); err != nil {
		s.log.Warn("failed to refresh awaiting-password registry", zap.Error(err))
	}
}

// invalidateUserCaches drops the derived user lists whose inputs the
// save may have changed. Enabled flips touch both lists, mention and
// type changes only the mention list.
func (s *UserService) invalidateUserCaches(ctx context.Context, d *Draft) {
	if s.aside == nil {
		return
	}

	user := d.User
	keys := []string{cache.UserCacheKey(user.Name)}

	switch {
	case d.IsNew || d.Prior == nil || d.Prior.Enabled != user.Enabled:
		keys = append(keys, cache.KeyEnabledUsers, cache.KeyUsersForMentions)
	case d.Prior.AllowInMentions != user.AllowInMentions || d.Prior.UserType != user.UserType:
		keys = append(keys, cache.KeyUsersForMentions)
	}

	s.aside.Invalidate(ctx, keys...)
}

func (s *UserService) enqueueWelcomeEmail(name string) {
	if s.mailer == nil {
		return
	}
	if s.queue == nil {
		// No queue wired, send inline so fresh installs still work.
		s.sendWelcomeEmailJob(context.Background(), name)
		return
	}
	s.queue.Enqueue(jobs.Job{Kind: "welcome-email", Run: func(ctx context.Context) error {
		return s.sendWelcomeEmailJob(ctx, name)
	}})
}

// sendWelcomeEmailJob issues a fresh reset key and mails the onboarding
// link. Transient mailer failures are retried by the queue.
func (s *UserService) sendWelcomeEmailJob(ctx context.Context, name string) error {
	user, err := s.Get(ctx, name)
	if err != nil {
		return err
	}

	link, err := s.reset.IssueResetKey(ctx, user, IssueOptions{})
	if err != nil {
		return err
	}

	subject := "Complete Registration"
	if s.siteName != "" {
		subject = fmt.Sprintf("Welcome to %s", s.siteName)
	}

	msg := mail.Message{
		To:      []string{user.Email},
		Subject: subject,
		Body: fmt.Sprintf(
			"Dear %s,\r\n\r\nA new account has been created for you.\r\n\r\nClick on the link below to complete your registration and set a new password:\r\n\r\n%s\r\n",
			firstNameOrFallback(user), link),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		metrics.OutgoingEmails.WithLabelValues("welcome", "failure").Inc()
		s.log.Warn("failed to send welcome email", zap.String("user", name), zap.Error(err))
		return jobs.ErrRetryLater
	}

	metrics.OutgoingEmails.WithLabelValues("welcome", "success").Inc()
	return nil
}
