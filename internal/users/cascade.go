package users

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/cache"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/models"
	apperrors "github.com/wardenhq/warden/pkg/errors"
)

// Delete removes the account and everything that only makes sense while
// it exists. The row is disabled and its sessions are terminated before
// the cascade runs, so a failure partway cannot leave a live account
// with dangling state.
func (s *UserService) Delete(ctx context.Context, name string) error {
	ctx = ensureContext(ctx)

	user, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	if identity.IsReserved(user.Name) {
		return apperrors.ErrProtectedUser.WithMessage(fmt.Sprintf("User %s cannot be deleted", user.Name))
	}

	err = s.db.WithContext(ctx).Model(&models.User{}).
		Where("name = ?", user.Name).
		UpdateColumn("enabled", false).Error
	if err != nil {
		return err
	}

	var cleanup error
	if s.sessions != nil {
		if err := s.sessions.LogoutUser(ctx, user.Name); err != nil {
			cleanup = multierr.Append(cleanup, fmt.Errorf("logout %s: %w", user.Name, err))
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.cascadeDelete(tx, user.Name)
	})
	if err != nil {
		return err
	}

	s.rebuildAwaitingPasswords(ctx)

	if s.aside != nil {
		keys := []string{cache.KeyEnabledUsers, cache.UserCacheKey(user.Name)}
		if user.AllowInMentions {
			keys = append(keys, cache.KeyUsersForMentions)
		}
		s.aside.Invalidate(ctx, keys...)
	}

	if cleanup != nil {
		s.log.Warn("post-delete cleanup reported errors",
			zap.String("user", user.Name),
			zap.Error(cleanup))
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.delete",
		Resource: user.Name,
		Result:   "success",
	})

	return nil
}

// cascadeDelete walks every table that references the account. Rows that
// belong to the user alone are deleted, shared rows are unlinked.
func (s *UserService) cascadeDelete(tx *gorm.DB, name string) error {
	if err := tx.Where("allocated_to = ?", name).Delete(&models.Todo{}).Error; err != nil {
		return err
	}
	err := tx.Model(&models.Todo{}).
		Where("assigned_by = ?", name).
		Update("assigned_by", nil).Error
	if err != nil {
		return err
	}

	err = tx.Where("owner = ? AND event_type = ?", name, models.EventTypePrivate).
		Delete(&models.Event{}).Error
	if err != nil {
		return err
	}

	if err := tx.Where("user_name = ?", name).Delete(&models.DocShare{}).Error; err != nil {
		return err
	}

	err = tx.Where(
		"communication_type IN ? AND reference_type = ? AND (reference_name = ? OR owner = ?)",
		[]string{"Chat", "Notification"}, "User", name, name,
	).Delete(&models.Communication{}).Error
	if err != nil {
		return err
	}

	err = tx.Model(&models.Contact{}).
		Where("user_name = ?", name).
		Update("user_name", nil).Error
	if err != nil {
		return err
	}

	for _, model := range []any{
		&models.NotificationSettings{},
		&models.Notification{},
		&models.UserPermission{},
		&models.OAuthAuthorizationCode{},
		&models.TokenCache{},
		&models.Session{},
		&models.UserRole{},
		&models.UserRoleProfile{},
		&models.BlockedModule{},
		&models.SocialLogin{},
		&models.UserEmail{},
	} {
		if err := tx.Where("user_name = ?", name).Delete(model).Error; err != nil {
			return err
		}
	}

	if err := tx.Where("for_user = ?", name).Delete(&models.ListFilter{}).Error; err != nil {
		return err
	}
	if err := pruneNoteSeenBy(tx, name); err != nil {
		return err
	}
	if err := tx.Where("parent = ?", name).Delete(&models.DefaultValue{}).Error; err != nil {
		return err
	}

	return tx.Delete(&models.User{}, "name = ?", name).Error
}

// pruneNoteSeenBy drops the user from every note's seen list. The LIKE
// narrows the scan, the JSON round-trip does the exact match.
func pruneNoteSeenBy(tx *gorm.DB, name string) error {
	var notes []models.Note
	err := tx.Where("seen_by LIKE ?", "%"+name+"%").Find(&notes).Error
	if err != nil {
		return err
	}

	for _, note := range notes {
		var seen []string
		if len(note.SeenBy) > 0 {
			if err := json.Unmarshal(note.SeenBy, &seen); err != nil {
				continue
			}
		}
		kept := make([]string, 0, len(seen))
		for _, candidate := range seen {
			if candidate != name {
				kept = append(kept, candidate)
			}
		}
		if len(kept) == len(seen) {
			continue
		}
		raw, err := json.Marshal(kept)
		if err != nil {
			return err
		}
		err = tx.Model(&models.Note{}).
			Where("id = ?", note.ID).
			Update("seen_by", raw).Error
		if err != nil {
			return err
		}
	}
	return nil
}
