package users

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wardenhq/warden/internal/cache"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/models"
	apperrors "github.com/wardenhq/warden/pkg/errors"
)

// renameScanColumns are rewritten across every table when an account
// changes its name. Any table carrying one of these columns references
// accounts by name.
var renameScanColumns = map[string]bool{
	"owner":       true,
	"modified_by": true,
	"user_name":   true,
}

// renameLinkColumns reference accounts under other column names.
var renameLinkColumns = []struct {
	model  any
	column string
}{
	{&models.Todo{}, "allocated_to"},
	{&models.Todo{}, "assigned_by"},
	{&models.Notification{}, "from_user"},
	{&models.DocShare{}, "shared_by"},
	{&models.ListFilter{}, "for_user"},
	{&models.DefaultValue{}, "parent"},
}

// renameDynamicRefs point at a document through a type column and a name
// column. Only rows whose type is User follow a rename.
var renameDynamicRefs = []struct {
	model      any
	typeColumn string
	nameColumn string
}{
	{&models.Todo{}, "reference_type", "reference_name"},
	{&models.Communication{}, "reference_type", "reference_name"},
	{&models.DocShare{}, "document_type", "document_name"},
	{&models.Notification{}, "document_type", "document_name"},
	{&models.UserPermission{}, "allow_type", "for_value"},
}

// Rename moves the account to a new email address, which doubles as its
// name. Every reference in the database follows: child rows, satellite
// rows, and the owner and modified_by audit columns of every table.
func (s *UserService) Rename(ctx context.Context, oldName, newName string) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.Get(ctx, oldName)
	if err != nil {
		return nil, err
	}
	if identity.IsReserved(user.Name) {
		return nil, apperrors.ErrProtectedUser.WithMessage(fmt.Sprintf("User %s cannot be renamed", user.Name))
	}

	canonical, ok := normaliseEmail(newName)
	if !ok {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("%s is not a valid email address", strings.TrimSpace(newName)))
	}
	if canonical == user.Name {
		return user, nil
	}

	var count int64
	err = s.db.WithContext(ctx).Model(&models.User{}).
		Where("name = ?", canonical).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, apperrors.NewConflict(fmt.Sprintf("User %s already exists", canonical))
	}

	previous := user.Name
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The new identity goes in first so moved references always
		// have a parent row.
		row := *user
		row.Name = canonical
		row.Email = canonical
		row.Roles = nil
		row.RoleProfiles = nil
		row.BlockedModules = nil
		row.SocialLogins = nil
		row.UserEmails = nil
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return err
		}

		if err := moveUserReferences(tx, previous, canonical); err != nil {
			return err
		}
		if err := renameNoteSeenBy(tx, previous, canonical); err != nil {
			return err
		}

		return tx.Delete(&models.User{}, "name = ?", previous).Error
	})
	if err != nil {
		return nil, err
	}

	s.rebuildAwaitingPasswords(ctx)

	if s.aside != nil {
		s.aside.Invalidate(ctx,
			cache.KeyEnabledUsers,
			cache.KeyUsersForMentions,
			cache.UserCacheKey(previous),
			cache.UserCacheKey(canonical))
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.rename",
		Resource: canonical,
		Result:   "success",
		Metadata: map[string]any{"previous": previous},
	})

	return s.Get(ctx, canonical)
}

// moveUserReferences rewrites account references across the whole
// schema. The column scan asks the migrator what each table actually
// has, so tables added later are covered without registration.
func moveUserReferences(tx *gorm.DB, oldName, newName string) error {
	tables, err := tx.Migrator().GetTables()
	if err != nil {
		return err
	}

	for _, table := range tables {
		columns, err := tx.Migrator().ColumnTypes(table)
		if err != nil {
			return err
		}
		for _, column := range columns {
			name := column.Name()
			if !renameScanColumns[name] {
				continue
			}
			err := tx.Table(table).
				Where(name+" = ?", oldName).
				UpdateColumn(name, newName).Error
			if err != nil {
				return err
			}
		}
	}

	for _, link := range renameLinkColumns {
		err := tx.Model(link.model).
			Where(link.column+" = ?", oldName).
			UpdateColumn(link.column, newName).Error
		if err != nil {
			return err
		}
	}

	for _, ref := range renameDynamicRefs {
		err := tx.Model(ref.model).
			Where(ref.typeColumn+" = ? AND "+ref.nameColumn+" = ?", "User", oldName).
			UpdateColumn(ref.nameColumn, newName).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// renameNoteSeenBy follows the account into every note's seen list.
func renameNoteSeenBy(tx *gorm.DB, oldName, newName string) error {
	var notes []models.Note
	err := tx.Where("seen_by LIKE ?", "%"+oldName+"%").Find(&notes).Error
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
		changed := false
		for i, candidate := range seen {
			if candidate == oldName {
				seen[i] = newName
				changed = true
			}
		}
		if !changed {
			continue
		}
		raw, err := json.Marshal(seen)
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
