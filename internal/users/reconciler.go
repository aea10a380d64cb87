package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/models"
	apperrors "github.com/wardenhq/warden/pkg/errors"
)

// RoleProfileReconciler keeps a user's role rows consistent with the role
// profiles linked to the account. Once at least one profile is linked the
// profiles are the source of truth: roles outside the union are dropped
// and missing union roles are appended.
type RoleProfileReconciler struct {
	db *gorm.DB
}

// NewRoleProfileReconciler constructs a reconciler over the catalogue tables.
func NewRoleProfileReconciler(db *gorm.DB) (*RoleProfileReconciler, error) {
	if db == nil {
		return nil, errors.New("role profile reconciler: db is required")
	}
	return &RoleProfileReconciler{db: db}, nil
}

// MigrateLegacyField moves the deprecated single role_profile_name value
// into the role profile rows, clearing the legacy field either way.
func (r *RoleProfileReconciler) MigrateLegacyField(d *Draft) {
	legacy := strings.TrimSpace(d.User.RoleProfileName)
	if legacy == "" {
		return
	}

	for _, row := range d.User.RoleProfiles {
		if row.RoleProfile == legacy {
			d.User.RoleProfileName = ""
			return
		}
	}

	d.User.RoleProfiles = append(d.User.RoleProfiles, models.UserRoleProfile{
		UserName:    d.User.Name,
		RoleProfile: legacy,
	})
	d.User.RoleProfileName = ""
}

// Reconcile expands the linked profiles into the role rows. Built-in
// accounts never carry profiles; any that were attached are cleared.
func (r *RoleProfileReconciler) Reconcile(ctx context.Context, d *Draft) error {
	if len(d.User.RoleProfiles) == 0 {
		return nil
	}

	if identity.IsReserved(d.User.Name) {
		d.User.RoleProfiles = nil
		return nil
	}

	names := make([]string, 0, len(d.User.RoleProfiles))
	for _, row := range d.User.RoleProfiles {
		names = append(names, row.RoleProfile)
	}
	names = normaliseNames(names)

	var profiles []models.RoleProfile
	if err := r.db.WithContext(ctx).
		Preload("Roles").
		Where("name IN ?", names).
		Find(&profiles).Error; err != nil {
		return fmt.Errorf("role profile reconciler: load profiles: %w", err)
	}
	if len(profiles) != len(names) {
		found := make(map[string]struct{}, len(profiles))
		for _, profile := range profiles {
			found[profile.Name] = struct{}{}
		}
		for _, name := range names {
			if _, ok := found[name]; !ok {
				return apperrors.NewBadRequest(fmt.Sprintf("Role profile %s does not exist", name))
			}
		}
	}

	union := make(map[string]struct{})
	ordered := make([]string, 0)
	for _, profile := range profiles {
		for _, role := range profile.RoleNames() {
			if _, ok := union[role]; ok {
				continue
			}
			union[role] = struct{}{}
			ordered = append(ordered, role)
		}
	}

	// Existing rows inside the union keep their position; union roles the
	// user lacked are appended after them.
	d.KeepRoles(func(role string) bool {
		_, ok := union[role]
		return ok
	})
	for _, role := range ordered {
		d.AppendRole(role)
	}

	return nil
}
