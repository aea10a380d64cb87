package database

import (
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.UserRole{},
		&models.UserRoleProfile{},
		&models.BlockedModule{},
		&models.SocialLogin{},
		&models.UserEmail{},
		&models.Role{},
		&models.RoleProfile{},
		&models.RoleProfileRole{},
		&models.ModuleProfile{},
		&models.ModuleProfileBlock{},
		&models.UserType{},
		&models.Session{},
		&models.AuditLog{},
		&models.Notification{},
		&models.NotificationSettings{},
		&models.Todo{},
		&models.Event{},
		&models.DocShare{},
		&models.Communication{},
		&models.Contact{},
		&models.UserPermission{},
		&models.OAuthAuthorizationCode{},
		&models.TokenCache{},
		&models.DefaultValue{},
		&models.Note{},
		&models.ListFilter{},
		&models.SystemSetting{},
		&models.CacheEntry{},
	)
}

// SeedData populates the role catalogue, standard user types, and the two
// built-in accounts. Seeding is idempotent and safe to run on every start.
func SeedData(db *gorm.DB) error {
	roles := []models.Role{
		{Name: models.RoleAll, DeskAccess: false},
		{Name: models.RoleGuest, DeskAccess: false},
		{Name: models.RoleAdministrator, DeskAccess: true},
		{Name: models.RoleSystemManager, DeskAccess: true},
	}
	for _, role := range roles {
		if err := ensureRole(db, role); err != nil {
			return err
		}
	}

	userTypes := []models.UserType{
		{Name: models.UserTypeSystem, IsStandard: true},
		{Name: models.UserTypeWebsite, IsStandard: true},
	}
	for _, ut := range userTypes {
		if err := ensureUserType(db, ut); err != nil {
			return err
		}
	}

	administrator := models.User{
		Name:      identity.Administrator,
		Email:     "admin@example.com",
		FirstName: identity.Administrator,
		FullName:  identity.Administrator,
		Enabled:   true,
		UserType:  models.UserTypeSystem,
	}
	if err := ensureReservedUser(db, administrator, []string{models.RoleAdministrator, models.RoleSystemManager}); err != nil {
		return err
	}

	guest := models.User{
		Name:      identity.Guest,
		Email:     "guest@example.com",
		FirstName: identity.Guest,
		FullName:  identity.Guest,
		Enabled:   true,
		UserType:  models.UserTypeWebsite,
	}
	if err := ensureReservedUser(db, guest, nil); err != nil {
		return err
	}

	return nil
}
