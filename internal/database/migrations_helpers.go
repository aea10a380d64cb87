package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/models"
)

func ensureRole(db *gorm.DB, role models.Role) error {
	return db.Where(models.Role{Name: role.Name}).
		Attrs(role).
		FirstOrCreate(&models.Role{}).Error
}

func ensureUserType(db *gorm.DB, userType models.UserType) error {
	return db.Where(models.UserType{Name: userType.Name}).
		Attrs(userType).
		FirstOrCreate(&models.UserType{}).Error
}

// ensureReservedUser creates a built-in account and its role rows when
// missing. Existing accounts are left untouched so local changes, such
// as the Administrator password, survive restarts.
func ensureReservedUser(db *gorm.DB, user models.User, roles []string) error {
	var existing models.User
	err := db.Where("name = ?", user.Name).Take(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		for _, role := range roles {
			row := models.UserRole{UserName: user.Name, Role: role}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
