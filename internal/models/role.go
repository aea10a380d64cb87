package models

import "time"

// Role is a named bundle of capabilities. DeskAccess decides whether
// holders of the role count as system users.
type Role struct {
	Name string `gorm:"primaryKey;size:140" json:"name"`

	DeskAccess bool `json:"desk_access"`
	Disabled   bool `gorm:"default:false;index" json:"disabled"`
	IsCustom   bool `gorm:"default:false" json:"is_custom"`

	// TwoFactorAuth forces a second factor for every holder of the role.
	TwoFactorAuth bool `gorm:"default:false" json:"two_factor_auth"`

	HomePage string `json:"home_page"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reserved role names referenced throughout validation.
const (
	RoleAll           = "All"
	RoleGuest         = "Guest"
	RoleAdministrator = "Administrator"
	RoleSystemManager = "System Manager"
)

// IsAutoAssignedRole reports whether the role is granted implicitly and
// must never be stored on a user row.
func IsAutoAssignedRole(name string) bool {
	return name == RoleAll || name == RoleGuest
}
