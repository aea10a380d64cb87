package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserType describes a class of accounts. The two standard types ship with
// the system; custom types restrict users to a role and a module subset.
type UserType struct {
	Name string `gorm:"primaryKey;size:140" json:"name"`

	IsStandard bool `gorm:"default:false" json:"is_standard"`

	// Role is assigned automatically to users of a custom type.
	Role string `gorm:"size:140" json:"role"`

	// ApplyUserPermissionOn and UserIDField scope custom-type users to the
	// records that reference them.
	ApplyUserPermissionOn string `gorm:"size:140" json:"apply_user_permission_on"`
	UserIDField           string `gorm:"size:140" json:"user_id_field"`

	AllowedModules datatypes.JSON `json:"allowed_modules"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
